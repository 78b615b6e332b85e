package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcclellann/fredBills/pkg/models"
)

func TestIsHistorical(t *testing.T) {
	due := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		frequency models.Frequency
		paidAt    time.Time
		expected  bool
	}{
		{name: "monthly_inside_cycle", frequency: models.FrequencyMonthly, paidAt: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), expected: false},
		{name: "monthly_on_cycle_start", frequency: models.FrequencyMonthly, paidAt: time.Date(2026, time.February, 28, 18, 0, 0, 0, time.UTC), expected: false},
		{name: "monthly_before_cycle_start", frequency: models.FrequencyMonthly, paidAt: time.Date(2026, time.February, 27, 23, 0, 0, 0, time.UTC), expected: true},
		{name: "monthly_after_due_date", frequency: models.FrequencyMonthly, paidAt: time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC), expected: false},
		{name: "weekly_previous_week", frequency: models.FrequencyWeekly, paidAt: time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), expected: true},
		{name: "weekly_current_week", frequency: models.FrequencyWeekly, paidAt: time.Date(2026, time.March, 25, 0, 0, 0, 0, time.UTC), expected: false},
		{name: "yearly_last_year", frequency: models.FrequencyYearly, paidAt: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), expected: true},
		{name: "once_never_historical", frequency: models.FrequencyOnce, paidAt: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bill := models.Bill{DueDate: due, Frequency: tc.frequency}
			assert.Equal(t, tc.expected, IsHistorical(bill, tc.paidAt))
		})
	}
}
