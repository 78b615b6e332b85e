package payment

import (
	"time"

	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/recurrence"
)

// IsHistorical reports whether paidAt belongs to a cycle that ended before the
// bill's current one. The current cycle starts at the previous due date; a
// payment dated on an earlier calendar day must not advance the schedule.
// One-time bills have a single cycle and are never historical.
func IsHistorical(bill models.Bill, paidAt time.Time) bool {
	if !bill.Frequency.Valid() {
		return false
	}
	cycleStart, ok := recurrence.PreviousDueDate(bill.DueDate, bill.Frequency)
	if !ok {
		return false
	}
	return recurrence.DaysUntilDue(paidAt, cycleStart) < 0
}
