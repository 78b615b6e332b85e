package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidFrequency is returned when a frequency string is not one of the known cadences.
var ErrInvalidFrequency = errors.New("invalid frequency")

// Frequency is the recurrence cadence of a bill.
type Frequency string

const (
	FrequencyOnce         Frequency = "once"
	FrequencyWeekly       Frequency = "weekly"
	FrequencyBiweekly     Frequency = "biweekly"
	FrequencyTwiceMonthly Frequency = "twicemonthly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyBimonthly    Frequency = "bimonthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencyYearly       Frequency = "yearly"
)

// Frequencies lists every supported cadence.
var Frequencies = []Frequency{
	FrequencyOnce,
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyTwiceMonthly,
	FrequencyMonthly,
	FrequencyBimonthly,
	FrequencyQuarterly,
	FrequencyYearly,
}

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// IsRecurring reports whether bills with this cadence ever advance their due date.
func (f Frequency) IsRecurring() bool {
	return f != FrequencyOnce
}

// ParseFrequency converts user input into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

type BillStatus string

const (
	BillStatusPending BillStatus = "pending"
	BillStatusPaid    BillStatus = "paid"
	BillStatusOverdue BillStatus = "overdue"
)

// Bill is a recurring or one-time obligation. Money fields are in minor currency units.
type Bill struct {
	ID         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Amount     int64      `json:"amount"`     // Nominal amount of one cycle
	AmountDue  int64      `json:"amount_due"` // Remaining for the current cycle
	DueDate    time.Time  `json:"due_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Frequency  Frequency  `json:"frequency"`
	IsAutoPay  bool       `json:"is_auto_pay"`
	IsVariable bool       `json:"is_variable"`
	Status     BillStatus `json:"status"`
	IsArchived bool       `json:"is_archived"`
	Category   string     `json:"category,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasTag reports whether the bill carries tag. An empty tag matches every bill.
func (b *Bill) HasTag(tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range b.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Transaction is a payment recorded against a bill.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	BillID    uuid.UUID `json:"bill_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
	Notes     string    `json:"notes,omitempty"`
	IsAutoPay bool      `json:"is_auto_pay"`
	CreatedAt time.Time `json:"created_at"`
}

// ForecastBill is a bill as it contributes to one forecasted month.
type ForecastBill struct {
	Bill
	DisplayAmount      int64  `json:"display_amount"`
	IsEstimated        bool   `json:"is_estimated"`
	AmortizationAmount *int64 `json:"amortization_amount"`
	Occurrences        int    `json:"occurrences"`
}

// IsDue reports whether the bill falls due within the forecasted month.
func (fb *ForecastBill) IsDue() bool {
	return fb.Occurrences > 0
}

type MonthlyForecastTotal struct {
	Month       string `json:"month"` // YYYY-MM
	MonthLabel  string `json:"month_label"`
	TotalDue    int64  `json:"total_due"`
	TotalToSave int64  `json:"total_to_save"`
	GrandTotal  int64  `json:"grand_total"`
}

type ForecastSummary struct {
	TotalDue    int64 `json:"total_due"`
	TotalToSave int64 `json:"total_to_save"`
	GrandTotal  int64 `json:"grand_total"`
}

// MonthlyPaidTotal aggregates recorded payments for one calendar month.
type MonthlyPaidTotal struct {
	Month string `json:"month"`
	Total int64  `json:"total"`
	Count int    `json:"count"`
}

// AutoPayResult summarizes one run of the auto-pay job.
type AutoPayResult struct {
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	FailedIDs []uuid.UUID `json:"failed_ids"`
}
