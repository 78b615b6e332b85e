// Package payment computes how a payment changes a bill. It performs no I/O;
// callers persist the resulting bill and the payment record together.
package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/recurrence"
)

var (
	ErrInvalidAmount     = errors.New("payment amount must be positive")
	ErrCannotSkipOneTime = errors.New("one-time bills cannot be skipped")
)

// Result is the new state of a bill after a payment.
type Result struct {
	NextDueDate  *time.Time // nil when the due date does not move
	NewAmountDue int64
	NewStatus    models.BillStatus
}

// Apply writes the result onto bill.
func (r Result) Apply(bill *models.Bill) {
	if r.NextDueDate != nil {
		bill.DueDate = *r.NextDueDate
	}
	bill.AmountDue = r.NewAmountDue
	bill.Status = r.NewStatus
}

// Process applies a payment of amount minor units to bill.
//
// With updateDueDate the current cycle is settled: a recurring bill moves to its
// next due date with the full amount owed again, a one-time bill becomes paid
// and keeps its due date. Without it the remaining balance shrinks and the
// cycle stays where it is.
func Process(bill models.Bill, amount int64, updateDueDate bool, now time.Time) (Result, error) {
	if amount <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if !bill.Frequency.Valid() {
		return Result{}, fmt.Errorf("bill %s: %w: %q", bill.ID, models.ErrInvalidFrequency, bill.Frequency)
	}

	if updateDueDate {
		next, ok := recurrence.NextDueDate(bill.DueDate, bill.Frequency)
		if !ok {
			return Result{NewAmountDue: 0, NewStatus: models.BillStatusPaid}, nil
		}
		return Result{
			NextDueDate:  &next,
			NewAmountDue: bill.Amount,
			NewStatus:    recurrence.DeriveStatus(next, now),
		}, nil
	}

	remaining := bill.AmountDue - amount
	if remaining < 0 {
		remaining = 0
	}
	status := recurrence.DeriveStatus(bill.DueDate, now)
	if remaining == 0 && !bill.Frequency.IsRecurring() {
		status = models.BillStatusPaid
	}
	return Result{NewAmountDue: remaining, NewStatus: status}, nil
}

// Skip moves a recurring bill to its next cycle without recording a payment.
func Skip(bill models.Bill, now time.Time) (Result, error) {
	if !bill.Frequency.Valid() {
		return Result{}, fmt.Errorf("bill %s: %w: %q", bill.ID, models.ErrInvalidFrequency, bill.Frequency)
	}
	next, ok := recurrence.NextDueDate(bill.DueDate, bill.Frequency)
	if !ok {
		return Result{}, ErrCannotSkipOneTime
	}
	return Result{
		NextDueDate:  &next,
		NewAmountDue: bill.Amount,
		NewStatus:    recurrence.DeriveStatus(next, now),
	}, nil
}

// FullAmount is what settles the current cycle of bill in one payment. It is
// zero once partial payments have covered the cycle.
func FullAmount(bill models.Bill) int64 {
	if bill.AmountDue > 0 {
		return bill.AmountDue
	}
	return 0
}

// Settle closes a cycle whose balance is already covered, without a payment:
// a recurring bill moves to its next due date, a one-time bill becomes paid.
func Settle(bill models.Bill, now time.Time) (Result, error) {
	if !bill.Frequency.Valid() {
		return Result{}, fmt.Errorf("bill %s: %w: %q", bill.ID, models.ErrInvalidFrequency, bill.Frequency)
	}
	if !bill.Frequency.IsRecurring() {
		return Result{NewAmountDue: 0, NewStatus: models.BillStatusPaid}, nil
	}
	return Skip(bill, now)
}
