// Package forecast projects how much cash bills will need in upcoming months.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/money"
	"github.com/mcclellann/fredBills/pkg/recurrence"
	"github.com/mcclellann/fredBills/pkg/store"
)

const (
	MaxMonths = 24

	monthLayout = "2006-01"
	labelLayout = "January 2006"

	// Bound on projected cycles per bill, enough for a weekly bill due decades ago.
	maxProjectedCycles = 5000
)

var (
	ErrInvalidMonth = errors.New("month must be formatted as YYYY-MM")
	ErrInvalidRange = fmt.Errorf("months must be between 1 and %d", MaxMonths)
)

// Engine builds forecasts from the bill store and payment history.
type Engine struct {
	bills        store.BillReader
	transactions store.TransactionReader
	log          logrus.FieldLogger
	loc          *time.Location
}

// NewEngine creates an Engine. Month boundaries are evaluated in loc.
func NewEngine(bills store.BillReader, transactions store.TransactionReader, log logrus.FieldLogger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{bills: bills, transactions: transactions, log: log, loc: loc}
}

// ParseMonth parses a strict YYYY-MM string into the first instant of that month in loc.
func ParseMonth(month string, loc *time.Location) (time.Time, error) {
	if len(month) != len(monthLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	t, err := time.ParseInLocation(monthLayout, month, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return t, nil
}

// BillsForMonth returns every active bill that is due in month or should be
// saved for during it. An empty tag selects all bills.
func (e *Engine) BillsForMonth(ctx context.Context, month string, tag string) ([]models.ForecastBill, error) {
	start, err := ParseMonth(month, e.loc)
	if err != nil {
		return nil, err
	}
	bills, estimates, err := e.load(ctx, tag)
	if err != nil {
		return nil, err
	}
	return e.billsForMonth(start, bills, estimates), nil
}

// BillsForMonthRange returns totals for months consecutive months starting at startMonth.
// The result always has exactly months entries.
func (e *Engine) BillsForMonthRange(ctx context.Context, startMonth string, months int, tag string) ([]models.MonthlyForecastTotal, error) {
	if months < 1 || months > MaxMonths {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRange, months)
	}
	start, err := ParseMonth(startMonth, e.loc)
	if err != nil {
		return nil, err
	}
	bills, estimates, err := e.load(ctx, tag)
	if err != nil {
		return nil, err
	}

	totals := make([]models.MonthlyForecastTotal, 0, months)
	for i := 0; i < months; i++ {
		monthStart := start.AddDate(0, i, 0)
		summary := CalculateSummary(e.billsForMonth(monthStart, bills, estimates))
		totals = append(totals, models.MonthlyForecastTotal{
			Month:       monthStart.Format(monthLayout),
			MonthLabel:  monthStart.Format(labelLayout),
			TotalDue:    summary.TotalDue,
			TotalToSave: summary.TotalToSave,
			GrandTotal:  summary.GrandTotal,
		})
	}
	return totals, nil
}

// CalculateSummary totals a month's forecast bills. The order of bills does not matter.
func CalculateSummary(bills []models.ForecastBill) models.ForecastSummary {
	var summary models.ForecastSummary
	for i := range bills {
		if bills[i].IsDue() {
			summary.TotalDue += bills[i].DisplayAmount
		}
		if bills[i].AmortizationAmount != nil {
			summary.TotalToSave += *bills[i].AmortizationAmount
		}
	}
	summary.GrandTotal = summary.TotalDue + summary.TotalToSave
	return summary
}

// load fetches the bills matching tag and the historical averages of the variable ones.
func (e *Engine) load(ctx context.Context, tag string) ([]*models.Bill, map[uuid.UUID]int64, error) {
	all, err := e.bills.ListActiveBills(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bills: %w", err)
	}

	bills := make([]*models.Bill, 0, len(all))
	estimates := make(map[uuid.UUID]int64)
	for _, bill := range all {
		if !bill.HasTag(tag) || bill.Status == models.BillStatusPaid {
			continue
		}
		if !bill.Frequency.Valid() {
			e.log.WithField("bill_id", bill.ID).Warnf("Skipping bill with unknown frequency %q", bill.Frequency)
			continue
		}
		bills = append(bills, bill)

		if !bill.IsVariable {
			continue
		}
		avg, ok, err := e.historicalAverage(ctx, bill.ID)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			estimates[bill.ID] = avg
		}
	}
	return bills, estimates, nil
}

func (e *Engine) historicalAverage(ctx context.Context, billID uuid.UUID) (int64, bool, error) {
	transactions, err := e.transactions.ListTransactionsByBill(ctx, billID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load payment history for bill %s: %w", billID, err)
	}
	amounts := make([]int64, 0, len(transactions))
	for _, t := range transactions {
		amounts = append(amounts, t.Amount)
	}
	avg, ok := money.Average(amounts)
	return avg, ok, nil
}

func (e *Engine) billsForMonth(start time.Time, bills []*models.Bill, estimates map[uuid.UUID]int64) []models.ForecastBill {
	end := start.AddDate(0, 1, 0)
	var result []models.ForecastBill
	for _, bill := range bills {
		if fb, ok := forecastBill(bill, start, end, estimates); ok {
			result = append(result, fb)
		}
	}
	return result
}

func forecastBill(bill *models.Bill, start, end time.Time, estimates map[uuid.UUID]int64) (models.ForecastBill, bool) {
	perCycle, estimated := bill.Amount, false
	if bill.IsVariable {
		if avg, ok := estimates[bill.ID]; ok {
			perCycle, estimated = avg, true
		}
	}

	occurrences, next := project(bill, start, end)
	if occurrences > 0 {
		return models.ForecastBill{
			Bill:          *bill,
			DisplayAmount: perCycle * int64(occurrences),
			IsEstimated:   estimated,
			Occurrences:   occurrences,
		}, true
	}

	cycle := recurrence.CycleMonths(bill.Frequency)
	if cycle <= 1 || next == nil || !next.Before(end.AddDate(0, cycle, 0)) {
		return models.ForecastBill{}, false
	}
	amortization := money.DivRound(perCycle, int64(cycle))
	return models.ForecastBill{
		Bill:               *bill,
		IsEstimated:        estimated,
		AmortizationAmount: &amortization,
	}, true
}

// project counts the bill's due dates in [start, end) and returns the first due
// date at or after end, if the bill has one.
func project(bill *models.Bill, start, end time.Time) (int, *time.Time) {
	occurrences := 0
	due := bill.DueDate
	for i := 0; i < maxProjectedCycles; i++ {
		if bill.EndDate != nil && due.After(*bill.EndDate) {
			return occurrences, nil
		}
		if !due.Before(end) {
			return occurrences, &due
		}
		if !due.Before(start) {
			occurrences++
		}
		next, ok := recurrence.NextDueDate(due, bill.Frequency)
		if !ok {
			return occurrences, nil
		}
		due = next
	}
	return occurrences, nil
}
