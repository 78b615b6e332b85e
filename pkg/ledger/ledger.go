package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mcclellann/fredBills/pkg/forecast"
	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/payment"
	"github.com/mcclellann/fredBills/pkg/recurrence"
	"github.com/mcclellann/fredBills/pkg/store"
)

var (
	ErrInvalidBill  = errors.New("invalid bill")
	ErrBillArchived = errors.New("bill is archived")
	ErrBillPaid     = errors.New("bill is already paid")
)

// BillInput holds the user-editable fields of a bill.
type BillInput struct {
	Title      string
	Amount     int64
	DueDate    time.Time
	EndDate    *time.Time
	Frequency  models.Frequency
	IsAutoPay  bool
	IsVariable bool
	Category   string
	Tags       []string
}

func (in BillInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidBill)
	case in.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidBill)
	case in.DueDate.IsZero():
		return fmt.Errorf("%w: due date is required", ErrInvalidBill)
	case !in.Frequency.Valid():
		return fmt.Errorf("%w: %w", ErrInvalidBill, models.ErrInvalidFrequency)
	case in.EndDate != nil && in.EndDate.Before(in.DueDate):
		return fmt.Errorf("%w: end date precedes due date", ErrInvalidBill)
	}
	for _, tag := range in.Tags {
		if strings.Contains(tag, ",") {
			return fmt.Errorf("%w: tag %q contains a comma", ErrInvalidBill, tag)
		}
	}
	return nil
}

// PaymentInput describes a manually logged payment.
type PaymentInput struct {
	Amount        int64
	PaidAt        time.Time // zero means now
	Notes         string
	UpdateDueDate bool
}

// PaymentReceipt is the outcome of a recorded payment.
type PaymentReceipt struct {
	Bill        *models.Bill        `json:"bill"`
	Transaction *models.Transaction `json:"transaction"`
	Historical  bool                `json:"historical"`
}

// Ledger handles the business logic for bills and their payments.
type Ledger struct {
	storage store.Storage
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log logrus.FieldLogger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{storage: s, log: log, now: now}
}

// CreateBill initializes a new bill with its first cycle fully owed.
func (l *Ledger) CreateBill(ctx context.Context, in BillInput) (*models.Bill, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := l.now()
	bill := &models.Bill{
		ID:         uuid.New(),
		Title:      strings.TrimSpace(in.Title),
		Amount:     in.Amount,
		AmountDue:  in.Amount,
		DueDate:    in.DueDate,
		EndDate:    in.EndDate,
		Frequency:  in.Frequency,
		IsAutoPay:  in.IsAutoPay,
		IsVariable: in.IsVariable,
		Status:     recurrence.DeriveStatus(in.DueDate, now),
		Category:   in.Category,
		Tags:       in.Tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.storage.CreateBill(ctx, bill); err != nil {
		return nil, fmt.Errorf("failed to store bill: %w", err)
	}
	l.log.WithField("bill_id", bill.ID).Infof("Created %s bill %q", bill.Frequency, bill.Title)
	return bill, nil
}

// GetBill retrieves a bill by its ID.
func (l *Ledger) GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	return l.storage.GetBill(ctx, id)
}

// ListBills retrieves bills carrying tag (all bills when tag is empty).
func (l *Ledger) ListBills(ctx context.Context, tag string, includeArchived bool) ([]*models.Bill, error) {
	bills, err := l.storage.ListBills(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	filtered := bills[:0]
	for _, b := range bills {
		if b.HasTag(tag) {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// BillsDueInMonth lists active bills whose current due date falls in the month starting at monthStart.
func (l *Ledger) BillsDueInMonth(ctx context.Context, monthStart time.Time) ([]*models.Bill, error) {
	return l.storage.ListBillsByDueRange(ctx, monthStart, monthStart.AddDate(0, 1, 0))
}

// UpdateBill replaces the editable fields of a bill. Changing the amount resets
// what is owed for the current cycle unless the bill is already paid.
func (l *Ledger) UpdateBill(ctx context.Context, id uuid.UUID, in BillInput) (*models.Bill, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	bill, err := l.storage.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}

	// A paid one-time bill turned recurring owes its new cycle in full.
	reopened := bill.Status == models.BillStatusPaid && in.Frequency.IsRecurring()
	if bill.Status != models.BillStatusPaid || reopened {
		if in.Amount != bill.Amount || reopened {
			bill.AmountDue = in.Amount
		}
		bill.Status = recurrence.DeriveStatus(in.DueDate, l.now())
	}
	bill.Title = strings.TrimSpace(in.Title)
	bill.Amount = in.Amount
	if bill.AmountDue > bill.Amount {
		bill.AmountDue = bill.Amount
	}
	bill.DueDate = in.DueDate
	bill.EndDate = in.EndDate
	bill.Frequency = in.Frequency
	bill.IsAutoPay = in.IsAutoPay
	bill.IsVariable = in.IsVariable
	bill.Category = in.Category
	bill.Tags = in.Tags
	bill.UpdatedAt = l.now()

	if err := l.storage.UpdateBill(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// ArchiveBill soft-deletes a bill; it keeps its history but leaves forecasts and jobs.
func (l *Ledger) ArchiveBill(ctx context.Context, id uuid.UUID, archived bool) (*models.Bill, error) {
	bill, err := l.storage.GetBill(ctx, id)
	if err != nil {
		return nil, err
	}
	bill.IsArchived = archived
	bill.UpdatedAt = l.now()
	if err := l.storage.UpdateBill(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// DeleteBill hard-deletes a bill and its payments.
func (l *Ledger) DeleteBill(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteBill(ctx, id); err != nil {
		return err
	}
	l.log.WithField("bill_id", id).Info("Deleted bill")
	return nil
}

// RecordPayment processes a manually logged payment for a bill. A payment dated
// before the bill's current cycle never advances the due date.
func (l *Ledger) RecordPayment(ctx context.Context, billID uuid.UUID, in PaymentInput) (*PaymentReceipt, error) {
	bill, err := l.storage.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.IsArchived {
		return nil, ErrBillArchived
	}
	if bill.Status == models.BillStatusPaid {
		return nil, ErrBillPaid
	}

	now := l.now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	historical := payment.IsHistorical(*bill, paidAt)
	updateDueDate := in.UpdateDueDate && !historical

	result, err := payment.Process(*bill, in.Amount, updateDueDate, now)
	if err != nil {
		return nil, err
	}
	result.Apply(bill)
	bill.UpdatedAt = now

	transaction := &models.Transaction{
		ID:        uuid.New(),
		BillID:    bill.ID,
		Amount:    in.Amount,
		PaidAt:    paidAt,
		Notes:     in.Notes,
		CreatedAt: now,
	}
	if err := l.storage.ApplyPayment(ctx, bill, transaction); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"bill_id":    bill.ID,
		"amount":     in.Amount,
		"historical": historical,
		"status":     bill.Status,
	}).Info("Recorded payment")
	return &PaymentReceipt{Bill: bill, Transaction: transaction, Historical: historical}, nil
}

// SkipPayment advances a recurring bill to its next cycle without recording a payment.
func (l *Ledger) SkipPayment(ctx context.Context, billID uuid.UUID) (*models.Bill, error) {
	bill, err := l.storage.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.IsArchived {
		return nil, ErrBillArchived
	}

	now := l.now()
	result, err := payment.Skip(*bill, now)
	if err != nil {
		return nil, err
	}
	result.Apply(bill)
	bill.UpdatedAt = now

	if err := l.storage.ApplyPayment(ctx, bill, nil); err != nil {
		return nil, fmt.Errorf("failed to skip payment: %w", err)
	}
	l.log.WithField("bill_id", bill.ID).Infof("Skipped cycle, next due %s", bill.DueDate.Format("2006-01-02"))
	return bill, nil
}

// ListPayments returns a bill's payment history, oldest first.
func (l *Ledger) ListPayments(ctx context.Context, billID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := l.storage.GetBill(ctx, billID); err != nil {
		return nil, err
	}
	return l.storage.ListTransactionsByBill(ctx, billID)
}

// UpdatePayment edits a recorded payment. The bill is not recalculated.
func (l *Ledger) UpdatePayment(ctx context.Context, id uuid.UUID, amount int64, paidAt time.Time, notes string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, payment.ErrInvalidAmount
	}
	transaction, err := l.storage.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	transaction.Amount = amount
	if !paidAt.IsZero() {
		transaction.PaidAt = paidAt
	}
	transaction.Notes = notes
	if err := l.storage.UpdateTransaction(ctx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

// DeletePayment removes a payment record. The bill keeps its current state;
// callers correct it by hand if needed.
func (l *Ledger) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	l.log.WithField("transaction_id", id).Info("Deleted payment")
	return nil
}

// PaymentHistory totals payments for months consecutive months from start,
// including months without payments.
func (l *Ledger) PaymentHistory(ctx context.Context, start time.Time, months int) ([]models.MonthlyPaidTotal, error) {
	if months < 1 || months > forecast.MaxMonths {
		return nil, fmt.Errorf("%w: got %d", forecast.ErrInvalidRange, months)
	}
	start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	end := start.AddDate(0, months, 0)
	totals, err := l.storage.AggregateByMonth(ctx, start, end, start.Location())
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]models.MonthlyPaidTotal, len(totals))
	for _, t := range totals {
		byMonth[t.Month] = t
	}
	history := make([]models.MonthlyPaidTotal, 0, months)
	for i := 0; i < months; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		total, ok := byMonth[key]
		if !ok {
			total = models.MonthlyPaidTotal{Month: key}
		}
		history = append(history, total)
	}
	return history, nil
}

// DueDateLabel describes when bill is due relative to now.
func (l *Ledger) DueDateLabel(bill *models.Bill) string {
	return recurrence.FormatRelativeDueDate(bill.DueDate, bill.Status, l.now())
}
