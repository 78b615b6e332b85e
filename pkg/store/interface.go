package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBills/pkg/models"
)

// ErrNotFound is returned when a bill or transaction does not exist.
var ErrNotFound = errors.New("not found")

// BillReader is the read side of bill storage.
type BillReader interface {
	GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	// ListActiveBills returns every bill that is not archived.
	ListActiveBills(ctx context.Context) ([]*models.Bill, error)
	ListBills(ctx context.Context, includeArchived bool) ([]*models.Bill, error)
	// ListBillsByDueRange returns active bills whose due date is in [from, to).
	ListBillsByDueRange(ctx context.Context, from, to time.Time) ([]*models.Bill, error)
}

// BillWriter is the write side of bill storage.
type BillWriter interface {
	CreateBill(ctx context.Context, bill *models.Bill) error
	UpdateBill(ctx context.Context, bill *models.Bill) error
	DeleteBill(ctx context.Context, id uuid.UUID) error
	// ApplyPayment updates bill and, when transaction is non-nil, inserts it,
	// both in one database transaction.
	ApplyPayment(ctx context.Context, bill *models.Bill, transaction *models.Transaction) error
}

// TransactionReader is the read side of payment history.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListTransactionsByBill(ctx context.Context, billID uuid.UUID) ([]*models.Transaction, error)
	// AggregateByMonth totals payments with paid_at in [from, to) per calendar
	// month in loc, ordered by month.
	AggregateByMonth(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.MonthlyPaidTotal, error)
}

// TransactionWriter is the write side of payment history.
type TransactionWriter interface {
	CreateTransaction(ctx context.Context, transaction *models.Transaction) error
	UpdateTransaction(ctx context.Context, transaction *models.Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
}

// Storage defines the interface for database operations related to bills and payments.
type Storage interface {
	BillReader
	BillWriter
	TransactionReader
	TransactionWriter

	Close() error
}
