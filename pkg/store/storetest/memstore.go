// Package storetest provides an in-memory store.Storage for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcclellann/fredBills/pkg/models"
	"github.com/mcclellann/fredBills/pkg/store"
)

// MemStore is a simple in-memory implementation of the Storage interface for testing.
// Returned bills and transactions are copies.
type MemStore struct {
	mu           sync.Mutex
	bills        map[uuid.UUID]*models.Bill
	transactions []*models.Transaction

	// FailUpdate, when set, is consulted before every bill write.
	FailUpdate func(bill *models.Bill) error
}

var _ store.Storage = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		bills:        make(map[uuid.UUID]*models.Bill),
		transactions: []*models.Transaction{},
	}
}

// AddBill stores bill as-is, bypassing FailUpdate.
func (m *MemStore) AddBill(bill *models.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[bill.ID] = copyBill(bill)
}

// Transactions returns every stored transaction in insertion order.
func (m *MemStore) Transactions() []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		c := *t
		out = append(out, &c)
	}
	return out
}

func (m *MemStore) CreateBill(_ context.Context, bill *models.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[bill.ID]; ok {
		return fmt.Errorf("bill %s already exists", bill.ID)
	}
	m.bills[bill.ID] = copyBill(bill)
	return nil
}

func (m *MemStore) GetBill(_ context.Context, id uuid.UUID) (*models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bill, ok := m.bills[id]
	if !ok {
		return nil, fmt.Errorf("bill %s: %w", id, store.ErrNotFound)
	}
	return copyBill(bill), nil
}

func (m *MemStore) UpdateBill(_ context.Context, bill *models.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(bill)
}

func (m *MemStore) updateLocked(bill *models.Bill) error {
	if m.FailUpdate != nil {
		if err := m.FailUpdate(bill); err != nil {
			return err
		}
	}
	if _, ok := m.bills[bill.ID]; !ok {
		return fmt.Errorf("bill %s: %w", bill.ID, store.ErrNotFound)
	}
	m.bills[bill.ID] = copyBill(bill)
	return nil
}

func (m *MemStore) DeleteBill(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[id]; !ok {
		return fmt.Errorf("bill %s: %w", id, store.ErrNotFound)
	}
	delete(m.bills, id)
	kept := m.transactions[:0]
	for _, t := range m.transactions {
		if t.BillID != id {
			kept = append(kept, t)
		}
	}
	m.transactions = kept
	return nil
}

func (m *MemStore) ApplyPayment(_ context.Context, bill *models.Bill, transaction *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateLocked(bill); err != nil {
		return err
	}
	if transaction != nil {
		c := *transaction
		m.transactions = append(m.transactions, &c)
	}
	return nil
}

func (m *MemStore) ListBills(_ context.Context, includeArchived bool) ([]*models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bills := []*models.Bill{}
	for _, b := range m.bills {
		if includeArchived || !b.IsArchived {
			bills = append(bills, copyBill(b))
		}
	}
	sortBills(bills)
	return bills, nil
}

func (m *MemStore) ListActiveBills(ctx context.Context) ([]*models.Bill, error) {
	return m.ListBills(ctx, false)
}

func (m *MemStore) ListBillsByDueRange(ctx context.Context, from, to time.Time) ([]*models.Bill, error) {
	active, _ := m.ListActiveBills(ctx)
	bills := []*models.Bill{}
	for _, b := range active {
		if !b.DueDate.Before(from) && b.DueDate.Before(to) {
			bills = append(bills, b)
		}
	}
	return bills, nil
}

func (m *MemStore) CreateTransaction(_ context.Context, transaction *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *transaction
	m.transactions = append(m.transactions, &c)
	return nil
}

func (m *MemStore) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
}

func (m *MemStore) UpdateTransaction(_ context.Context, transaction *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.transactions {
		if t.ID == transaction.ID {
			c := *transaction
			m.transactions[i] = &c
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", transaction.ID, store.ErrNotFound)
}

func (m *MemStore) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.transactions {
		if t.ID == id {
			m.transactions = append(m.transactions[:i], m.transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, store.ErrNotFound)
}

func (m *MemStore) ListTransactionsByBill(_ context.Context, billID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := []*models.Transaction{}
	for _, t := range m.transactions {
		if t.BillID == billID {
			c := *t
			txs = append(txs, &c)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].PaidAt.Before(txs[j].PaidAt) })
	return txs, nil
}

func (m *MemStore) AggregateByMonth(_ context.Context, from, to time.Time, loc *time.Location) ([]models.MonthlyPaidTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc == nil {
		loc = time.UTC
	}
	byMonth := map[string]*models.MonthlyPaidTotal{}
	for _, t := range m.transactions {
		if t.PaidAt.Before(from) || !t.PaidAt.Before(to) {
			continue
		}
		key := t.PaidAt.In(loc).Format("2006-01")
		if byMonth[key] == nil {
			byMonth[key] = &models.MonthlyPaidTotal{Month: key}
		}
		byMonth[key].Total += t.Amount
		byMonth[key].Count++
	}
	totals := make([]models.MonthlyPaidTotal, 0, len(byMonth))
	for _, total := range byMonth {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Month < totals[j].Month })
	return totals, nil
}

func (m *MemStore) Close() error {
	return nil
}

func copyBill(b *models.Bill) *models.Bill {
	c := *b
	if b.EndDate != nil {
		end := *b.EndDate
		c.EndDate = &end
	}
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	return &c
}

func sortBills(bills []*models.Bill) {
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].Title < bills[j].Title
		}
		return bills[i].DueDate.Before(bills[j].DueDate)
	})
}
