package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredBills/pkg/models"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const billColumns = `id, title, amount, amount_due, due_date, end_date, frequency, is_auto_pay, is_variable, status, is_archived, category, tags, created_at, updated_at`

const transactionColumns = `id, bill_id, amount, paid_at, notes, is_auto_pay, created_at`

// SQLStore manages the database connection and operations for SQLite and PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	loc     *time.Location
}

// Option configures an SQLStore.
type Option func(*SQLStore)

// WithLocation sets the location times are returned in. Times are always stored in UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *SQLStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSQLStore opens the database for driver and initializes the schema.
func NewSQLStore(driver, dataSourceName string, opts ...Option) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Name, dialect.dataSource(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(dialect.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLiteStore opens a SQLite database file.
func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLStore, error) {
	return NewSQLStore(SQLite.Name, dataSourceName, opts...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) exec(ctx context.Context, e execer, query string, args ...any) (sql.Result, error) {
	return e.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// CreateBill inserts a new bill into the database.
func (s *SQLStore) CreateBill(ctx context.Context, bill *models.Bill) error {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO bills (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID.String(), bill.Title, bill.Amount, bill.AmountDue, bill.DueDate.UTC(), nullTime(bill.EndDate),
		string(bill.Frequency), bill.IsAutoPay, bill.IsVariable, string(bill.Status), bill.IsArchived,
		bill.Category, joinTags(bill.Tags), bill.CreatedAt.UTC(), bill.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

// GetBill retrieves a bill by its ID.
func (s *SQLStore) GetBill(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	row := s.queryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id.String())
	bill, err := s.scanBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bill %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// UpdateBill updates an existing bill in the database.
func (s *SQLStore) UpdateBill(ctx context.Context, bill *models.Bill) error {
	return s.updateBill(ctx, s.db, bill)
}

func (s *SQLStore) updateBill(ctx context.Context, e execer, bill *models.Bill) error {
	result, err := s.exec(ctx, e,
		`UPDATE bills SET title = ?, amount = ?, amount_due = ?, due_date = ?, end_date = ?, frequency = ?, is_auto_pay = ?, is_variable = ?, status = ?, is_archived = ?, category = ?, tags = ?, updated_at = ? WHERE id = ?`,
		bill.Title, bill.Amount, bill.AmountDue, bill.DueDate.UTC(), nullTime(bill.EndDate), string(bill.Frequency),
		bill.IsAutoPay, bill.IsVariable, string(bill.Status), bill.IsArchived, bill.Category, joinTags(bill.Tags),
		bill.UpdatedAt.UTC(), bill.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bill %s: %w", bill.ID, ErrNotFound)
	}
	return nil
}

// DeleteBill removes a bill and its transactions from the database within a transaction.
func (s *SQLStore) DeleteBill(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.exec(ctx, tx, `DELETE FROM transactions WHERE bill_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}

	result, err := s.exec(ctx, tx, `DELETE FROM bills WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// ApplyPayment persists a bill update and its payment record atomically.
func (s *SQLStore) ApplyPayment(ctx context.Context, bill *models.Bill, transaction *models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.updateBill(ctx, tx, bill); err != nil {
		return err
	}
	if transaction != nil {
		if err := s.insertTransaction(ctx, tx, transaction); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	return nil
}

// ListBills retrieves all bills, optionally including archived ones.
func (s *SQLStore) ListBills(ctx context.Context, includeArchived bool) ([]*models.Bill, error) {
	q := `SELECT ` + billColumns + ` FROM bills`
	var args []any
	if !includeArchived {
		q += ` WHERE is_archived = ?`
		args = append(args, false)
	}
	rows, err := s.query(ctx, q+` ORDER BY due_date ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	return s.scanBills(rows)
}

// ListActiveBills retrieves all bills that are not archived.
func (s *SQLStore) ListActiveBills(ctx context.Context) ([]*models.Bill, error) {
	return s.ListBills(ctx, false)
}

// ListBillsByDueRange retrieves active bills due in [from, to).
func (s *SQLStore) ListBillsByDueRange(ctx context.Context, from, to time.Time) ([]*models.Bill, error) {
	rows, err := s.query(ctx,
		`SELECT `+billColumns+` FROM bills WHERE is_archived = ? AND due_date >= ? AND due_date < ? ORDER BY due_date ASC`,
		false, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills by due range: %w", err)
	}
	defer rows.Close()

	return s.scanBills(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanBill(row scanner) (*models.Bill, error) {
	var bill models.Bill
	var idStr, frequency, status, tags string
	var endDate sql.NullTime
	err := row.Scan(&idStr, &bill.Title, &bill.Amount, &bill.AmountDue, &bill.DueDate, &endDate,
		&frequency, &bill.IsAutoPay, &bill.IsVariable, &status, &bill.IsArchived, &bill.Category, &tags,
		&bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		return nil, err
	}
	bill.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid bill id %q: %w", idStr, err)
	}
	bill.Frequency = models.Frequency(frequency)
	bill.Status = models.BillStatus(status)
	bill.Tags = splitTags(tags)
	bill.DueDate = bill.DueDate.In(s.loc)
	bill.CreatedAt = bill.CreatedAt.In(s.loc)
	bill.UpdatedAt = bill.UpdatedAt.In(s.loc)
	if endDate.Valid {
		end := endDate.Time.In(s.loc)
		bill.EndDate = &end
	}
	return &bill, nil
}

func (s *SQLStore) scanBills(rows *sql.Rows) ([]*models.Bill, error) {
	var bills []*models.Bill
	for rows.Next() {
		bill, err := s.scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill row: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return bills, nil
}

// CreateTransaction inserts a new transaction into the database.
func (s *SQLStore) CreateTransaction(ctx context.Context, transaction *models.Transaction) error {
	return s.insertTransaction(ctx, s.db, transaction)
}

func (s *SQLStore) insertTransaction(ctx context.Context, e execer, transaction *models.Transaction) error {
	_, err := s.exec(ctx, e,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		transaction.ID.String(), transaction.BillID.String(), transaction.Amount, transaction.PaidAt.UTC(),
		transaction.Notes, transaction.IsAutoPay, transaction.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by its ID.
func (s *SQLStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	row := s.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String())
	transaction, err := s.scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return transaction, nil
}

// UpdateTransaction changes the amount, date and notes of a recorded payment.
func (s *SQLStore) UpdateTransaction(ctx context.Context, transaction *models.Transaction) error {
	result, err := s.exec(ctx, s.db,
		`UPDATE transactions SET amount = ?, paid_at = ?, notes = ? WHERE id = ?`,
		transaction.Amount, transaction.PaidAt.UTC(), transaction.Notes, transaction.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", transaction.ID, ErrNotFound)
	}
	return nil
}

// DeleteTransaction removes a payment record. The bill it belongs to is left untouched.
func (s *SQLStore) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	result, err := s.exec(ctx, s.db, `DELETE FROM transactions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListTransactionsByBill retrieves all transactions for a given bill ID.
func (s *SQLStore) ListTransactionsByBill(ctx context.Context, billID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE bill_id = ? ORDER BY paid_at ASC`,
		billID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for bill %s: %w", billID, err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		transaction, err := s.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for bill transactions: %w", err)
	}
	return transactions, nil
}

// AggregateByMonth totals payments per calendar month of loc.
func (s *SQLStore) AggregateByMonth(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.MonthlyPaidTotal, error) {
	if loc == nil {
		loc = s.loc
	}
	rows, err := s.query(ctx,
		`SELECT paid_at, amount FROM transactions WHERE paid_at >= ? AND paid_at < ?`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	defer rows.Close()

	byMonth := make(map[string]*models.MonthlyPaidTotal)
	for rows.Next() {
		var paidAt time.Time
		var amount int64
		if err := rows.Scan(&paidAt, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		key := paidAt.In(loc).Format("2006-01")
		total, ok := byMonth[key]
		if !ok {
			total = &models.MonthlyPaidTotal{Month: key}
			byMonth[key] = total
		}
		total.Total += amount
		total.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	totals := make([]models.MonthlyPaidTotal, 0, len(byMonth))
	for _, total := range byMonth {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Month < totals[j].Month })
	return totals, nil
}

func (s *SQLStore) scanTransaction(row scanner) (*models.Transaction, error) {
	var transaction models.Transaction
	var idStr, billIDStr string
	if err := row.Scan(&idStr, &billIDStr, &transaction.Amount, &transaction.PaidAt, &transaction.Notes,
		&transaction.IsAutoPay, &transaction.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if transaction.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", idStr, err)
	}
	if transaction.BillID, err = uuid.Parse(billIDStr); err != nil {
		return nil, fmt.Errorf("invalid bill id %q: %w", billIDStr, err)
	}
	transaction.PaidAt = transaction.PaidAt.In(s.loc)
	transaction.CreatedAt = transaction.CreatedAt.In(s.loc)
	return &transaction, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
