package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name     string // database/sql driver name
	schema   string
	params   []string // connection options appended to every DSN
	numbered bool // $1-style placeholders
}

var (
	SQLite = Dialect{
		Name: "sqlite3",
		schema: `
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		amount INTEGER NOT NULL,
		amount_due INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		end_date DATETIME,
		frequency TEXT NOT NULL,
		is_auto_pay BOOLEAN NOT NULL DEFAULT 0,
		is_variable BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		is_archived BOOLEAN NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bills_due_date ON bills(due_date);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		bill_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		paid_at DATETIME NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		is_auto_pay BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(bill_id) REFERENCES bills(id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_bill_id ON transactions(bill_id);
	`,
		params: []string{
			"_foreign_keys=on",
			"_journal_mode=WAL",
		},
	}

	Postgres = Dialect{
		Name: "postgres",
		schema: `
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		amount BIGINT NOT NULL,
		amount_due BIGINT NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ,
		frequency TEXT NOT NULL,
		is_auto_pay BOOLEAN NOT NULL DEFAULT FALSE,
		is_variable BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		category TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bills_due_date ON bills(due_date);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		bill_id TEXT NOT NULL REFERENCES bills(id),
		amount BIGINT NOT NULL,
		paid_at TIMESTAMPTZ NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		is_auto_pay BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_bill_id ON transactions(bill_id);
	`,
		numbered: true,
	}
)

// dataSource adds the dialect's connection options to dsn so every pooled
// connection opens with them. Options already present in dsn win.
func (d Dialect) dataSource(dsn string) string {
	for _, param := range d.params {
		key, _, _ := strings.Cut(param, "=")
		if strings.Contains(dsn, key+"=") {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + param
	}
	return dsn
}

// DialectFor returns the dialect registered under a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case SQLite.Name, "sqlite":
		return SQLite, nil
	case Postgres.Name, "postgresql":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind rewrites ?-placeholders into the dialect's native form.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
