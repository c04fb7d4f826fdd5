package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cuentas/internal/core"
	"cuentas/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists the ledger. It implements ledger.Persister.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const (
	selectAccounts = `SELECT id, name, balance, currency, description, created_at FROM accounts`

	selectTransactions = `SELECT id, kind, amount, currency, date, category, description,
		COALESCE(account_id, ''), created_at FROM transactions`

	upsertAccount = `INSERT INTO accounts (id, name, balance, currency, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			description = excluded.description`

	upsertTransaction = `INSERT INTO transactions
		(id, kind, amount, currency, date, category, description, account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			date = excluded.date,
			category = excluded.category,
			description = excluded.description,
			account_id = excluded.account_id`

	deleteTransaction = `DELETE FROM transactions WHERE id = ?`
	deleteAccount     = `DELETE FROM accounts WHERE id = ?`
)

// Load implements ledger.Persister
func (r *SQLiteRepository) Load(ctx context.Context) ([]core.Account, []core.Transaction, error) {
	accounts, err := r.loadAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	transactions, err := r.loadTransactions(ctx)
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "Ledger state read from SQLite",
		"accounts", len(accounts),
		"transactions", len(transactions))
	return accounts, transactions, nil
}

func (r *SQLiteRepository) loadAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, selectAccounts)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var (
			a         core.Account
			cur       string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Balance, &cur, &a.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Currency = core.Currency(cur)
		if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) loadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransactions)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t                     core.Transaction
			kind, cur, date, crAt string
		)
		if err := rows.Scan(&t.ID, &kind, &t.Amount, &cur, &date, &t.Category, &t.Description, &t.AccountID, &crAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.Kind(kind)
		t.Currency = core.Currency(cur)
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s date: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTimestamp(crAt); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Apply implements ledger.Persister. The whole changeset commits or nothing does.
func (r *SQLiteRepository) Apply(ctx context.Context, cs ledger.Changeset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range cs.SaveAccounts {
		if _, err := tx.ExecContext(ctx, upsertAccount,
			a.ID, a.Name, a.Balance, string(a.Currency), a.Description, formatTimestamp(a.CreatedAt)); err != nil {
			return fmt.Errorf("save account %s: %w", a.ID, err)
		}
	}
	for _, t := range cs.SaveTransactions {
		var accountID any
		if t.AccountID != "" {
			accountID = t.AccountID
		}
		if _, err := tx.ExecContext(ctx, upsertTransaction,
			t.ID, string(t.Kind), t.Amount, string(t.Currency), t.Date.String(),
			t.Category, t.Description, accountID, formatTimestamp(t.CreatedAt)); err != nil {
			return fmt.Errorf("save transaction %s: %w", t.ID, err)
		}
	}
	for _, id := range cs.DeleteTransactionIDs {
		if _, err := tx.ExecContext(ctx, deleteTransaction, id); err != nil {
			return fmt.Errorf("delete transaction %s: %w", id, err)
		}
	}
	for _, id := range cs.DeleteAccountIDs {
		if _, err := tx.ExecContext(ctx, deleteAccount, id); err != nil {
			return fmt.Errorf("delete account %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Ledger changeset persisted",
		"saved_accounts", len(cs.SaveAccounts),
		"saved_transactions", len(cs.SaveTransactions),
		"deleted_accounts", len(cs.DeleteAccountIDs),
		"deleted_transactions", len(cs.DeleteTransactionIDs))
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}
