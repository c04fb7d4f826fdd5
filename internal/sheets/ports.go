// Package sheets mirrors the ledger into spreadsheet-shaped stores.
package sheets

import (
	"context"

	"cuentas/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps one row per transaction, keyed by id.
	TransactionMirror interface {
		UpsertTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	// AccountMirror keeps one row per account, keyed by id.
	AccountMirror interface {
		UpsertAccount(ctx context.Context, a core.Account) error
		DeleteAccount(ctx context.Context, id string) error
	}

	LedgerMirror interface {
		TransactionMirror
		AccountMirror
	}
)

// Column layouts. The id is always the first column.
var (
	TransactionHeader = []any{"ID", "Date", "Kind", "Amount", "Currency", "Category", "Description", "Account"}
	AccountHeader     = []any{"ID", "Name", "Balance", "Currency", "Description", "Created"}
)

func TransactionRow(t core.Transaction) []any {
	return []any{
		t.ID,
		t.Date.String(),
		string(t.Kind),
		core.FormatAmount(t.Amount),
		string(t.Currency),
		t.Category,
		t.Description,
		t.AccountID,
	}
}

func AccountRow(a core.Account) []any {
	return []any{
		a.ID,
		a.Name,
		core.FormatAmount(a.Balance),
		string(a.Currency),
		a.Description,
		a.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}
