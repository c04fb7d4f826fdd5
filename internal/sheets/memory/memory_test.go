package memory

import (
	"context"
	"testing"

	"cuentas/internal/core"
)

func TestStore_UpsertKeepsOneRowPerID(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx := core.Transaction{ID: "t1", Kind: core.Expense, Amount: 10, Currency: core.USD, Date: core.NewDate(2024, 5, 1), Category: "Food"}
	if err := s.UpsertTransaction(ctx, tx); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	tx.Amount = 12.5
	if err := s.UpsertTransaction(ctx, tx); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = s.UpsertTransaction(ctx, core.Transaction{ID: "t2", Kind: core.Income, Amount: 1, Currency: core.COP, Date: core.NewDate(2024, 5, 2), Category: "Gift"})

	rows := s.TransactionRows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "t1" || rows[0][3] != "12.50" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}

	_ = s.DeleteTransaction(ctx, "t1")
	_ = s.DeleteTransaction(ctx, "missing")
	rows = s.TransactionRows()
	if len(rows) != 1 || rows[0][0] != "t2" {
		t.Fatalf("unexpected rows after delete: %v", rows)
	}
}

func TestStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertAccount(ctx, core.Account{ID: "a1", Name: "Checking", Balance: 900, Currency: core.USD})
	rows := s.AccountRows()
	if len(rows) != 1 || rows[0][1] != "Checking" || rows[0][2] != "900.00" {
		t.Fatalf("unexpected account rows: %v", rows)
	}
	_ = s.DeleteAccount(ctx, "a1")
	if len(s.AccountRows()) != 0 {
		t.Fatal("expected account row removed")
	}
}
