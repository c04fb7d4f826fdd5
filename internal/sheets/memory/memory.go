// Package memory is an in-process LedgerMirror used when no spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"cuentas/internal/core"
	ports "cuentas/internal/sheets"
)

var _ ports.LedgerMirror = (*Store)(nil)

// Store keeps rows in insertion order; deleted rows are dropped.
type Store struct {
	mu           sync.Mutex
	transactions table
	accounts     table
}

type table struct {
	order []string
	rows  map[string][]any
}

func New() *Store {
	return &Store{}
}

func (t *table) upsert(id string, row []any) {
	if t.rows == nil {
		t.rows = make(map[string][]any)
	}
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
}

func (t *table) remove(id string) {
	if _, ok := t.rows[id]; !ok {
		return
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *table) snapshot() [][]any {
	out := make([][]any, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, append([]any(nil), t.rows[id]...))
	}
	return out
}

func (s *Store) UpsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions.upsert(t.ID, ports.TransactionRow(t))
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions.remove(id)
	return nil
}

func (s *Store) UpsertAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts.upsert(a.ID, ports.AccountRow(a))
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts.remove(id)
	return nil
}

// TransactionRows returns a copy of the mirrored transaction rows.
func (s *Store) TransactionRows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.snapshot()
}

// AccountRows returns a copy of the mirrored account rows.
func (s *Store) AccountRows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts.snapshot()
}
