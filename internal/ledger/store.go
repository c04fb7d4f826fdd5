// Package ledger owns accounts and transactions and keeps every account
// balance equal to its initial balance plus the converted effect of the
// transactions linked to it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cuentas/internal/core"
)

// Converter converts amounts between currencies. It must not fail.
type Converter interface {
	Convert(amount float64, from, to core.Currency) float64
}

// Changeset is everything a single ledger operation writes.
type Changeset struct {
	SaveAccounts         []core.Account
	DeleteAccountIDs     []string
	SaveTransactions     []core.Transaction
	DeleteTransactionIDs []string
}

// Persister stores changesets atomically and reloads the full state.
type Persister interface {
	Load(ctx context.Context) ([]core.Account, []core.Transaction, error)
	Apply(ctx context.Context, cs Changeset) error
}

// Filter narrows ListTransactions. Zero fields are ignored; set fields are AND-combined.
type Filter struct {
	Year      int
	Month     int
	Category  string
	AccountID string
	Kind      core.Kind
}

// Store is the single authoritative ledger. Mutations are serialized.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	generation   uint64

	conv      Converter
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithPersister makes every mutation durable before it becomes visible.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the logger used for load and linking warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the CreatedAt clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store that converts balance effects with conv.
func New(conv Converter, opts ...Option) *Store {
	s := &Store{
		accounts:     make(map[string]core.Account),
		transactions: make(map[string]core.Transaction),
		conv:         conv,
		logger:       slog.Default(),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with what the persister holds. Balances are
// taken as stored; nothing is recomputed.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	accounts, transactions, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]core.Account, len(accounts))
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	s.transactions = make(map[string]core.Transaction, len(transactions))
	for _, t := range transactions {
		s.transactions[t.ID] = t
	}
	s.generation++
	s.logger.InfoContext(ctx, "Ledger loaded",
		"accounts", len(s.accounts),
		"transactions", len(s.transactions))
	return nil
}

// commit persists cs (when a persister is configured) and then applies it in
// memory. Callers hold the write lock.
func (s *Store) commit(ctx context.Context, cs Changeset) error {
	if s.persister != nil {
		if err := s.persister.Apply(ctx, cs); err != nil {
			return fmt.Errorf("persist ledger change: %w", err)
		}
	}
	for _, a := range cs.SaveAccounts {
		s.accounts[a.ID] = a
	}
	for _, id := range cs.DeleteAccountIDs {
		delete(s.accounts, id)
	}
	for _, t := range cs.SaveTransactions {
		s.transactions[t.ID] = t
	}
	for _, id := range cs.DeleteTransactionIDs {
		delete(s.transactions, id)
	}
	s.generation++
	return nil
}

// effect is the signed amount t moves an account held in cur.
func (s *Store) effect(t core.Transaction, cur core.Currency) float64 {
	return t.Kind.Sign() * s.conv.Convert(t.Amount, t.Currency, cur)
}

// resolveAccount returns id when it names an existing account and "" otherwise.
func (s *Store) resolveAccount(ctx context.Context, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if _, ok := s.accounts[id]; !ok {
		s.logger.WarnContext(ctx, "Transaction references unknown account, storing it unlinked", "account_id", id)
		return ""
	}
	return id
}

// CreateAccount registers an account; its balance is the initial balance.
func (s *Store) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	if err := in.Validate(); err != nil {
		return core.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := core.Account{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Balance:     in.Balance,
		Currency:    in.Currency,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now(),
	}
	if err := s.commit(ctx, Changeset{SaveAccounts: []core.Account{a}}); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

// UpdateAccount applies the provided fields. The balance is taken as given and
// is not reconciled against the account's transactions.
func (s *Store) UpdateAccount(ctx context.Context, id string, p core.AccountPatch) (core.Account, error) {
	if err := p.Validate(); err != nil {
		return core.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Balance != nil {
		a.Balance = *p.Balance
	}
	if p.Currency != nil {
		a.Currency = *p.Currency
	}
	if p.Description != nil {
		a.Description = strings.TrimSpace(*p.Description)
	}
	if err := s.commit(ctx, Changeset{SaveAccounts: []core.Account{a}}); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

// DeleteAccount removes an account that no transaction references.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return &core.NotFoundError{Entity: "account", ID: id}
	}
	linked := 0
	for _, t := range s.transactions {
		if t.AccountID == id {
			linked++
		}
	}
	if linked > 0 {
		return &core.ConstraintViolation{
			Message: fmt.Sprintf("account %q has %d linked transaction(s); delete them first", a.Name, linked),
		}
	}
	return s.commit(ctx, Changeset{DeleteAccountIDs: []string{id}})
}

// CreateTransaction records an expense or income and applies it to its account.
func (s *Store) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := core.Transaction{
		ID:          s.newID(),
		Kind:        in.Kind,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Date:        in.Date,
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		AccountID:   s.resolveAccount(ctx, in.AccountID),
		CreatedAt:   s.now(),
	}
	cs := Changeset{SaveTransactions: []core.Transaction{t}}
	if t.AccountID != "" {
		a := s.accounts[t.AccountID]
		a.Balance += s.effect(t, a.Currency)
		cs.SaveAccounts = append(cs.SaveAccounts, a)
	}
	if err := s.commit(ctx, cs); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// UpdateTransaction replaces a transaction's fields, moving its balance effect
// between accounts as needed. The kind of a transaction never changes.
func (s *Store) UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return s.update(ctx, old, in)
}

// PatchTransaction applies the set fields of p to the transaction of the given
// kind (any kind when empty) and returns it before and after the change. Reading
// the current values and writing the result happen under one lock.
func (s *Store) PatchTransaction(ctx context.Context, kind core.Kind, id string, p core.TransactionPatch) (updated, previous core.Transaction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.transactions[id]
	if !ok || (kind != "" && old.Kind != kind) {
		entity := "transaction"
		if kind != "" {
			entity = string(kind)
		}
		return core.Transaction{}, core.Transaction{}, &core.NotFoundError{Entity: entity, ID: id}
	}
	updated, err = s.update(ctx, old, p.Apply(old.Input()))
	if err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}
	return updated, old, nil
}

// update moves old to in. Callers hold the write lock.
func (s *Store) update(ctx context.Context, old core.Transaction, in core.TransactionInput) (core.Transaction, error) {
	in.Kind = old.Kind
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated := old
	updated.Amount = in.Amount
	updated.Currency = in.Currency
	updated.Date = in.Date
	updated.Category = strings.TrimSpace(in.Category)
	updated.Description = strings.TrimSpace(in.Description)
	updated.AccountID = s.resolveAccount(ctx, in.AccountID)

	touched := map[string]core.Account{}
	account := func(id string) core.Account {
		if a, ok := touched[id]; ok {
			return a
		}
		return s.accounts[id]
	}

	if updated.AccountID == old.AccountID {
		if old.AccountID != "" && (updated.Amount != old.Amount || updated.Currency != old.Currency) {
			a := account(old.AccountID)
			a.Balance += s.effect(updated, a.Currency) - s.effect(old, a.Currency)
			touched[a.ID] = a
		}
	} else {
		if old.AccountID != "" {
			if _, exists := s.accounts[old.AccountID]; exists {
				a := account(old.AccountID)
				a.Balance -= s.effect(old, a.Currency)
				touched[a.ID] = a
			}
		}
		if updated.AccountID != "" {
			a := account(updated.AccountID)
			a.Balance += s.effect(updated, a.Currency)
			touched[a.ID] = a
		}
	}

	cs := Changeset{SaveTransactions: []core.Transaction{updated}}
	for _, a := range touched {
		cs.SaveAccounts = append(cs.SaveAccounts, a)
	}
	if err := s.commit(ctx, cs); err != nil {
		return core.Transaction{}, err
	}
	return updated, nil
}

// DeleteTransaction reverts a transaction's effect and removes it.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return &core.NotFoundError{Entity: "transaction", ID: id}
	}
	cs := Changeset{DeleteTransactionIDs: []string{id}}
	if a, linked := s.accounts[t.AccountID]; linked && t.AccountID != "" {
		a.Balance -= s.effect(t, a.Currency)
		cs.SaveAccounts = append(cs.SaveAccounts, a)
	}
	return s.commit(ctx, cs)
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(id string) (core.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

// ListAccounts returns all accounts, oldest first.
func (s *Store) ListAccounts() []core.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetTransaction returns the transaction with the given id.
func (s *Store) GetTransaction(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	return t, ok
}

// ListTransactions returns the matching transactions, most recent date first.
func (s *Store) ListTransactions(f Filter) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(f)
}

// ListTransactionsAt is ListTransactions plus the generation of the state the
// list was read from.
func (s *Store) ListTransactionsAt(f Filter) ([]core.Transaction, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(f), s.generation
}

// Generation identifies the current ledger state. It changes with every
// committed mutation and every Load.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) list(f Filter) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns copies of both collections.
func (s *Store) Snapshot() ([]core.Account, []core.Transaction) {
	return s.ListAccounts(), s.ListTransactions(Filter{})
}

func (f Filter) matches(t core.Transaction) bool {
	if f.Year != 0 && t.Date.Year() != f.Year {
		return false
	}
	if f.Month != 0 && t.Date.Month() != f.Month {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.AccountID != "" && t.AccountID != f.AccountID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	return true
}
