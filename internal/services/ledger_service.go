package services

import (
	"context"
	"fmt"
	"log/slog"

	"cuentas/internal/amqp"
	"cuentas/internal/cache"
	"cuentas/internal/core"
	"cuentas/internal/ledger"
	"cuentas/internal/summary"
)

// EventPublisher announces committed ledger changes. *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.LedgerEvent) error
}

// RateTable exposes the converter's current table.
type RateTable interface {
	Rate(from, to core.Currency) (float64, bool)
	Version() uint64
}

// LedgerService is what the HTTP layer talks to: the ledger store plus the
// summary cache and change events around it.
type LedgerService struct {
	store     *ledger.Store
	summaries *summary.Engine
	rates     RateTable
	cache     cache.Cache[core.MonthlyFinancialSummary]
	publisher EventPublisher
	logger    *slog.Logger
}

func NewLedgerService(store *ledger.Store, summaries *summary.Engine, rates RateTable,
	summaryCache cache.Cache[core.MonthlyFinancialSummary], publisher EventPublisher, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:     store,
		summaries: summaries,
		rates:     rates,
		cache:     summaryCache,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *LedgerService) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	a, err := s.store.CreateAccount(ctx, in)
	if err != nil {
		return core.Account{}, err
	}
	s.changed(ctx, amqp.NewAccountEvent(amqp.EventCreated, a))
	return a, nil
}

func (s *LedgerService) UpdateAccount(ctx context.Context, id string, p core.AccountPatch) (core.Account, error) {
	a, err := s.store.UpdateAccount(ctx, id, p)
	if err != nil {
		return core.Account{}, err
	}
	s.changed(ctx, amqp.NewAccountEvent(amqp.EventUpdated, a))
	return a, nil
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, amqp.NewAccountEvent(amqp.EventDeleted, core.Account{ID: id}))
	return nil
}

func (s *LedgerService) GetAccount(id string) (core.Account, error) {
	a, ok := s.store.GetAccount(id)
	if !ok {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	return a, nil
}

func (s *LedgerService) ListAccounts() []core.Account {
	return s.store.ListAccounts()
}

func (s *LedgerService) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	t, err := s.store.CreateTransaction(ctx, in)
	if err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, s.transactionEvents(amqp.EventCreated, t, t.AccountID)...)
	return t, nil
}

// UpdateTransaction applies p to a transaction of the given kind. An id that
// names a transaction of the other kind is reported as not found.
func (s *LedgerService) UpdateTransaction(ctx context.Context, kind core.Kind, id string, p core.TransactionPatch) (core.Transaction, error) {
	t, old, err := s.store.PatchTransaction(ctx, kind, id, p)
	if err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, s.transactionEvents(amqp.EventUpdated, t, old.AccountID, t.AccountID)...)
	return t, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, kind core.Kind, id string) error {
	old, err := s.GetTransaction(kind, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, s.transactionEvents(amqp.EventDeleted, old, old.AccountID)...)
	return nil
}

func (s *LedgerService) GetTransaction(kind core.Kind, id string) (core.Transaction, error) {
	t, ok := s.store.GetTransaction(id)
	if !ok || (kind != "" && t.Kind != kind) {
		return core.Transaction{}, &core.NotFoundError{Entity: entityName(kind), ID: id}
	}
	return t, nil
}

func (s *LedgerService) ListTransactions(f ledger.Filter) []core.Transaction {
	return s.store.ListTransactions(f)
}

// Snapshot returns every account and transaction.
func (s *LedgerService) Snapshot() ([]core.Account, []core.Transaction) {
	return s.store.Snapshot()
}

// MonthlySummary serves summaries from the cache while neither the ledger nor
// the rate table has changed. Entries are keyed by the ledger generation the
// transactions were read at, so a summary computed before a write is never
// returned after it.
func (s *LedgerService) MonthlySummary(ctx context.Context, month, year int, cur core.Currency) (core.MonthlyFinancialSummary, error) {
	rates := s.rates.Version()
	if s.cache != nil {
		if cached, ok := s.cache.Get(summaryKey(month, year, cur, rates, s.store.Generation())); ok {
			return cached, nil
		}
	}

	sum, _, generation, err := s.monthly(month, year, cur)
	if err != nil {
		return core.MonthlyFinancialSummary{}, err
	}
	if s.cache != nil {
		s.cache.Set(summaryKey(month, year, cur, rates, generation), sum)
	}
	s.logger.DebugContext(ctx, "Monthly summary computed",
		"year", year,
		"month", month,
		"currency", cur,
		"generation", generation,
		"expenses", sum.ExpenseCount)
	return sum, nil
}

// MonthlyReport returns the month's summary together with the transactions it
// was computed from, both taken from one read of the ledger.
func (s *LedgerService) MonthlyReport(month, year int, cur core.Currency) (core.MonthlyFinancialSummary, []core.Transaction, error) {
	sum, transactions, _, err := s.monthly(month, year, cur)
	return sum, transactions, err
}

func (s *LedgerService) monthly(month, year int, cur core.Currency) (core.MonthlyFinancialSummary, []core.Transaction, uint64, error) {
	if err := core.ValidateMonth(month); err != nil {
		return core.MonthlyFinancialSummary{}, nil, 0, &core.ValidationError{Field: "month", Err: err}
	}
	if err := core.ValidateYear(year); err != nil {
		return core.MonthlyFinancialSummary{}, nil, 0, &core.ValidationError{Field: "year", Err: err}
	}
	transactions, generation := s.store.ListTransactionsAt(ledger.Filter{Year: year, Month: month})
	sum, err := s.summaries.Summarize(transactions, month, year, cur)
	if err != nil {
		return core.MonthlyFinancialSummary{}, nil, 0, err
	}
	return sum, transactions, generation, nil
}

func summaryKey(month, year int, cur core.Currency, rates, generation uint64) string {
	return fmt.Sprintf("%04d-%02d-%s-r%d-g%d", year, month, cur, rates, generation)
}

// ExchangeRate returns the effective from→to factor; unresolved pairs report 1.
func (s *LedgerService) ExchangeRate(from, to core.Currency) (float64, bool, error) {
	if err := from.Validate(); err != nil {
		return 0, false, &core.ValidationError{Field: "from", Err: err}
	}
	if err := to.Validate(); err != nil {
		return 0, false, &core.ValidationError{Field: "to", Err: err}
	}
	rate, ok := s.rates.Rate(from, to)
	return rate, ok, nil
}

// transactionEvents is the transaction event followed by an account update for
// every distinct linked account, read after the commit.
func (s *LedgerService) transactionEvents(typ amqp.EventType, t core.Transaction, accountIDs ...string) []*amqp.LedgerEvent {
	events := []*amqp.LedgerEvent{amqp.NewTransactionEvent(typ, t)}
	seen := map[string]bool{}
	for _, id := range accountIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := s.store.GetAccount(id); ok {
			events = append(events, amqp.NewAccountEvent(amqp.EventUpdated, a))
		}
	}
	return events
}

// changed drops cached summaries and publishes events. Publishing failures are
// logged; the ledger change already happened.
func (s *LedgerService) changed(ctx context.Context, events ...*amqp.LedgerEvent) {
	if s.cache != nil {
		s.cache.Purge()
	}
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish ledger event",
				"type", ev.Type,
				"entity", ev.Entity,
				"id", ev.ID,
				"error", err)
		}
	}
}

func entityName(kind core.Kind) string {
	if kind == "" {
		return "transaction"
	}
	return string(kind)
}
