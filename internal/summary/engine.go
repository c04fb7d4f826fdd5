// Package summary derives monthly figures from the ledger.
package summary

import (
	"cuentas/internal/core"
	"cuentas/internal/ledger"
)

// Source lists ledger transactions.
type Source interface {
	ListTransactions(f ledger.Filter) []core.Transaction
}

// Engine computes summaries; it never mutates the ledger.
type Engine struct {
	source Source
	conv   ledger.Converter
}

func NewEngine(source Source, conv ledger.Converter) *Engine {
	return &Engine{source: source, conv: conv}
}

// MonthlySummary aggregates the given month with every amount converted into
// displayCurrency. Categories are grouped verbatim.
func (e *Engine) MonthlySummary(month, year int, displayCurrency core.Currency) (core.MonthlyFinancialSummary, error) {
	if err := validate(month, year, displayCurrency); err != nil {
		return core.MonthlyFinancialSummary{}, err
	}
	return e.Summarize(e.source.ListTransactions(ledger.Filter{Year: year, Month: month}), month, year, displayCurrency)
}

// Summarize aggregates transactions that were already read from the ledger.
// Transactions outside the month are skipped.
func (e *Engine) Summarize(transactions []core.Transaction, month, year int, displayCurrency core.Currency) (core.MonthlyFinancialSummary, error) {
	if err := validate(month, year, displayCurrency); err != nil {
		return core.MonthlyFinancialSummary{}, err
	}

	s := core.MonthlyFinancialSummary{
		Month:              month,
		Year:               year,
		Currency:           displayCurrency,
		ExpensesByCategory: make(map[string]float64),
		ExpensesByDay:      make(map[int]float64),
	}

	for _, t := range transactions {
		if t.Date.Year() != year || t.Date.Month() != month {
			continue
		}
		amount := e.conv.Convert(t.Amount, t.Currency, displayCurrency)
		switch t.Kind {
		case core.Expense:
			s.TotalExpenses += amount
			s.ExpenseCount++
			s.ExpensesByCategory[t.Category] += amount
			s.ExpensesByDay[t.Date.Day()] += amount
		case core.Income:
			s.TotalIncomes += amount
			s.IncomeCount++
		}
	}
	s.Net = s.TotalIncomes - s.TotalExpenses
	return s, nil
}

func validate(month, year int, displayCurrency core.Currency) error {
	if err := core.ValidateMonth(month); err != nil {
		return &core.ValidationError{Field: "month", Err: err}
	}
	if err := core.ValidateYear(year); err != nil {
		return &core.ValidationError{Field: "year", Err: err}
	}
	if err := displayCurrency.Validate(); err != nil {
		return &core.ValidationError{Field: "currency", Err: err}
	}
	return nil
}
