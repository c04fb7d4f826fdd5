// Package report renders monthly ledger data as spreadsheets.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cuentas/internal/core"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet      = "Summary"
	categoriesSheet   = "Categories"
	daysSheet         = "Days"
	transactionsSheet = "Transactions"
)

// Converter converts amounts between currencies.
type Converter interface {
	Convert(amount float64, from, to core.Currency) float64
}

// ExcelExporter writes a month workbook: totals, per-category and per-day
// breakdowns and the month's transactions with their converted amounts.
type ExcelExporter struct {
	conv Converter
}

func NewExcelExporter(conv Converter) *ExcelExporter {
	return &ExcelExporter{conv: conv}
}

// Filename is the attachment name for a month export.
func Filename(s core.MonthlyFinancialSummary) string {
	return fmt.Sprintf("cuentas-%04d-%02d-%s.xlsx", s.Year, s.Month, s.Currency)
}

func (e *ExcelExporter) Write(w io.Writer, s core.MonthlyFinancialSummary, transactions []core.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{categoriesSheet, daysSheet, transactionsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := e.writeSummary(f, s); err != nil {
		return err
	}
	if err := writeCategories(f, s); err != nil {
		return err
	}
	if err := writeDays(f, s); err != nil {
		return err
	}
	if err := e.writeTransactions(f, s.Currency, transactions); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (e *ExcelExporter) writeSummary(f *excelize.File, s core.MonthlyFinancialSummary) error {
	rows := [][]any{
		{"Year", s.Year},
		{"Month", s.Month},
		{"Currency", string(s.Currency)},
		{"Total expenses", round2(s.TotalExpenses)},
		{"Expense count", s.ExpenseCount},
		{"Total incomes", round2(s.TotalIncomes)},
		{"Income count", s.IncomeCount},
		{"Net", round2(s.Net)},
	}
	return setRows(f, summarySheet, rows)
}

func writeCategories(f *excelize.File, s core.MonthlyFinancialSummary) error {
	names := make([]string, 0, len(s.ExpensesByCategory))
	for name := range s.ExpensesByCategory {
		names = append(names, name)
	}
	// Largest first, then by name.
	sort.Slice(names, func(i, j int) bool {
		a, b := s.ExpensesByCategory[names[i]], s.ExpensesByCategory[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})

	rows := [][]any{{"Category", "Amount (" + string(s.Currency) + ")"}}
	for _, name := range names {
		rows = append(rows, []any{name, round2(s.ExpensesByCategory[name])})
	}
	return setRows(f, categoriesSheet, rows)
}

func writeDays(f *excelize.File, s core.MonthlyFinancialSummary) error {
	days := make([]int, 0, len(s.ExpensesByDay))
	for d := range s.ExpensesByDay {
		days = append(days, d)
	}
	sort.Ints(days)

	rows := [][]any{{"Day", "Amount (" + string(s.Currency) + ")"}}
	for _, d := range days {
		rows = append(rows, []any{d, round2(s.ExpensesByDay[d])})
	}
	return setRows(f, daysSheet, rows)
}

func (e *ExcelExporter) writeTransactions(f *excelize.File, display core.Currency, transactions []core.Transaction) error {
	rows := [][]any{{"Date", "Kind", "Category", "Description", "Amount", "Currency", "Amount (" + string(display) + ")", "Account"}}
	for _, t := range transactions {
		rows = append(rows, []any{
			t.Date.String(),
			string(t.Kind),
			t.Category,
			t.Description,
			t.Amount,
			string(t.Currency),
			round2(e.conv.Convert(t.Amount, t.Currency, display)),
			t.AccountID,
		})
	}
	return setRows(f, transactionsSheet, rows)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
