package core

// MonthlyFinancialSummary is derived from the ledger for one calendar month.
// Every amount is expressed in Currency.
type MonthlyFinancialSummary struct {
	Month              int                `json:"month"`
	Year               int                `json:"year"`
	Currency           Currency           `json:"currency"`
	TotalExpenses      float64            `json:"totalExpenses"`
	ExpenseCount       int                `json:"expenseCount"`
	ExpensesByCategory map[string]float64 `json:"expensesByCategory"`
	ExpensesByDay      map[int]float64    `json:"expensesByDay"`
	TotalIncomes       float64            `json:"totalIncomes"`
	IncomeCount        int                `json:"incomeCount"`
	Net                float64            `json:"net"`
}
