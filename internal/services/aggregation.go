package services

import (
	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

// CategorySummary sums amounts per category. Templates count like any other
// expense on their own date.
func CategorySummary(expenses []core.Expense) core.CategoryTotals {
	totals := make(core.CategoryTotals)
	for _, e := range expenses {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	return totals
}

// MonthlyTotal sums every amount.
func MonthlyTotal(expenses []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}
