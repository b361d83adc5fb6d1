package core

import "github.com/shopspring/decimal"

// ImportSummary counts the outcome of a bulk import.
type ImportSummary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// CategoryTotals maps a category name to the sum of its amounts.
type CategoryTotals map[string]decimal.Decimal

// Total sums every category.
func (c CategoryTotals) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range c {
		total = total.Add(v)
	}
	return total
}
