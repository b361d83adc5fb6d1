// Package sheets describes the spreadsheet mirror of expense changes.
package sheets

import (
	"context"
	"time"

	"expensetracker/internal/core"
)

// Header is the first row of the audit sheet.
var Header = []any{"Timestamp", "Action", "ID", "Date", "Category", "Sub-category", "Description", "Amount"}

// AuditRow is one line of the append-only change log.
type AuditRow struct {
	Timestamp time.Time
	Action    string
	ExpenseID int64
	Expense   *core.Expense // nil for deletions
}

// Values renders the row in Header column order. Amounts are written as
// plain decimal strings so the sheet can parse them as numbers.
func (r AuditRow) Values() []any {
	row := []any{r.Timestamp.UTC().Format(time.RFC3339), r.Action, r.ExpenseID}
	if r.Expense == nil {
		return append(row, "", "", "", "", "")
	}
	e := r.Expense
	return append(row,
		e.Date.String(),
		e.Category,
		e.SubCategory,
		e.Description,
		core.FormatAmount(e.Amount),
	)
}

// Ports for outbound adapters.
type (
	AuditWriter interface {
		Append(ctx context.Context, row AuditRow) (rowRef string, err error)
	}

	HeaderEnsurer interface {
		EnsureHeader(ctx context.Context) error
	}
)
