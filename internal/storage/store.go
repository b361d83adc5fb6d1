// Package storage persists expenses and categories.
//
// Three implementations share the Store contract: an in-memory store, SQLite
// and PostgreSQL. All of them enforce uniqueness of the five-field dedup key
// and report violations as core.ErrDuplicateExpense.
package storage

import (
	"context"
	"errors"
	"time"

	"expensetracker/internal/core"
)

// ErrNotFound is returned when an expense or category id does not exist.
var ErrNotFound = errors.New("not found")

// ExpenseStore is the expense query and persistence contract.
// Listings are ordered by date, then id.
type ExpenseStore interface {
	FindByID(ctx context.Context, id int64) (core.Expense, error)
	FindAll(ctx context.Context) ([]core.Expense, error)
	// FindByDateRange returns expenses with start <= date <= end.
	FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
	FindByCategory(ctx context.Context, category string) ([]core.Expense, error)
	FindByYearMonth(ctx context.Context, year int, month time.Month) ([]core.Expense, error)
	FindRecurringTemplates(ctx context.Context) ([]core.Expense, error)
	FindByParent(ctx context.Context, templateID int64) ([]core.Expense, error)
	FindDuplicate(ctx context.Context, key core.DedupKey) (core.Expense, bool, error)
	// Save inserts e when e.ID is zero, otherwise replaces the stored record.
	Save(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteByID(ctx context.Context, id int64) error
}

// CategoryStore persists the category taxonomy.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	FindCategory(ctx context.Context, name string) (core.Category, bool, error)
	// SaveCategory creates or replaces the category and its sub-categories.
	SaveCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, name string) error
}

type Store interface {
	ExpenseStore
	CategoryStore
	Ping(ctx context.Context) error
	Close() error
}

// cloneExpense deep-copies the optional fields so callers cannot alias stored state.
func cloneExpense(e core.Expense) core.Expense {
	if e.RecurrenceInterval != nil {
		v := *e.RecurrenceInterval
		e.RecurrenceInterval = &v
	}
	if e.RecurrenceEndDate != nil {
		v := *e.RecurrenceEndDate
		e.RecurrenceEndDate = &v
	}
	if e.ParentExpenseID != nil {
		v := *e.ParentExpenseID
		e.ParentExpenseID = &v
	}
	return e
}
