package services

import (
	"context"
	"fmt"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Deduplicator reports whether an equivalent expense is already stored.
type Deduplicator struct {
	store storage.ExpenseStore
}

func NewDeduplicator(store storage.ExpenseStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// IsDuplicate is true when a stored expense has the same date, category,
// sub-category, amount and description as candidate. It has no side effects.
func (d *Deduplicator) IsDuplicate(ctx context.Context, candidate core.Expense) (bool, error) {
	_, found, err := d.store.FindDuplicate(ctx, candidate.Key())
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return found, nil
}
