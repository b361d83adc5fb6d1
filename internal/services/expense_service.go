package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// EventPublisher announces expense changes to other processes.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, id int64, eventType amqp.EventType) error
}

// Invalidator drops cached read models after a write.
type Invalidator interface {
	Invalidate()
}

// ExpenseService owns every write path for expenses. All inserts go through
// the same dedup-guarded path; after each successful write an event is
// published best-effort.
type ExpenseService struct {
	store       storage.ExpenseStore
	dedup       *Deduplicator
	publisher   EventPublisher
	invalidator Invalidator
}

type ExpenseServiceOption func(*ExpenseService)

// WithPublisher enables change events.
func WithPublisher(p EventPublisher) ExpenseServiceOption {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithInvalidator registers a cache to clear after writes.
func WithInvalidator(i Invalidator) ExpenseServiceOption {
	return func(s *ExpenseService) { s.invalidator = i }
}

func NewExpenseService(store storage.ExpenseStore, opts ...ExpenseServiceOption) *ExpenseService {
	s := &ExpenseService{
		store: store,
		dedup: NewDeduplicator(store),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddExpense stores e unless an equivalent expense exists. created is false,
// with a nil error, when e was a duplicate.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.Expense) (saved core.Expense, created bool, err error) {
	e.ID = 0
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, false, err
	}
	return s.insert(ctx, e)
}

// AddRecurringTemplate stores e as a recurring template.
func (s *ExpenseService) AddRecurringTemplate(ctx context.Context, e core.Expense) (core.Expense, bool, error) {
	e.IsRecurring = true
	e.ParentExpenseID = nil
	return s.AddExpense(ctx, e)
}

// insert is the dedup-guarded persist used by single add, import and generation.
func (s *ExpenseService) insert(ctx context.Context, e core.Expense) (core.Expense, bool, error) {
	dup, err := s.dedup.IsDuplicate(ctx, e)
	if err != nil {
		return core.Expense{}, false, err
	}
	if dup {
		slog.DebugContext(ctx, "Skipping duplicate expense",
			"date", e.Date.String(),
			"category", e.Category,
			"amount", e.Amount.String())
		return core.Expense{}, false, nil
	}

	saved, err := s.store.Save(ctx, e)
	if errors.Is(err, core.ErrDuplicateExpense) {
		// Lost a race with a concurrent writer; same outcome as the pre-check.
		return core.Expense{}, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("save expense: %w", err)
	}

	s.changed(ctx, saved.ID, amqp.EventCreated)
	return saved, true, nil
}

// UpdateExpense replaces every field of the expense with the given id.
// A collision with another stored expense returns core.ErrDuplicateExpense.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id int64, e core.Expense) (core.Expense, error) {
	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}

	e.ID = id
	if e.ParentExpenseID == nil {
		e.ParentExpenseID = existing.ParentExpenseID
	}
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.store.Save(ctx, e)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateExpense) || errors.Is(err, storage.ErrNotFound) {
			return core.Expense{}, err
		}
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}

	s.changed(ctx, id, amqp.EventUpdated)
	return saved, nil
}

// UpdateRecurringTemplate replaces the template with the given id.
func (s *ExpenseService) UpdateRecurringTemplate(ctx context.Context, id int64, e core.Expense) (core.Expense, error) {
	e.IsRecurring = true
	e.ParentExpenseID = nil
	return s.UpdateExpense(ctx, id, e)
}

// DeleteExpense removes one expense. Instances of a deleted template are kept.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	s.changed(ctx, id, amqp.EventDeleted)
	return nil
}

// ImportBatch adds expenses in input order. Each item is validated, checked
// for duplicates and saved on its own; the batch never fails as a whole.
func (s *ExpenseService) ImportBatch(ctx context.Context, expenses []core.Expense) core.ImportSummary {
	var summary core.ImportSummary
	for i, e := range expenses {
		_, created, err := s.AddExpense(ctx, e)
		switch {
		case err != nil:
			summary.Failed++
			slog.WarnContext(ctx, "Import item failed", "index", i, "error", err)
		case created:
			summary.Imported++
		default:
			summary.Skipped++
		}
	}

	slog.InfoContext(ctx, "Bulk import complete",
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary
}

func (s *ExpenseService) ListByMonth(ctx context.Context, year int, month time.Month) ([]core.Expense, error) {
	return s.store.FindByYearMonth(ctx, year, month)
}

func (s *ExpenseService) ListByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	return s.store.FindByCategory(ctx, category)
}

func (s *ExpenseService) ListAll(ctx context.Context) ([]core.Expense, error) {
	return s.store.FindAll(ctx)
}

func (s *ExpenseService) ListRecurringTemplates(ctx context.Context) ([]core.Expense, error) {
	return s.store.FindRecurringTemplates(ctx)
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	return s.store.FindByID(ctx, id)
}

func (s *ExpenseService) changed(ctx context.Context, id int64, eventType amqp.EventType) {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if s.publisher == nil {
		return
	}
	// Don't fail the request; the expense is already stored.
	if err := s.publisher.PublishExpenseEvent(ctx, id, eventType); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"id", id,
			"type", eventType,
			"error", err)
	}
}
