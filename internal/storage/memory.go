package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"expensetracker/internal/core"
)

// MemoryStore keeps everything in process memory. The dedup check and the
// insert happen under one lock, so concurrent writers cannot both insert the
// same key.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	expenses   map[int64]core.Expense
	categories map[string]core.Category
	order      []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		expenses:   make(map[int64]core.Expense),
		categories: make(map[string]core.Category),
	}
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return cloneExpense(e), nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]core.Expense, error) {
	return s.filter(func(core.Expense) bool { return true }), nil
}

func (s *MemoryStore) FindByDateRange(_ context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.filter(func(e core.Expense) bool {
		return !e.Date.Before(start.Time) && !e.Date.After(end.Time)
	}), nil
}

func (s *MemoryStore) FindByCategory(_ context.Context, category string) ([]core.Expense, error) {
	return s.filter(func(e core.Expense) bool { return e.Category == category }), nil
}

func (s *MemoryStore) FindByYearMonth(ctx context.Context, year int, month time.Month) ([]core.Expense, error) {
	start, end := core.MonthBounds(year, month)
	return s.FindByDateRange(ctx, start, end)
}

func (s *MemoryStore) FindRecurringTemplates(_ context.Context) ([]core.Expense, error) {
	return s.filter(func(e core.Expense) bool { return e.IsRecurring }), nil
}

func (s *MemoryStore) FindByParent(_ context.Context, templateID int64) ([]core.Expense, error) {
	return s.filter(func(e core.Expense) bool {
		return e.ParentExpenseID != nil && *e.ParentExpenseID == templateID
	}), nil
}

func (s *MemoryStore) FindDuplicate(_ context.Context, key core.DedupKey) (core.Expense, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.findKey(key, 0); ok {
		return cloneExpense(e), true, nil
	}
	return core.Expense{}, false, nil
}

func (s *MemoryStore) Save(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID != 0 {
		if _, ok := s.expenses[e.ID]; !ok {
			return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, ErrNotFound)
		}
	}
	if other, ok := s.findKey(e.Key(), e.ID); ok {
		return core.Expense{}, fmt.Errorf("conflicts with expense %d: %w", other.ID, core.ErrDuplicateExpense)
	}
	if e.ID == 0 {
		e.ID = s.nextID
		s.nextID++
	}
	s.expenses[e.ID] = cloneExpense(e)
	return cloneExpense(e), nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0, len(s.order))
	for _, name := range s.order {
		c := s.categories[name]
		out = append(out, core.Category{Name: c.Name, SubCategories: slices.Clone(c.SubCategories)})
	}
	return out, nil
}

func (s *MemoryStore) FindCategory(_ context.Context, name string) (core.Category, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[name]
	if !ok {
		return core.Category{}, false, nil
	}
	return core.Category{Name: c.Name, SubCategories: slices.Clone(c.SubCategories)}, true, nil
}

func (s *MemoryStore) SaveCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.Name]; !ok {
		s.order = append(s.order, c.Name)
	}
	s.categories[c.Name] = core.Category{Name: c.Name, SubCategories: slices.Clone(c.SubCategories)}
	return nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[name]; !ok {
		return fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	delete(s.categories, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// findKey must be called with the lock held. skipID excludes the record being updated.
func (s *MemoryStore) findKey(key core.DedupKey, skipID int64) (core.Expense, bool) {
	for id, e := range s.expenses {
		if id != skipID && key.Matches(e) {
			return e, true
		}
	}
	return core.Expense{}, false
}

func (s *MemoryStore) filter(keep func(core.Expense) bool) []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if keep(e) {
			out = append(out, cloneExpense(e))
		}
	}
	sortExpenses(out)
	return out
}

func sortExpenses(list []core.Expense) {
	slices.SortFunc(list, func(a, b core.Expense) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
