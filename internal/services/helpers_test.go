package services

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

func intPtr(v int) *int { return &v }

func datePtr(d core.Date) *core.Date { return &d }

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rentTemplate() core.Expense {
	return core.Expense{
		Date:               core.NewDate(2024, 1, 15),
		Category:           "Housing",
		SubCategory:        "Rent",
		Description:        "monthly rent",
		Amount:             amount("1000"),
		IsRecurring:        true,
		RecurrenceType:     core.Monthly,
		RecurrenceInterval: intPtr(1),
	}
}

func dates(seq func(func(core.Date) bool)) []string {
	var out []string
	for d := range seq {
		out = append(out, d.String())
	}
	return out
}

// faultyStore wraps a MemoryStore and injects errors.
type faultyStore struct {
	*storage.MemoryStore
	failParentOf map[int64]bool
	failSaveOn   map[string]bool // by date
}

var errInjected = errors.New("injected failure")

func (s *faultyStore) FindByParent(ctx context.Context, id int64) ([]core.Expense, error) {
	if s.failParentOf[id] {
		return nil, errInjected
	}
	return s.MemoryStore.FindByParent(ctx, id)
}

func (s *faultyStore) Save(ctx context.Context, e core.Expense) (core.Expense, error) {
	if s.failSaveOn[e.Date.String()] {
		return core.Expense{}, errInjected
	}
	return s.MemoryStore.Save(ctx, e)
}

// racingStore hides existing records from FindDuplicate, as if a concurrent
// writer inserted between the check and the save.
type racingStore struct {
	*storage.MemoryStore
}

func (s *racingStore) FindDuplicate(context.Context, core.DedupKey) (core.Expense, bool, error) {
	return core.Expense{}, false, nil
}

type recordedEvent struct {
	id        int64
	eventType amqp.EventType
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) PublishExpenseEvent(_ context.Context, id int64, eventType amqp.EventType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{id, eventType})
	return p.err
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }
