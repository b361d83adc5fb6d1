package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []core.Date
	ran   chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{ran: make(chan struct{}, 16)}
}

func (r *recordingRunner) RunGenerationCycle(_ context.Context, asOf core.Date) services.GenerationReport {
	r.mu.Lock()
	r.calls = append(r.calls, asOf)
	r.mu.Unlock()
	r.ran <- struct{}{}
	return services.GenerationReport{}
}

func (r *recordingRunner) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for cycle %d", i+1)
		}
	}
}

func TestScheduler_RunsOnStartInConfiguredZone(t *testing.T) {
	runner := newRecordingRunner()
	// 23:30 UTC on Jan 31 is already Feb 1 in Rome.
	rome := time.FixedZone("CET", 3600)
	s := NewScheduler(runner, time.Hour, rome)
	s.now = func() time.Time { return time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	runner.waitCalls(t, 1)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := runner.calls[0]; !got.Equal(core.NewDate(2024, 2, 1).Time) {
		t.Errorf("asOf = %s, want 2024-02-01", got)
	}
}

func TestScheduler_TicksAndStops(t *testing.T) {
	runner := newRecordingRunner()
	s := NewScheduler(runner, 10*time.Millisecond, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}
	runner.waitCalls(t, 3)

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop on stopped scheduler: %v", err)
	}
	// A stopped scheduler can be started again.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

func TestScheduler_RunReturnsOnCancel(t *testing.T) {
	runner := newRecordingRunner()
	s := NewScheduler(runner, time.Hour, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	runner.waitCalls(t, 1)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_GeneratesRentEndToEnd(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	expenses := services.NewExpenseService(store)
	interval := 1
	if _, _, err := expenses.AddRecurringTemplate(ctx, core.Expense{
		Date:               core.NewDate(2024, 1, 15),
		Category:           "Housing",
		Description:        "Rent",
		Amount:             decimal.RequireFromString("1000.00"),
		RecurrenceType:     core.Monthly,
		RecurrenceInterval: &interval,
	}); err != nil {
		t.Fatalf("AddRecurringTemplate: %v", err)
	}

	generator := services.NewGenerator(store, services.NewProjector(nil), expenses)
	s := NewScheduler(generator, time.Hour, time.UTC)
	s.now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }

	s.runCycle(ctx)
	s.runCycle(ctx)

	all, err := store.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d expenses, want template + 2 instances", len(all))
	}
}
