package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
)

// CycleRunner runs one recurring generation cycle.
type CycleRunner interface {
	RunGenerationCycle(ctx context.Context, asOf core.Date) services.GenerationReport
}

// Scheduler owns the cadence of recurring generation: one cycle on start and
// one per tick until stopped.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	location *time.Location
	now      func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(runner CycleRunner, interval time.Duration, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		location: location,
		now:      time.Now,
	}
}

// Start begins the scheduling loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring scheduler started",
		"interval", s.interval,
		"timezone", s.location.String())
	return nil
}

// Stop signals the loop and waits for the running cycle to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Recurring scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring scheduler stop timed out")
		return ctx.Err()
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle generates everything due up to today in the configured time zone.
func (s *Scheduler) runCycle(ctx context.Context) {
	today := core.DateOf(s.now().In(s.location))
	start := time.Now()

	report := s.runner.RunGenerationCycle(ctx, today)

	slog.InfoContext(ctx, "Recurring cycle finished",
		"as_of", today.String(),
		"generated", report.Generated,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds())
}
