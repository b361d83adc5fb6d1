package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// ReportService answers aggregate queries. Month listings are cached when a
// cache is configured; Invalidate drops them after a write.
//
// Writes from other processes (cmd/recurring-worker) cannot invalidate this
// cache, so their effect shows up once entries expire.
type ReportService struct {
	store  storage.ExpenseStore
	months cache.Cache[[]core.Expense]

	// generation is bumped by Invalidate; a load that started under an older
	// generation must not be cached.
	mu         sync.Mutex
	generation uint64
}

func NewReportService(store storage.ExpenseStore, months cache.Cache[[]core.Expense]) *ReportService {
	return &ReportService{store: store, months: months}
}

func (s *ReportService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.months != nil {
		s.months.Clear()
	}
}

func (s *ReportService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// cacheMonth caches list unless an Invalidate happened since gen was read.
func (s *ReportService) cacheMonth(key string, list []core.Expense, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.months.Set(key, list)
	}
}

func (s *ReportService) month(ctx context.Context, year int, month time.Month) ([]core.Expense, error) {
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	if s.months != nil {
		if list, ok := s.months.Get(key); ok {
			return list, nil
		}
	}
	gen := s.currentGeneration()
	list, err := s.store.FindByYearMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if s.months != nil {
		s.cacheMonth(key, list, gen)
	}
	return list, nil
}

// MonthlyTotalFor sums the expenses dated in the given month.
func (s *ReportService) MonthlyTotalFor(ctx context.Context, year int, month time.Month) (decimal.Decimal, error) {
	list, err := s.month(ctx, year, month)
	if err != nil {
		return decimal.Zero, err
	}
	return MonthlyTotal(list), nil
}

// CategorySummaryByMonth sums per category for one month.
func (s *ReportService) CategorySummaryByMonth(ctx context.Context, year int, month time.Month) (core.CategoryTotals, error) {
	list, err := s.month(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return CategorySummary(list), nil
}

// MonthlyTrend returns twelve monthly totals, January first. Empty months are zero.
func (s *ReportService) MonthlyTrend(ctx context.Context, year int) ([]decimal.Decimal, error) {
	trend := make([]decimal.Decimal, 12)
	for m := time.January; m <= time.December; m++ {
		total, err := s.MonthlyTotalFor(ctx, year, m)
		if err != nil {
			return nil, err
		}
		trend[m-1] = total
	}
	return trend, nil
}

// YearToDateSummary sums per category over the whole calendar year.
func (s *ReportService) YearToDateSummary(ctx context.Context, year int) (core.CategoryTotals, error) {
	start := core.NewDate(year, 1, 1)
	end := core.NewDate(year, 12, 31)
	list, err := s.store.FindByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load year %d: %w", year, err)
	}
	return CategorySummary(list), nil
}
