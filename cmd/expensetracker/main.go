package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/core"
	httpapi "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/worker"
)

const reportCacheSize = 128

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp, (*config.Config).Validate)
	logger.Info("Starting expensetracker", "backend", cfg.DataBackend, "port", cfg.Port)

	result := cli.OpenBackend(context.Background(), logger, cfg)

	reportCache := cache.NewLRUCache[[]core.Expense](reportCacheSize, cfg.ReportCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(reportCache)
	cleanupInterval := cfg.ReportCacheTTL
	if cleanupInterval <= 0 {
		// A zero TTL disables caching, but the purge loop still needs a tick.
		cleanupInterval = time.Minute
	}
	cacheManager.StartCleanup(cleanupInterval)

	reports := services.NewReportService(result.Store, reportCache)
	opts := []services.ExpenseServiceOption{services.WithInvalidator(reports)}
	if result.Publisher != nil {
		opts = append(opts, services.WithPublisher(result.Publisher))
	}
	expenses := services.NewExpenseService(result.Store, opts...)
	categories := services.NewCategoryService(result.Store)

	srv := httpapi.NewServer(httpapi.Options{
		Addr:               ":" + cfg.Port,
		CORSOrigin:         cfg.CORSOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Location:           cfg.Location(),
		Logger:             logger,
	}, expenses, reports, categories, result.Store)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.RecurringInProcess {
		generator := services.NewGenerator(
			result.Store,
			services.NewProjector(logger.WithComponent(applog.ComponentScheduler).Logger),
			expenses,
		)
		scheduler := worker.NewScheduler(generator, cfg.RecurringInterval, cfg.Location())
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	} else {
		logger.Info("In-process recurring generation disabled, run recurring-worker instead")
	}

	err := g.Wait()

	cacheManager.Stop()
	if cerr := result.Cleanup(); cerr != nil {
		logger.Error("Backend cleanup failed", "error", cerr)
	}
	if err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
