package main

import (
	"context"
	"os"
	"time"

	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentScheduler, (*config.Config).Validate)
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("recurring-worker with the memory backend generates into a private store; use RECURRING_IN_PROCESS on the API server instead")
	}

	result := cli.OpenBackend(context.Background(), logger, cfg)

	var opts []services.ExpenseServiceOption
	if result.Publisher != nil {
		opts = append(opts, services.WithPublisher(result.Publisher))
	}
	expenses := services.NewExpenseService(result.Store, opts...)
	generator := services.NewGenerator(result.Store, services.NewProjector(logger.Logger), expenses)
	scheduler := worker.NewScheduler(generator, cfg.RecurringInterval, cfg.Location())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Starting recurring-worker",
		"interval", cfg.RecurringInterval,
		"timezone", cfg.Location().String(),
		"backend", cfg.DataBackend)

	runErr := scheduler.Run(ctx)
	if err := result.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", "error", err)
	}
	if runErr != nil {
		logger.Error("Scheduler stopped with error", "error", runErr)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
