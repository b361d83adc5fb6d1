package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	gsheet "expensetracker/internal/sheets/google"
	"expensetracker/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentSheets, func(c *config.Config) error {
		return errors.Join(c.Validate(), c.ValidateSheets())
	})
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("sheets-worker with the memory backend cannot see expenses written by other processes")
	}

	result := cli.OpenBackend(context.Background(), logger, cfg)
	if result.Publisher == nil {
		logger.Error("AMQP broker unavailable, nothing to consume", "url_set", cfg.AMQPURL != "")
		_ = result.Cleanup()
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	sheetsClient, err := gsheet.NewClient(initCtx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err == nil {
		err = sheetsClient.EnsureHeader(initCtx)
	}
	cancelInit()
	if err != nil {
		logger.Error("Failed to initialize Google Sheets", "error", err, "spreadsheet_id", cfg.GoogleSpreadsheetID)
		_ = result.Cleanup()
		os.Exit(1)
	}

	mirror := worker.NewSheetsMirror(result.Store, sheetsClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Starting sheets-worker",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName,
		"queue", cfg.AMQPQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := result.Publisher.ConsumeExpenseEvents(gctx, mirror.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	runErr := g.Wait()
	if err := result.Cleanup(); err != nil {
		logger.Error("Backend cleanup failed", "error", err)
	}
	if runErr != nil {
		logger.Error("Consumer stopped with error", "error", runErr)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
