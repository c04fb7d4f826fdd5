package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cuentas/internal/amqp"
	"cuentas/internal/config"
	applog "cuentas/internal/log"
	"cuentas/internal/sheets"
	gsheet "cuentas/internal/sheets/google"
	"cuentas/internal/sheets/memory"
	"cuentas/internal/storage"
	"cuentas/internal/worker"
)

const consumeRetryDelay = 5 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentWorker,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	logger.Info("Starting cuentas-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror, err := newMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// The persisted ledger is only reachable with the sqlite backend.
	var source worker.SnapshotSource
	if cfg.DataBackend == "sqlite" {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		defer repo.Close()
		source = repo
	}

	w := worker.NewMirrorWorker(mirror, source, logger.WithComponent(applog.ComponentWorker).Logger)
	if source != nil {
		logger.Info("Performing startup resync...")
		if err := w.Resync(ctx); err != nil {
			// Events still flow; the next restart retries the resync.
			logger.Error("Startup resync failed", "error", err)
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			err := client.ConsumeLedgerEvents(gctx, w.HandleEvent)
			if gctx.Err() != nil {
				return nil
			}
			logger.Error("Message consumption failed, retrying",
				"error", err,
				"retry_in", consumeRetryDelay)
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(consumeRetryDelay):
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newMirror(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.LedgerMirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return memory.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:     cfg.GoogleSpreadsheetID,
		TransactionsSheet: cfg.GoogleSheetName,
		AccountsSheet:     cfg.GoogleAccountsSheetName,
		CredentialsJSON:   cfg.GoogleServiceAccountJSON,
		CredentialsFile:   cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
