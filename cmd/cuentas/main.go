package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cuentas/internal/amqp"
	"cuentas/internal/backend"
	"cuentas/internal/cache"
	"cuentas/internal/config"
	"cuentas/internal/core"
	"cuentas/internal/currency"
	apphttp "cuentas/internal/http"
	"cuentas/internal/ledger"
	applog "cuentas/internal/log"
	"cuentas/internal/middleware/ratelimit"
	"cuentas/internal/report"
	"cuentas/internal/services"
	"cuentas/internal/summary"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	conv := currency.NewConverter(nil)
	store := ledger.New(conv,
		ledger.WithPersister(be.Persister),
		ledger.WithLogger(logger.WithComponent(applog.ComponentLedger).Logger))
	if err := store.Load(ctx); err != nil {
		return err
	}

	summaryCache := cache.NewLRUCache[core.MonthlyFinancialSummary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	cacheManager.Register(summaryCache)

	// A nil *amqp.Client must not end up inside the interface.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger events", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewLedgerService(store, summary.NewEngine(store, conv), conv, summaryCache, publisher,
		logger.WithComponent(applog.ComponentSummary).Logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:         svc,
		Exporter:        report.NewExcelExporter(conv),
		Limiter:         ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		Logger:          logger,
		DisplayCurrency: cfg.Display(),
		Ready:           be.Ready,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting cuentas server",
			"port", cfg.Port,
			"backend", backendCfg.Type,
			"display_currency", cfg.Display())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return srv.Limiter().Run(gctx)
	})

	g.Go(func() error {
		return cacheManager.Run(gctx, cfg.SummaryCacheTTL)
	})

	if cfg.RateSourceURL != "" {
		refresher := currency.NewRefresher(conv, currency.NewHTTPSource(cfg.RateSourceURL), cfg.RateRefreshInterval,
			logger.WithComponent(applog.ComponentCurrency).Logger)
		g.Go(func() error {
			return refresher.Run(gctx)
		})
	} else {
		logger.Info("Exchange rate refresh disabled; using built-in rates")
	}

	err = g.Wait()
	stats := summaryCache.Stats()
	logger.Info("Summary cache totals",
		"hits", stats.Hits,
		"misses", stats.Misses,
		"entries", stats.Size)
	return err
}
