package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/magneq-erp/magneq-erp/internal/app"
	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/platform/cache"
	"github.com/magneq-erp/magneq-erp/internal/platform/db"
	"github.com/magneq-erp/magneq-erp/internal/procurement"
	"github.com/magneq-erp/magneq-erp/internal/production"
	"github.com/magneq-erp/magneq-erp/internal/sales"
	"github.com/magneq-erp/magneq-erp/internal/shared"
	"github.com/magneq-erp/magneq-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	sequences := shared.NewSequences(pool)
	locks := shared.NewKeyedMutex()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewCache(redisClient, 10*time.Minute)
	catalogService := catalog.NewService(catalog.NewCachedRepository(catalogRepo, catalogCache), auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, locks, jobClient)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, catalogService, ledgerService, sequences, auditLogger)
	productionHandler := production.NewHandler(logger, productionService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, catalogService, productionService, sequences, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)
	productionService.SetReadyHandler(salesService)

	procurementRepo := procurement.NewRepository(pool)
	procurementService := procurement.NewService(procurementRepo, ledgerService, sequences, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalogHandler,
		LedgerHandler:      ledgerHandler,
		SalesHandler:       salesHandler,
		ProductionHandler:  productionHandler,
		ProcurementHandler: procurementHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
