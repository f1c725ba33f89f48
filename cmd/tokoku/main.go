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
	"golang.org/x/sync/errgroup"

	"github.com/tokoku-erp/tokoku-erp/internal/app"
	"github.com/tokoku-erp/tokoku-erp/internal/billing"
	"github.com/tokoku-erp/tokoku-erp/internal/catalog"
	"github.com/tokoku-erp/tokoku-erp/internal/expenses"
	"github.com/tokoku-erp/tokoku-erp/internal/inventory"
	"github.com/tokoku-erp/tokoku-erp/internal/observability"
	"github.com/tokoku-erp/tokoku-erp/internal/payroll"
	"github.com/tokoku-erp/tokoku-erp/internal/platform/cache"
	"github.com/tokoku-erp/tokoku-erp/internal/platform/db"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
	"github.com/tokoku-erp/tokoku-erp/internal/shops"
	"github.com/tokoku-erp/tokoku-erp/internal/suppliers"
	"github.com/tokoku-erp/tokoku-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	shopsRepo := shops.NewRepository(pool)
	shopsService := shops.NewService(shopsRepo, redisClient, auditLogger)
	shopsHandler := shops.NewHandler(logger, shopsService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, auditLogger, idempotencyStore)
	billingHandler := billing.NewHandler(logger, billingService)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	suppliersRepo := suppliers.NewRepository(pool)
	suppliersService := suppliers.NewService(suppliersRepo, auditLogger)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	payrollRepo := payroll.NewRepository(pool)
	payrollService := payroll.NewService(payrollRepo, auditLogger)
	payrollHandler := payroll.NewHandler(logger, payrollService)

	expensesRepo := expenses.NewRepository(pool)
	expensesService := expenses.NewService(expensesRepo, auditLogger)
	expensesHandler := expenses.NewHandler(logger, expensesService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ShopsService:     shopsService,
		ShopsHandler:     shopsHandler,
		InventoryHandler: inventoryHandler,
		BillingHandler:   billingHandler,
		CatalogHandler:   catalogHandler,
		SuppliersHandler: suppliersHandler,
		PayrollHandler:   payrollHandler,
		ExpensesHandler:  expensesHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
