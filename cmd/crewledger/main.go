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
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/observability"
	"github.com/crewledger/crewledger/internal/platform/cache"
	"github.com/crewledger/crewledger/internal/platform/db"
	"github.com/crewledger/crewledger/internal/payroll"
	payrollhttp "github.com/crewledger/crewledger/internal/payroll/http"
	"github.com/crewledger/crewledger/internal/shared"
	"github.com/crewledger/crewledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, os.Args[2:]); err != nil {
			slog.Default().Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	repo := payroll.NewRepository(dbpool)

	withholdingSvc := payroll.StaticWithholding{
		Rates: map[payroll.Jurisdiction]decimal.Decimal{
			payroll.JurisdictionFederal: decimal.NewFromFloat(cfg.FederalWithholdingRate),
		},
		DefaultStateRate: decimal.NewFromFloat(cfg.StateWithholdingRate),
	}
	calc := payroll.NewEntryCalculator(
		payroll.NewGrossCalculator(cfg.BurdenParams()),
		payroll.NewWithholdingCalculator(withholdingSvc, cfg.TaxParams()),
	)

	summaryCache := payroll.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	service := payroll.NewService(repo, calc, summaryCache, logger, payroll.ServiceConfig{
		Concurrency:     cfg.PayrollConcurrency,
		EmployeeTimeout: cfg.PayrollEmployeeTimeout,
	})
	service.WithAudit(shared.NewAuditLogger(dbpool))

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

	payrollHandler := payrollhttp.NewHandler(logger, service, jobClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PayrollHandler: payrollHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
