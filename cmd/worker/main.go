package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/app"
	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/platform/cache"
	"github.com/crewledger/crewledger/internal/platform/db"
	"github.com/crewledger/crewledger/internal/payroll"
	"github.com/crewledger/crewledger/internal/shared"
	"github.com/crewledger/crewledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect database", slog.Any("error", err))
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

	repo := payroll.NewRepository(pool)

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
	service.WithAudit(shared.NewAuditLogger(pool))

	metrics := jobmetrics.NewMetrics(nil)
	calculateJob := jobs.NewCalculateBatchJob(service, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCalculateBatch, Handler: calculateJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
