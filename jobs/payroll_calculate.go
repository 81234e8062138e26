package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/crewledger/crewledger/internal/jobs"
	"github.com/crewledger/crewledger/internal/payroll"
)

// CalculateBatchJob processes queued payroll batch calculations.
type CalculateBatchJob struct {
	service *payroll.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewCalculateBatchJob wires the payroll service into an Asynq handler.
func NewCalculateBatchJob(service *payroll.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CalculateBatchJob {
	return &CalculateBatchJob{service: service, logger: logger, metrics: metrics}
}

// Handle runs one queued calculation. State errors and version conflicts
// are not retried: the batch either moved on or another run owns it.
func (j *CalculateBatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CalculateBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("payroll_calculate")
	detail, err := j.service.CalculateBatch(ctx, payload.TenantID, payload.BatchID, payload.ActorID)
	err = tracker.End(err)
	if err != nil {
		if errors.Is(err, payroll.ErrInvalidTransition) ||
			errors.Is(err, payroll.ErrBatchImmutable) ||
			errors.Is(err, payroll.ErrVersionConflict) ||
			errors.Is(err, payroll.ErrNotFound) {
			j.logger.Warn("queued batch calculation skipped",
				slog.Int64("batch_id", payload.BatchID),
				slog.Any("error", err))
			return asynq.SkipRetry
		}
		return err
	}
	j.logger.Info("queued batch calculation finished",
		slog.Int64("batch_id", payload.BatchID),
		slog.Int("entries", len(detail.Entries)),
		slog.Int("fatal_errors", len(detail.Batch.Errors)))
	return nil
}
