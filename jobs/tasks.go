package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/crewledger/crewledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCalculateBatch runs a payroll batch calculation off the request
	// path.
	TaskCalculateBatch = "payroll:calculate_batch"
)

// CalculateBatchPayload identifies the batch to calculate and who asked.
type CalculateBatchPayload struct {
	TenantID int64 `json:"tenant_id"`
	BatchID  int64 `json:"batch_id"`
	ActorID  int64 `json:"actor_id"`
}

// NewCalculateBatchTask constructs an Asynq task for one batch run.
func NewCalculateBatchTask(payload CalculateBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCalculateBatch, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueCalculate queues a batch calculation. The task id derives from the
// batch lock key so a batch already queued is not queued twice.
func (c *Client) EnqueueCalculate(ctx context.Context, tenantID, batchID, actorID int64) error {
	task, err := NewCalculateBatchTask(CalculateBatchPayload{TenantID: tenantID, BatchID: batchID, ActorID: actorID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.TaskID(shared.BatchLockKey(tenantID, batchID)))
	if err != nil && err != asynq.ErrTaskIDConflict {
		return err
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
