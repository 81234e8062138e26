package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewCalculateBatchTask(t *testing.T) {
	task, err := NewCalculateBatchTask(CalculateBatchPayload{TenantID: 1, BatchID: 42, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, TaskCalculateBatch, task.Type())

	var payload CalculateBatchPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(42), payload.BatchID)
	require.Equal(t, int64(7), payload.ActorID)
}

func TestHandleSkipsMalformedPayload(t *testing.T) {
	job := NewCalculateBatchJob(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	task := asynq.NewTask(TaskCalculateBatch, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
