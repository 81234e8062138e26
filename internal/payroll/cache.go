package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BatchSummary is the cached read shape for dashboard polling while a batch
// is being worked.
type BatchSummary struct {
	BatchID       int64           `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	Status        BatchStatus     `json:"status"`
	EmployeeCount int             `json:"employee_count"`
	TotalGrossPay decimal.Decimal `json:"total_gross_pay"`
	TotalNetPay   decimal.Decimal `json:"total_net_pay"`
	FatalErrors   int             `json:"fatal_errors"`
}

// SummaryCache keeps batch summaries in Redis. Mutating operations
// invalidate; readers fall through to the store on a miss.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache instantiates the cache helper.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(tenantID, batchID int64) string {
	return fmt.Sprintf("payroll:%d:batch:%d:summary", tenantID, batchID)
}

// Get returns the cached summary, or ok=false on a miss.
func (c *SummaryCache) Get(ctx context.Context, tenantID, batchID int64) (BatchSummary, bool, error) {
	if c == nil || c.client == nil {
		return BatchSummary{}, false, nil
	}
	raw, err := c.client.Get(ctx, summaryKey(tenantID, batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BatchSummary{}, false, nil
	}
	if err != nil {
		return BatchSummary{}, false, err
	}
	var summary BatchSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return BatchSummary{}, false, err
	}
	return summary, true, nil
}

// Set stores the summary under the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, tenantID int64, summary BatchSummary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(tenantID, summary.BatchID), raw, c.ttl).Err()
}

// Invalidate drops the cached summary for a batch.
func (c *SummaryCache) Invalidate(ctx context.Context, tenantID, batchID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey(tenantID, batchID)).Err()
}

// Summarize builds the cache shape from a batch.
func Summarize(batch PayrollBatch) BatchSummary {
	return BatchSummary{
		BatchID:       batch.ID,
		BatchNumber:   batch.BatchNumber,
		Status:        batch.Status,
		EmployeeCount: batch.EmployeeCount,
		TotalGrossPay: batch.TotalGrossPay,
		TotalNetPay:   batch.TotalNetPay,
		FatalErrors:   len(batch.Errors),
	}
}
