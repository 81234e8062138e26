package shared

import "fmt"

// BatchLockKey builds redis keys serialising work on one payroll batch.
func BatchLockKey(tenantID, batchID int64) string {
	return fmt.Sprintf("payroll:%d:batch:%d:lock", tenantID, batchID)
}
