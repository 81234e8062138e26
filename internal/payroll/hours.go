package payroll

import (
	"context"
	"time"
)

// StatusApproved is the only external time entry status the engine consumes.
const StatusApproved = "APPROVED"

// ApprovedHoursSource is the time tracking collaborator. Implementations
// return records whose work date falls inside the requested range for one
// employee, already scoped to the caller's tenant.
type ApprovedHoursSource interface {
	GetApprovedHours(ctx context.Context, employeeID int64, from, to time.Time) ([]LaborHours, error)
}

// HoursAggregator collapses labor records into per-employee buckets.
type HoursAggregator struct{}

// NewHoursAggregator constructs an HoursAggregator.
func NewHoursAggregator() *HoursAggregator {
	return &HoursAggregator{}
}

// Aggregate sums hour buckets over records whose work date falls inside
// [from, to] and whose status is approved. Records excluded for status or
// window are returned as omissions, not errors; pending or rejected time
// never blocks a batch.
func (ha *HoursAggregator) Aggregate(records []LaborHours, from, to time.Time) (HourBuckets, []LaborHours) {
	var (
		total   HourBuckets
		omitted []LaborHours
	)
	for _, rec := range records {
		if rec.Status != StatusApproved || rec.WorkDate.Before(from) || rec.WorkDate.After(to) {
			omitted = append(omitted, rec)
			continue
		}
		total = total.Add(rec.Hours)
	}
	return total, omitted
}
