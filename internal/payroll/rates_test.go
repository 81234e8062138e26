package payroll

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrInt64(v int64) *int64 { return &v }

func ptrString(v string) *string { return &v }

func ptrTime(t time.Time) *time.Time { return &t }

func TestResolvePrefersMoreSpecificRate(t *testing.T) {
	rr := NewRateResolver()
	rates := []PayRate{
		{ID: 1, EmployeeID: 9, Amount: decimal.NewFromInt(30), Priority: 10, EffectiveDate: date(2025, 1, 1)},
		{ID: 2, EmployeeID: 9, Amount: decimal.NewFromInt(35), Priority: 10, ProjectID: ptrInt64(7), EffectiveDate: date(2025, 1, 1)},
	}

	resolved, err := rr.Resolve(rates, date(2025, 6, 15), RateContext{ProjectID: ptrInt64(7)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Rate.ID != 2 {
		t.Fatalf("expected project-scoped rate 2, got %d", resolved.Rate.ID)
	}
	if resolved.Score != 1 {
		t.Fatalf("expected score 1, got %d", resolved.Score)
	}
}

func TestResolveExcludesScopedRateWhenContextLacksDimension(t *testing.T) {
	rr := NewRateResolver()
	rates := []PayRate{
		{ID: 1, EmployeeID: 9, Amount: decimal.NewFromInt(30), EffectiveDate: date(2025, 1, 1)},
		{ID: 2, EmployeeID: 9, Amount: decimal.NewFromInt(35), ProjectID: ptrInt64(7), EffectiveDate: date(2025, 1, 1)},
		{ID: 3, EmployeeID: 9, Amount: decimal.NewFromInt(40), WorkState: ptrString("OH"), EffectiveDate: date(2025, 1, 1)},
	}

	resolved, err := rr.Resolve(rates, date(2025, 6, 15), RateContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Rate.ID != 1 {
		t.Fatalf("expected unscoped rate 1, got %d", resolved.Rate.ID)
	}
}

func TestResolveBreaksSpecificityTieByPriority(t *testing.T) {
	rr := NewRateResolver()
	rates := []PayRate{
		{ID: 1, EmployeeID: 9, Amount: decimal.NewFromInt(30), Priority: 5, EffectiveDate: date(2025, 1, 1)},
		{ID: 2, EmployeeID: 9, Amount: decimal.NewFromInt(32), Priority: 1, EffectiveDate: date(2025, 1, 1)},
	}

	resolved, err := rr.Resolve(rates, date(2025, 6, 15), RateContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Rate.ID != 2 {
		t.Fatalf("expected lower priority number to win, got rate %d", resolved.Rate.ID)
	}
}

func TestResolveBreaksPriorityTieByMostRecentEffectiveDate(t *testing.T) {
	rr := NewRateResolver()
	rates := []PayRate{
		{ID: 1, EmployeeID: 9, Amount: decimal.NewFromInt(30), Priority: 1, EffectiveDate: date(2025, 1, 1)},
		{ID: 2, EmployeeID: 9, Amount: decimal.NewFromInt(31), Priority: 1, EffectiveDate: date(2025, 4, 1)},
	}

	resolved, err := rr.Resolve(rates, date(2025, 6, 15), RateContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Rate.ID != 2 {
		t.Fatalf("expected most recent effective date to win, got rate %d", resolved.Rate.ID)
	}
}

func TestResolveExpirationIsExclusive(t *testing.T) {
	rr := NewRateResolver()
	rates := []PayRate{
		{ID: 1, EmployeeID: 9, Amount: decimal.NewFromInt(30), EffectiveDate: date(2025, 1, 1), ExpirationDate: ptrTime(date(2025, 6, 15))},
	}

	if _, err := rr.Resolve(rates, date(2025, 6, 15), RateContext{}); !errors.Is(err, ErrNoApplicableRate) {
		t.Fatalf("expected ErrNoApplicableRate on the expiration date, got %v", err)
	}
	if _, err := rr.Resolve(rates, date(2025, 6, 14), RateContext{}); err != nil {
		t.Fatalf("expected rate to apply the day before expiration: %v", err)
	}
}

func TestResolveNoCandidates(t *testing.T) {
	rr := NewRateResolver()
	if _, err := rr.Resolve(nil, date(2025, 6, 15), RateContext{}); !errors.Is(err, ErrNoApplicableRate) {
		t.Fatalf("expected ErrNoApplicableRate, got %v", err)
	}
}
