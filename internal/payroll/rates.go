package payroll

import (
	"fmt"
	"time"
)

// RateContext narrows candidate rates to the work actually performed.
// Unset fields match only unscoped rates.
type RateContext struct {
	ProjectID *int64
	ShiftCode string
	WorkState string
}

// ResolvedRate is the single wage record selected for an entry, kept as an
// explicit result so callers must handle the no-rate path instead of a nil
// check.
type ResolvedRate struct {
	Rate  PayRate
	Score int
}

// RateResolver selects the applicable wage rate for an employee on a date.
type RateResolver struct{}

// NewRateResolver constructs a RateResolver.
func NewRateResolver() *RateResolver {
	return &RateResolver{}
}

// Resolve filters candidates to those effective on date and matching the
// context, then picks the winner: highest context specificity first, then
// lowest numeric priority, then most recent effective date. Returns
// ErrNoApplicableRate when nothing survives filtering.
func (rr *RateResolver) Resolve(candidates []PayRate, date time.Time, rctx RateContext) (ResolvedRate, error) {
	var (
		best      PayRate
		bestScore = -1
		found     bool
	)
	for _, rate := range candidates {
		if !rate.EffectiveOn(date) {
			continue
		}
		score, ok := contextScore(rate, rctx)
		if !ok {
			continue
		}
		if !found || better(rate, score, best, bestScore) {
			best, bestScore, found = rate, score, true
		}
	}
	if !found {
		return ResolvedRate{}, fmt.Errorf("employee %d on %s: %w", employeeOf(candidates), date.Format("2006-01-02"), ErrNoApplicableRate)
	}
	return ResolvedRate{Rate: best, Score: bestScore}, nil
}

// contextScore returns how specifically the rate matches the work context.
// A rate scoped to a dimension the context does not carry, or scoped to a
// different value, is excluded entirely. Each matching scoped dimension adds
// one point so narrower rates outrank unscoped ones.
func contextScore(rate PayRate, rctx RateContext) (int, bool) {
	score := 0
	if rate.ProjectID != nil {
		if rctx.ProjectID == nil || *rate.ProjectID != *rctx.ProjectID {
			return 0, false
		}
		score++
	}
	if rate.ShiftCode != nil {
		if rctx.ShiftCode == "" || *rate.ShiftCode != rctx.ShiftCode {
			return 0, false
		}
		score++
	}
	if rate.WorkState != nil {
		if rctx.WorkState == "" || *rate.WorkState != rctx.WorkState {
			return 0, false
		}
		score++
	}
	return score, true
}

func better(candidate PayRate, score int, current PayRate, currentScore int) bool {
	if score != currentScore {
		return score > currentScore
	}
	if candidate.Priority != current.Priority {
		return candidate.Priority < current.Priority
	}
	return candidate.EffectiveDate.After(current.EffectiveDate)
}

func employeeOf(rates []PayRate) int64 {
	if len(rates) == 0 {
		return 0
	}
	return rates[0].EmployeeID
}
