package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DeductionResult is the outcome of applying all active deductions to an
// entry's gross pay.
type DeductionResult struct {
	Lines         []PayrollDeductionLine
	PreTaxTotal   decimal.Decimal
	PostTaxTotal  decimal.Decimal
	EmployerMatch decimal.Decimal
}

// Total returns pre-tax plus post-tax deductions.
func (r DeductionResult) Total() decimal.Decimal {
	return r.PreTaxTotal.Add(r.PostTaxTotal)
}

// DeductionEngine applies deductions in priority order with per-period and
// annual caps. The engine never mutates the Deduction records it is given;
// YTD advancement happens only when the batch posts.
type DeductionEngine struct{}

// NewDeductionEngine constructs a DeductionEngine.
func NewDeductionEngine() *DeductionEngine {
	return &DeductionEngine{}
}

// Apply runs every deduction active on asOf against gross, ascending by
// priority (court-ordered garnishments first, voluntary last). Percent
// deductions compute against full gross unless the deduction opts into
// NET_OF_PRIOR, in which case the base is gross minus already-applied
// amounts. Amounts clamp to the per-period max, then to the remaining room
// under the annual max; an annual-max clamp flags the line and never fails
// the run. Deductions never drive pay negative: each amount also clamps to
// the gross remaining after higher priority deductions.
func (de *DeductionEngine) Apply(deductions []Deduction, gross decimal.Decimal, asOf time.Time) DeductionResult {
	active := make([]Deduction, 0, len(deductions))
	for _, d := range deductions {
		if d.ActiveOn(asOf) {
			active = append(active, d)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	var res DeductionResult
	remaining := gross
	for _, d := range active {
		amount := requestedAmount(d, gross, remaining)
		if d.PerPeriodMax.IsPositive() && amount.GreaterThan(d.PerPeriodMax) {
			amount = d.PerPeriodMax
		}
		if d.AnnualMax.IsPositive() {
			room := d.AnnualMax.Sub(d.YTDAmount)
			if room.IsNegative() {
				room = decimal.Zero
			}
			if amount.GreaterThan(room) {
				amount = room
			}
		}
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		if amount.IsNegative() {
			amount = decimal.Zero
		}
		amount = roundCents(amount)
		// The flag reflects the final amount: a later clamp that leaves room
		// under the annual cap must not mark the line as capped out.
		hitAnnual := d.AnnualMax.IsPositive() && d.YTDAmount.Add(amount).GreaterThanOrEqual(d.AnnualMax)

		match := decimal.Zero
		if d.MatchRate.IsPositive() && amount.IsPositive() {
			match = percentOf(amount, d.MatchRate)
			if d.MatchMax.IsPositive() && match.GreaterThan(d.MatchMax) {
				match = d.MatchMax
			}
		}

		res.Lines = append(res.Lines, PayrollDeductionLine{
			DeductionID:   d.ID,
			Code:          d.Code,
			Priority:      d.Priority,
			PreTax:        d.PreTax,
			Amount:        amount,
			EmployerMatch: match,
			YTDBefore:     d.YTDAmount,
			YTDAfter:      d.YTDAmount.Add(amount),
			HitAnnualMax:  hitAnnual,
		})
		if d.PreTax {
			res.PreTaxTotal = res.PreTaxTotal.Add(amount)
		} else {
			res.PostTaxTotal = res.PostTaxTotal.Add(amount)
		}
		res.EmployerMatch = res.EmployerMatch.Add(match)
		remaining = remaining.Sub(amount)
	}
	return res
}

func requestedAmount(d Deduction, gross, remaining decimal.Decimal) decimal.Decimal {
	switch d.Method {
	case MethodPercentOfGross:
		base := gross
		if d.Basis == BasisNetOfPrior {
			base = remaining
		}
		return percentOf(base, d.Amount)
	default:
		return roundCents(d.Amount)
	}
}
