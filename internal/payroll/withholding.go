package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WithholdingService is the external tax computation capability. It owns the
// jurisdictional tax tables; the engine owns only wage-base capping and FICA
// arithmetic.
type WithholdingService interface {
	ComputeWithholding(ctx context.Context, jurisdiction Jurisdiction, election WithholdingElection, taxableWages decimal.Decimal, frequency PayFrequency) (decimal.Decimal, error)
}

// WithholdingInput bundles what one entry's withholding run needs.
type WithholdingInput struct {
	EmployeeID int64
	Elections  []WithholdingElection
	Gross      decimal.Decimal
	// PreTaxDeductions reduce the income tax wage base but never the FICA
	// base.
	PreTaxDeductions decimal.Decimal
	WorkState        string
	AsOf             time.Time
	Frequency        PayFrequency
	YTD              TaxYTD
}

// WithholdingResult carries every statutory amount for one entry.
type WithholdingResult struct {
	Federal            decimal.Decimal
	State              decimal.Decimal
	Local              decimal.Decimal
	SocialSecurity     decimal.Decimal
	Medicare           decimal.Decimal
	AdditionalMedicare decimal.Decimal
	// SSWagesTaxed is the portion of this entry's gross counted against the
	// Social Security wage base, needed to advance the YTD accumulator at
	// post time.
	SSWagesTaxed decimal.Decimal
	Warnings     []string
}

// Total sums every employee-side withholding amount.
func (r WithholdingResult) Total() decimal.Decimal {
	return r.Federal.Add(r.State).Add(r.Local).
		Add(r.SocialSecurity).Add(r.Medicare).Add(r.AdditionalMedicare)
}

// WithholdingCalculator computes statutory withholding for one entry.
type WithholdingCalculator struct {
	svc    WithholdingService
	params TaxParams
}

// NewWithholdingCalculator constructs a WithholdingCalculator.
func NewWithholdingCalculator(svc WithholdingService, params TaxParams) *WithholdingCalculator {
	return &WithholdingCalculator{svc: svc, params: params}
}

// Calculate delegates income tax to the withholding service per current
// election and computes FICA locally. A missing federal election is fatal
// for the employee; a missing state election only produces a warning since
// not every work state levies income tax.
func (wc *WithholdingCalculator) Calculate(ctx context.Context, in WithholdingInput) (WithholdingResult, error) {
	taxable := in.Gross.Sub(in.PreTaxDeductions)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	var res WithholdingResult

	federal, ok := currentElection(in.Elections, JurisdictionFederal, in.AsOf)
	if !ok {
		return res, fmt.Errorf("employee %d: federal: %w", in.EmployeeID, ErrMissingElection)
	}
	amount, err := wc.compute(ctx, JurisdictionFederal, federal, taxable, in.Frequency)
	if err != nil {
		return res, fmt.Errorf("employee %d: federal withholding: %w", in.EmployeeID, err)
	}
	res.Federal = amount

	if in.WorkState != "" {
		state, ok := currentElection(in.Elections, Jurisdiction(in.WorkState), in.AsOf)
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("no withholding election for state %s, withholding zero", in.WorkState))
		} else {
			amount, err := wc.compute(ctx, state.Jurisdiction, state, taxable, in.Frequency)
			if err != nil {
				return res, fmt.Errorf("employee %d: state withholding: %w", in.EmployeeID, err)
			}
			res.State = amount
		}
		for _, e := range in.Elections {
			if !strings.HasPrefix(string(e.Jurisdiction), in.WorkState+"-") || !e.CurrentOn(in.AsOf) {
				continue
			}
			amount, err := wc.compute(ctx, e.Jurisdiction, e, taxable, in.Frequency)
			if err != nil {
				return res, fmt.Errorf("employee %d: local withholding %s: %w", in.EmployeeID, e.Jurisdiction, err)
			}
			res.Local = res.Local.Add(amount)
		}
	}

	// FICA runs on gross, not the income tax base.
	res.SSWagesTaxed = cappedWages(in.Gross, in.YTD.SSWages, wc.params.SSWageBase)
	res.SocialSecurity = rateOf(res.SSWagesTaxed, wc.params.SSRate)
	res.Medicare = rateOf(in.Gross, wc.params.MedicareRate)
	res.AdditionalMedicare = wc.additionalMedicare(in.Gross, in.YTD.MedicareWages)
	return res, nil
}

func (wc *WithholdingCalculator) compute(ctx context.Context, j Jurisdiction, e WithholdingElection, taxable decimal.Decimal, freq PayFrequency) (decimal.Decimal, error) {
	if e.Exempt {
		return decimal.Zero, nil
	}
	amount, err := wc.svc.ComputeWithholding(ctx, j, e, taxable, freq)
	if err != nil {
		return decimal.Zero, err
	}
	amount = roundCents(amount.Add(e.AdditionalWithholding))
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount, nil
}

// additionalMedicare withholds the extra rate on the slice of this entry's
// wages that lies above the annual threshold. Employee-only, no employer
// match.
func (wc *WithholdingCalculator) additionalMedicare(gross, ytdMedicareWages decimal.Decimal) decimal.Decimal {
	over := ytdMedicareWages.Add(gross).Sub(wc.params.AddlMedicareThreshold)
	if over.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if over.GreaterThan(gross) {
		over = gross
	}
	return rateOf(over, wc.params.AddlMedicareRate)
}

// EmployerTaxes computes the employer-side FICA match and unemployment
// premiums for one entry.
type EmployerTaxes struct {
	FICA         decimal.Decimal
	Unemployment decimal.Decimal
}

// EmployerTaxesFor mirrors the employee FICA capping for the employer match
// and applies FUTA/SUTA against their own wage bases. There is no employer
// match on Additional Medicare.
func (wc *WithholdingCalculator) EmployerTaxesFor(gross decimal.Decimal, ytd TaxYTD) EmployerTaxes {
	ssTaxable := cappedWages(gross, ytd.SSWages, wc.params.SSWageBase)
	fica := rateOf(ssTaxable, wc.params.SSRate).Add(rateOf(gross, wc.params.MedicareRate))

	futaTaxable := cappedWages(gross, ytd.GrossWages, wc.params.FUTAWageBase)
	sutaTaxable := cappedWages(gross, ytd.GrossWages, wc.params.SUTAWageBase)
	unemployment := rateOf(futaTaxable, wc.params.FUTARate).Add(rateOf(sutaTaxable, wc.params.SUTARate))

	return EmployerTaxes{FICA: fica, Unemployment: unemployment}
}

func currentElection(elections []WithholdingElection, j Jurisdiction, asOf time.Time) (WithholdingElection, bool) {
	for _, e := range elections {
		if e.Jurisdiction == j && e.CurrentOn(asOf) {
			return e, true
		}
	}
	return WithholdingElection{}, false
}

// StaticWithholding is a development and test implementation of
// WithholdingService applying a flat percentage per jurisdiction. State
// jurisdictions without an explicit rate fall back to DefaultStateRate.
type StaticWithholding struct {
	Rates            map[Jurisdiction]decimal.Decimal
	DefaultStateRate decimal.Decimal
}

// ComputeWithholding applies the configured flat rate. Unknown local
// jurisdictions withhold zero.
func (s StaticWithholding) ComputeWithholding(_ context.Context, j Jurisdiction, _ WithholdingElection, taxable decimal.Decimal, _ PayFrequency) (decimal.Decimal, error) {
	rate, ok := s.Rates[j]
	if !ok {
		if j == JurisdictionFederal || strings.Contains(string(j), "-") {
			return decimal.Zero, nil
		}
		rate = s.DefaultStateRate
	}
	return rateOf(taxable, rate), nil
}
