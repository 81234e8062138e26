package payroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryInput is everything one employee's calculation reads. All of it is
// loaded up front so the pipeline itself touches no shared state and the
// fan-out stays embarrassingly parallel.
type EntryInput struct {
	TenantID      int64
	EmployeeID    int64
	BatchPublicID uuid.UUID
	Period        PayPeriod
	Records       []LaborHours
	Rates         []PayRate
	Deductions    []Deduction
	Elections     []WithholdingElection
	YTD           TaxYTD
	OtherEarnings decimal.Decimal
}

// EntryCalculator runs the full gross-to-net pipeline for one employee:
// hours aggregation, rate resolution, gross pay, deductions, withholding.
// Deductions run before income tax is finalised because pre-tax totals
// shrink the income tax wage base.
type EntryCalculator struct {
	hours       *HoursAggregator
	rates       *RateResolver
	gross       *GrossCalculator
	deductions  *DeductionEngine
	withholding *WithholdingCalculator
}

// NewEntryCalculator wires the pipeline stages.
func NewEntryCalculator(gross *GrossCalculator, withholding *WithholdingCalculator) *EntryCalculator {
	return &EntryCalculator{
		hours:       NewHoursAggregator(),
		rates:       NewRateResolver(),
		gross:       gross,
		deductions:  NewDeductionEngine(),
		withholding: withholding,
	}
}

// Calculate produces the PayrollEntry for one employee. Errors are fatal for
// this employee only; the orchestrator records them and continues with the
// rest of the batch.
func (c *EntryCalculator) Calculate(ctx context.Context, in EntryInput) (PayrollEntry, error) {
	buckets, omitted := c.hours.Aggregate(in.Records, in.Period.StartDate, in.Period.EndDate)
	rctx := workContext(in.Records)

	resolved, err := c.rates.Resolve(in.Rates, in.Period.EndDate, rctx)
	if err != nil {
		return PayrollEntry{}, err
	}

	pay := c.gross.Calculate(buckets, resolved, in.OtherEarnings)
	ded := c.deductions.Apply(in.Deductions, pay.Gross, in.Period.EndDate)

	wh, err := c.withholding.Calculate(ctx, WithholdingInput{
		EmployeeID:       in.EmployeeID,
		Elections:        in.Elections,
		Gross:            pay.Gross,
		PreTaxDeductions: ded.PreTaxTotal,
		WorkState:        rctx.WorkState,
		AsOf:             in.Period.EndDate,
		Frequency:        in.Period.Frequency,
		YTD:              in.YTD,
	})
	if err != nil {
		return PayrollEntry{}, err
	}

	employerTaxes := c.withholding.EmployerTaxesFor(pay.Gross, in.YTD)

	entry := PayrollEntry{
		PublicID:   entryPublicID(in.BatchPublicID, in.EmployeeID),
		TenantID:   in.TenantID,
		EmployeeID: in.EmployeeID,
		Hours:      buckets,
		BaseRate:   resolved.Rate.Amount,

		RegularPay:    pay.RegularPay,
		OvertimePay:   pay.OvertimePay,
		DoubletimePay: pay.DoubletimePay,
		PTOPay:        pay.PTOPay,
		HolidayPay:    pay.HolidayPay,
		OtherEarnings: pay.OtherEarnings,
		GrossPay:      pay.Gross,

		FederalWithholding: wh.Federal,
		StateWithholding:   wh.State,
		LocalWithholding:   wh.Local,
		SocialSecurity:     wh.SocialSecurity,
		Medicare:           wh.Medicare,
		AdditionalMedicare: wh.AdditionalMedicare,

		PreTaxDeductions:  ded.PreTaxTotal,
		PostTaxDeductions: ded.PostTaxTotal,

		EmployerFICA:         employerTaxes.FICA,
		EmployerUnemployment: employerTaxes.Unemployment,
		WorkersComp:          c.gross.WorkersComp(pay.Gross),
		UnionFringe:          pay.UnionFringe,
		EmployerBurden:       c.gross.Burden(pay.Gross),

		Lines:    ded.Lines,
		Warnings: wh.Warnings,
	}
	entry.NetPay = entry.GrossPay.Sub(entry.TotalDeductions()).Sub(entry.TotalWithholding())

	entry.YTD = YTDSnapshot{
		GrossBefore:          in.YTD.GrossWages,
		GrossAfter:           in.YTD.GrossWages.Add(entry.GrossPay),
		SocialSecurityBefore: in.YTD.SSWages,
		SocialSecurityAfter:  in.YTD.SSWages.Add(wh.SSWagesTaxed),
		MedicareBefore:       in.YTD.MedicareWages,
		MedicareAfter:        in.YTD.MedicareWages.Add(entry.GrossPay),
	}

	for _, rec := range omitted {
		entry.Warnings = append(entry.Warnings, fmt.Sprintf("time entry on %s omitted (status %s)", rec.WorkDate.Format("2006-01-02"), rec.Status))
	}
	if rctx.WorkState == "" && anyWorkState(in.Records) {
		entry.Warnings = append(entry.Warnings, "labor records span multiple work states, state and local withholding skipped")
	}
	return entry, nil
}

// entryPublicID derives the entry identifier from the batch identity so
// recomputation with unchanged inputs reproduces identical rows.
func entryPublicID(batchPublicID uuid.UUID, employeeID int64) uuid.UUID {
	return uuid.NewSHA1(batchPublicID, []byte(fmt.Sprintf("entry:%d", employeeID)))
}

func anyWorkState(records []LaborHours) bool {
	for _, rec := range records {
		if rec.WorkState != "" {
			return true
		}
	}
	return false
}

// workContext derives the rate resolution context from the period's labor
// records. A dimension is used only when every record agrees on it, so mixed
// work falls back to the employee's unscoped rate.
func workContext(records []LaborHours) RateContext {
	var rctx RateContext
	for i, rec := range records {
		if i == 0 {
			rctx = RateContext{ProjectID: rec.ProjectID, ShiftCode: rec.ShiftCode, WorkState: rec.WorkState}
			continue
		}
		if rctx.ProjectID != nil && (rec.ProjectID == nil || *rec.ProjectID != *rctx.ProjectID) {
			rctx.ProjectID = nil
		}
		if rctx.ShiftCode != rec.ShiftCode {
			rctx.ShiftCode = ""
		}
		if rctx.WorkState != rec.WorkState {
			rctx.WorkState = ""
		}
	}
	return rctx
}
