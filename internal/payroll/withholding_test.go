package payroll

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func flatWithholding() StaticWithholding {
	return StaticWithholding{Rates: map[Jurisdiction]decimal.Decimal{
		JurisdictionFederal: dec("0.10"),
		"OH":                dec("0.03"),
		"OH-COLUMBUS":       dec("0.025"),
	}}
}

func federalElection() WithholdingElection {
	return WithholdingElection{Jurisdiction: JurisdictionFederal, FilingStatus: "SINGLE", EffectiveDate: date(2025, 1, 1)}
}

func TestCalculatePreTaxReducesIncomeTaxBaseNotFICA(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID:       9,
		Elections:        []WithholdingElection{federalElection()},
		Gross:            dec("330"),
		PreTaxDeductions: dec("50"),
		AsOf:             date(2025, 6, 15),
		Frequency:        FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// 10% of the 280 taxable base.
	if !res.Federal.Equal(dec("28")) {
		t.Fatalf("federal = %s, want 28", res.Federal)
	}
	// FICA always runs on full gross.
	if !res.SocialSecurity.Equal(dec("20.46")) {
		t.Fatalf("social security = %s, want 20.46", res.SocialSecurity)
	}
	if !res.Medicare.Equal(dec("4.79")) {
		t.Fatalf("medicare = %s, want 4.79", res.Medicare)
	}
	if !res.AdditionalMedicare.IsZero() {
		t.Fatalf("additional medicare = %s, want 0", res.AdditionalMedicare)
	}
	if !res.SSWagesTaxed.Equal(dec("330")) {
		t.Fatalf("ss wages taxed = %s, want 330", res.SSWagesTaxed)
	}
}

func TestCalculateMissingFederalElectionIsFatal(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	_, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Gross:      dec("330"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if !errors.Is(err, ErrMissingElection) {
		t.Fatalf("expected ErrMissingElection, got %v", err)
	}
}

func TestCalculateMissingStateElectionWarnsAndWithholdsZero(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{federalElection()},
		Gross:      dec("1000"),
		WorkState:  "TX",
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.State.IsZero() {
		t.Fatalf("state = %s, want 0", res.State)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "TX") {
		t.Fatalf("expected a state warning, got %v", res.Warnings)
	}
}

func TestCalculateStateAndLocalWithholding(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections: []WithholdingElection{
			federalElection(),
			{Jurisdiction: "OH", FilingStatus: "SINGLE", EffectiveDate: date(2025, 1, 1)},
			{Jurisdiction: "OH-COLUMBUS", FilingStatus: "SINGLE", EffectiveDate: date(2025, 1, 1)},
		},
		Gross:     dec("1000"),
		WorkState: "OH",
		AsOf:      date(2025, 6, 15),
		Frequency: FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.State.Equal(dec("30")) {
		t.Fatalf("state = %s, want 30", res.State)
	}
	if !res.Local.Equal(dec("25")) {
		t.Fatalf("local = %s, want 25", res.Local)
	}
}

func TestCalculateSocialSecurityWageBaseSliver(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{federalElection()},
		Gross:      dec("330"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
		YTD:        TaxYTD{SSWages: dec("176000")},
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// Only the 100 below the 176100 wage base is taxable.
	if !res.SSWagesTaxed.Equal(dec("100")) {
		t.Fatalf("ss wages taxed = %s, want 100", res.SSWagesTaxed)
	}
	if !res.SocialSecurity.Equal(dec("6.20")) {
		t.Fatalf("social security = %s, want 6.20", res.SocialSecurity)
	}
	// Medicare stays uncapped.
	if !res.Medicare.Equal(dec("4.79")) {
		t.Fatalf("medicare = %s, want 4.79", res.Medicare)
	}
}

func TestCalculateSocialSecurityStopsPastWageBase(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{federalElection()},
		Gross:      dec("5000"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
		YTD:        TaxYTD{SSWages: dec("176100")},
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.SocialSecurity.IsZero() {
		t.Fatalf("social security = %s, want 0 past the wage base", res.SocialSecurity)
	}
}

func TestCalculateAdditionalMedicareAboveThreshold(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{federalElection()},
		Gross:      dec("330"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
		YTD:        TaxYTD{MedicareWages: dec("199900")},
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// 230 of this check sits above the 200000 threshold: 230 * 0.9% = 2.07.
	if !res.AdditionalMedicare.Equal(dec("2.07")) {
		t.Fatalf("additional medicare = %s, want 2.07", res.AdditionalMedicare)
	}
}

func TestCalculateExemptElectionWithholdsNothing(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	election := federalElection()
	election.Exempt = true
	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{election},
		Gross:      dec("1000"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.Federal.IsZero() {
		t.Fatalf("federal = %s, want 0 for exempt election", res.Federal)
	}
	// FICA is not subject to exemption.
	if res.SocialSecurity.IsZero() {
		t.Fatal("social security must still apply")
	}
}

func TestCalculateAdditionalWithholdingAdded(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	election := federalElection()
	election.AdditionalWithholding = dec("25")
	res, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{election},
		Gross:      dec("1000"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.Federal.Equal(dec("125")) {
		t.Fatalf("federal = %s, want 100 + 25 additional", res.Federal)
	}
}

func TestCalculateExpiredElectionNotCurrent(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	election := federalElection()
	election.ExpirationDate = ptrTime(date(2025, 6, 1))
	_, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{election},
		Gross:      dec("1000"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if !errors.Is(err, ErrMissingElection) {
		t.Fatalf("expected ErrMissingElection for expired election, got %v", err)
	}
}

func TestEmployerTaxesForCapsEachBase(t *testing.T) {
	wc := NewWithholdingCalculator(flatWithholding(), DefaultTaxParams())

	taxes := wc.EmployerTaxesFor(dec("330"), TaxYTD{GrossWages: dec("6900")})

	// FICA match: 6.2% + 1.45% of 330.
	if !taxes.FICA.Equal(dec("25.25")) {
		t.Fatalf("employer fica = %s, want 25.25", taxes.FICA)
	}
	// FUTA has 100 of room (0.6% -> 0.60), SUTA has 2100 so the full 330
	// applies (2.7% -> 8.91).
	if !taxes.Unemployment.Equal(dec("9.51")) {
		t.Fatalf("unemployment = %s, want 9.51", taxes.Unemployment)
	}
}

type failingWithholding struct{}

func (failingWithholding) ComputeWithholding(context.Context, Jurisdiction, WithholdingElection, decimal.Decimal, PayFrequency) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("tax service unavailable")
}

func TestCalculateServiceFailurePropagates(t *testing.T) {
	wc := NewWithholdingCalculator(failingWithholding{}, DefaultTaxParams())

	_, err := wc.Calculate(context.Background(), WithholdingInput{
		EmployeeID: 9,
		Elections:  []WithholdingElection{federalElection()},
		Gross:      dec("1000"),
		AsOf:       date(2025, 6, 15),
		Frequency:  FrequencyWeekly,
	})
	if err == nil || !strings.Contains(err.Error(), "tax service unavailable") {
		t.Fatalf("expected service error, got %v", err)
	}
}
