package payroll

import "github.com/shopspring/decimal"

// Premium multipliers for overtime treatment.
var (
	overtimeMultiplier   = decimal.NewFromFloat(1.5)
	doubletimeMultiplier = decimal.NewFromInt(2)
	hundred              = decimal.NewFromInt(100)
)

// roundCents rounds to two decimal places, half away from zero. Every
// monetary multiplication is rounded immediately so recomputation is
// bit-reproducible against the stored two-decimal contract.
func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// percentOf applies a percentage (5 means 5%) to a base amount, rounded to
// cents.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return roundCents(base.Mul(pct).Div(hundred))
}

// rateOf applies a fractional rate (0.062 means 6.2%) to a base amount,
// rounded to cents.
func rateOf(base, rate decimal.Decimal) decimal.Decimal {
	return roundCents(base.Mul(rate))
}

// TaxParams carries the statutory constants the engine owns locally. The
// jurisdictional income tax tables themselves live behind the
// WithholdingService collaborator.
type TaxParams struct {
	SSRate                decimal.Decimal
	SSWageBase            decimal.Decimal
	MedicareRate          decimal.Decimal
	AddlMedicareRate      decimal.Decimal
	AddlMedicareThreshold decimal.Decimal
	FUTARate              decimal.Decimal
	FUTAWageBase          decimal.Decimal
	SUTARate              decimal.Decimal
	SUTAWageBase          decimal.Decimal
}

// DefaultTaxParams returns the 2025 statutory values. Deployments override
// them through configuration.
func DefaultTaxParams() TaxParams {
	return TaxParams{
		SSRate:                decimal.NewFromFloat(0.062),
		SSWageBase:            decimal.NewFromInt(176100),
		MedicareRate:          decimal.NewFromFloat(0.0145),
		AddlMedicareRate:      decimal.NewFromFloat(0.009),
		AddlMedicareThreshold: decimal.NewFromInt(200000),
		FUTARate:              decimal.NewFromFloat(0.006),
		FUTAWageBase:          decimal.NewFromInt(7000),
		SUTARate:              decimal.NewFromFloat(0.027),
		SUTAWageBase:          decimal.NewFromInt(9000),
	}
}

// BurdenParams carries employer-side overhead configuration.
type BurdenParams struct {
	// BurdenRate is the general overhead percentage of gross (0.35 means
	// 35%) covering insurance and benefits outside itemised taxes.
	BurdenRate decimal.Decimal
	// WorkersCompRate is the workers compensation premium as a fraction of
	// gross wages.
	WorkersCompRate decimal.Decimal
}

// DefaultBurdenParams returns the platform defaults.
func DefaultBurdenParams() BurdenParams {
	return BurdenParams{
		BurdenRate:      decimal.NewFromFloat(0.35),
		WorkersCompRate: decimal.NewFromFloat(0.015),
	}
}

// cappedWages returns how much of amount remains taxable given year-to-date
// wages already counted against a statutory wage base. Once ytd crosses the
// base the result is zero; in the crossing period only the sliver below the
// base is taxable.
func cappedWages(amount, ytd, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return amount
	}
	room := base.Sub(ytd)
	if room.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	if amount.LessThanOrEqual(room) {
		return amount
	}
	return room
}
