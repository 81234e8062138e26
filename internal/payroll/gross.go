package payroll

import "github.com/shopspring/decimal"

// GrossPay holds per-bucket dollar amounts for one entry.
type GrossPay struct {
	RegularPay    decimal.Decimal
	OvertimePay   decimal.Decimal
	DoubletimePay decimal.Decimal
	PTOPay        decimal.Decimal
	HolidayPay    decimal.Decimal
	OtherEarnings decimal.Decimal
	Gross         decimal.Decimal
	// UnionFringe is the flat per-hour employer fringe under the resolved
	// rate. It is employer cost, never part of gross.
	UnionFringe decimal.Decimal
}

// GrossCalculator converts hour buckets and a resolved rate into pay.
type GrossCalculator struct {
	burden BurdenParams
}

// NewGrossCalculator constructs a GrossCalculator.
func NewGrossCalculator(burden BurdenParams) *GrossCalculator {
	return &GrossCalculator{burden: burden}
}

// Calculate multiplies each bucket by the base rate and its premium,
// rounding to cents after every multiplication. Overtime pays 1.5x,
// doubletime 2.0x, PTO and holiday 1.0x. Other earnings are manual amounts
// passed through as entered.
func (gc *GrossCalculator) Calculate(hours HourBuckets, rate ResolvedRate, otherEarnings decimal.Decimal) GrossPay {
	base := rate.Rate.Amount
	gp := GrossPay{
		RegularPay:    roundCents(hours.Regular.Mul(base)),
		OvertimePay:   roundCents(hours.Overtime.Mul(base).Mul(overtimeMultiplier)),
		DoubletimePay: roundCents(hours.Doubletime.Mul(base).Mul(doubletimeMultiplier)),
		PTOPay:        roundCents(hours.PTO.Mul(base)),
		HolidayPay:    roundCents(hours.Holiday.Mul(base)),
		OtherEarnings: roundCents(otherEarnings),
		UnionFringe:   roundCents(hours.Total().Mul(rate.Rate.FringeRate)),
	}
	gp.Gross = gp.RegularPay.
		Add(gp.OvertimePay).
		Add(gp.DoubletimePay).
		Add(gp.PTOPay).
		Add(gp.HolidayPay).
		Add(gp.OtherEarnings)
	return gp
}

// Burden returns the general employer overhead on gross wages.
func (gc *GrossCalculator) Burden(gross decimal.Decimal) decimal.Decimal {
	return rateOf(gross, gc.burden.BurdenRate)
}

// WorkersComp returns the workers compensation premium on gross wages.
func (gc *GrossCalculator) WorkersComp(gross decimal.Decimal) decimal.Decimal {
	return rateOf(gross, gc.burden.WorkersCompRate)
}
