package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestGrossCalculateBucketsAndPremiums(t *testing.T) {
	gc := NewGrossCalculator(DefaultBurdenParams())
	rate := ResolvedRate{Rate: PayRate{Amount: decimal.NewFromInt(30)}}
	hours := HourBuckets{Regular: decimal.NewFromInt(8), Overtime: decimal.NewFromInt(2)}

	pay := gc.Calculate(hours, rate, decimal.Zero)

	if !pay.RegularPay.Equal(dec("240")) {
		t.Fatalf("regular pay = %s, want 240", pay.RegularPay)
	}
	if !pay.OvertimePay.Equal(dec("90")) {
		t.Fatalf("overtime pay = %s, want 90", pay.OvertimePay)
	}
	if !pay.Gross.Equal(dec("330")) {
		t.Fatalf("gross = %s, want 330", pay.Gross)
	}
}

func TestGrossCalculateRoundsEachBucket(t *testing.T) {
	gc := NewGrossCalculator(DefaultBurdenParams())
	rate := ResolvedRate{Rate: PayRate{Amount: dec("30.33")}}
	hours := HourBuckets{
		Regular:  dec("7.75"),
		Overtime: dec("1.25"),
	}

	pay := gc.Calculate(hours, rate, decimal.Zero)

	// 7.75 * 30.33 = 235.0575 -> 235.06
	if !pay.RegularPay.Equal(dec("235.06")) {
		t.Fatalf("regular pay = %s, want 235.06", pay.RegularPay)
	}
	// 1.25 * 30.33 * 1.5 = 56.86875 -> 56.87
	if !pay.OvertimePay.Equal(dec("56.87")) {
		t.Fatalf("overtime pay = %s, want 56.87", pay.OvertimePay)
	}
	if !pay.Gross.Equal(dec("291.93")) {
		t.Fatalf("gross = %s, want 291.93", pay.Gross)
	}
}

func TestGrossDoubletimePTOHolidayAndOther(t *testing.T) {
	gc := NewGrossCalculator(DefaultBurdenParams())
	rate := ResolvedRate{Rate: PayRate{Amount: decimal.NewFromInt(20)}}
	hours := HourBuckets{
		Doubletime: decimal.NewFromInt(2),
		PTO:        decimal.NewFromInt(4),
		Holiday:    decimal.NewFromInt(8),
	}

	pay := gc.Calculate(hours, rate, dec("125.50"))

	if !pay.DoubletimePay.Equal(dec("80")) {
		t.Fatalf("doubletime pay = %s, want 80", pay.DoubletimePay)
	}
	if !pay.PTOPay.Equal(dec("80")) {
		t.Fatalf("pto pay = %s, want 80", pay.PTOPay)
	}
	if !pay.HolidayPay.Equal(dec("160")) {
		t.Fatalf("holiday pay = %s, want 160", pay.HolidayPay)
	}
	if !pay.Gross.Equal(dec("445.50")) {
		t.Fatalf("gross = %s, want 445.50", pay.Gross)
	}
}

func TestGrossUnionFringeExcludedFromGross(t *testing.T) {
	gc := NewGrossCalculator(DefaultBurdenParams())
	rate := ResolvedRate{Rate: PayRate{Amount: decimal.NewFromInt(30), FringeRate: dec("2.50")}}
	hours := HourBuckets{Regular: decimal.NewFromInt(8), Overtime: decimal.NewFromInt(2)}

	pay := gc.Calculate(hours, rate, decimal.Zero)

	if !pay.UnionFringe.Equal(dec("25")) {
		t.Fatalf("union fringe = %s, want 25 (10 hours x 2.50)", pay.UnionFringe)
	}
	if !pay.Gross.Equal(dec("330")) {
		t.Fatalf("fringe must not inflate gross, got %s", pay.Gross)
	}
}

func TestBurdenAndWorkersComp(t *testing.T) {
	gc := NewGrossCalculator(BurdenParams{
		BurdenRate:      dec("0.35"),
		WorkersCompRate: dec("0.015"),
	})
	gross := decimal.NewFromInt(1000)

	if got := gc.Burden(gross); !got.Equal(dec("350")) {
		t.Fatalf("burden = %s, want 350", got)
	}
	if got := gc.WorkersComp(gross); !got.Equal(dec("15")) {
		t.Fatalf("workers comp = %s, want 15", got)
	}
}
