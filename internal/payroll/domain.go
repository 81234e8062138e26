package payroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayFrequency enumerates supported pay schedules.
type PayFrequency string

const (
	FrequencyWeekly      PayFrequency = "WEEKLY"
	FrequencyBiweekly    PayFrequency = "BIWEEKLY"
	FrequencySemimonthly PayFrequency = "SEMIMONTHLY"
	FrequencyMonthly     PayFrequency = "MONTHLY"
)

// PeriodStatus enumerates pay period lifecycle stages.
type PeriodStatus string

const (
	PeriodStatusOpen       PeriodStatus = "OPEN"
	PeriodStatusProcessing PeriodStatus = "PROCESSING"
	PeriodStatusClosed     PeriodStatus = "CLOSED"
)

// BatchStatus captures the payroll batch lifecycle.
type BatchStatus string

const (
	BatchStatusDraft      BatchStatus = "DRAFT"
	BatchStatusCalculated BatchStatus = "CALCULATED"
	BatchStatusApproved   BatchStatus = "APPROVED"
	BatchStatusPosted     BatchStatus = "POSTED"
)

// CanTransitionTo reports whether the batch lifecycle permits moving to next.
// Recalculation keeps a batch within CALCULATED; nothing moves backward and
// nothing skips forward.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	switch s {
	case BatchStatusDraft:
		return next == BatchStatusCalculated
	case BatchStatusCalculated:
		return next == BatchStatusCalculated || next == BatchStatusApproved
	case BatchStatusApproved:
		return next == BatchStatusPosted
	default:
		return false
	}
}

// DeductionMethod selects how a deduction amount is derived.
type DeductionMethod string

const (
	MethodFlatAmount     DeductionMethod = "FLAT_AMOUNT"
	MethodPercentOfGross DeductionMethod = "PERCENT_OF_GROSS"
)

// DeductionBasis selects the wage figure a percent deduction is computed
// against. BasisNetOfPrior subtracts already-applied higher priority
// deductions first.
type DeductionBasis string

const (
	BasisGross      DeductionBasis = "GROSS"
	BasisNetOfPrior DeductionBasis = "NET_OF_PRIOR"
)

// Jurisdiction identifies a tax authority. JurisdictionFederal is required
// for every employee; states use their two letter code, localities a
// state-prefixed code such as "OH-COLUMBUS".
type Jurisdiction string

const JurisdictionFederal Jurisdiction = "FEDERAL"

// Sentinel errors shared by the payroll service and repository.
var (
	ErrNotFound          = errors.New("payroll: not found")
	ErrPeriodOverlap     = errors.New("payroll: pay period overlaps an existing period")
	ErrPeriodNotOpen     = errors.New("payroll: pay period is not open")
	ErrInvalidTransition = errors.New("payroll: invalid batch status transition")
	ErrVersionConflict   = errors.New("payroll: batch was modified concurrently")
	ErrBatchImmutable    = errors.New("payroll: posted batches cannot change")
	ErrNoEntries         = errors.New("payroll: batch has no entries")
	ErrOutstandingErrors = errors.New("payroll: batch has outstanding employee errors")
	ErrNoApplicableRate  = errors.New("payroll: no applicable pay rate")
	ErrMissingElection   = errors.New("payroll: missing required withholding election")
	ErrElectionOverlap   = errors.New("payroll: conflicting withholding election")
)

// Entry error codes collected per employee during calculation.
const (
	ErrCodeNoRate             = "NO_APPLICABLE_RATE"
	ErrCodeMissingElection    = "MISSING_WITHHOLDING_ELECTION"
	ErrCodeWithholdingService = "WITHHOLDING_SERVICE"
	ErrCodeTimeout            = "CALC_TIMEOUT"
)

// EntryError records a fatal per-employee calculation failure. The batch
// still reaches CALCULATED with the remaining employees; approval is blocked
// until the list is empty.
type EntryError struct {
	EmployeeID int64  `json:"employee_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e EntryError) Error() string {
	return fmt.Sprintf("employee %d: %s: %s", e.EmployeeID, e.Code, e.Message)
}

// PayPeriod is an administratively created pay window. Periods of the same
// frequency track never overlap within a tenant.
type PayPeriod struct {
	ID        int64
	TenantID  int64
	StartDate time.Time
	EndDate   time.Time
	PayDate   time.Time
	Frequency PayFrequency
	Status    PeriodStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HourBuckets groups approved hours by pay treatment.
type HourBuckets struct {
	Regular    decimal.Decimal `json:"regular"`
	Overtime   decimal.Decimal `json:"overtime"`
	Doubletime decimal.Decimal `json:"doubletime"`
	PTO        decimal.Decimal `json:"pto"`
	Holiday    decimal.Decimal `json:"holiday"`
}

// Add returns the bucket-wise sum of h and o.
func (h HourBuckets) Add(o HourBuckets) HourBuckets {
	return HourBuckets{
		Regular:    h.Regular.Add(o.Regular),
		Overtime:   h.Overtime.Add(o.Overtime),
		Doubletime: h.Doubletime.Add(o.Doubletime),
		PTO:        h.PTO.Add(o.PTO),
		Holiday:    h.Holiday.Add(o.Holiday),
	}
}

// Total returns all hours across buckets.
func (h HourBuckets) Total() decimal.Decimal {
	return h.Regular.Add(h.Overtime).Add(h.Doubletime).Add(h.PTO).Add(h.Holiday)
}

// IsZero reports whether every bucket is empty.
func (h HourBuckets) IsZero() bool {
	return h.Total().IsZero()
}

// PayrollBatch is one calculation run over a pay period. Aggregate totals
// always equal the sum over the batch entries; recomputation replaces the
// entry set wholesale so the two can never drift.
type PayrollBatch struct {
	ID          int64
	PublicID    uuid.UUID
	TenantID    int64
	PayPeriodID int64
	BatchNumber string
	Status      BatchStatus
	RowVersion  int64

	Hours              HourBuckets
	TotalGrossPay      decimal.Decimal
	TotalDeductions    decimal.Decimal
	TotalNetPay        decimal.Decimal
	TotalEmployerTaxes decimal.Decimal
	TotalEmployerCost  decimal.Decimal
	TotalFringe        decimal.Decimal
	EmployeeCount      int

	Errors []EntryError

	CalculatedBy *int64
	CalculatedAt *time.Time
	ApprovedBy   *int64
	ApprovedAt   *time.Time
	PostedBy     *int64
	PostedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// YTDSnapshot captures an accumulator before and after this entry. Before
// values always come from durably posted batches; the current batch's effect
// stays provisional until it posts.
type YTDSnapshot struct {
	GrossBefore          decimal.Decimal
	GrossAfter           decimal.Decimal
	SocialSecurityBefore decimal.Decimal
	SocialSecurityAfter  decimal.Decimal
	MedicareBefore       decimal.Decimal
	MedicareAfter        decimal.Decimal
}

// PayrollEntry is the gross-to-net result for one employee in one batch.
// Entries are owned by their batch and replaced wholesale on recompute.
type PayrollEntry struct {
	ID         int64
	PublicID   uuid.UUID
	BatchID    int64
	TenantID   int64
	EmployeeID int64

	Hours    HourBuckets
	BaseRate decimal.Decimal

	RegularPay    decimal.Decimal
	OvertimePay   decimal.Decimal
	DoubletimePay decimal.Decimal
	PTOPay        decimal.Decimal
	HolidayPay    decimal.Decimal
	OtherEarnings decimal.Decimal
	GrossPay      decimal.Decimal

	FederalWithholding decimal.Decimal
	StateWithholding   decimal.Decimal
	LocalWithholding   decimal.Decimal
	SocialSecurity     decimal.Decimal
	Medicare           decimal.Decimal
	AdditionalMedicare decimal.Decimal

	PreTaxDeductions  decimal.Decimal
	PostTaxDeductions decimal.Decimal
	NetPay            decimal.Decimal

	EmployerFICA         decimal.Decimal
	EmployerUnemployment decimal.Decimal
	WorkersComp          decimal.Decimal
	UnionFringe          decimal.Decimal
	EmployerBurden       decimal.Decimal

	YTD      YTDSnapshot
	Warnings []string
	Lines    []PayrollDeductionLine
}

// TotalWithholding sums every statutory withholding on the entry.
func (e *PayrollEntry) TotalWithholding() decimal.Decimal {
	return e.FederalWithholding.
		Add(e.StateWithholding).
		Add(e.LocalWithholding).
		Add(e.SocialSecurity).
		Add(e.Medicare).
		Add(e.AdditionalMedicare)
}

// TotalDeductions sums pre and post tax deduction totals.
func (e *PayrollEntry) TotalDeductions() decimal.Decimal {
	return e.PreTaxDeductions.Add(e.PostTaxDeductions)
}

// EmployerCost is wages plus every employer-side burden.
func (e *PayrollEntry) EmployerCost() decimal.Decimal {
	return e.GrossPay.
		Add(e.EmployerFICA).
		Add(e.EmployerUnemployment).
		Add(e.WorkersComp).
		Add(e.UnionFringe).
		Add(e.EmployerBurden)
}

// PayrollDeductionLine records one applied deduction on an entry.
type PayrollDeductionLine struct {
	ID            int64
	EntryID       int64
	DeductionID   int64
	Code          string
	Priority      int
	PreTax        bool
	Amount        decimal.Decimal
	EmployerMatch decimal.Decimal
	YTDBefore     decimal.Decimal
	YTDAfter      decimal.Decimal
	HitAnnualMax  bool
}

// Deduction is an employee-scoped recurring deduction definition. HR owns
// every field except YTDAmount, which only batch posting advances.
type Deduction struct {
	ID         int64
	TenantID   int64
	EmployeeID int64
	Code       string
	Method     DeductionMethod
	Basis      DeductionBasis
	// Amount is a dollar figure for FLAT_AMOUNT and a percentage
	// (5 means 5%) for PERCENT_OF_GROSS.
	Amount       decimal.Decimal
	PerPeriodMax decimal.Decimal // zero means no per-period cap
	AnnualMax    decimal.Decimal // zero means no annual cap
	YTDAmount    decimal.Decimal
	Priority     int
	PreTax       bool
	// MatchRate is the employer match percentage of the applied amount;
	// MatchMax caps the match per period. Zero disables matching.
	MatchRate      decimal.Decimal
	MatchMax       decimal.Decimal
	EffectiveDate  time.Time
	ExpirationDate *time.Time
}

// ActiveOn reports whether the deduction applies as of the given date.
func (d Deduction) ActiveOn(date time.Time) bool {
	if date.Before(d.EffectiveDate) {
		return false
	}
	return d.ExpirationDate == nil || date.Before(*d.ExpirationDate)
}

// PayRate is a candidate wage record. Several rates may be simultaneously
// effective for an employee; the resolver picks exactly one.
type PayRate struct {
	ID         int64
	TenantID   int64
	EmployeeID int64
	RateType   string
	Amount     decimal.Decimal
	// FringeRate is a flat per-hour union fringe contribution owed by the
	// employer when work is paid under this rate.
	FringeRate     decimal.Decimal
	ProjectID      *int64
	ShiftCode      *string
	WorkState      *string
	Priority       int
	EffectiveDate  time.Time
	ExpirationDate *time.Time
}

// EffectiveOn reports whether date falls in [effective, expiration).
func (r PayRate) EffectiveOn(date time.Time) bool {
	if date.Before(r.EffectiveDate) {
		return false
	}
	return r.ExpirationDate == nil || date.Before(*r.ExpirationDate)
}

// WithholdingElection is a per-jurisdiction, time-bounded filing election.
// At most one election is current per (employee, jurisdiction) at any
// instant; creating an overlapping election retroactively closes the prior
// one.
type WithholdingElection struct {
	ID                    int64
	TenantID              int64
	EmployeeID            int64
	Jurisdiction          Jurisdiction
	FilingStatus          string
	Allowances            int
	AdditionalWithholding decimal.Decimal
	Exempt                bool
	EffectiveDate         time.Time
	ExpirationDate        *time.Time
}

// CurrentOn reports whether the election is in force on the given date.
func (w WithholdingElection) CurrentOn(date time.Time) bool {
	if date.Before(w.EffectiveDate) {
		return false
	}
	return w.ExpirationDate == nil || date.Before(*w.ExpirationDate)
}

// LaborHours is one approved time record from the time tracking system.
// Project, shift and work state describe where the work happened and drive
// rate resolution.
type LaborHours struct {
	EmployeeID int64
	WorkDate   time.Time
	Status     string
	ProjectID  *int64
	ShiftCode  string
	WorkState  string
	Hours      HourBuckets
}

// TaxYTD is the posted year-to-date tax accumulator for an employee.
type TaxYTD struct {
	TenantID      int64
	EmployeeID    int64
	Year          int
	GrossWages    decimal.Decimal
	SSWages       decimal.Decimal
	MedicareWages decimal.Decimal
}
