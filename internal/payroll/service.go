package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/crewledger/crewledger/internal/shared"
)

// DeductionAdvance is one deduction's YTD delta applied at post time.
type DeductionAdvance struct {
	DeductionID int64
	Amount      decimal.Decimal
}

// TaxAdvance is one employee's tax accumulator delta applied at post time.
type TaxAdvance struct {
	EmployeeID    int64
	Year          int
	GrossWages    decimal.Decimal
	SSWages       decimal.Decimal
	MedicareWages decimal.Decimal
}

// Store is the persistence contract the orchestrator drives. Every method is
// tenant scoped; the storage layer rejects cross-tenant access.
type Store interface {
	ApprovedHoursSource

	CreatePayPeriod(ctx context.Context, period PayPeriod) (PayPeriod, error)
	GetPayPeriod(ctx context.Context, tenantID, id int64) (PayPeriod, error)
	ListPayPeriods(ctx context.Context, tenantID int64, limit, offset int) ([]PayPeriod, error)
	PeriodRangeConflict(ctx context.Context, tenantID int64, frequency PayFrequency, start, end time.Time) (bool, error)

	InsertBatch(ctx context.Context, batch PayrollBatch) (PayrollBatch, error)
	GetBatch(ctx context.Context, tenantID, id int64) (PayrollBatch, error)
	GetBatchEntries(ctx context.Context, batchID int64) ([]PayrollEntry, error)
	ListBatches(ctx context.Context, tenantID int64, limit, offset int) ([]PayrollBatch, error)
	NextBatchSequence(ctx context.Context, tenantID int64, periodEnd time.Time) (int, error)

	// ReplaceEntries atomically deletes and reinserts the batch's entries
	// and deduction lines, updates aggregates and audit fields, and bumps
	// the row version. Returns ErrVersionConflict when the batch changed
	// underneath the caller.
	ReplaceEntries(ctx context.Context, batch PayrollBatch, entries []PayrollEntry) (PayrollBatch, error)

	// UpdateBatchStatus performs a version-checked status and audit update.
	UpdateBatchStatus(ctx context.Context, batch PayrollBatch) (PayrollBatch, error)

	// PostBatch flips the batch to POSTED, advances every deduction and tax
	// YTD accumulator, and closes the pay period inside one transaction.
	// Partial failure rolls the whole set back.
	PostBatch(ctx context.Context, batch PayrollBatch, deductions []DeductionAdvance, taxes []TaxAdvance) (PayrollBatch, error)

	EmployeesWithHours(ctx context.Context, tenantID int64, from, to time.Time) ([]int64, error)
	GetEntryAdjustments(ctx context.Context, tenantID, periodID int64) (map[int64]decimal.Decimal, error)
	GetPayRates(ctx context.Context, tenantID, employeeID int64) ([]PayRate, error)
	GetDeductions(ctx context.Context, tenantID, employeeID int64) ([]Deduction, error)
	GetElections(ctx context.Context, tenantID, employeeID int64) ([]WithholdingElection, error)
	GetTaxYTD(ctx context.Context, tenantID, employeeID int64, year int) (TaxYTD, error)

	// CreateElection inserts the election after retroactively closing any
	// overlapping election for the same employee and jurisdiction.
	CreateElection(ctx context.Context, election WithholdingElection) (WithholdingElection, error)
}

// ServiceConfig tunes the orchestrator's fan-out.
type ServiceConfig struct {
	// Concurrency bounds parallel per-employee calculations to protect the
	// store.
	Concurrency int
	// EmployeeTimeout converts a hung employee calculation into that
	// employee's fatal error instead of stalling the batch.
	EmployeeTimeout time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.EmployeeTimeout <= 0 {
		c.EmployeeTimeout = 30 * time.Second
	}
	return c
}

// Service orchestrates the payroll batch lifecycle and the per-employee
// calculation pipeline.
type Service struct {
	store  Store
	calc   *EntryCalculator
	cache  *SummaryCache
	audit  *shared.AuditLogger
	logger *slog.Logger
	cfg    ServiceConfig
	now    func() time.Time
}

// NewService constructs the orchestrator. The cache is optional.
func NewService(store Store, calc *EntryCalculator, cache *SummaryCache, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		store:  store,
		calc:   calc,
		cache:  cache,
		logger: logger,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

// WithAudit attaches an audit trail for lifecycle transitions.
func (s *Service) WithAudit(audit *shared.AuditLogger) {
	s.audit = audit
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, batch PayrollBatch) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payroll_batch",
		EntityID: batch.BatchNumber,
		Meta: map[string]any{
			"batch_id": batch.ID,
			"status":   batch.Status,
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePayPeriodInput captures a new administrative pay window.
type CreatePayPeriodInput struct {
	TenantID  int64
	StartDate time.Time
	EndDate   time.Time
	PayDate   time.Time
	Frequency PayFrequency
}

// Validate ensures the input is coherent.
func (in CreatePayPeriodInput) Validate() error {
	if in.TenantID == 0 {
		return errors.New("payroll: tenant required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("payroll: start and end date required")
	}
	if in.EndDate.Before(in.StartDate) {
		return errors.New("payroll: end date cannot precede start date")
	}
	if in.PayDate.Before(in.EndDate) {
		return errors.New("payroll: pay date cannot precede period end")
	}
	switch in.Frequency {
	case FrequencyWeekly, FrequencyBiweekly, FrequencySemimonthly, FrequencyMonthly:
		return nil
	default:
		return fmt.Errorf("payroll: unknown frequency %q", in.Frequency)
	}
}

// CreatePayPeriod inserts a new open period after validating overlap within
// the same frequency track.
func (s *Service) CreatePayPeriod(ctx context.Context, in CreatePayPeriodInput) (PayPeriod, error) {
	if err := in.Validate(); err != nil {
		return PayPeriod{}, err
	}
	conflict, err := s.store.PeriodRangeConflict(ctx, in.TenantID, in.Frequency, in.StartDate, in.EndDate)
	if err != nil {
		return PayPeriod{}, err
	}
	if conflict {
		return PayPeriod{}, ErrPeriodOverlap
	}
	return s.store.CreatePayPeriod(ctx, PayPeriod{
		TenantID:  in.TenantID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		PayDate:   in.PayDate,
		Frequency: in.Frequency,
		Status:    PeriodStatusOpen,
	})
}

// ListPayPeriods returns periods for the tenant, newest first.
func (s *Service) ListPayPeriods(ctx context.Context, tenantID int64, limit, offset int) ([]PayPeriod, error) {
	return s.store.ListPayPeriods(ctx, tenantID, limit, offset)
}

// CreateBatch opens a draft batch for an open pay period. The batch number
// derives deterministically from the period end date and a per-tenant
// sequence.
func (s *Service) CreateBatch(ctx context.Context, tenantID, payPeriodID int64) (PayrollBatch, error) {
	period, err := s.store.GetPayPeriod(ctx, tenantID, payPeriodID)
	if err != nil {
		return PayrollBatch{}, err
	}
	if period.Status != PeriodStatusOpen {
		return PayrollBatch{}, ErrPeriodNotOpen
	}
	seq, err := s.store.NextBatchSequence(ctx, tenantID, period.EndDate)
	if err != nil {
		return PayrollBatch{}, err
	}
	batch := PayrollBatch{
		PublicID:    uuid.New(),
		TenantID:    tenantID,
		PayPeriodID: period.ID,
		BatchNumber: fmt.Sprintf("PR-%s-%03d", period.EndDate.Format("20060102"), seq),
		Status:      BatchStatusDraft,
	}
	return s.store.InsertBatch(ctx, batch)
}

// BatchDetail is the full batch shape returned to callers: the batch, its
// entries, and the outstanding per-employee fatal errors.
type BatchDetail struct {
	Batch   PayrollBatch
	Entries []PayrollEntry
}

// GetBatch loads a batch with its entries.
func (s *Service) GetBatch(ctx context.Context, tenantID, batchID int64) (BatchDetail, error) {
	batch, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return BatchDetail{}, err
	}
	entries, err := s.store.GetBatchEntries(ctx, batch.ID)
	if err != nil {
		return BatchDetail{}, err
	}
	return BatchDetail{Batch: batch, Entries: entries}, nil
}

// ListBatches returns the tenant's batches, newest first.
func (s *Service) ListBatches(ctx context.Context, tenantID int64, limit, offset int) ([]PayrollBatch, error) {
	return s.store.ListBatches(ctx, tenantID, limit, offset)
}

// GetBatchSummary serves the lightweight polling shape from redis, falling
// through to the store and repopulating the cache on a miss. Mutations
// invalidate the key, so a hit is never stale past the TTL.
func (s *Service) GetBatchSummary(ctx context.Context, tenantID, batchID int64) (BatchSummary, error) {
	summary, ok, err := s.cache.Get(ctx, tenantID, batchID)
	if err != nil {
		s.logger.Warn("batch summary cache read", slog.Any("error", err))
	}
	if ok {
		return summary, nil
	}
	batch, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return BatchSummary{}, err
	}
	summary = Summarize(batch)
	if err := s.cache.Set(ctx, tenantID, summary); err != nil {
		s.logger.Warn("batch summary cache write", slog.Any("error", err))
	}
	return summary, nil
}

// CalculateBatch runs the full pipeline for every employee with approved
// hours or a manual adjustment in the period, replacing the batch's entries
// atomically. Safe to repeat while the batch is DRAFT or CALCULATED; a
// concurrent writer surfaces as ErrVersionConflict, retriable by the caller.
func (s *Service) CalculateBatch(ctx context.Context, tenantID, batchID, actorID int64) (BatchDetail, error) {
	batch, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return BatchDetail{}, err
	}
	if batch.Status == BatchStatusPosted {
		return BatchDetail{}, ErrBatchImmutable
	}
	if !batch.Status.CanTransitionTo(BatchStatusCalculated) {
		return BatchDetail{}, ErrInvalidTransition
	}
	period, err := s.store.GetPayPeriod(ctx, tenantID, batch.PayPeriodID)
	if err != nil {
		return BatchDetail{}, err
	}

	employees, err := s.store.EmployeesWithHours(ctx, tenantID, period.StartDate, period.EndDate)
	if err != nil {
		return BatchDetail{}, err
	}
	adjustments, err := s.store.GetEntryAdjustments(ctx, tenantID, period.ID)
	if err != nil {
		return BatchDetail{}, err
	}
	for employeeID := range adjustments {
		if !containsID(employees, employeeID) {
			employees = append(employees, employeeID)
		}
	}

	entries, fatals := s.fanOut(ctx, tenantID, batch.PublicID, period, employees, adjustments)

	sort.Slice(entries, func(i, j int) bool { return entries[i].EmployeeID < entries[j].EmployeeID })
	sort.Slice(fatals, func(i, j int) bool { return fatals[i].EmployeeID < fatals[j].EmployeeID })

	now := s.now()
	batch.Status = BatchStatusCalculated
	batch.CalculatedBy = &actorID
	batch.CalculatedAt = &now
	batch.Errors = fatals
	aggregate(&batch, entries)

	updated, err := s.store.ReplaceEntries(ctx, batch, entries)
	if err != nil {
		return BatchDetail{}, err
	}
	s.invalidateSummary(ctx, tenantID, batch.ID)
	s.recordAudit(ctx, actorID, "payroll.batch.calculate", updated)
	s.logger.Info("payroll batch calculated",
		slog.Int64("batch_id", batch.ID),
		slog.Int("entries", len(entries)),
		slog.Int("fatal_errors", len(fatals)))
	return BatchDetail{Batch: updated, Entries: entries}, nil
}

// fanOut runs the per-employee pipeline with bounded parallelism. A single
// employee's failure never cancels the siblings; fatal errors are collected
// per employee instead.
func (s *Service) fanOut(ctx context.Context, tenantID int64, batchPublicID uuid.UUID, period PayPeriod, employees []int64, adjustments map[int64]decimal.Decimal) ([]PayrollEntry, []EntryError) {
	var (
		mu      sync.Mutex
		entries []PayrollEntry
		fatals  []EntryError
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, employeeID := range employees {
		employeeID := employeeID
		g.Go(func() error {
			entry, err := s.calculateEmployee(ctx, tenantID, batchPublicID, period, employeeID, adjustments[employeeID])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				fatals = append(fatals, toEntryError(employeeID, err))
			case entry != nil:
				entries = append(entries, *entry)
			}
			return nil
		})
	}
	_ = g.Wait()
	return entries, fatals
}

// calculateEmployee loads one employee's inputs and runs the pipeline under
// the per-employee timeout. A nil entry with nil error means the employee
// had nothing payable this period.
func (s *Service) calculateEmployee(ctx context.Context, tenantID int64, batchPublicID uuid.UUID, period PayPeriod, employeeID int64, adjustment decimal.Decimal) (*PayrollEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmployeeTimeout)
	defer cancel()

	records, err := s.store.GetApprovedHours(ctx, employeeID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	rates, err := s.store.GetPayRates(ctx, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	deductions, err := s.store.GetDeductions(ctx, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	elections, err := s.store.GetElections(ctx, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	ytd, err := s.store.GetTaxYTD(ctx, tenantID, employeeID, period.EndDate.Year())
	if err != nil {
		return nil, err
	}

	if len(records) == 0 && adjustment.IsZero() {
		return nil, nil
	}

	entry, err := s.calc.Calculate(ctx, EntryInput{
		TenantID:      tenantID,
		EmployeeID:    employeeID,
		BatchPublicID: batchPublicID,
		Period:        period,
		Records:       records,
		Rates:         rates,
		Deductions:    deductions,
		Elections:     elections,
		YTD:           ytd,
		OtherEarnings: adjustment,
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ApproveBatch freezes a calculated batch. Approval is rejected while any
// employee's fatal error is outstanding or the batch is empty.
func (s *Service) ApproveBatch(ctx context.Context, tenantID, batchID, approverID int64) (PayrollBatch, error) {
	batch, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return PayrollBatch{}, err
	}
	if !batch.Status.CanTransitionTo(BatchStatusApproved) {
		return PayrollBatch{}, ErrInvalidTransition
	}
	if len(batch.Errors) > 0 {
		return PayrollBatch{}, ErrOutstandingErrors
	}
	if batch.EmployeeCount == 0 {
		return PayrollBatch{}, ErrNoEntries
	}
	now := s.now()
	batch.Status = BatchStatusApproved
	batch.ApprovedBy = &approverID
	batch.ApprovedAt = &now
	updated, err := s.store.UpdateBatchStatus(ctx, batch)
	if err != nil {
		return PayrollBatch{}, err
	}
	s.invalidateSummary(ctx, tenantID, batch.ID)
	s.recordAudit(ctx, approverID, "payroll.batch.approve", updated)
	s.logger.Info("payroll batch approved", slog.Int64("batch_id", batch.ID), slog.Int64("approver", approverID))
	return updated, nil
}

// PostBatch is the terminal, YTD-mutating transition. Everything happens in
// one store transaction: deduction YTDs advance, tax accumulators advance,
// the pay period closes, and the batch flips to POSTED. Any failure leaves
// the batch APPROVED with no accumulator touched, safe to retry.
func (s *Service) PostBatch(ctx context.Context, tenantID, batchID, posterID int64) (PayrollBatch, error) {
	batch, err := s.store.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return PayrollBatch{}, err
	}
	if !batch.Status.CanTransitionTo(BatchStatusPosted) {
		return PayrollBatch{}, ErrInvalidTransition
	}
	entries, err := s.store.GetBatchEntries(ctx, batch.ID)
	if err != nil {
		return PayrollBatch{}, err
	}
	if len(entries) == 0 {
		return PayrollBatch{}, ErrNoEntries
	}

	period, err := s.store.GetPayPeriod(ctx, tenantID, batch.PayPeriodID)
	if err != nil {
		return PayrollBatch{}, err
	}
	deductionAdvances, taxAdvances := buildAdvances(entries, period.EndDate.Year())

	now := s.now()
	batch.Status = BatchStatusPosted
	batch.PostedBy = &posterID
	batch.PostedAt = &now
	updated, err := s.store.PostBatch(ctx, batch, deductionAdvances, taxAdvances)
	if err != nil {
		return PayrollBatch{}, err
	}
	s.invalidateSummary(ctx, tenantID, batch.ID)
	s.recordAudit(ctx, posterID, "payroll.batch.post", updated)
	s.logger.Info("payroll batch posted", slog.Int64("batch_id", batch.ID), slog.Int64("poster", posterID))
	return updated, nil
}

// CreateElection records a new withholding election, retroactively closing
// any overlapping election for the same employee and jurisdiction.
func (s *Service) CreateElection(ctx context.Context, election WithholdingElection) (WithholdingElection, error) {
	if election.TenantID == 0 || election.EmployeeID == 0 || election.Jurisdiction == "" {
		return WithholdingElection{}, errors.New("payroll: tenant, employee and jurisdiction required")
	}
	if election.EffectiveDate.IsZero() {
		return WithholdingElection{}, errors.New("payroll: effective date required")
	}
	return s.store.CreateElection(ctx, election)
}

func (s *Service) invalidateSummary(ctx context.Context, tenantID, batchID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID, batchID); err != nil {
		s.logger.Warn("invalidate batch summary cache", slog.Any("error", err))
	}
}

// aggregate recomputes batch totals from the entry set so the two can never
// disagree.
func aggregate(batch *PayrollBatch, entries []PayrollEntry) {
	batch.Hours = HourBuckets{}
	batch.TotalGrossPay = decimal.Zero
	batch.TotalDeductions = decimal.Zero
	batch.TotalNetPay = decimal.Zero
	batch.TotalEmployerTaxes = decimal.Zero
	batch.TotalFringe = decimal.Zero
	batch.TotalEmployerCost = decimal.Zero
	batch.EmployeeCount = len(entries)
	for i := range entries {
		e := &entries[i]
		batch.Hours = batch.Hours.Add(e.Hours)
		batch.TotalGrossPay = batch.TotalGrossPay.Add(e.GrossPay)
		batch.TotalDeductions = batch.TotalDeductions.Add(e.TotalDeductions())
		batch.TotalNetPay = batch.TotalNetPay.Add(e.NetPay)
		batch.TotalEmployerTaxes = batch.TotalEmployerTaxes.Add(e.EmployerFICA).Add(e.EmployerUnemployment)
		batch.TotalFringe = batch.TotalFringe.Add(e.UnionFringe).Add(e.EmployerBurden).Add(e.WorkersComp).Add(employerMatch(e))
		batch.TotalEmployerCost = batch.TotalEmployerCost.Add(e.EmployerCost()).Add(employerMatch(e))
	}
}

func employerMatch(e *PayrollEntry) decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.EmployerMatch)
	}
	return total
}

// buildAdvances folds entry results into the YTD deltas applied at post
// time. Advancing from the durable pre-batch accumulators, never
// incrementally, keeps recomputation from double-counting.
func buildAdvances(entries []PayrollEntry, year int) ([]DeductionAdvance, []TaxAdvance) {
	deductionTotals := make(map[int64]decimal.Decimal)
	var order []int64
	taxes := make([]TaxAdvance, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		for _, line := range e.Lines {
			if _, seen := deductionTotals[line.DeductionID]; !seen {
				order = append(order, line.DeductionID)
			}
			deductionTotals[line.DeductionID] = deductionTotals[line.DeductionID].Add(line.Amount)
		}
		taxes = append(taxes, TaxAdvance{
			EmployeeID:    e.EmployeeID,
			Year:          year,
			GrossWages:    e.GrossPay,
			SSWages:       e.YTD.SocialSecurityAfter.Sub(e.YTD.SocialSecurityBefore),
			MedicareWages: e.GrossPay,
		})
	}
	advances := make([]DeductionAdvance, 0, len(order))
	for _, id := range order {
		advances = append(advances, DeductionAdvance{DeductionID: id, Amount: deductionTotals[id]})
	}
	return advances, taxes
}

func toEntryError(employeeID int64, err error) EntryError {
	code := ErrCodeWithholdingService
	switch {
	case errors.Is(err, ErrNoApplicableRate):
		code = ErrCodeNoRate
	case errors.Is(err, ErrMissingElection):
		code = ErrCodeMissingElection
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	}
	return EntryError{EmployeeID: employeeID, Code: code, Message: err.Error()}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
