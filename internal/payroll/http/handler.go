// Package payrollhttp exposes the payroll batch engine over JSON HTTP.
package payrollhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/payroll"
	"github.com/crewledger/crewledger/internal/platform/httpx"
	"github.com/crewledger/crewledger/internal/shared"
)

// Enqueuer hands a batch calculation to the background worker.
type Enqueuer interface {
	EnqueueCalculate(ctx context.Context, tenantID, batchID, actorID int64) error
}

// Handler wires HTTP endpoints for pay periods, batches and elections.
type Handler struct {
	logger   *slog.Logger
	service  *payroll.Service
	validate *validator.Validate
	enqueuer Enqueuer
}

// NewHandler constructs the payroll HTTP handler. The enqueuer is optional;
// without one, calculation always runs synchronously.
func NewHandler(logger *slog.Logger, service *payroll.Service, enqueuer Enqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		enqueuer: enqueuer,
	}
}

// Mount registers the payroll routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Get("/periods", h.listPeriods)
		r.Post("/periods", h.createPeriod)
		r.Get("/batches", h.listBatches)
		r.Post("/batches", h.createBatch)
		r.Get("/batches/{batchID}", h.getBatch)
		r.Get("/batches/{batchID}/summary", h.batchSummary)
		r.Post("/batches/{batchID}/calculate", h.calculateBatch)
		r.Post("/batches/{batchID}/approve", h.approveBatch)
		r.Post("/batches/{batchID}/post", h.postBatch)
		r.Post("/elections", h.createElection)
	})
}

type createPeriodRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	PayDate   string `json:"pay_date" validate:"required,datetime=2006-01-02"`
	Frequency string `json:"frequency" validate:"required,oneof=WEEKLY BIWEEKLY SEMIMONTHLY MONTHLY"`
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return
	}
	var req createPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	payDate, _ := time.Parse("2006-01-02", req.PayDate)
	period, err := h.service.CreatePayPeriod(r.Context(), payroll.CreatePayPeriodInput{
		TenantID:  tenantID,
		StartDate: start,
		EndDate:   end,
		PayDate:   payDate,
		Frequency: payroll.PayFrequency(req.Frequency),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, periodView(period))
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return
	}
	limit, offset := pagination(r)
	periods, err := h.service.ListPayPeriods(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(periods))
	for _, p := range periods {
		views = append(views, periodView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": views})
}

type createBatchRequest struct {
	PayPeriodID int64 `json:"pay_period_id" validate:"required,gt=0"`
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return
	}
	var req createBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.service.CreateBatch(r.Context(), tenantID, req.PayPeriodID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batchView(batch))
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return
	}
	limit, offset := pagination(r)
	batches, err := h.service.ListBatches(r.Context(), tenantID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(batches))
	for _, b := range batches {
		views = append(views, batchView(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": views})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, batchID, ok := h.batchScope(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetBatch(r.Context(), tenantID, batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detailView(detail))
}

// batchSummary serves the cached lightweight shape for dashboard polling,
// skipping the entry load of the full batch read.
func (h *Handler) batchSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, batchID, ok := h.batchScope(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetBatchSummary(r.Context(), tenantID, batchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) calculateBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, batchID, ok := h.batchScope(w, r)
	if !ok {
		return
	}
	actorID := shared.ActorFromContext(r.Context())
	if r.URL.Query().Get("async") == "1" && h.enqueuer != nil {
		if err := h.enqueuer.EnqueueCalculate(r.Context(), tenantID, batchID, actorID); err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"batch_id": batchID, "status": "queued"})
		return
	}
	detail, err := h.service.CalculateBatch(r.Context(), tenantID, batchID, actorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detailView(detail))
}

func (h *Handler) approveBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, batchID, ok := h.batchScope(w, r)
	if !ok {
		return
	}
	batch, err := h.service.ApproveBatch(r.Context(), tenantID, batchID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batchView(batch))
}

func (h *Handler) postBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, batchID, ok := h.batchScope(w, r)
	if !ok {
		return
	}
	batch, err := h.service.PostBatch(r.Context(), tenantID, batchID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batchView(batch))
}

type createElectionRequest struct {
	EmployeeID            int64  `json:"employee_id" validate:"required,gt=0"`
	Jurisdiction          string `json:"jurisdiction" validate:"required"`
	FilingStatus          string `json:"filing_status" validate:"required"`
	Allowances            int    `json:"allowances" validate:"gte=0"`
	AdditionalWithholding string `json:"additional_withholding"`
	Exempt                bool   `json:"exempt"`
	EffectiveDate         string `json:"effective_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) createElection(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return
	}
	var req createElectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	additional := decimal.Zero
	if req.AdditionalWithholding != "" {
		var err error
		additional, err = decimal.NewFromString(req.AdditionalWithholding)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "additional_withholding must be a decimal amount")
			return
		}
	}
	effective, _ := time.Parse("2006-01-02", req.EffectiveDate)
	election, err := h.service.CreateElection(r.Context(), payroll.WithholdingElection{
		TenantID:              tenantID,
		EmployeeID:            req.EmployeeID,
		Jurisdiction:          payroll.Jurisdiction(req.Jurisdiction),
		FilingStatus:          req.FilingStatus,
		Allowances:            req.Allowances,
		AdditionalWithholding: additional,
		Exempt:                req.Exempt,
		EffectiveDate:         effective,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":             election.ID,
		"employee_id":    election.EmployeeID,
		"jurisdiction":   election.Jurisdiction,
		"effective_date": election.EffectiveDate.Format("2006-01-02"),
	})
}

func (h *Handler) batchScope(w http.ResponseWriter, r *http.Request) (tenantID, batchID int64, ok bool) {
	tenantID, found := shared.TenantFromContext(r.Context())
	if !found {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", "tenant not resolved")
		return 0, 0, false
	}
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || batchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "batch id must be a positive integer")
		return 0, 0, false
	}
	return tenantID, batchID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payroll.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, payroll.ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "batch was modified concurrently, retry")
	case errors.Is(err, payroll.ErrInvalidTransition),
		errors.Is(err, payroll.ErrBatchImmutable),
		errors.Is(err, payroll.ErrOutstandingErrors),
		errors.Is(err, payroll.ErrNoEntries),
		errors.Is(err, payroll.ErrPeriodNotOpen),
		errors.Is(err, payroll.ErrPeriodOverlap),
		errors.Is(err, payroll.ErrElectionOverlap):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("payroll request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func periodView(p payroll.PayPeriod) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"start_date": p.StartDate.Format("2006-01-02"),
		"end_date":   p.EndDate.Format("2006-01-02"),
		"pay_date":   p.PayDate.Format("2006-01-02"),
		"frequency":  p.Frequency,
		"status":     p.Status,
	}
}

func batchView(b payroll.PayrollBatch) map[string]any {
	return map[string]any{
		"id":                   b.ID,
		"public_id":            b.PublicID,
		"pay_period_id":        b.PayPeriodID,
		"batch_number":         b.BatchNumber,
		"status":               b.Status,
		"hours":                b.Hours,
		"total_gross_pay":      b.TotalGrossPay,
		"total_deductions":     b.TotalDeductions,
		"total_net_pay":        b.TotalNetPay,
		"total_employer_taxes": b.TotalEmployerTaxes,
		"total_fringe":         b.TotalFringe,
		"total_employer_cost":  b.TotalEmployerCost,
		"employee_count":       b.EmployeeCount,
		"errors":               b.Errors,
	}
}

func detailView(d payroll.BatchDetail) map[string]any {
	view := batchView(d.Batch)
	entries := make([]map[string]any, 0, len(d.Entries))
	for i := range d.Entries {
		entries = append(entries, entryView(&d.Entries[i]))
	}
	view["entries"] = entries
	return view
}

func entryView(e *payroll.PayrollEntry) map[string]any {
	lines := make([]map[string]any, 0, len(e.Lines))
	for _, line := range e.Lines {
		lines = append(lines, map[string]any{
			"deduction_id":   line.DeductionID,
			"code":           line.Code,
			"priority":       line.Priority,
			"pre_tax":        line.PreTax,
			"amount":         line.Amount,
			"employer_match": line.EmployerMatch,
			"ytd_before":     line.YTDBefore,
			"ytd_after":      line.YTDAfter,
			"hit_annual_max": line.HitAnnualMax,
		})
	}
	return map[string]any{
		"public_id":             e.PublicID,
		"employee_id":           e.EmployeeID,
		"hours":                 e.Hours,
		"base_rate":             e.BaseRate,
		"regular_pay":           e.RegularPay,
		"overtime_pay":          e.OvertimePay,
		"doubletime_pay":        e.DoubletimePay,
		"pto_pay":               e.PTOPay,
		"holiday_pay":           e.HolidayPay,
		"other_earnings":        e.OtherEarnings,
		"gross_pay":             e.GrossPay,
		"federal_withholding":   e.FederalWithholding,
		"state_withholding":     e.StateWithholding,
		"local_withholding":     e.LocalWithholding,
		"social_security":       e.SocialSecurity,
		"medicare":              e.Medicare,
		"additional_medicare":   e.AdditionalMedicare,
		"pre_tax_deductions":    e.PreTaxDeductions,
		"post_tax_deductions":   e.PostTaxDeductions,
		"net_pay":               e.NetPay,
		"employer_fica":         e.EmployerFICA,
		"employer_unemployment": e.EmployerUnemployment,
		"workers_comp":          e.WorkersComp,
		"union_fringe":          e.UnionFringe,
		"employer_burden":       e.EmployerBurden,
		"warnings":              e.Warnings,
		"deduction_lines":       lines,
	}
}
