package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crewledger/crewledger/internal/platform/db"
)

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

// ----------------------------------------------------------------------------
// Pay periods
// ----------------------------------------------------------------------------

const periodColumns = `id, tenant_id, start_date, end_date, pay_date, frequency, status, created_at, updated_at`

// CreatePayPeriod inserts a new pay period.
func (r *Repository) CreatePayPeriod(ctx context.Context, p PayPeriod) (PayPeriod, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO pay_periods (tenant_id, start_date, end_date, pay_date, frequency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+periodColumns,
		p.TenantID, p.StartDate, p.EndDate, p.PayDate, p.Frequency, p.Status,
	).Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.PayDate, &p.Frequency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return PayPeriod{}, ErrPeriodOverlap
		}
		return PayPeriod{}, fmt.Errorf("payroll: create pay period: %w", err)
	}
	return p, nil
}

// GetPayPeriod loads one period scoped to the tenant.
func (r *Repository) GetPayPeriod(ctx context.Context, tenantID, id int64) (PayPeriod, error) {
	var p PayPeriod
	err := r.pool.QueryRow(ctx, `
		SELECT `+periodColumns+` FROM pay_periods WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.PayDate, &p.Frequency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayPeriod{}, ErrNotFound
	}
	if err != nil {
		return PayPeriod{}, err
	}
	return p, nil
}

// ListPayPeriods returns the tenant's periods, newest first.
func (r *Repository) ListPayPeriods(ctx context.Context, tenantID int64, limit, offset int) ([]PayPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+periodColumns+` FROM pay_periods
		WHERE tenant_id = $1
		ORDER BY start_date DESC
		LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []PayPeriod
	for rows.Next() {
		var p PayPeriod
		if err := rows.Scan(&p.ID, &p.TenantID, &p.StartDate, &p.EndDate, &p.PayDate, &p.Frequency, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// PeriodRangeConflict reports whether [start, end] overlaps an existing
// period on the same frequency track.
func (r *Repository) PeriodRangeConflict(ctx context.Context, tenantID int64, frequency PayFrequency, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pay_periods
			WHERE tenant_id = $1 AND frequency = $2
			  AND start_date <= $4 AND end_date >= $3
		)`, tenantID, frequency, start, end).Scan(&conflict)
	return conflict, err
}

// ----------------------------------------------------------------------------
// Batches
// ----------------------------------------------------------------------------

const batchColumns = `id, public_id, tenant_id, pay_period_id, batch_number, status, row_version,
	regular_hours, overtime_hours, doubletime_hours, pto_hours, holiday_hours,
	total_gross_pay, total_deductions, total_net_pay, total_employer_taxes, total_fringe, total_employer_cost,
	employee_count, errors,
	calculated_by, calculated_at, approved_by, approved_at, posted_by, posted_at,
	created_at, updated_at`

func scanBatch(row pgx.Row) (PayrollBatch, error) {
	var (
		b      PayrollBatch
		errRaw []byte
	)
	err := row.Scan(
		&b.ID, &b.PublicID, &b.TenantID, &b.PayPeriodID, &b.BatchNumber, &b.Status, &b.RowVersion,
		&b.Hours.Regular, &b.Hours.Overtime, &b.Hours.Doubletime, &b.Hours.PTO, &b.Hours.Holiday,
		&b.TotalGrossPay, &b.TotalDeductions, &b.TotalNetPay, &b.TotalEmployerTaxes, &b.TotalFringe, &b.TotalEmployerCost,
		&b.EmployeeCount, &errRaw,
		&b.CalculatedBy, &b.CalculatedAt, &b.ApprovedBy, &b.ApprovedAt, &b.PostedBy, &b.PostedAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayrollBatch{}, ErrNotFound
	}
	if err != nil {
		return PayrollBatch{}, err
	}
	if len(errRaw) > 0 {
		_ = json.Unmarshal(errRaw, &b.Errors)
	}
	return b, nil
}

// InsertBatch creates a draft batch.
func (r *Repository) InsertBatch(ctx context.Context, b PayrollBatch) (PayrollBatch, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payroll_batches (public_id, tenant_id, pay_period_id, batch_number, status, row_version, errors)
		VALUES ($1, $2, $3, $4, $5, 1, '[]'::jsonb)
		RETURNING `+batchColumns,
		b.PublicID, b.TenantID, b.PayPeriodID, b.BatchNumber, b.Status)
	created, err := scanBatch(row)
	if err != nil {
		return PayrollBatch{}, fmt.Errorf("payroll: insert batch: %w", err)
	}
	return created, nil
}

// GetBatch loads one batch scoped to the tenant.
func (r *Repository) GetBatch(ctx context.Context, tenantID, id int64) (PayrollBatch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `
		SELECT `+batchColumns+` FROM payroll_batches WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

// ListBatches returns the tenant's batches, newest first.
func (r *Repository) ListBatches(ctx context.Context, tenantID int64, limit, offset int) ([]PayrollBatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+batchColumns+` FROM payroll_batches
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []PayrollBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// NextBatchSequence derives the per-tenant sequence for batches sharing a
// period end date.
func (r *Repository) NextBatchSequence(ctx context.Context, tenantID int64, periodEnd time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) + 1
		FROM payroll_batches b
		JOIN pay_periods p ON p.id = b.pay_period_id
		WHERE b.tenant_id = $1 AND p.end_date = $2`, tenantID, periodEnd).Scan(&n)
	return n, err
}

// updateBatchTx writes the batch header with a version check. Zero rows
// affected means a concurrent writer won.
func updateBatchTx(ctx context.Context, tx pgx.Tx, b PayrollBatch) error {
	errRaw, err := json.Marshal(b.Errors)
	if err != nil {
		return err
	}
	if b.Errors == nil {
		errRaw = []byte("[]")
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payroll_batches SET
			status = $3, row_version = row_version + 1,
			regular_hours = $4, overtime_hours = $5, doubletime_hours = $6, pto_hours = $7, holiday_hours = $8,
			total_gross_pay = $9, total_deductions = $10, total_net_pay = $11,
			total_employer_taxes = $12, total_fringe = $13, total_employer_cost = $14,
			employee_count = $15, errors = $16,
			calculated_by = $17, calculated_at = $18,
			approved_by = $19, approved_at = $20,
			posted_by = $21, posted_at = $22,
			updated_at = NOW()
		WHERE id = $1 AND row_version = $2`,
		b.ID, b.RowVersion, b.Status,
		b.Hours.Regular, b.Hours.Overtime, b.Hours.Doubletime, b.Hours.PTO, b.Hours.Holiday,
		b.TotalGrossPay, b.TotalDeductions, b.TotalNetPay,
		b.TotalEmployerTaxes, b.TotalFringe, b.TotalEmployerCost,
		b.EmployeeCount, errRaw,
		b.CalculatedBy, b.CalculatedAt,
		b.ApprovedBy, b.ApprovedAt,
		b.PostedBy, b.PostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ReplaceEntries swaps the batch's entry set atomically: version-checked
// header update, delete of prior entries and lines, reinsert. Recomputation
// is idempotent because nothing from the previous run survives.
func (r *Repository) ReplaceEntries(ctx context.Context, batch PayrollBatch, entries []PayrollEntry) (PayrollBatch, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := updateBatchTx(ctx, tx, batch); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM payroll_deduction_lines
			WHERE entry_id IN (SELECT id FROM payroll_entries WHERE batch_id = $1)`, batch.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM payroll_entries WHERE batch_id = $1`, batch.ID); err != nil {
			return err
		}
		for i := range entries {
			if err := insertEntryTx(ctx, tx, batch.ID, &entries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PayrollBatch{}, err
	}
	return r.GetBatch(ctx, batch.TenantID, batch.ID)
}

func insertEntryTx(ctx context.Context, tx pgx.Tx, batchID int64, e *PayrollEntry) error {
	warnings, err := json.Marshal(e.Warnings)
	if err != nil {
		return err
	}
	if e.Warnings == nil {
		warnings = []byte("[]")
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payroll_entries (
			public_id, batch_id, tenant_id, employee_id,
			regular_hours, overtime_hours, doubletime_hours, pto_hours, holiday_hours,
			base_rate, regular_pay, overtime_pay, doubletime_pay, pto_pay, holiday_pay, other_earnings, gross_pay,
			federal_withholding, state_withholding, local_withholding,
			social_security, medicare, additional_medicare,
			pre_tax_deductions, post_tax_deductions, net_pay,
			employer_fica, employer_unemployment, workers_comp, union_fringe, employer_burden,
			ytd_gross_before, ytd_gross_after, ytd_ss_before, ytd_ss_after, ytd_medicare_before, ytd_medicare_after,
			warnings
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23,
			$24, $25, $26,
			$27, $28, $29, $30, $31,
			$32, $33, $34, $35, $36, $37,
			$38
		) RETURNING id`,
		e.PublicID, batchID, e.TenantID, e.EmployeeID,
		e.Hours.Regular, e.Hours.Overtime, e.Hours.Doubletime, e.Hours.PTO, e.Hours.Holiday,
		e.BaseRate, e.RegularPay, e.OvertimePay, e.DoubletimePay, e.PTOPay, e.HolidayPay, e.OtherEarnings, e.GrossPay,
		e.FederalWithholding, e.StateWithholding, e.LocalWithholding,
		e.SocialSecurity, e.Medicare, e.AdditionalMedicare,
		e.PreTaxDeductions, e.PostTaxDeductions, e.NetPay,
		e.EmployerFICA, e.EmployerUnemployment, e.WorkersComp, e.UnionFringe, e.EmployerBurden,
		e.YTD.GrossBefore, e.YTD.GrossAfter, e.YTD.SocialSecurityBefore, e.YTD.SocialSecurityAfter, e.YTD.MedicareBefore, e.YTD.MedicareAfter,
		warnings,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("payroll: insert entry employee %d: %w", e.EmployeeID, err)
	}
	e.BatchID = batchID
	for j := range e.Lines {
		line := &e.Lines[j]
		line.EntryID = e.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO payroll_deduction_lines (
				entry_id, deduction_id, code, priority, pre_tax,
				amount, employer_match, ytd_before, ytd_after, hit_annual_max
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			line.EntryID, line.DeductionID, line.Code, line.Priority, line.PreTax,
			line.Amount, line.EmployerMatch, line.YTDBefore, line.YTDAfter, line.HitAnnualMax,
		).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("payroll: insert deduction line %s: %w", line.Code, err)
		}
	}
	return nil
}

// GetBatchEntries loads a batch's entries with their deduction lines.
func (r *Repository) GetBatchEntries(ctx context.Context, batchID int64) ([]PayrollEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, public_id, batch_id, tenant_id, employee_id,
			regular_hours, overtime_hours, doubletime_hours, pto_hours, holiday_hours,
			base_rate, regular_pay, overtime_pay, doubletime_pay, pto_pay, holiday_pay, other_earnings, gross_pay,
			federal_withholding, state_withholding, local_withholding,
			social_security, medicare, additional_medicare,
			pre_tax_deductions, post_tax_deductions, net_pay,
			employer_fica, employer_unemployment, workers_comp, union_fringe, employer_burden,
			ytd_gross_before, ytd_gross_after, ytd_ss_before, ytd_ss_after, ytd_medicare_before, ytd_medicare_after,
			warnings
		FROM payroll_entries
		WHERE batch_id = $1
		ORDER BY employee_id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []PayrollEntry
	for rows.Next() {
		var (
			e        PayrollEntry
			warnings []byte
		)
		if err := rows.Scan(
			&e.ID, &e.PublicID, &e.BatchID, &e.TenantID, &e.EmployeeID,
			&e.Hours.Regular, &e.Hours.Overtime, &e.Hours.Doubletime, &e.Hours.PTO, &e.Hours.Holiday,
			&e.BaseRate, &e.RegularPay, &e.OvertimePay, &e.DoubletimePay, &e.PTOPay, &e.HolidayPay, &e.OtherEarnings, &e.GrossPay,
			&e.FederalWithholding, &e.StateWithholding, &e.LocalWithholding,
			&e.SocialSecurity, &e.Medicare, &e.AdditionalMedicare,
			&e.PreTaxDeductions, &e.PostTaxDeductions, &e.NetPay,
			&e.EmployerFICA, &e.EmployerUnemployment, &e.WorkersComp, &e.UnionFringe, &e.EmployerBurden,
			&e.YTD.GrossBefore, &e.YTD.GrossAfter, &e.YTD.SocialSecurityBefore, &e.YTD.SocialSecurityAfter, &e.YTD.MedicareBefore, &e.YTD.MedicareAfter,
			&warnings,
		); err != nil {
			return nil, err
		}
		if len(warnings) > 0 {
			_ = json.Unmarshal(warnings, &e.Warnings)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadDeductionLines(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) loadDeductionLines(ctx context.Context, entries []PayrollEntry) error {
	if len(entries) == 0 {
		return nil
	}
	byEntry := make(map[int64]*PayrollEntry, len(entries))
	ids := make([]int64, 0, len(entries))
	for i := range entries {
		byEntry[entries[i].ID] = &entries[i]
		ids = append(ids, entries[i].ID)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, deduction_id, code, priority, pre_tax,
			amount, employer_match, ytd_before, ytd_after, hit_annual_max
		FROM payroll_deduction_lines
		WHERE entry_id = ANY($1)
		ORDER BY entry_id, priority`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line PayrollDeductionLine
		if err := rows.Scan(
			&line.ID, &line.EntryID, &line.DeductionID, &line.Code, &line.Priority, &line.PreTax,
			&line.Amount, &line.EmployerMatch, &line.YTDBefore, &line.YTDAfter, &line.HitAnnualMax,
		); err != nil {
			return err
		}
		if e, ok := byEntry[line.EntryID]; ok {
			e.Lines = append(e.Lines, line)
		}
	}
	return rows.Err()
}

// UpdateBatchStatus performs a version-checked header update without
// touching entries.
func (r *Repository) UpdateBatchStatus(ctx context.Context, batch PayrollBatch) (PayrollBatch, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return updateBatchTx(ctx, tx, batch)
	})
	if err != nil {
		return PayrollBatch{}, err
	}
	return r.GetBatch(ctx, batch.TenantID, batch.ID)
}

// PostBatch advances deduction and tax accumulators and closes the pay
// period with the status flip, all in one transaction. Any failure rolls
// back the whole set and the batch stays APPROVED.
func (r *Repository) PostBatch(ctx context.Context, batch PayrollBatch, deductions []DeductionAdvance, taxes []TaxAdvance) (PayrollBatch, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status BatchStatus
		if err := tx.QueryRow(ctx, `
			SELECT status FROM payroll_batches WHERE id = $1 FOR UPDATE`, batch.ID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != BatchStatusApproved {
			return ErrInvalidTransition
		}
		if err := updateBatchTx(ctx, tx, batch); err != nil {
			return err
		}
		for _, adv := range deductions {
			tag, err := tx.Exec(ctx, `
				UPDATE deductions SET ytd_amount = ytd_amount + $2, updated_at = NOW()
				WHERE id = $1`, adv.DeductionID, adv.Amount)
			if err != nil {
				return fmt.Errorf("payroll: advance deduction %d: %w", adv.DeductionID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("payroll: advance deduction %d: %w", adv.DeductionID, ErrNotFound)
			}
		}
		for _, adv := range taxes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO employee_tax_ytd (tenant_id, employee_id, year, gross_wages, ss_wages, medicare_wages)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (tenant_id, employee_id, year) DO UPDATE SET
					gross_wages = employee_tax_ytd.gross_wages + EXCLUDED.gross_wages,
					ss_wages = employee_tax_ytd.ss_wages + EXCLUDED.ss_wages,
					medicare_wages = employee_tax_ytd.medicare_wages + EXCLUDED.medicare_wages`,
				batch.TenantID, adv.EmployeeID, adv.Year, adv.GrossWages, adv.SSWages, adv.MedicareWages); err != nil {
				return fmt.Errorf("payroll: advance tax ytd employee %d: %w", adv.EmployeeID, err)
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE pay_periods SET status = $2, updated_at = NOW() WHERE id = $1`,
			batch.PayPeriodID, PeriodStatusClosed); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return PayrollBatch{}, err
	}
	return r.GetBatch(ctx, batch.TenantID, batch.ID)
}

// ----------------------------------------------------------------------------
// Calculation reads
// ----------------------------------------------------------------------------

// GetApprovedHours returns approved time entries for one employee in the
// window. Pending and rejected records never leave the time tracking tables.
func (r *Repository) GetApprovedHours(ctx context.Context, employeeID int64, from, to time.Time) ([]LaborHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_id, work_date, status, project_id, COALESCE(shift_code, ''), COALESCE(work_state, ''),
			regular_hours, overtime_hours, doubletime_hours, pto_hours, holiday_hours
		FROM time_entries
		WHERE employee_id = $1 AND work_date BETWEEN $2 AND $3 AND status = $4
		ORDER BY work_date`, employeeID, from, to, StatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []LaborHours
	for rows.Next() {
		var rec LaborHours
		if err := rows.Scan(
			&rec.EmployeeID, &rec.WorkDate, &rec.Status, &rec.ProjectID, &rec.ShiftCode, &rec.WorkState,
			&rec.Hours.Regular, &rec.Hours.Overtime, &rec.Hours.Doubletime, &rec.Hours.PTO, &rec.Hours.Holiday,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// EmployeesWithHours lists employees with at least one approved time entry
// in the window.
func (r *Repository) EmployeesWithHours(ctx context.Context, tenantID int64, from, to time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT employee_id
		FROM time_entries
		WHERE tenant_id = $1 AND work_date BETWEEN $2 AND $3 AND status = $4
		ORDER BY employee_id`, tenantID, from, to, StatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetEntryAdjustments returns manual bonus/other-earning amounts keyed by
// employee for the period.
func (r *Repository) GetEntryAdjustments(ctx context.Context, tenantID, periodID int64) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_id, amount
		FROM payroll_adjustments
		WHERE tenant_id = $1 AND pay_period_id = $2`, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var (
			id     int64
			amount decimal.Decimal
		)
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, err
		}
		out[id] = out[id].Add(amount)
	}
	return out, rows.Err()
}

// GetPayRates returns every wage record for the employee; the resolver
// filters by date and context.
func (r *Repository) GetPayRates(ctx context.Context, tenantID, employeeID int64) ([]PayRate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, employee_id, rate_type, amount, fringe_rate,
			project_id, shift_code, work_state, priority, effective_date, expiration_date
		FROM pay_rates
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY priority, effective_date DESC`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []PayRate
	for rows.Next() {
		var rate PayRate
		if err := rows.Scan(
			&rate.ID, &rate.TenantID, &rate.EmployeeID, &rate.RateType, &rate.Amount, &rate.FringeRate,
			&rate.ProjectID, &rate.ShiftCode, &rate.WorkState, &rate.Priority, &rate.EffectiveDate, &rate.ExpirationDate,
		); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// GetDeductions returns the employee's deduction definitions with their
// durable YTD values.
func (r *Repository) GetDeductions(ctx context.Context, tenantID, employeeID int64) ([]Deduction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, employee_id, code, method, basis, amount,
			per_period_max, annual_max, ytd_amount, priority, pre_tax,
			match_rate, match_max, effective_date, expiration_date
		FROM deductions
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY priority`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deductions []Deduction
	for rows.Next() {
		var d Deduction
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.EmployeeID, &d.Code, &d.Method, &d.Basis, &d.Amount,
			&d.PerPeriodMax, &d.AnnualMax, &d.YTDAmount, &d.Priority, &d.PreTax,
			&d.MatchRate, &d.MatchMax, &d.EffectiveDate, &d.ExpirationDate,
		); err != nil {
			return nil, err
		}
		deductions = append(deductions, d)
	}
	return deductions, rows.Err()
}

// GetElections returns every withholding election for the employee.
func (r *Repository) GetElections(ctx context.Context, tenantID, employeeID int64) ([]WithholdingElection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, employee_id, jurisdiction, filing_status, allowances,
			additional_withholding, exempt, effective_date, expiration_date
		FROM withholding_elections
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY effective_date DESC`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var elections []WithholdingElection
	for rows.Next() {
		var e WithholdingElection
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.EmployeeID, &e.Jurisdiction, &e.FilingStatus, &e.Allowances,
			&e.AdditionalWithholding, &e.Exempt, &e.EffectiveDate, &e.ExpirationDate,
		); err != nil {
			return nil, err
		}
		elections = append(elections, e)
	}
	return elections, rows.Err()
}

// GetTaxYTD returns the posted accumulator for the employee's year, zeroes
// when none exists yet.
func (r *Repository) GetTaxYTD(ctx context.Context, tenantID, employeeID int64, year int) (TaxYTD, error) {
	ytd := TaxYTD{TenantID: tenantID, EmployeeID: employeeID, Year: year}
	err := r.pool.QueryRow(ctx, `
		SELECT gross_wages, ss_wages, medicare_wages
		FROM employee_tax_ytd
		WHERE tenant_id = $1 AND employee_id = $2 AND year = $3`,
		tenantID, employeeID, year,
	).Scan(&ytd.GrossWages, &ytd.SSWages, &ytd.MedicareWages)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxYTD{
			TenantID:      tenantID,
			EmployeeID:    employeeID,
			Year:          year,
			GrossWages:    decimal.Zero,
			SSWages:       decimal.Zero,
			MedicareWages: decimal.Zero,
		}, nil
	}
	if err != nil {
		return TaxYTD{}, err
	}
	return ytd, nil
}

// CreateElection inserts the election after retroactively closing any
// overlapping prior election for the same employee and jurisdiction. An
// existing election starting on or after the new effective date is a
// conflict the caller has to resolve first.
func (r *Repository) CreateElection(ctx context.Context, e WithholdingElection) (WithholdingElection, error) {
	err := r.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var conflict bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM withholding_elections
				WHERE tenant_id = $1 AND employee_id = $2 AND jurisdiction = $3
				  AND effective_date >= $4
			)`, e.TenantID, e.EmployeeID, e.Jurisdiction, e.EffectiveDate).Scan(&conflict); err != nil {
			return err
		}
		if conflict {
			return ErrElectionOverlap
		}
		if _, err := tx.Exec(ctx, `
			UPDATE withholding_elections
			SET expiration_date = $4, updated_at = NOW()
			WHERE tenant_id = $1 AND employee_id = $2 AND jurisdiction = $3
			  AND effective_date < $4
			  AND (expiration_date IS NULL OR expiration_date > $4)`,
			e.TenantID, e.EmployeeID, e.Jurisdiction, e.EffectiveDate); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO withholding_elections (
				tenant_id, employee_id, jurisdiction, filing_status, allowances,
				additional_withholding, exempt, effective_date, expiration_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			e.TenantID, e.EmployeeID, e.Jurisdiction, e.FilingStatus, e.Allowances,
			e.AdditionalWithholding, e.Exempt, e.EffectiveDate, e.ExpirationDate,
		).Scan(&e.ID)
	})
	if err != nil {
		return WithholdingElection{}, err
	}
	return e, nil
}
