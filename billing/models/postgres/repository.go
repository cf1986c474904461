package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/vitalpath/billing-app/billing/models"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ models.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

var claimColumns = []string{"id", "claim_number", "user_id", "insurance_plan_id", "report_id",
	"status", "total_charge", "allowed_amount", "paid_amount", "patient_responsibility",
	"submission_date", "processed_date", "denial_reason", "edi_file_location",
	"clearinghouse_id", "created_at", "updated_at"}

func (r *Repository) CreateClaim(ctx context.Context, claim models.Claim) (uint, error) {
	// Use raw builder since we need to retrieve the associated ID
	query, args := sqlbuilder.Buildf(`INSERT INTO claims
		(claim_number, user_id, insurance_plan_id, report_id, status, total_charge,
			created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		claim.ClaimNumber, claim.UserID, claim.InsurancePlanID, claim.ReportID,
		claim.Status, claim.TotalCharge).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetClaimByID(ctx context.Context, claimID uint) (*models.Claim, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(claimColumns...)
	sb.From("claims").Where(sb.Equal("id", claimID))

	query, args := sb.Build()
	claim, err := scanClaim(r.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrClaimNotFound
		}
		return nil, err
	}

	return claim, nil
}

func (r *Repository) GetClaims(ctx context.Context, userID uint, filter models.ClaimFilter) ([]*models.Claim, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(claimColumns...)
	sb.From("claims").Where(sb.Equal("user_id", userID))
	if filter.Status != "" {
		sb.Where(sb.Equal("status", filter.Status))
	}
	sb.OrderBy("created_at").Desc()
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return claims, nil
}

func (r *Repository) UpdateClaim(ctx context.Context, claim models.Claim) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("claims")
	ub.Set(
		ub.Assign("insurance_plan_id", claim.InsurancePlanID),
		ub.Assign("report_id", claim.ReportID),
		ub.Assign("status", claim.Status),
		ub.Assign("total_charge", claim.TotalCharge),
		ub.Assign("allowed_amount", claim.AllowedAmount),
		ub.Assign("paid_amount", claim.PaidAmount),
		ub.Assign("patient_responsibility", claim.PatientResponsibility),
		ub.Assign("submission_date", claim.SubmissionDate),
		ub.Assign("processed_date", claim.ProcessedDate),
		ub.Assign("denial_reason", claim.DenialReason),
		ub.Assign("edi_file_location", claim.EDIFileLocation),
		ub.Assign("clearinghouse_id", claim.ClearinghouseID),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", claim.ID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrClaimNotFound
	}

	return nil
}

func (r *Repository) UpdateClaimStatus(ctx context.Context, claimID uint, status models.ClaimStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("claims")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", claimID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrClaimNotFound
	}

	return nil
}

func (r *Repository) GetMaxClaimSequence(ctx context.Context, date time.Time) (int, error) {
	prefix := "CLM" + date.Format("20060102")
	query, args := sqlbuilder.Buildf(
		`SELECT COALESCE(MAX(CAST(RIGHT(claim_number, 4) AS INTEGER)), 0)
		 FROM claims WHERE claim_number LIKE %s`, prefix+"%").
		BuildWithFlavor(sqlFlavor)

	var max int
	if err := r.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

func (r *Repository) CreateClaimLines(ctx context.Context, lines ...models.ClaimLine) error {
	if len(lines) == 0 {
		return nil
	}

	ib := sqlFlavor.NewInsertBuilder().InsertInto("claim_lines")
	ib.Cols("claim_id", "line_number", "cpt_code", "charge", "units", "icd10_codes",
		"modifier", "service_date", "place_of_service", "facility_id",
		"rendering_provider_npi", "referring_provider_npi")
	for _, line := range lines {
		ib.Values(line.ClaimID, line.LineNumber, line.CPTCode, line.Charge, line.Units,
			pq.Array(line.ICD10Codes), line.Modifier, line.ServiceDate, line.PlaceOfService,
			line.FacilityID, line.RenderingProviderNPI, line.ReferringProviderNPI)
	}

	query, args := ib.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) GetClaimLines(ctx context.Context, claimID uint) ([]models.ClaimLine, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "claim_id", "line_number", "cpt_code", "charge", "units", "icd10_codes",
		"modifier", "service_date", "place_of_service", "facility_id",
		"rendering_provider_npi", "referring_provider_npi")
	sb.From("claim_lines").Where(sb.Equal("claim_id", claimID))
	sb.OrderBy("line_number").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.ClaimLine
	for rows.Next() {
		var (
			line                                  models.ClaimLine
			modifier, pos, facility, rnpi, refnpi sql.NullString
		)
		if err := rows.Scan(&line.ID, &line.ClaimID, &line.LineNumber, &line.CPTCode,
			&line.Charge, &line.Units, pq.Array(&line.ICD10Codes), &modifier,
			&line.ServiceDate, &pos, &facility, &rnpi, &refnpi); err != nil {
			return nil, err
		}
		line.Modifier, line.PlaceOfService = modifier.String, pos.String
		line.FacilityID, line.RenderingProviderNPI, line.ReferringProviderNPI =
			facility.String, rnpi.String, refnpi.String
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *Repository) ReplaceClaimLines(ctx context.Context, claimID uint, lines []models.ClaimLine) error {
	db := sqlFlavor.NewDeleteBuilder().DeleteFrom("claim_lines")
	db.Where(db.Equal("claim_id", claimID))

	query, args := db.Build()
	if _, err := r.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	for i := range lines {
		lines[i].ClaimID = claimID
	}
	return r.CreateClaimLines(ctx, lines...)
}

func (r *Repository) CreateClaimEvent(ctx context.Context, event models.ClaimEvent) (uint, error) {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}

	query, args := sqlbuilder.Buildf(`INSERT INTO claim_events
		(claim_id, event_type, event_data, notes, created_at) VALUES
		(%s, %s, %s, %s, NOW()) RETURNING id`,
		event.ClaimID, event.EventType, data, event.Notes).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetClaimEvents(ctx context.Context, claimID uint) ([]*models.ClaimEvent, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "claim_id", "event_type", "event_data", "notes", "created_at")
	sb.From("claim_events").Where(sb.Equal("claim_id", claimID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ClaimEvent
	for rows.Next() {
		var (
			event models.ClaimEvent
			data  []byte
			notes sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.ClaimID, &event.EventType, &data, &notes,
			&event.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &event.EventData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		event.Notes = notes.String
		events = append(events, &event)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (r *Repository) GetLatestEligibilityCheck(ctx context.Context, insurancePlanID uint) (*models.EligibilityCheck, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "insurance_plan_id", "claim_id", "status", "deductible", "deductible_met",
		"out_of_pocket_max", "out_of_pocket_met", "copay", "coinsurance",
		"lab_coverage", "genetic_testing_coverage", "preventive_care_coverage",
		"response_data", "checked_at")
	sb.From("eligibility_checks").Where(sb.Equal("insurance_plan_id", insurancePlanID))
	sb.OrderBy("checked_at").Desc().Limit(1)

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var (
		check                      models.EligibilityCheck
		claimID                    sql.NullInt64
		ded, dedMet, oopMax        sql.NullFloat64
		oopMet, copay, coinsurance sql.NullFloat64
	)
	err := row.Scan(&check.ID, &check.InsurancePlanID, &claimID, &check.Status,
		&ded, &dedMet, &oopMax, &oopMet, &copay, &coinsurance,
		&check.CoverageDetails.LabCoverage, &check.CoverageDetails.GeneticTestingCoverage,
		&check.CoverageDetails.PreventiveCareCoverage, &check.ResponseData, &check.CheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if claimID.Valid {
		id := uint(claimID.Int64)
		check.ClaimID = &id
	}
	check.Deductible, check.DeductibleMet = nullToPtr(ded), nullToPtr(dedMet)
	check.OutOfPocketMax, check.OutOfPocketMet = nullToPtr(oopMax), nullToPtr(oopMet)
	check.Copay, check.Coinsurance = nullToPtr(copay), nullToPtr(coinsurance)

	return &check, nil
}

func (r *Repository) CreateEligibilityCheck(ctx context.Context, check models.EligibilityCheck) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO eligibility_checks
		(insurance_plan_id, claim_id, status, deductible, deductible_met,
			out_of_pocket_max, out_of_pocket_met, copay, coinsurance,
			lab_coverage, genetic_testing_coverage, preventive_care_coverage,
			response_data, checked_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		check.InsurancePlanID, check.ClaimID, check.Status, check.Deductible, check.DeductibleMet,
		check.OutOfPocketMax, check.OutOfPocketMet, check.Copay, check.Coinsurance,
		check.CoverageDetails.LabCoverage, check.CoverageDetails.GeneticTestingCoverage,
		check.CoverageDetails.PreventiveCareCoverage, check.ResponseData, check.CheckedAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) CreateEDIFile(ctx context.Context, file models.EDIFile) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO edi_files
		(claim_id, file_name, file_path, content, status, created_at) VALUES
		(%s, %s, %s, %s, %s, NOW()) RETURNING id`,
		file.ClaimID, file.FileName, file.FilePath, file.Content, file.Status).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetLatestGeneratedEDIFile(ctx context.Context, claimID uint) (*models.EDIFile, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "claim_id", "file_name", "file_path", "content", "status", "created_at")
	sb.From("edi_files")
	sb.Where(
		sb.Equal("claim_id", claimID),
		sb.Equal("status", models.EDIFileStatusGenerated),
	)
	sb.OrderBy("created_at").Desc().Limit(1)

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var file models.EDIFile
	err := row.Scan(&file.ID, &file.ClaimID, &file.FileName, &file.FilePath, &file.Content,
		&file.Status, &file.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &file, nil
}

func (r *Repository) UpdateEDIFileStatus(ctx context.Context, fileID uint, status models.EDIFileStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("edi_files")
	ub.Set(ub.Assign("status", status))
	ub.Where(ub.Equal("id", fileID))

	query, args := ub.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

var planColumns = []string{"id", "user_id", "payer_id", "payer_name", "plan_type", "member_id",
	"group_number", "is_active", "is_primary", "effective_date", "term_date"}

func (r *Repository) GetInsurancePlanByID(ctx context.Context, planID uint) (*models.InsurancePlan, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(planColumns...)
	sb.From("insurance_plans").Where(sb.Equal("id", planID))

	query, args := sb.Build()
	plan, err := scanPlan(r.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPlanNotFound
		}
		return nil, err
	}

	return plan, nil
}

func (r *Repository) GetPrimaryInsurancePlan(ctx context.Context, userID uint) (*models.InsurancePlan, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(planColumns...)
	sb.From("insurance_plans")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.Equal("is_primary", true),
		sb.Equal("is_active", true),
	)
	sb.Limit(1)

	query, args := sb.Build()
	plan, err := scanPlan(r.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPlanNotFound
		}
		return nil, err
	}

	return plan, nil
}

func (r *Repository) GetReportByID(ctx context.Context, reportID uint) (*models.Report, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "user_id", "parsed_biomarkers", "created_at")
	sb.From("reports").Where(sb.Equal("id", reportID))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var (
		report models.Report
		data   []byte
	)
	err := row.Scan(&report.ID, &report.UserID, &data, &report.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrReportNotFound
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &report.ParsedBiomarkers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal biomarkers: %w", err)
		}
	}

	return &report, nil
}

func (r *Repository) GetUserProfileByID(ctx context.Context, userID uint) (*models.UserProfile, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "first_name", "last_name", "date_of_birth", "gender",
		"address", "city", "state", "zip")
	sb.From("users").Where(sb.Equal("id", userID))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var (
		profile                           models.UserProfile
		dob                               sql.NullTime
		gender, address, city, state, zip sql.NullString
	)
	err := row.Scan(&profile.ID, &profile.FirstName, &profile.LastName, &dob, &gender,
		&address, &city, &state, &zip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	if dob.Valid {
		profile.DateOfBirth = &dob.Time
	}
	profile.Gender, profile.Address = gender.String, address.String
	profile.City, profile.State, profile.Zip = city.String, state.String, zip.String

	return &profile, nil
}

func (r *Repository) CreateBillingTask(ctx context.Context, task models.BillingTask) (uint, error) {
	query, args := sqlbuilder.Buildf(`INSERT INTO billing_tasks
		(task_type, claim_id, report_id, user_id, status, attempt_count, max_attempts,
			scheduled_at, created_at, updated_at) VALUES
		(%s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id`,
		task.TaskType, task.ClaimID, task.ReportID, task.UserID, task.Status,
		task.AttemptCount, task.MaxAttempts, task.ScheduledAt).
		BuildWithFlavor(sqlFlavor)

	var id uint
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) GetBillingTaskByID(ctx context.Context, taskID uint) (*models.BillingTask, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "task_type", "claim_id", "report_id", "user_id", "status",
		"attempt_count", "max_attempts", "last_error", "scheduled_at", "created_at", "updated_at")
	sb.From("billing_tasks").Where(sb.Equal("id", taskID))

	query, args := sb.Build()
	row := r.QueryRowContext(ctx, query, args...)

	var (
		task              models.BillingTask
		claimID, reportID sql.NullInt64
		lastError         sql.NullString
	)
	err := row.Scan(&task.ID, &task.TaskType, &claimID, &reportID, &task.UserID, &task.Status,
		&task.AttemptCount, &task.MaxAttempts, &lastError, &task.ScheduledAt,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTaskNotFound
		}
		return nil, err
	}

	if claimID.Valid {
		id := uint(claimID.Int64)
		task.ClaimID = &id
	}
	if reportID.Valid {
		id := uint(reportID.Int64)
		task.ReportID = &id
	}
	if lastError.Valid {
		task.LastError = &lastError.String
	}

	return &task, nil
}

func (r *Repository) UpdateBillingTask(ctx context.Context, task models.BillingTask) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("billing_tasks")
	ub.Set(
		ub.Assign("status", task.Status),
		ub.Assign("attempt_count", task.AttemptCount),
		ub.Assign("last_error", task.LastError),
		ub.Assign("scheduled_at", task.ScheduledAt),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	)
	ub.Where(ub.Equal("id", task.ID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrTaskNotFound
	}

	return nil
}

func (r *Repository) IncrementDenialPattern(ctx context.Context, payerID, denialReason string) error {
	query, args := sqlbuilder.Buildf(`INSERT INTO denial_patterns
		(payer_id, denial_reason, occurrences, last_seen) VALUES (%s, %s, 1, NOW())
		ON CONFLICT (payer_id, denial_reason)
		DO UPDATE SET occurrences = denial_patterns.occurrences + 1, last_seen = NOW()`,
		payerID, denialReason).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		claim                        models.Claim
		reportID                     sql.NullInt64
		allowed, paid, patientResp   sql.NullFloat64
		submitted, processed         sql.NullTime
		denial, ediLoc, clearinghous sql.NullString
	)
	err := row.Scan(&claim.ID, &claim.ClaimNumber, &claim.UserID, &claim.InsurancePlanID,
		&reportID, &claim.Status, &claim.TotalCharge, &allowed, &paid, &patientResp,
		&submitted, &processed, &denial, &ediLoc, &clearinghous,
		&claim.CreatedAt, &claim.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if reportID.Valid {
		id := uint(reportID.Int64)
		claim.ReportID = &id
	}
	claim.AllowedAmount, claim.PaidAmount = nullToPtr(allowed), nullToPtr(paid)
	claim.PatientResponsibility = nullToPtr(patientResp)
	if submitted.Valid {
		claim.SubmissionDate = &submitted.Time
	}
	if processed.Valid {
		claim.ProcessedDate = &processed.Time
	}
	if denial.Valid {
		claim.DenialReason = &denial.String
	}
	if ediLoc.Valid {
		claim.EDIFileLocation = &ediLoc.String
	}
	if clearinghous.Valid {
		claim.ClearinghouseID = &clearinghous.String
	}

	return &claim, nil
}

func scanPlan(row rowScanner) (*models.InsurancePlan, error) {
	var (
		plan            models.InsurancePlan
		groupNumber     sql.NullString
		effective, term sql.NullTime
	)
	err := row.Scan(&plan.ID, &plan.UserID, &plan.PayerID, &plan.PayerName, &plan.PlanType,
		&plan.MemberID, &groupNumber, &plan.IsActive, &plan.IsPrimary, &effective, &term)
	if err != nil {
		return nil, err
	}

	plan.GroupNumber = groupNumber.String
	if effective.Valid {
		plan.EffectiveDate = &effective.Time
	}
	if term.Valid {
		plan.TermDate = &term.Time
	}

	return &plan, nil
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
