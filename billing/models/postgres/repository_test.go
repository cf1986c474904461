package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalpath/billing-app/billing/models"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewRepository(db), mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestCreateClaim(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO claims`).
		WithArgs("CLM202403150001", 1, 7, nil, "DRAFT", 100.50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := repo.CreateClaim(context.Background(), models.Claim{
		ClaimNumber:     "CLM202403150001",
		UserID:          1,
		InsurancePlanID: 7,
		Status:          models.ClaimStatusDraft,
		TotalCharge:     100.50,
	})
	assert.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestGetClaimByID(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	now := time.Now()
	submitted := now.Add(-time.Hour)
	rows := sqlmock.NewRows(claimColumns).
		AddRow(42, "CLM202403150001", 1, 7, nil, "SUBMITTED", 100.50, nil, nil, nil,
			submitted, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .+ FROM claims WHERE id = \$1`).
		WithArgs(42).
		WillReturnRows(rows)

	claim, err := repo.GetClaimByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "CLM202403150001", claim.ClaimNumber)
	assert.Equal(t, models.ClaimStatusSubmitted, claim.Status)
	require.NotNil(t, claim.SubmissionDate)
	assert.True(t, claim.SubmissionDate.Equal(submitted))
	assert.Nil(t, claim.AllowedAmount)
}

func TestGetClaimByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM claims`).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetClaimByID(context.Background(), 42)
	assert.True(t, errors.Is(err, models.ErrClaimNotFound))
}

func TestGetClaimsWithFilter(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(claimColumns).
		AddRow(1, "CLM202403150001", 1, 7, nil, "DENIED", 50.0, nil, nil, nil,
			nil, nil, "CO-50", nil, nil, now, now)
	mock.ExpectQuery(`SELECT .+ FROM claims WHERE user_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT 10`).
		WithArgs(1, "DENIED").
		WillReturnRows(rows)

	claims, err := repo.GetClaims(context.Background(), 1,
		models.ClaimFilter{Status: models.ClaimStatusDenied, Limit: 10})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.NotNil(t, claims[0].DenialReason)
	assert.Equal(t, "CO-50", *claims[0].DenialReason)
}

func TestUpdateClaimStatusNotFound(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE claims SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateClaimStatus(context.Background(), 42, models.ClaimStatusReady)
	assert.True(t, errors.Is(err, models.ErrClaimNotFound))
}

func TestGetMaxClaimSequence(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	date := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(CAST\(RIGHT\(claim_number, 4\) AS INTEGER\)\), 0\)`).
		WithArgs("CLM20240315%").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(17))

	max, err := repo.GetMaxClaimSequence(context.Background(), date)
	assert.NoError(t, err)
	assert.Equal(t, 17, max)
}

func TestClaimLinesRoundTrip(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	serviceDate := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO claim_lines`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateClaimLines(context.Background(), models.ClaimLine{
		ClaimID:     42,
		LineNumber:  1,
		CPTCode:     "80053",
		Charge:      100.50,
		Units:       1,
		ICD10Codes:  []string{"E88.9", "Z00.00"},
		ServiceDate: serviceDate,
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "claim_id", "line_number", "cpt_code", "charge",
		"units", "icd10_codes", "modifier", "service_date", "place_of_service", "facility_id",
		"rendering_provider_npi", "referring_provider_npi"}).
		AddRow(1, 42, 1, "80053", 100.50, 1, pq.Array([]string{"E88.9", "Z00.00"}),
			nil, serviceDate, "81", nil, "1234567890", nil)
	mock.ExpectQuery(`SELECT .+ FROM claim_lines WHERE claim_id = \$1 ORDER BY line_number ASC`).
		WithArgs(42).
		WillReturnRows(rows)

	lines, err := repo.GetClaimLines(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"E88.9", "Z00.00"}, lines[0].ICD10Codes)
	assert.Equal(t, "81", lines[0].PlaceOfService)
	assert.Equal(t, "1234567890", lines[0].RenderingProviderNPI)
}

func TestClaimEventDataSerialization(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO claim_events`).
		WithArgs(42, "CLAIM_DENIED", []byte(`{"denial_reason":"CO-50","status":"DENIED"}`), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	id, err := repo.CreateClaimEvent(context.Background(), models.ClaimEvent{
		ClaimID:   42,
		EventType: "CLAIM_DENIED",
		EventData: models.EventData{"status": "DENIED", "denial_reason": "CO-50"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), id)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "claim_id", "event_type", "event_data", "notes", "created_at"}).
		AddRow(9, 42, "CLAIM_DENIED", []byte(`{"status":"DENIED","denial_reason":"CO-50"}`), nil, now)
	mock.ExpectQuery(`SELECT .+ FROM claim_events WHERE claim_id = \$1 ORDER BY created_at ASC`).
		WithArgs(42).
		WillReturnRows(rows)

	events, err := repo.GetClaimEvents(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, events, 1)
	status, ok := events[0].EventData.Status()
	assert.True(t, ok)
	assert.Equal(t, models.ClaimStatusDenied, status)
}

func TestGetLatestEligibilityCheckNone(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM eligibility_checks`).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	check, err := repo.GetLatestEligibilityCheck(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, check)
}

func TestGetLatestEligibilityCheck(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "insurance_plan_id", "claim_id", "status",
		"deductible", "deductible_met", "out_of_pocket_max", "out_of_pocket_met",
		"copay", "coinsurance", "lab_coverage", "genetic_testing_coverage",
		"preventive_care_coverage", "response_data", "checked_at"}).
		AddRow(3, 7, nil, "active", 1500.0, 500.0, 6000.0, 500.0, 25.0, 0.2,
			true, false, true, []byte(`{}`), now)
	mock.ExpectQuery(`SELECT .+ FROM eligibility_checks WHERE insurance_plan_id = \$1 ORDER BY checked_at DESC LIMIT 1`).
		WithArgs(7).
		WillReturnRows(rows)

	check, err := repo.GetLatestEligibilityCheck(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityStatusActive, check.Status)
	require.NotNil(t, check.Deductible)
	assert.Equal(t, 1500.0, *check.Deductible)
	assert.True(t, check.CoverageDetails.LabCoverage)
	assert.False(t, check.CoverageDetails.GeneticTestingCoverage)
}

func TestIncrementDenialPattern(t *testing.T) {
	repo, mock, cleanup := newMockRepository(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO denial_patterns .+ ON CONFLICT \(payer_id, denial_reason\)`).
		WithArgs("BCBS001", "CO-50").
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.IncrementDenialPattern(context.Background(), "BCBS001", "CO-50"))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	txErr := errors.New("boom")
	err = Transaction(db)(context.Background(), func(r models.Repository) error {
		return txErr
	})
	assert.True(t, errors.Is(err, txErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE claims SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = Transaction(db)(context.Background(), func(r models.Repository) error {
		return r.UpdateClaimStatus(context.Background(), 42, models.ClaimStatusReady)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
