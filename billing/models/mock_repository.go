package models

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock of Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateClaim(ctx context.Context, claim Claim) (uint, error) {
	args := m.Called(ctx, claim)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetClaimByID(ctx context.Context, claimID uint) (*Claim, error) {
	args := m.Called(ctx, claimID)
	claim, _ := args.Get(0).(*Claim)
	return claim, args.Error(1)
}

func (m *MockRepository) GetClaims(ctx context.Context, userID uint, filter ClaimFilter) ([]*Claim, error) {
	args := m.Called(ctx, userID, filter)
	claims, _ := args.Get(0).([]*Claim)
	return claims, args.Error(1)
}

func (m *MockRepository) UpdateClaim(ctx context.Context, claim Claim) error {
	args := m.Called(ctx, claim)
	return args.Error(0)
}

func (m *MockRepository) UpdateClaimStatus(ctx context.Context, claimID uint, status ClaimStatus) error {
	args := m.Called(ctx, claimID, status)
	return args.Error(0)
}

func (m *MockRepository) GetMaxClaimSequence(ctx context.Context, date time.Time) (int, error) {
	args := m.Called(ctx, date)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateClaimLines(ctx context.Context, lines ...ClaimLine) error {
	args := m.Called(ctx, lines)
	return args.Error(0)
}

func (m *MockRepository) GetClaimLines(ctx context.Context, claimID uint) ([]ClaimLine, error) {
	args := m.Called(ctx, claimID)
	lines, _ := args.Get(0).([]ClaimLine)
	return lines, args.Error(1)
}

func (m *MockRepository) ReplaceClaimLines(ctx context.Context, claimID uint, lines []ClaimLine) error {
	args := m.Called(ctx, claimID, lines)
	return args.Error(0)
}

func (m *MockRepository) CreateClaimEvent(ctx context.Context, event ClaimEvent) (uint, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetClaimEvents(ctx context.Context, claimID uint) ([]*ClaimEvent, error) {
	args := m.Called(ctx, claimID)
	events, _ := args.Get(0).([]*ClaimEvent)
	return events, args.Error(1)
}

func (m *MockRepository) GetLatestEligibilityCheck(ctx context.Context, insurancePlanID uint) (*EligibilityCheck, error) {
	args := m.Called(ctx, insurancePlanID)
	check, _ := args.Get(0).(*EligibilityCheck)
	return check, args.Error(1)
}

func (m *MockRepository) CreateEligibilityCheck(ctx context.Context, check EligibilityCheck) (uint, error) {
	args := m.Called(ctx, check)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) CreateEDIFile(ctx context.Context, file EDIFile) (uint, error) {
	args := m.Called(ctx, file)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetLatestGeneratedEDIFile(ctx context.Context, claimID uint) (*EDIFile, error) {
	args := m.Called(ctx, claimID)
	file, _ := args.Get(0).(*EDIFile)
	return file, args.Error(1)
}

func (m *MockRepository) UpdateEDIFileStatus(ctx context.Context, fileID uint, status EDIFileStatus) error {
	args := m.Called(ctx, fileID, status)
	return args.Error(0)
}

func (m *MockRepository) GetInsurancePlanByID(ctx context.Context, planID uint) (*InsurancePlan, error) {
	args := m.Called(ctx, planID)
	plan, _ := args.Get(0).(*InsurancePlan)
	return plan, args.Error(1)
}

func (m *MockRepository) GetPrimaryInsurancePlan(ctx context.Context, userID uint) (*InsurancePlan, error) {
	args := m.Called(ctx, userID)
	plan, _ := args.Get(0).(*InsurancePlan)
	return plan, args.Error(1)
}

func (m *MockRepository) GetReportByID(ctx context.Context, reportID uint) (*Report, error) {
	args := m.Called(ctx, reportID)
	report, _ := args.Get(0).(*Report)
	return report, args.Error(1)
}

func (m *MockRepository) GetUserProfileByID(ctx context.Context, userID uint) (*UserProfile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*UserProfile)
	return profile, args.Error(1)
}

func (m *MockRepository) CreateBillingTask(ctx context.Context, task BillingTask) (uint, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRepository) GetBillingTaskByID(ctx context.Context, taskID uint) (*BillingTask, error) {
	args := m.Called(ctx, taskID)
	task, _ := args.Get(0).(*BillingTask)
	return task, args.Error(1)
}

func (m *MockRepository) UpdateBillingTask(ctx context.Context, task BillingTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockRepository) IncrementDenialPattern(ctx context.Context, payerID, denialReason string) error {
	args := m.Called(ctx, payerID, denialReason)
	return args.Error(0)
}
