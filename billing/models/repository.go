// Package models contains the claims-billing data model, the repository
// interface used to persist it, and the claims service that governs the
// claim lifecycle.
package models

import (
	"context"
	"errors"
	"time"
)

// ClaimFilter narrows and pages ListClaims results. A zero Limit means no
// limit.
type ClaimFilter struct {
	Status ClaimStatus
	Limit  int
	Offset int
}

// Repository contains all of the methods needed to interact with the data
// represented in the models package.
type Repository interface {
	claimRepository
	claimEventRepository
	eligibilityRepository
	ediFileRepository
	planRepository
	reportRepository
	taskRepository
}

type claimRepository interface {
	CreateClaim(ctx context.Context, claim Claim) (uint, error)
	GetClaimByID(ctx context.Context, claimID uint) (*Claim, error)
	GetClaims(ctx context.Context, userID uint, filter ClaimFilter) ([]*Claim, error)
	UpdateClaim(ctx context.Context, claim Claim) error
	UpdateClaimStatus(ctx context.Context, claimID uint, status ClaimStatus) error

	// GetMaxClaimSequence returns the highest claim-number sequence already
	// assigned on the given calendar day, or 0 when none exists.
	GetMaxClaimSequence(ctx context.Context, date time.Time) (int, error)

	CreateClaimLines(ctx context.Context, lines ...ClaimLine) error
	GetClaimLines(ctx context.Context, claimID uint) ([]ClaimLine, error)
	ReplaceClaimLines(ctx context.Context, claimID uint, lines []ClaimLine) error
}

type claimEventRepository interface {
	CreateClaimEvent(ctx context.Context, event ClaimEvent) (uint, error)
	GetClaimEvents(ctx context.Context, claimID uint) ([]*ClaimEvent, error)
}

type eligibilityRepository interface {
	// GetLatestEligibilityCheck returns the most recent check for the plan,
	// or nil when the plan has never been checked.
	GetLatestEligibilityCheck(ctx context.Context, insurancePlanID uint) (*EligibilityCheck, error)
	CreateEligibilityCheck(ctx context.Context, check EligibilityCheck) (uint, error)
}

type ediFileRepository interface {
	CreateEDIFile(ctx context.Context, file EDIFile) (uint, error)
	// GetLatestGeneratedEDIFile returns the current artifact: the most
	// recently created file with status GENERATED, or nil when none exists.
	GetLatestGeneratedEDIFile(ctx context.Context, claimID uint) (*EDIFile, error)
	UpdateEDIFileStatus(ctx context.Context, fileID uint, status EDIFileStatus) error
}

type planRepository interface {
	GetInsurancePlanByID(ctx context.Context, planID uint) (*InsurancePlan, error)
	// GetPrimaryInsurancePlan returns the user's active primary plan, or
	// ErrPlanNotFound when the user has none.
	GetPrimaryInsurancePlan(ctx context.Context, userID uint) (*InsurancePlan, error)
}

type reportRepository interface {
	GetReportByID(ctx context.Context, reportID uint) (*Report, error)
	GetUserProfileByID(ctx context.Context, userID uint) (*UserProfile, error)
}

type taskRepository interface {
	CreateBillingTask(ctx context.Context, task BillingTask) (uint, error)
	GetBillingTaskByID(ctx context.Context, taskID uint) (*BillingTask, error)
	UpdateBillingTask(ctx context.Context, task BillingTask) error

	IncrementDenialPattern(ctx context.Context, payerID, denialReason string) error
}

var (
	ErrClaimNotFound  = errors.New("no claim found for given id")
	ErrPlanNotFound   = errors.New("no insurance plan found for given id")
	ErrReportNotFound = errors.New("no report found for given id")
	ErrUserNotFound   = errors.New("no user found for given id")
	ErrTaskNotFound   = errors.New("no billing task found for given id")
)
