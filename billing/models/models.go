package models

import (
	"fmt"
	"time"

	"github.com/vitalpath/billing-app/billing/constants"
)

// ClaimStatus is the lifecycle state of a claim. Transitions are governed
// exclusively by ValidTransitions; see service.AddClaimEvent.
type ClaimStatus string

const (
	ClaimStatusDraft         ClaimStatus = "DRAFT"
	ClaimStatusReady         ClaimStatus = "READY"
	ClaimStatusSubmitted     ClaimStatus = "SUBMITTED"
	ClaimStatusAccepted      ClaimStatus = "ACCEPTED"
	ClaimStatusRejected      ClaimStatus = "REJECTED"
	ClaimStatusDenied        ClaimStatus = "DENIED"
	ClaimStatusPaid          ClaimStatus = "PAID"
	ClaimStatusPartiallyPaid ClaimStatus = "PARTIALLY_PAID"
	ClaimStatusAppealed      ClaimStatus = "APPEALED"
	ClaimStatusCancelled     ClaimStatus = "CANCELLED"
)

// ValidTransitions is the complete edge set of the claim state machine.
// Any (from, to) pair absent here is rejected. PAID and CANCELLED are
// terminal.
var ValidTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusDraft:         {ClaimStatusReady, ClaimStatusSubmitted, ClaimStatusCancelled},
	ClaimStatusReady:         {ClaimStatusSubmitted, ClaimStatusCancelled},
	ClaimStatusSubmitted:     {ClaimStatusAccepted, ClaimStatusRejected, ClaimStatusDenied},
	ClaimStatusAccepted:      {ClaimStatusPaid, ClaimStatusPartiallyPaid, ClaimStatusDenied},
	ClaimStatusRejected:      {ClaimStatusDraft, ClaimStatusReady, ClaimStatusSubmitted, ClaimStatusAppealed, ClaimStatusCancelled},
	ClaimStatusDenied:        {ClaimStatusAppealed},
	ClaimStatusPartiallyPaid: {ClaimStatusPaid, ClaimStatusAppealed},
	ClaimStatusAppealed:      {ClaimStatusPaid, ClaimStatusDenied},
	ClaimStatusPaid:          {},
	ClaimStatusCancelled:     {},
}

// CanTransitionTo reports whether the edge from s to target exists.
func (s ClaimStatus) CanTransitionTo(target ClaimStatus) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsEditable reports whether line items and claim fields may be mutated.
func (s ClaimStatus) IsEditable() bool {
	return s == ClaimStatusDraft || s == ClaimStatusReady || s == ClaimStatusRejected
}

// IsSubmittable reports whether the claim may be submitted.
func (s ClaimStatus) IsSubmittable() bool {
	return s == ClaimStatusDraft || s == ClaimStatusReady || s == ClaimStatusRejected
}

// IsCancellable reports whether the claim may be soft-deleted.
func (s ClaimStatus) IsCancellable() bool {
	return s == ClaimStatusDraft || s == ClaimStatusReady || s == ClaimStatusRejected
}

// IsTerminal reports whether the status has no outgoing edges.
func (s ClaimStatus) IsTerminal() bool {
	return len(ValidTransitions[s]) == 0
}

type Claim struct {
	ID              uint        `json:"id"`
	ClaimNumber     string      `json:"claim_number"`
	UserID          uint        `json:"user_id"`
	InsurancePlanID uint        `json:"insurance_plan_id"`
	ReportID        *uint       `json:"report_id,omitempty"`
	Status          ClaimStatus `json:"status"`

	TotalCharge           float64  `json:"total_charge"`
	AllowedAmount         *float64 `json:"allowed_amount,omitempty"`
	PaidAmount            *float64 `json:"paid_amount,omitempty"`
	PatientResponsibility *float64 `json:"patient_responsibility,omitempty"`

	SubmissionDate  *time.Time `json:"submission_date,omitempty"`
	ProcessedDate   *time.Time `json:"processed_date,omitempty"`
	DenialReason    *string    `json:"denial_reason,omitempty"`
	EDIFileLocation *string    `json:"edi_file_location,omitempty"`
	ClearinghouseID *string    `json:"clearinghouse_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []ClaimLine `json:"lines,omitempty"`
}

// FormatClaimNumber renders the claim number for the given date and per-day
// sequence: CLM<YYYYMMDD><4-digit-sequence>.
func FormatClaimNumber(date time.Time, sequence int) string {
	return fmt.Sprintf("%s%s%04d", constants.ClaimNumberPrefix, date.Format("20060102"), sequence)
}

type ClaimLine struct {
	ID         uint `json:"id"`
	ClaimID    uint `json:"claim_id"`
	LineNumber int  `json:"line_number"`

	CPTCode    string   `json:"cpt_code"`
	Charge     float64  `json:"charge"`
	Units      int      `json:"units"`
	ICD10Codes []string `json:"icd10_codes"`
	Modifier   string   `json:"modifier,omitempty"`

	ServiceDate    time.Time `json:"service_date"`
	PlaceOfService string    `json:"place_of_service,omitempty"`

	FacilityID           string `json:"facility_id,omitempty"`
	RenderingProviderNPI string `json:"rendering_provider_npi,omitempty"`
	ReferringProviderNPI string `json:"referring_provider_npi,omitempty"`
}

// EventData is the structured payload attached to a claim event. A "status"
// key drives a validated status transition when the event is appended.
type EventData map[string]interface{}

// Status extracts the status value carried by the payload, if any.
func (d EventData) Status() (ClaimStatus, bool) {
	v, ok := d["status"]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case ClaimStatus:
		return s, true
	case string:
		return ClaimStatus(s), true
	default:
		return "", false
	}
}

// ClaimEvent is an immutable, append-only audit trail entry. Events are
// never updated or deleted.
type ClaimEvent struct {
	ID        uint      `json:"id"`
	ClaimID   uint      `json:"claim_id"`
	EventType string    `json:"event_type"`
	EventData EventData `json:"event_data,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Well-known event types. EventType is a free-form tag; these are the ones
// the core emits itself.
const (
	EventClaimCreated        = "CLAIM_CREATED"
	EventClaimUpdated        = "CLAIM_UPDATED"
	EventClaimSubmitted      = "CLAIM_SUBMITTED"
	EventClaimCancelled      = "CLAIM_CANCELLED"
	EventEligibilityVerified = "ELIGIBILITY_VERIFIED"
	EventEligibilityIssue    = "ELIGIBILITY_ISSUE"
	EventEDIGenerated        = "EDI_GENERATED"
	EventAppealed            = "APPEALED"
)

type EligibilityStatus string

const (
	EligibilityStatusActive   EligibilityStatus = "active"
	EligibilityStatusInactive EligibilityStatus = "inactive"
	EligibilityStatusPending  EligibilityStatus = "pending"
)

// CoverageDetails holds boolean coverage flags derived from payer-specific
// service-type codes.
type CoverageDetails struct {
	LabCoverage            bool `json:"lab_coverage"`
	GeneticTestingCoverage bool `json:"genetic_testing_coverage"`
	PreventiveCareCoverage bool `json:"preventive_care_coverage"`
}

// EligibilityCheck is one point-in-time snapshot of a plan's coverage.
// A check is fresh for 24 hours from CheckedAt; after that it must be
// re-fetched.
type EligibilityCheck struct {
	ID              uint  `json:"id"`
	InsurancePlanID uint  `json:"insurance_plan_id"`
	ClaimID         *uint `json:"claim_id,omitempty"`

	Status EligibilityStatus `json:"status"`

	Deductible     *float64 `json:"deductible,omitempty"`
	DeductibleMet  *float64 `json:"deductible_met,omitempty"`
	OutOfPocketMax *float64 `json:"out_of_pocket_max,omitempty"`
	OutOfPocketMet *float64 `json:"out_of_pocket_met,omitempty"`
	Copay          *float64 `json:"copay,omitempty"`
	Coinsurance    *float64 `json:"coinsurance,omitempty"`

	CoverageDetails CoverageDetails `json:"coverage_details"`

	// Raw provider response, retained for audit/debugging.
	ResponseData []byte    `json:"-"`
	CheckedAt    time.Time `json:"checked_at"`
}

// IsFresh reports whether the check is still valid at the given time.
func (c *EligibilityCheck) IsFresh(now time.Time) bool {
	return now.Sub(c.CheckedAt) < constants.EligibilityCacheHours*time.Hour
}

type EDIFileStatus string

const (
	EDIFileStatusGenerated EDIFileStatus = "GENERATED"
	EDIFileStatusSubmitted EDIFileStatus = "SUBMITTED"
)

// EDIFile is a generated 837P document artifact. A claim may accumulate
// several across resubmissions; the current one is the most recently
// created with status GENERATED.
type EDIFile struct {
	ID        uint          `json:"id"`
	ClaimID   uint          `json:"claim_id"`
	FileName  string        `json:"file_name"`
	FilePath  string        `json:"file_path"`
	Content   string        `json:"-"`
	Status    EDIFileStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type PlanType string

const (
	PlanTypePPO      PlanType = "PPO"
	PlanTypeHMO      PlanType = "HMO"
	PlanTypeEPO      PlanType = "EPO"
	PlanTypeMedicare PlanType = "MEDICARE"
	PlanTypeMedicaid PlanType = "MEDICAID"
)

// UserProfile is the collaborator shape supplied by the surrounding
// application's account module. Only the demographics the EDI generator
// needs are modeled.
type UserProfile struct {
	ID          uint       `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`

	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// InsurancePlan is the collaborator shape supplied by the surrounding
// application's insurance module.
type InsurancePlan struct {
	ID            uint       `json:"id"`
	UserID        uint       `json:"user_id"`
	PayerID       string     `json:"payer_id"`
	PayerName     string     `json:"payer_name"`
	PlanType      PlanType   `json:"plan_type"`
	MemberID      string     `json:"member_id"`
	GroupNumber   string     `json:"group_number,omitempty"`
	IsActive      bool       `json:"is_active"`
	IsPrimary     bool       `json:"is_primary"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	TermDate      *time.Time `json:"term_date,omitempty"`
}

// InEffect reports whether the plan's active flag and effective/term window
// cover the given time.
func (p *InsurancePlan) InEffect(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.EffectiveDate != nil && now.Before(*p.EffectiveDate) {
		return false
	}
	if p.TermDate != nil && now.After(*p.TermDate) {
		return false
	}
	return true
}

// Biomarker is one parsed lab result from a report. ReferenceRange is a
// "low-high" string when the lab supplied one.
type Biomarker struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	ReferenceRange string  `json:"reference_range,omitempty"`
}

// Report is the collaborator shape supplied by the report module. The core
// never parses raw lab-report files itself.
type Report struct {
	ID               uint        `json:"id"`
	UserID           uint        `json:"user_id"`
	ParsedBiomarkers []Biomarker `json:"parsed_biomarkers"`
	CreatedAt        time.Time   `json:"created_at"`
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// BillingTask is the bookkeeping row for one asynchronous unit of work.
// Failure increments AttemptCount; once it reaches MaxAttempts the task is
// marked FAILED and left inspectable.
type BillingTask struct {
	ID       uint   `json:"id"`
	TaskType string `json:"task_type"`

	ClaimID  *uint `json:"claim_id,omitempty"`
	ReportID *uint `json:"report_id,omitempty"`
	UserID   uint  `json:"user_id"`

	Status       TaskStatus `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	LastError    *string    `json:"last_error,omitempty"`

	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DenialPattern aggregates denials by payer and reason for downstream
// analytics.
type DenialPattern struct {
	ID           uint      `json:"id"`
	PayerID      string    `json:"payer_id"`
	DenialReason string    `json:"denial_reason"`
	Occurrences  int       `json:"occurrences"`
	LastSeen     time.Time `json:"last_seen"`
}

// TaskEnqueueArgs is the JSON payload placed on the work queue for the
// billing worker. Not a persistent model.
type TaskEnqueueArgs struct {
	TaskID   uint   `json:"task_id"`
	TaskType string `json:"task_type"`
	ClaimID  uint   `json:"claim_id,omitempty"`
	ReportID uint   `json:"report_id,omitempty"`
	UserID   uint   `json:"user_id"`
	Reason   string `json:"reason,omitempty"`
}
