package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	billingerrors "github.com/vitalpath/billing-app/billing/errors"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/log"
)

// TxFunc runs fn inside a single database transaction, supplying a
// Repository scoped to that transaction. fn returning an error rolls the
// transaction back.
type TxFunc func(ctx context.Context, fn func(Repository) error) error

// Service governs the claim lifecycle. All status changes flow through
// AddClaimEvent so the event log and the claim row can never disagree.
type Service interface {
	CreateClaim(ctx context.Context, userID uint, req CreateClaimRequest) (*Claim, error)
	GetClaim(ctx context.Context, userID, claimID uint) (*Claim, error)
	ListClaims(ctx context.Context, userID uint, filter ClaimFilter) ([]*Claim, error)
	UpdateClaim(ctx context.Context, userID, claimID uint, upd ClaimUpdate) (*Claim, error)
	SubmitClaim(ctx context.Context, userID, claimID uint) (*Claim, error)
	DeleteClaim(ctx context.Context, userID, claimID uint) error
	AddClaimEvent(ctx context.Context, userID, claimID uint, eventType string, data EventData, notes string) (*ClaimEvent, error)
	GetClaimEvents(ctx context.Context, userID, claimID uint) ([]*ClaimEvent, error)
}

// CreateClaimRequest carries the caller-supplied portion of a new claim.
type CreateClaimRequest struct {
	InsurancePlanID uint        `json:"insurance_plan_id"`
	ReportID        *uint       `json:"report_id,omitempty"`
	Lines           []ClaimLine `json:"lines"`
}

// ClaimUpdate carries a partial update. Nil fields are left unchanged;
// a non-nil Lines replaces the full line set.
type ClaimUpdate struct {
	InsurancePlanID *uint       `json:"insurance_plan_id,omitempty"`
	ReportID        *uint       `json:"report_id,omitempty"`
	Lines           []ClaimLine `json:"lines,omitempty"`
}

func NewService(r Repository, tx TxFunc) Service {
	return &service{
		repository:        r,
		tx:                tx,
		logger:            log.API,
		now:               time.Now,
		serviceDateWindow: time.Duration(utils.GetEnvInt("BILLING_SERVICE_DATE_WINDOW_DAYS", 365)) * 24 * time.Hour,
	}
}

type service struct {
	repository Repository
	tx         TxFunc
	logger     logrus.FieldLogger

	now               func() time.Time
	serviceDateWindow time.Duration
}

func (s *service) CreateClaim(ctx context.Context, userID uint, req CreateClaimRequest) (*Claim, error) {
	if err := s.validateLines(req.Lines); err != nil {
		return nil, err
	}
	reqLines := normalizeLines(req.Lines)

	plan, err := s.repository.GetInsurancePlanByID(ctx, req.InsurancePlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, &billingerrors.EntityNotFoundError{Entity: "insurance plan", ID: req.InsurancePlanID}
		}
		return nil, err
	}
	if plan.UserID != userID {
		return nil, &billingerrors.UnauthorizedError{Entity: "insurance plan", ID: plan.ID, UserID: userID}
	}
	if !plan.InEffect(s.now()) {
		return nil, &billingerrors.ValidationError{Field: "insurance_plan_id",
			Msg: fmt.Sprintf("plan %d is not in effect", plan.ID)}
	}

	if req.ReportID != nil {
		report, err := s.repository.GetReportByID(ctx, *req.ReportID)
		if err != nil {
			if errors.Is(err, ErrReportNotFound) {
				return nil, &billingerrors.EntityNotFoundError{Entity: "report", ID: *req.ReportID}
			}
			return nil, err
		}
		if report.UserID != userID {
			return nil, &billingerrors.UnauthorizedError{Entity: "report", ID: report.ID, UserID: userID}
		}
	}

	claim := Claim{
		UserID:          userID,
		InsurancePlanID: req.InsurancePlanID,
		ReportID:        req.ReportID,
		Status:          ClaimStatusDraft,
		TotalCharge:     totalCharge(reqLines),
	}

	err = s.tx(ctx, func(r Repository) error {
		seq, err := r.GetMaxClaimSequence(ctx, s.now())
		if err != nil {
			return err
		}
		claim.ClaimNumber = FormatClaimNumber(s.now(), seq+1)

		claimID, err := r.CreateClaim(ctx, claim)
		if err != nil {
			return err
		}
		claim.ID = claimID

		for i := range reqLines {
			reqLines[i].ClaimID = claimID
		}
		if err := r.CreateClaimLines(ctx, reqLines...); err != nil {
			return err
		}
		claim.Lines = reqLines

		_, err = r.CreateClaimEvent(ctx, ClaimEvent{
			ClaimID:   claimID,
			EventType: EventClaimCreated,
			EventData: EventData{
				"claim_number": claim.ClaimNumber,
				"total_charge": claim.TotalCharge,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
		"user_id":      userID,
	}).Info("claim created")

	return &claim, nil
}

func (s *service) GetClaim(ctx context.Context, userID, claimID uint) (*Claim, error) {
	claim, err := s.getOwnedClaim(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repository.GetClaimLines(ctx, claimID)
	if err != nil {
		return nil, err
	}
	claim.Lines = lines

	return claim, nil
}

func (s *service) ListClaims(ctx context.Context, userID uint, filter ClaimFilter) ([]*Claim, error) {
	if filter.Status != "" {
		if _, ok := ValidTransitions[filter.Status]; !ok {
			return nil, &billingerrors.ValidationError{Field: "status",
				Msg: fmt.Sprintf("unknown claim status %q", filter.Status)}
		}
	}
	return s.repository.GetClaims(ctx, userID, filter)
}

func (s *service) UpdateClaim(ctx context.Context, userID, claimID uint, upd ClaimUpdate) (*Claim, error) {
	claim, err := s.getOwnedClaim(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Status.IsEditable() {
		return nil, &billingerrors.ClaimNotEditableError{ClaimID: claimID, Status: string(claim.Status)}
	}

	var changed []string
	if upd.InsurancePlanID != nil && *upd.InsurancePlanID != claim.InsurancePlanID {
		plan, err := s.repository.GetInsurancePlanByID(ctx, *upd.InsurancePlanID)
		if err != nil {
			if errors.Is(err, ErrPlanNotFound) {
				return nil, &billingerrors.EntityNotFoundError{Entity: "insurance plan", ID: *upd.InsurancePlanID}
			}
			return nil, err
		}
		if plan.UserID != userID {
			return nil, &billingerrors.UnauthorizedError{Entity: "insurance plan", ID: plan.ID, UserID: userID}
		}
		claim.InsurancePlanID = *upd.InsurancePlanID
		changed = append(changed, "insurance_plan_id")
	}
	if upd.ReportID != nil && (claim.ReportID == nil || *upd.ReportID != *claim.ReportID) {
		claim.ReportID = upd.ReportID
		changed = append(changed, "report_id")
	}
	var updLines []ClaimLine
	if upd.Lines != nil {
		if err := s.validateLines(upd.Lines); err != nil {
			return nil, err
		}
		updLines = normalizeLines(upd.Lines)
		claim.TotalCharge = totalCharge(updLines)
		changed = append(changed, "lines", "total_charge")
	}

	if len(changed) == 0 {
		return s.GetClaim(ctx, userID, claimID)
	}

	err = s.tx(ctx, func(r Repository) error {
		if err := r.UpdateClaim(ctx, *claim); err != nil {
			return err
		}
		if upd.Lines != nil {
			for i := range updLines {
				updLines[i].ClaimID = claimID
			}
			if err := r.ReplaceClaimLines(ctx, claimID, updLines); err != nil {
				return err
			}
			claim.Lines = updLines
		}
		_, err := r.CreateClaimEvent(ctx, ClaimEvent{
			ClaimID:   claimID,
			EventType: EventClaimUpdated,
			EventData: EventData{"changed": changed},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if upd.Lines == nil {
		lines, err := s.repository.GetClaimLines(ctx, claimID)
		if err != nil {
			return nil, err
		}
		claim.Lines = lines
	}

	return claim, nil
}

func (s *service) SubmitClaim(ctx context.Context, userID, claimID uint) (*Claim, error) {
	claim, err := s.getOwnedClaim(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Status.IsSubmittable() {
		return nil, &billingerrors.ClaimNotSubmittableError{ClaimID: claimID, Status: string(claim.Status)}
	}

	submittedAt := s.now()
	err = s.tx(ctx, func(r Repository) error {
		return s.appendEvent(ctx, r, claim, ClaimEvent{
			ClaimID:   claimID,
			EventType: EventClaimSubmitted,
			EventData: EventData{"status": ClaimStatusSubmitted},
		}, &submittedAt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"claim_id":     claim.ID,
		"claim_number": claim.ClaimNumber,
	}).Info("claim submitted")

	return claim, nil
}

func (s *service) DeleteClaim(ctx context.Context, userID, claimID uint) error {
	claim, err := s.getOwnedClaim(ctx, userID, claimID)
	if err != nil {
		return err
	}
	if !claim.Status.IsCancellable() {
		return &billingerrors.ClaimNotCancellableError{ClaimID: claimID, Status: string(claim.Status)}
	}

	return s.tx(ctx, func(r Repository) error {
		return s.appendEvent(ctx, r, claim, ClaimEvent{
			ClaimID:   claimID,
			EventType: EventClaimCancelled,
			EventData: EventData{"status": ClaimStatusCancelled},
		}, nil)
	})
}

func (s *service) AddClaimEvent(ctx context.Context, userID, claimID uint, eventType string, data EventData, notes string) (*ClaimEvent, error) {
	if eventType == "" {
		return nil, &billingerrors.ValidationError{Field: "event_type", Msg: "must not be empty"}
	}

	claim, err := s.getOwnedClaim(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}

	event := ClaimEvent{
		ClaimID:   claimID,
		EventType: eventType,
		EventData: data,
		Notes:     notes,
	}
	err = s.tx(ctx, func(r Repository) error {
		return s.appendEvent(ctx, r, claim, event, nil)
	})
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func (s *service) GetClaimEvents(ctx context.Context, userID, claimID uint) ([]*ClaimEvent, error) {
	if _, err := s.getOwnedClaim(ctx, userID, claimID); err != nil {
		return nil, err
	}
	return s.repository.GetClaimEvents(ctx, claimID)
}

// appendEvent writes the event row and, when the payload carries a status,
// applies the transition to the claim in the same transaction. The claim
// argument is mutated to reflect the applied changes.
func (s *service) appendEvent(ctx context.Context, r Repository, claim *Claim, event ClaimEvent, submittedAt *time.Time) error {
	target, hasStatus := event.EventData.Status()
	if hasStatus {
		if !claim.Status.CanTransitionTo(target) {
			return &billingerrors.InvalidTransitionError{From: string(claim.Status), To: string(target)}
		}
		claim.Status = target
		applyAdjudicationData(claim, event.EventData, s.now())
		if submittedAt != nil {
			claim.SubmissionDate = submittedAt
		}
		if err := r.UpdateClaim(ctx, *claim); err != nil {
			return err
		}
	}

	id, err := r.CreateClaimEvent(ctx, event)
	if err != nil {
		return err
	}
	event.ID = id

	return nil
}

// applyAdjudicationData copies payer-reported amounts from an event payload
// onto the claim row when the event moves the claim into an adjudicated
// state.
func applyAdjudicationData(claim *Claim, data EventData, now time.Time) {
	switch claim.Status {
	case ClaimStatusAccepted, ClaimStatusRejected, ClaimStatusDenied,
		ClaimStatusPaid, ClaimStatusPartiallyPaid:
		claim.ProcessedDate = &now
	}

	if v, ok := floatValue(data, "allowed_amount"); ok {
		claim.AllowedAmount = &v
	}
	if v, ok := floatValue(data, "paid_amount"); ok {
		claim.PaidAmount = &v
	}
	if v, ok := floatValue(data, "patient_responsibility"); ok {
		claim.PatientResponsibility = &v
	}
	if v, ok := data["denial_reason"].(string); ok && v != "" {
		claim.DenialReason = &v
	}
}

func floatValue(data EventData, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func (s *service) getOwnedClaim(ctx context.Context, userID, claimID uint) (*Claim, error) {
	claim, err := s.repository.GetClaimByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, ErrClaimNotFound) {
			return nil, &billingerrors.EntityNotFoundError{Entity: "claim", ID: claimID}
		}
		return nil, err
	}
	if claim.UserID != userID {
		return nil, &billingerrors.UnauthorizedError{Entity: "claim", ID: claimID, UserID: userID}
	}
	return claim, nil
}

func (s *service) validateLines(lines []ClaimLine) error {
	if len(lines) == 0 {
		return &billingerrors.ValidationError{Field: "lines", Msg: "at least one line item is required"}
	}

	now := s.now()
	for i, line := range lines {
		field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

		if line.CPTCode == "" {
			return &billingerrors.ValidationError{Field: field("cpt_code"), Msg: "must not be empty"}
		}
		if line.Charge <= 0 {
			return &billingerrors.ValidationError{Field: field("charge"), Msg: "must be greater than zero"}
		}
		if line.Units < 0 {
			return &billingerrors.ValidationError{Field: field("units"), Msg: "must not be negative"}
		}
		if line.ServiceDate.IsZero() {
			return &billingerrors.ValidationError{Field: field("service_date"), Msg: "must be set"}
		}
		if line.ServiceDate.After(now) {
			return &billingerrors.ValidationError{Field: field("service_date"), Msg: "must not be in the future"}
		}
		if now.Sub(line.ServiceDate) > s.serviceDateWindow {
			return &billingerrors.ValidationError{Field: field("service_date"),
				Msg: fmt.Sprintf("must be within the last %d days", int(s.serviceDateWindow.Hours()/24))}
		}
	}

	return nil
}

// normalizeLines applies the line-item defaults: omitted units become 1 and
// a zero line number takes the line's position in the submitted list.
func normalizeLines(lines []ClaimLine) []ClaimLine {
	out := make([]ClaimLine, len(lines))
	for i, line := range lines {
		if line.Units == 0 {
			line.Units = 1
		}
		if line.LineNumber == 0 {
			line.LineNumber = i + 1
		}
		out[i] = line
	}
	return out
}

func totalCharge(lines []ClaimLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Charge * float64(line.Units)
	}
	return total
}
