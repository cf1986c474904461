package models

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	billingerrors "github.com/vitalpath/billing-app/billing/errors"
)

type ServiceTestSuite struct {
	suite.Suite
	repository *MockRepository
	service    *service
	now        time.Time
}

func (s *ServiceTestSuite) SetupTest() {
	s.repository = &MockRepository{}
	s.now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	s.service = &service{
		repository: s.repository,
		tx: func(ctx context.Context, fn func(Repository) error) error {
			return fn(s.repository)
		},
		logger:            logrus.StandardLogger(),
		now:               func() time.Time { return s.now },
		serviceDateWindow: 365 * 24 * time.Hour,
	}
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) validLine() ClaimLine {
	return ClaimLine{
		CPTCode:     "80053",
		Charge:      100.50,
		Units:       1,
		ICD10Codes:  []string{"E88.9"},
		ServiceDate: s.now.Add(-48 * time.Hour),
	}
}

func (s *ServiceTestSuite) activePlan(userID uint) *InsurancePlan {
	return &InsurancePlan{ID: 7, UserID: userID, PayerID: "BCBS001", PayerName: "BCBS",
		PlanType: PlanTypePPO, MemberID: "M123", IsActive: true}
}

func (s *ServiceTestSuite) TestCreateClaim() {
	ctx := context.Background()
	lines := []ClaimLine{s.validLine(), {
		CPTCode:     "82947",
		Charge:      25.25,
		Units:       2,
		ICD10Codes:  []string{"R73.9"},
		ServiceDate: s.now.Add(-48 * time.Hour),
	}}

	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(s.activePlan(1), nil)
	s.repository.On("GetMaxClaimSequence", ctx, s.now).Return(2, nil)
	s.repository.On("CreateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.ClaimNumber == "CLM202403150003" &&
			c.Status == ClaimStatusDraft &&
			c.TotalCharge == 151.00
	})).Return(uint(42), nil)
	s.repository.On("CreateClaimLines", ctx, mock.MatchedBy(func(lines []ClaimLine) bool {
		return len(lines) == 2 && lines[0].LineNumber == 1 && lines[1].LineNumber == 2 &&
			lines[0].ClaimID == 42
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.ClaimID == 42 && e.EventType == EventClaimCreated
	})).Return(uint(1), nil)

	claim, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: lines})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(42), claim.ID)
	assert.Equal(s.T(), "CLM202403150003", claim.ClaimNumber)
	assert.Equal(s.T(), ClaimStatusDraft, claim.Status)
	// 100.50*1 + 25.25*2
	assert.Equal(s.T(), 151.00, claim.TotalCharge)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestCreateClaimValidation() {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ClaimLine)
		field  string
	}{
		{"missing cpt", func(l *ClaimLine) { l.CPTCode = "" }, "lines[0].cpt_code"},
		{"zero charge", func(l *ClaimLine) { l.Charge = 0 }, "lines[0].charge"},
		{"negative charge", func(l *ClaimLine) { l.Charge = -5 }, "lines[0].charge"},
		{"negative units", func(l *ClaimLine) { l.Units = -1 }, "lines[0].units"},
		{"future service date", func(l *ClaimLine) { l.ServiceDate = s.now.Add(24 * time.Hour) }, "lines[0].service_date"},
		{"stale service date", func(l *ClaimLine) { l.ServiceDate = s.now.Add(-366 * 24 * time.Hour) }, "lines[0].service_date"},
	}

	for _, tt := range tests {
		s.T().Run(tt.name, func(t *testing.T) {
			line := s.validLine()
			tt.mutate(&line)
			_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: []ClaimLine{line}})
			var ve *billingerrors.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7})
	var ve *billingerrors.ValidationError
	assert.ErrorAs(s.T(), err, &ve)
	assert.Equal(s.T(), "lines", ve.Field)
}

func (s *ServiceTestSuite) TestCreateClaimMinimalLine() {
	ctx := context.Background()
	// CPT code, charge, and service date only: units default to 1, the
	// diagnosis list stays empty, and the line number falls back to the
	// position in the list.
	lines := []ClaimLine{{
		CPTCode:     "80053",
		Charge:      100.50,
		ServiceDate: s.now.Add(-48 * time.Hour),
	}}

	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(s.activePlan(1), nil)
	s.repository.On("GetMaxClaimSequence", ctx, s.now).Return(0, nil)
	s.repository.On("CreateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.TotalCharge == 100.50
	})).Return(uint(42), nil)
	s.repository.On("CreateClaimLines", ctx, mock.MatchedBy(func(lines []ClaimLine) bool {
		return len(lines) == 1 && lines[0].Units == 1 && lines[0].LineNumber == 1 &&
			len(lines[0].ICD10Codes) == 0
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.AnythingOfType("models.ClaimEvent")).Return(uint(1), nil)

	claim, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: lines})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 1, claim.Lines[0].Units)
	assert.Equal(s.T(), 100.50, claim.TotalCharge)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestCreateClaimKeepsCallerLineNumbers() {
	ctx := context.Background()
	first := s.validLine()
	first.LineNumber = 5
	second := s.validLine()
	lines := []ClaimLine{first, second}

	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(s.activePlan(1), nil)
	s.repository.On("GetMaxClaimSequence", ctx, s.now).Return(0, nil)
	s.repository.On("CreateClaim", ctx, mock.AnythingOfType("models.Claim")).Return(uint(42), nil)
	s.repository.On("CreateClaimLines", ctx, mock.MatchedBy(func(lines []ClaimLine) bool {
		return len(lines) == 2 && lines[0].LineNumber == 5 && lines[1].LineNumber == 2
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.AnythingOfType("models.ClaimEvent")).Return(uint(1), nil)

	_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: lines})
	assert.NoError(s.T(), err)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestCreateClaimPlanNotOwned() {
	ctx := context.Background()
	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(s.activePlan(99), nil)

	_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: []ClaimLine{s.validLine()}})
	var ue *billingerrors.UnauthorizedError
	assert.ErrorAs(s.T(), err, &ue)
}

func (s *ServiceTestSuite) TestCreateClaimPlanNotFound() {
	ctx := context.Background()
	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(nil, ErrPlanNotFound)

	_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: []ClaimLine{s.validLine()}})
	var nfe *billingerrors.EntityNotFoundError
	assert.ErrorAs(s.T(), err, &nfe)
	assert.Equal(s.T(), "insurance plan", nfe.Entity)
}

func (s *ServiceTestSuite) TestCreateClaimInactivePlan() {
	ctx := context.Background()
	plan := s.activePlan(1)
	plan.IsActive = false
	s.repository.On("GetInsurancePlanByID", ctx, uint(7)).Return(plan, nil)

	_, err := s.service.CreateClaim(ctx, 1, CreateClaimRequest{InsurancePlanID: 7, Lines: []ClaimLine{s.validLine()}})
	var ve *billingerrors.ValidationError
	assert.ErrorAs(s.T(), err, &ve)
	assert.Equal(s.T(), "insurance_plan_id", ve.Field)
}

func (s *ServiceTestSuite) TestGetClaim() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusDraft}, nil)
	s.repository.On("GetClaimLines", ctx, uint(42)).
		Return([]ClaimLine{{ID: 1, ClaimID: 42, LineNumber: 1}}, nil)

	claim, err := s.service.GetClaim(ctx, 1, 42)
	assert.NoError(s.T(), err)
	assert.Len(s.T(), claim.Lines, 1)
}

func (s *ServiceTestSuite) TestGetClaimNotOwned() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 99, Status: ClaimStatusDraft}, nil)

	_, err := s.service.GetClaim(ctx, 1, 42)
	var ue *billingerrors.UnauthorizedError
	assert.ErrorAs(s.T(), err, &ue)
	assert.Equal(s.T(), uint(1), ue.UserID)
}

func (s *ServiceTestSuite) TestGetClaimNotFound() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).Return(nil, ErrClaimNotFound)

	_, err := s.service.GetClaim(ctx, 1, 42)
	var nfe *billingerrors.EntityNotFoundError
	assert.ErrorAs(s.T(), err, &nfe)
}

func (s *ServiceTestSuite) TestListClaimsRejectsUnknownStatus() {
	_, err := s.service.ListClaims(context.Background(), 1, ClaimFilter{Status: "BOGUS"})
	var ve *billingerrors.ValidationError
	assert.ErrorAs(s.T(), err, &ve)
	assert.Equal(s.T(), "status", ve.Field)
}

func (s *ServiceTestSuite) TestUpdateClaimNotEditable() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusSubmitted}, nil)

	_, err := s.service.UpdateClaim(ctx, 1, 42, ClaimUpdate{Lines: []ClaimLine{s.validLine()}})
	var nee *billingerrors.ClaimNotEditableError
	assert.ErrorAs(s.T(), err, &nee)
	assert.Equal(s.T(), string(ClaimStatusSubmitted), nee.Status)
}

func (s *ServiceTestSuite) TestUpdateClaimReplacesLines() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, InsurancePlanID: 7, Status: ClaimStatusDraft, TotalCharge: 50}, nil)
	s.repository.On("UpdateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.ID == 42 && c.TotalCharge == 100.50
	})).Return(nil)
	s.repository.On("ReplaceClaimLines", ctx, uint(42), mock.MatchedBy(func(lines []ClaimLine) bool {
		return len(lines) == 1 && lines[0].LineNumber == 1 && lines[0].ClaimID == 42
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.EventType == EventClaimUpdated
	})).Return(uint(2), nil)

	claim, err := s.service.UpdateClaim(ctx, 1, 42, ClaimUpdate{Lines: []ClaimLine{s.validLine()}})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 100.50, claim.TotalCharge)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestSubmitClaim() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusReady}, nil)
	s.repository.On("UpdateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.Status == ClaimStatusSubmitted && c.SubmissionDate != nil &&
			c.SubmissionDate.Equal(s.now)
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.EventType == EventClaimSubmitted
	})).Return(uint(3), nil)

	claim, err := s.service.SubmitClaim(ctx, 1, 42)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), ClaimStatusSubmitted, claim.Status)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestSubmitPaidClaim() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusPaid}, nil)

	_, err := s.service.SubmitClaim(ctx, 1, 42)
	var nse *billingerrors.ClaimNotSubmittableError
	assert.ErrorAs(s.T(), err, &nse)
	assert.Equal(s.T(), string(ClaimStatusPaid), nse.Status)
	s.repository.AssertNotCalled(s.T(), "UpdateClaim", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestDeleteClaimCancels() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusDraft}, nil)
	s.repository.On("UpdateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.Status == ClaimStatusCancelled
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.EventType == EventClaimCancelled
	})).Return(uint(4), nil)

	assert.NoError(s.T(), s.service.DeleteClaim(ctx, 1, 42))
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestDeleteSubmittedClaim() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusSubmitted}, nil)

	err := s.service.DeleteClaim(ctx, 1, 42)
	var nce *billingerrors.ClaimNotCancellableError
	assert.ErrorAs(s.T(), err, &nce)
}

func (s *ServiceTestSuite) TestAddClaimEventDeniedToAppealed() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusDenied}, nil)
	s.repository.On("UpdateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.Status == ClaimStatusAppealed
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.EventType == EventAppealed && e.Notes == "appeal filed"
	})).Return(uint(5), nil)

	event, err := s.service.AddClaimEvent(ctx, 1, 42, EventAppealed,
		EventData{"status": ClaimStatusAppealed}, "appeal filed")
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), uint(5), event.ID)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestAddClaimEventInvalidTransition() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusDraft}, nil)

	_, err := s.service.AddClaimEvent(ctx, 1, 42, "REMITTANCE",
		EventData{"status": ClaimStatusPaid}, "")
	var ite *billingerrors.InvalidTransitionError
	assert.ErrorAs(s.T(), err, &ite)
	assert.Equal(s.T(), string(ClaimStatusDraft), ite.From)
	assert.Equal(s.T(), string(ClaimStatusPaid), ite.To)
	s.repository.AssertNotCalled(s.T(), "CreateClaimEvent", mock.Anything, mock.Anything)
}

func (s *ServiceTestSuite) TestAddClaimEventAppliesAdjudicationData() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusSubmitted}, nil)
	s.repository.On("UpdateClaim", ctx, mock.MatchedBy(func(c Claim) bool {
		return c.Status == ClaimStatusDenied &&
			c.DenialReason != nil && *c.DenialReason == "CO-50 not medically necessary" &&
			c.ProcessedDate != nil
	})).Return(nil)
	s.repository.On("CreateClaimEvent", ctx, mock.Anything).Return(uint(6), nil)

	_, err := s.service.AddClaimEvent(ctx, 1, 42, "CLAIM_DENIED",
		EventData{"status": ClaimStatusDenied, "denial_reason": "CO-50 not medically necessary"}, "")
	assert.NoError(s.T(), err)
	s.repository.AssertExpectations(s.T())
}

func (s *ServiceTestSuite) TestAddClaimEventWithoutStatus() {
	ctx := context.Background()
	s.repository.On("GetClaimByID", ctx, uint(42)).
		Return(&Claim{ID: 42, UserID: 1, Status: ClaimStatusSubmitted}, nil)
	s.repository.On("CreateClaimEvent", ctx, mock.MatchedBy(func(e ClaimEvent) bool {
		return e.EventType == "NOTE_ADDED"
	})).Return(uint(7), nil)

	_, err := s.service.AddClaimEvent(ctx, 1, 42, "NOTE_ADDED", EventData{"note": "called payer"}, "")
	assert.NoError(s.T(), err)
	s.repository.AssertNotCalled(s.T(), "UpdateClaim", mock.Anything, mock.Anything)
}
