package eligibility

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"

	"github.com/vitalpath/billing-app/billing/models"
)

const mockName = "mock"

// mockProvider is a deterministic offline provider used for payers without
// a live integration and in development environments. The same member ID
// always yields the same result.
type mockProvider struct{}

func NewMockProvider() Provider {
	return &mockProvider{}
}

func (p *mockProvider) Name() string { return mockName }

func (p *mockProvider) CheckEligibility(_ context.Context, req Request) (*Result, error) {
	seed := fnv.New32a()
	seed.Write([]byte(req.MemberID))
	h := seed.Sum32()

	status := models.EligibilityStatusActive
	// member IDs ending in "X" simulate termed coverage
	if strings.HasSuffix(req.MemberID, "X") {
		status = models.EligibilityStatusInactive
	}

	deductible := float64(500 + h%4*500)         // 500..2000
	deductibleMet := deductible * float64(h%5) / 4 // 0..100% met
	oopMax := deductible * 4
	oopMet := deductibleMet

	result := &Result{
		Status:         status,
		Deductible:     &deductible,
		DeductibleMet:  &deductibleMet,
		OutOfPocketMax: &oopMax,
		OutOfPocketMet: &oopMet,
		Copay:          floatPtr(float64(10 + h%4*5)),
		Coinsurance:    floatPtr(0.2),
		CoverageDetails: models.CoverageDetails{
			LabCoverage:            true,
			PreventiveCareCoverage: true,
			GeneticTestingCoverage: h%2 == 0,
		},
		Source: mockName,
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"provider": mockName,
		"memberId": req.MemberID,
		"payerId":  req.PayerID,
		"status":   status,
	})
	result.Raw = raw

	return result, nil
}
