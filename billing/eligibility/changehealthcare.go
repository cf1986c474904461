package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vitalpath/billing-app/billing/constants"
	billingerrors "github.com/vitalpath/billing-app/billing/errors"
	"github.com/vitalpath/billing-app/billing/models"
)

const changeHealthcareName = "change-healthcare"

// ChangeHealthcareConfig holds the API-key credentials for the Change
// Healthcare medical-network eligibility endpoint.
type ChangeHealthcareConfig struct {
	APIKey      string `conf:"BILLING_CHC_API_KEY"`
	BaseURL     string `conf:"BILLING_CHC_BASE_URL" conf_default:"https://apigw.changehealthcare.com/medicalnetwork/eligibility/v3"`
	MaxAttempts int    `conf:"BILLING_CHC_MAX_ATTEMPTS" conf_default:"3"`
}

type changeHealthcareProvider struct {
	config ChangeHealthcareConfig
	client *retryablehttp.Client
	logger logrus.FieldLogger
}

// NewChangeHealthcareProvider validates the configuration and builds the
// provider. Missing credentials fail here, not on first use.
func NewChangeHealthcareProvider(config ChangeHealthcareConfig) (Provider, error) {
	var missing []string
	if config.APIKey == "" {
		missing = append(missing, "api key")
	}
	if config.BaseURL == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return nil, &billingerrors.ConfigurationError{Provider: changeHealthcareName, Missing: missing}
	}

	return &changeHealthcareProvider{
		config: config,
		client: newProviderClient(changeHealthcareName, config.MaxAttempts),
		logger: providerLogger(changeHealthcareName),
	}, nil
}

func (p *changeHealthcareProvider) Name() string { return changeHealthcareName }

type chcRequest struct {
	ControlNumber           string        `json:"controlNumber"`
	TradingPartnerServiceID string        `json:"tradingPartnerServiceId"`
	Subscriber              chcSubscriber `json:"subscriber"`
	Encounter               chcEncounter  `json:"encounter"`
	Provider                *chcProvider  `json:"provider,omitempty"`
}

type chcSubscriber struct {
	MemberID    string `json:"memberId"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

type chcEncounter struct {
	ServiceTypeCodes []string `json:"serviceTypeCodes"`
}

type chcProvider struct {
	NPI string `json:"npi"`
}

type chcResponse struct {
	PlanStatus []struct {
		StatusCode       string   `json:"statusCode"`
		Status           string   `json:"status"`
		ServiceTypeCodes []string `json:"serviceTypeCodes"`
	} `json:"planStatus"`
	BenefitsInformation []struct {
		Code              string   `json:"code"`
		ServiceTypeCodes  []string `json:"serviceTypeCodes"`
		TimeQualifierCode string   `json:"timeQualifierCode"`
		BenefitAmount     string   `json:"benefitAmount"`
		BenefitPercent    string   `json:"benefitPercent"`
	} `json:"benefitsInformation"`
}

func (p *changeHealthcareProvider) CheckEligibility(ctx context.Context, req Request) (*Result, error) {
	body := chcRequest{
		ControlNumber:           "000000001",
		TradingPartnerServiceID: req.PayerID,
		Subscriber: chcSubscriber{
			MemberID:  req.MemberID,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		},
		Encounter: chcEncounter{ServiceTypeCodes: []string{req.serviceType()}},
	}
	if !req.DateOfBirth.IsZero() {
		body.Subscriber.DateOfBirth = req.DateOfBirth.Format("20060102")
	}
	if req.ProviderNPI != "" {
		body.Provider = &chcProvider{NPI: req.ProviderNPI}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName, Err: err}
	}

	httpReq, err := retryablehttp.NewRequest(http.MethodPost, p.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName, Err: err}
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName,
			Err: errors.Wrap(err, "eligibility request failed")}
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName,
			Err: &billingerrors.UnexpectedStatusCodeError{StatusCode: resp.StatusCode, Body: string(raw)}}
	}

	var parsed chcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &billingerrors.ProviderError{Provider: changeHealthcareName,
			Err: errors.Wrap(err, "failed to parse eligibility response")}
	}

	return p.normalize(parsed, raw), nil
}

// Benefit codes from the X12 271 EB segment, as surfaced by the API.
const (
	benefitActiveCoverage = "1"
	benefitCopay          = "B"
	benefitCoinsurance    = "A"
	benefitDeductible     = "C"
	benefitOutOfPocket    = "G"

	timeQualifierRemaining = "29"
)

func (p *changeHealthcareProvider) normalize(resp chcResponse, raw []byte) *Result {
	result := &Result{
		Status: models.EligibilityStatusInactive,
		Raw:    raw,
		Source: changeHealthcareName,
	}

	for _, plan := range resp.PlanStatus {
		if plan.StatusCode == benefitActiveCoverage {
			result.Status = models.EligibilityStatusActive
			applyCoverageFlags(&result.CoverageDetails, plan.ServiceTypeCodes)
		}
	}

	var deductibleRemaining, oopRemaining *float64

	for _, benefit := range resp.BenefitsInformation {
		amount, hasAmount := parseAmount(benefit.BenefitAmount)
		percent, hasPercent := parseAmount(benefit.BenefitPercent)

		switch benefit.Code {
		case benefitActiveCoverage:
			applyCoverageFlags(&result.CoverageDetails, benefit.ServiceTypeCodes)
		case benefitCopay:
			if hasAmount {
				result.Copay = &amount
			}
		case benefitCoinsurance:
			if hasPercent {
				result.Coinsurance = &percent
			}
		case benefitDeductible:
			if hasAmount {
				if benefit.TimeQualifierCode == timeQualifierRemaining {
					deductibleRemaining = &amount
				} else {
					result.Deductible = &amount
				}
			}
		case benefitOutOfPocket:
			if hasAmount {
				if benefit.TimeQualifierCode == timeQualifierRemaining {
					oopRemaining = &amount
				} else {
					result.OutOfPocketMax = &amount
				}
			}
		}
	}

	result.Deductible, result.DeductibleMet = resolveMet(result.Deductible, deductibleRemaining)
	result.OutOfPocketMax, result.OutOfPocketMet = resolveMet(result.OutOfPocketMax, oopRemaining)

	return result
}

// resolveMet turns a "Remaining" (time qualifier 29) benefit amount into the
// met portion of the benefit: met is total minus remaining. When the response
// never carried a total, the remaining balance is all we know, so it stands
// in as the total with nothing met.
func resolveMet(total, remaining *float64) (*float64, *float64) {
	if remaining == nil {
		return total, nil
	}
	if total == nil {
		return remaining, floatPtr(0)
	}
	met := *total - *remaining
	if met < 0 {
		met = 0
	}
	return total, &met
}

// applyCoverageFlags sets the coverage booleans for every recognized X12
// service type code in the list.
func applyCoverageFlags(details *models.CoverageDetails, serviceTypeCodes []string) {
	for _, code := range serviceTypeCodes {
		switch code {
		case constants.ServiceTypeLab:
			details.LabCoverage = true
		case constants.ServiceTypeGenetic:
			details.GeneticTestingCoverage = true
		case constants.ServiceTypePreventive:
			details.PreventiveCareCoverage = true
		}
	}
}

func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
