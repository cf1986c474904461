package eligibility

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	billingerrors "github.com/vitalpath/billing-app/billing/errors"
	"github.com/vitalpath/billing-app/billing/models"
)

const availityName = "availity"

// AvailityConfig holds the OAuth2 client-credentials settings for the
// Availity coverages API.
type AvailityConfig struct {
	ClientID     string `conf:"BILLING_AVAILITY_CLIENT_ID"`
	ClientSecret string `conf:"BILLING_AVAILITY_CLIENT_SECRET"`
	TokenURL     string `conf:"BILLING_AVAILITY_TOKEN_URL" conf_default:"https://api.availity.com/availity/v1/token"`
	BaseURL      string `conf:"BILLING_AVAILITY_BASE_URL" conf_default:"https://api.availity.com/availity/v1/coverages"`
	MaxAttempts  int    `conf:"BILLING_AVAILITY_MAX_ATTEMPTS" conf_default:"3"`
}

type availityProvider struct {
	config AvailityConfig
	client *retryablehttp.Client
	logger logrus.FieldLogger

	// tokens caches the bearer token and refreshes it only on expiry;
	// concurrent callers share a single in-flight refresh.
	tokens oauth2.TokenSource
}

// NewAvailityProvider validates the configuration and builds the provider.
func NewAvailityProvider(config AvailityConfig) (Provider, error) {
	var missing []string
	if config.ClientID == "" {
		missing = append(missing, "client id")
	}
	if config.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if config.TokenURL == "" {
		missing = append(missing, "token url")
	}
	if config.BaseURL == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return nil, &billingerrors.ConfigurationError{Provider: availityName, Missing: missing}
	}

	credentials := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
	}

	return &availityProvider{
		config: config,
		client: newProviderClient(availityName, config.MaxAttempts),
		logger: providerLogger(availityName),
		tokens: credentials.TokenSource(context.Background()),
	}, nil
}

func (p *availityProvider) Name() string { return availityName }

type availityResponse struct {
	Coverages []struct {
		Status string `json:"status"`
		Plans  []struct {
			Status       string `json:"status"`
			ServiceTypes []struct {
				Code string `json:"code"`
			} `json:"serviceTypes"`
			Deductible struct {
				Amount    *float64 `json:"amount"`
				Remaining *float64 `json:"remaining"`
			} `json:"deductible"`
			OutOfPocket struct {
				Amount    *float64 `json:"amount"`
				Remaining *float64 `json:"remaining"`
			} `json:"outOfPocket"`
			Copay       *float64 `json:"copay"`
			Coinsurance *float64 `json:"coinsurance"`
		} `json:"plans"`
	} `json:"coverages"`
}

func (p *availityProvider) CheckEligibility(ctx context.Context, req Request) (*Result, error) {
	token, err := p.tokens.Token()
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: availityName,
			Err: errors.Wrap(err, "failed to obtain access token")}
	}

	query := url.Values{}
	query.Set("memberId", req.MemberID)
	query.Set("payerId", req.PayerID)
	query.Set("serviceType", req.serviceType())
	if req.ProviderNPI != "" {
		query.Set("providerNpi", req.ProviderNPI)
	}
	if !req.DateOfBirth.IsZero() {
		query.Set("birthDate", req.DateOfBirth.Format("2006-01-02"))
	}

	httpReq, err := retryablehttp.NewRequest(http.MethodGet, p.config.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: availityName, Err: err}
	}
	httpReq = httpReq.WithContext(ctx)
	token.SetAuthHeader(httpReq.Request)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: availityName,
			Err: errors.Wrap(err, "coverages request failed")}
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, &billingerrors.ProviderError{Provider: availityName, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &billingerrors.ProviderError{Provider: availityName,
			Err: &billingerrors.UnexpectedStatusCodeError{StatusCode: resp.StatusCode, Body: string(raw)}}
	}

	var parsed availityResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &billingerrors.ProviderError{Provider: availityName,
			Err: errors.Wrap(err, "failed to parse coverages response")}
	}

	return p.normalize(parsed, raw), nil
}

func (p *availityProvider) normalize(resp availityResponse, raw []byte) *Result {
	result := &Result{
		Status: models.EligibilityStatusInactive,
		Raw:    raw,
		Source: availityName,
	}

	for _, coverage := range resp.Coverages {
		switch coverage.Status {
		case "Active":
			result.Status = models.EligibilityStatusActive
		case "Pending":
			if result.Status != models.EligibilityStatusActive {
				result.Status = models.EligibilityStatusPending
			}
		}

		for _, plan := range coverage.Plans {
			var codes []string
			for _, st := range plan.ServiceTypes {
				codes = append(codes, st.Code)
			}
			applyCoverageFlags(&result.CoverageDetails, codes)

			if plan.Deductible.Amount != nil {
				result.Deductible = plan.Deductible.Amount
			}
			if plan.Deductible.Amount != nil && plan.Deductible.Remaining != nil {
				met := *plan.Deductible.Amount - *plan.Deductible.Remaining
				result.DeductibleMet = &met
			}
			if plan.OutOfPocket.Amount != nil {
				result.OutOfPocketMax = plan.OutOfPocket.Amount
			}
			if plan.OutOfPocket.Amount != nil && plan.OutOfPocket.Remaining != nil {
				met := *plan.OutOfPocket.Amount - *plan.OutOfPocket.Remaining
				result.OutOfPocketMet = &met
			}
			if plan.Copay != nil {
				result.Copay = plan.Copay
			}
			if plan.Coinsurance != nil {
				result.Coinsurance = plan.Coinsurance
			}
		}
	}

	return result
}
