// Package eligibility verifies insurance coverage against external payer
// APIs. Heterogeneous payer endpoints sit behind the Provider interface;
// Checker adds caching and a simulated fallback on top.
package eligibility

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/vitalpath/billing-app/billing/constants"
	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/log"
)

// Request carries the member and service being verified.
type Request struct {
	MemberID    string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	PayerID     string
	// X12 service type code; empty defaults to laboratory ("30").
	ServiceType string
	ProviderNPI string
}

// serviceType returns the requested service type, defaulted.
func (r Request) serviceType() string {
	if r.ServiceType == "" {
		return constants.ServiceTypeLab
	}
	return r.ServiceType
}

// Result is the normalized outcome of one eligibility call, independent of
// which payer API produced it.
type Result struct {
	Status models.EligibilityStatus

	Deductible     *float64
	DeductibleMet  *float64
	OutOfPocketMax *float64
	OutOfPocketMet *float64
	Copay          *float64
	Coinsurance    *float64

	CoverageDetails models.CoverageDetails

	// Raw provider response, retained for audit.
	Raw []byte
	// Source names the provider (or "simulated") that produced the result.
	Source string
}

// Provider is one external eligibility-verification API.
type Provider interface {
	Name() string
	CheckEligibility(ctx context.Context, req Request) (*Result, error)
}

const (
	defaultMaxAttempts   = 3
	retryWaitMin         = 1 * time.Second
	retryWaitMax         = 10 * time.Second
	defaultProviderLimit = 30 * time.Second
)

// newProviderClient builds the HTTP client shared by the real providers:
// bounded exponential retry with jitter, delay min(1s * 2^attempt, 10s).
func newProviderClient(name string, maxAttempts int) *retryablehttp.Client {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}

	client := retryablehttp.NewClient()
	client.RetryMax = maxAttempts - 1
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.HTTPClient.Timeout = defaultProviderLimit
	client.Backoff = jitteredExponentialBackoff
	client.Logger = log.Eligibility.WithField("provider", name)
	return client
}

// jitteredExponentialBackoff grows the delay as min(min * 2^attempt, max)
// and adds up to 25% random jitter so concurrent retries spread out.
func jitteredExponentialBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	delay := math.Min(float64(min)*math.Pow(2, float64(attemptNum)), float64(max))
	jitter := rand.Float64() * 0.25 * delay
	return time.Duration(delay + jitter)
}

func providerLogger(name string) logrus.FieldLogger {
	return log.Eligibility.WithField("provider", name)
}

func floatPtr(v float64) *float64 { return &v }
