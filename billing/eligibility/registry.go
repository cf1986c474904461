package eligibility

import (
	"strings"
	"sync"

	"github.com/vitalpath/billing-app/conf"
)

// ProviderType tags the concrete provider variants the registry can build.
type ProviderType string

const (
	ProviderTypeChangeHealthcare ProviderType = "change-healthcare"
	ProviderTypeAvaility         ProviderType = "availity"
	ProviderTypeMock             ProviderType = "mock"
)

// payerProviderTypes routes a payer identifier prefix to a provider type.
// Payers without an entry fall back to the mock provider.
var payerProviderTypes = map[string]ProviderType{
	"AETNA":  ProviderTypeAvaility,
	"BCBS":   ProviderTypeChangeHealthcare,
	"UHC":    ProviderTypeChangeHealthcare,
	"CIGNA":  ProviderTypeChangeHealthcare,
	"HUMANA": ProviderTypeAvaility,
}

// Registry owns provider construction and caching: one lazily-built
// instance per provider type. It is injected wherever providers are needed
// so tests can substitute their own.
type Registry struct {
	mu        sync.Mutex
	instances map[ProviderType]Provider

	chcConfig      ChangeHealthcareConfig
	availityConfig AvailityConfig
}

// NewRegistry loads provider configuration from the environment. Instances
// are not constructed until first requested, so missing credentials for a
// provider type only matter if a payer actually routes to it.
func NewRegistry() (*Registry, error) {
	r := &Registry{instances: make(map[ProviderType]Provider)}
	if err := conf.Checkout(&r.chcConfig); err != nil {
		return nil, err
	}
	if err := conf.Checkout(&r.availityConfig); err != nil {
		return nil, err
	}
	return r, nil
}

// TypeForPayer maps a payer identifier to its provider type by prefix
// match, defaulting to the mock provider.
func TypeForPayer(payerID string) ProviderType {
	upper := strings.ToUpper(payerID)
	for prefix, t := range payerProviderTypes {
		if strings.HasPrefix(upper, prefix) {
			return t
		}
	}
	return ProviderTypeMock
}

// ProviderForPayer returns the cached provider instance for the payer's
// type, constructing it on first request.
func (r *Registry) ProviderForPayer(payerID string) (Provider, error) {
	return r.provider(TypeForPayer(payerID))
}

func (r *Registry) provider(t ProviderType) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[t]; ok {
		return p, nil
	}

	p, err := r.build(t)
	if err != nil {
		return nil, err
	}
	r.instances[t] = p
	return p, nil
}

func (r *Registry) build(t ProviderType) (Provider, error) {
	switch t {
	case ProviderTypeChangeHealthcare:
		return NewChangeHealthcareProvider(r.chcConfig)
	case ProviderTypeAvaility:
		return NewAvailityProvider(r.availityConfig)
	default:
		return NewMockProvider(), nil
	}
}

// ConfigureChangeHealthcare replaces the provider type's settings and
// evicts any cached instance so the next request rebuilds with them.
func (r *Registry) ConfigureChangeHealthcare(config ChangeHealthcareConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chcConfig = config
	delete(r.instances, ProviderTypeChangeHealthcare)
}

// ConfigureAvaility replaces the provider type's settings and evicts any
// cached instance.
func (r *Registry) ConfigureAvaility(config AvailityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.availityConfig = config
	delete(r.instances, ProviderTypeAvaility)
}

// SetProvider installs a pre-built instance for a provider type. Intended
// for tests.
func (r *Registry) SetProvider(t ProviderType, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[t] = p
}
