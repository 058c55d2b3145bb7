package oidc

import (
	"fmt"
	"slices"
	"sort"
)

// Provider is a federated identity provider trusted to vouch for users. Its
// issuer and audience form the pre-validation allow-list for its tokens.
type Provider struct {
	// Name identifies the provider in requests (e.g., "google", "acme")
	Name string

	// Issuer is the expected iss claim; must be an https URL
	Issuer string

	// Audience is the expected aud claim
	Audience string

	// PostPolicies are evaluated against verified claims
	PostPolicies []Policy
}

// Registry holds the configured providers. It is built once at startup and
// not modified afterwards.
type Registry struct {
	providers map[string]*Provider
	validator map[string]*Validator
}

// NewRegistry validates each provider's issuer and builds a validator per
// provider sharing resolver. Duplicate names are rejected.
func NewRegistry(resolver *Resolver, providers []Provider, opts ...Option) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*Provider, len(providers)),
		validator: make(map[string]*Validator, len(providers)),
	}
	for i := range providers {
		p := providers[i]
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if _, exists := r.providers[p.Name]; exists {
			return nil, fmt.Errorf("provider %s: duplicate name", p.Name)
		}
		if err := ValidateIssuer(p.Issuer); err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		if p.Audience == "" {
			return nil, fmt.Errorf("provider %s: audience is required", p.Name)
		}

		providerOpts := slices.Clone(opts)
		providerOpts = append(providerOpts,
			WithPrePolicies(ExpectedAudienceAndIssuer(AudienceIssuer{Audience: p.Audience, Issuer: p.Issuer})),
			WithPostPolicies(p.PostPolicies...),
		)
		r.providers[p.Name] = &p
		r.validator[p.Name] = NewValidator(resolver, providerOpts...)
	}
	return r, nil
}

// Get returns the named provider and its validator
func (r *Registry) Get(name string) (*Provider, *Validator, bool) {
	p, ok := r.providers[name]
	if !ok {
		return nil, nil, false
	}
	return p, r.validator[name], true
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
