package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"
)

// DefaultMinRefreshInterval is the shortest time between key set refreshes
// for one issuer triggered by tokens signed with an unknown key
const DefaultMinRefreshInterval = time.Minute

// DiscoveryDocument holds the fields of an OIDC discovery document used to
// locate an issuer's signing keys. Pointers distinguish absent fields.
type DiscoveryDocument struct {
	Issuer  *string `json:"issuer"`
	JWKSURI *string `json:"jwks_uri"`
}

// ParseDiscoveryDocument decodes body and checks it was served for issuer.
// It returns the validated jwks_uri.
func ParseDiscoveryDocument(issuer string, body []byte) (string, error) {
	var doc DiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: error decoding document: %v", ErrInvalidDiscoveryDocument, err)
	}
	if doc.Issuer == nil {
		return "", fmt.Errorf("%w: 'issuer' key not present", ErrInvalidDiscoveryDocument)
	}
	if *doc.Issuer != issuer {
		return "", fmt.Errorf("%w: issuer %q does not match expected issuer %q",
			ErrInvalidDiscoveryDocument, *doc.Issuer, issuer)
	}
	if doc.JWKSURI == nil {
		return "", fmt.Errorf("%w: 'jwks_uri' key not present", ErrInvalidDiscoveryDocument)
	}
	if err := ValidateJWKSURL(*doc.JWKSURI); err != nil {
		return "", err
	}
	return *doc.JWKSURI, nil
}

// Resolver turns a validated issuer into its published JWK set by way of the
// issuer's discovery document. Documents are cached by URL when a cache is set.
type Resolver struct {
	fetcher Fetcher
	cache   *ResponseCache
	logger  *slog.Logger

	minRefreshInterval time.Duration
	now                func() time.Time
	refreshMu          sync.Mutex
	refreshedAt        map[string]time.Time
	refreshGroup       singleflight.Group
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithMinRefreshInterval sets how often RefreshKeys may refetch an issuer's
// documents. Zero removes the limit.
func WithMinRefreshInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.minRefreshInterval = d
	}
}

// WithResolverClock sets the time source used to space refreshes
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver. cache may be nil to disable caching.
func NewResolver(fetcher Fetcher, cache *ResponseCache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:            fetcher,
		cache:              cache,
		logger:             slog.Default().With("component", "oidc_resolver"),
		minRefreshInterval: DefaultMinRefreshInterval,
		now:                time.Now,
		refreshedAt:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the key set for issuer, using cached documents when present
func (r *Resolver) Resolve(ctx context.Context, issuer string) (jwk.Set, error) {
	return r.resolve(ctx, issuer, false)
}

// ResolveFresh fetches both documents again, ignoring and then replacing any
// cached copies
func (r *Resolver) ResolveFresh(ctx context.Context, issuer string) (jwk.Set, error) {
	return r.resolve(ctx, issuer, true)
}

// RefreshKeys refetches issuer's documents after a token named a key missing
// from the cached set. Concurrent callers for one issuer share a single fetch
// and at most one refresh per issuer starts within the minimum interval. The
// boolean is false when the refresh was skipped; the cached set then stands.
func (r *Resolver) RefreshKeys(ctx context.Context, issuer string) (jwk.Set, bool, error) {
	v, err, _ := r.refreshGroup.Do(issuer, func() (any, error) {
		if !r.allowRefresh(issuer) {
			return nil, nil
		}
		keys, err := r.ResolveFresh(ctx, issuer)
		if err != nil {
			return nil, err
		}
		return keys, nil
	})
	if err != nil {
		return nil, false, err
	}
	keys, ok := v.(jwk.Set)
	return keys, ok && keys != nil, nil
}

// allowRefresh records a refresh attempt for issuer unless one started too
// recently. Failed attempts count too.
func (r *Resolver) allowRefresh(issuer string) bool {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	now := r.now()
	if last, ok := r.refreshedAt[issuer]; ok && now.Sub(last) < r.minRefreshInterval {
		r.logger.Debug("Skipping key set refresh, last refresh too recent", "issuer", issuer, "last_refresh", last)
		return false
	}
	r.refreshedAt[issuer] = now
	return true
}

func (r *Resolver) resolve(ctx context.Context, issuer string, fresh bool) (jwk.Set, error) {
	if err := ValidateIssuer(issuer); err != nil {
		return nil, err
	}

	discoveryURL := DiscoveryURL(issuer)
	discoveryBody, err := r.get(ctx, discoveryURL, fresh)
	if err != nil {
		return nil, err
	}
	jwksURL, err := ParseDiscoveryDocument(issuer, discoveryBody)
	if err != nil {
		r.logger.Warn("Rejected discovery document", "issuer", issuer, "error", err)
		return nil, err
	}
	r.remember(discoveryURL, discoveryBody)

	jwksBody, err := r.get(ctx, jwksURL, fresh)
	if err != nil {
		return nil, err
	}
	keys, err := jwk.Parse(jwksBody)
	if err != nil {
		r.logger.Warn("Rejected JWK set", "issuer", issuer, "jwks_uri", jwksURL, "error", err)
		return nil, fmt.Errorf("%w: failed to parse JWK set from %s: %v", ErrInvalidToken, jwksURL, err)
	}
	r.remember(jwksURL, jwksBody)

	r.logger.Debug("Resolved issuer key set", "issuer", issuer, "keys", keys.Len(), "fresh", fresh)
	return keys, nil
}

func (r *Resolver) get(ctx context.Context, url string, fresh bool) ([]byte, error) {
	if r.cache != nil && !fresh {
		if body, ok := r.cache.Get(url); ok {
			return body, nil
		}
	}
	return r.fetcher.Fetch(ctx, url)
}

// remember caches only documents that passed validation
func (r *Resolver) remember(url string, body []byte) {
	if r.cache != nil {
		r.cache.Set(url, body)
	}
}
