package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

// signingAlgorithms lists the accepted JWS algorithms. Only asymmetric
// algorithms are accepted since keys are published.
var signingAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// Validator verifies federated identity tokens. A token is parsed without
// trust, checked by the pre-validation policies, verified against the key set
// published by its issuer and finally checked by the post-validation policies.
type Validator struct {
	resolver     *Resolver
	prePolicies  Policies
	postPolicies Policies
	now          func() time.Time
	leeway       time.Duration
	logger       *slog.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithPrePolicies appends policies evaluated against unverified claims,
// before any network fetch
func WithPrePolicies(policies ...Policy) Option {
	return func(v *Validator) {
		v.prePolicies = append(v.prePolicies, policies...)
	}
}

// WithPostPolicies appends policies evaluated against verified claims
func WithPostPolicies(policies ...Policy) Option {
	return func(v *Validator) {
		v.postPolicies = append(v.postPolicies, policies...)
	}
}

// WithClock sets the time source used for exp and nbf checks
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithLeeway allows for clock skew when checking exp and nbf
func WithLeeway(leeway time.Duration) Option {
	return func(v *Validator) {
		v.leeway = leeway
	}
}

// NewValidator creates a validator resolving keys with resolver
func NewValidator(resolver *Resolver, opts ...Option) *Validator {
	v := &Validator{
		resolver: resolver,
		now:      time.Now,
		logger:   slog.Default().With("component", "oidc_validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the verified claims of token. Every error wraps one of the
// package's sentinel errors.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.validate(ctx, token)
	metrics.TokenValidations.WithLabelValues(validationResult(err)).Inc()
	return claims, err
}

func (v *Validator) validate(ctx context.Context, token string) (*Claims, error) {
	kid, unverified, err := parseUnverified(token)
	if err != nil {
		return nil, err
	}

	if err := v.prePolicies.Evaluate(ctx, unverified); err != nil {
		return nil, err
	}

	issuer := unverified.Issuer
	if issuer == "" {
		return nil, fmt.Errorf("%w: claim 'iss' not present", ErrInvalidToken)
	}

	keys, err := v.resolver.Resolve(ctx, issuer)
	if err != nil {
		return nil, err
	}

	claims, err := v.verify(token, kid, keys)
	if errors.Is(err, errKeyNotFound) {
		// The issuer may have rotated keys since the set was cached
		fresh, refreshed, rerr := v.resolver.RefreshKeys(ctx, issuer)
		if rerr != nil {
			return nil, rerr
		}
		if refreshed {
			v.logger.Debug("Signing key not in cached key set, refetched", "issuer", issuer, "kid", kid)
			claims, err = v.verify(token, kid, fresh)
		}
	}
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			err = fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		v.logger.Info("Token failed verification", "issuer", issuer, "error", err)
		return nil, err
	}

	if err := v.postPolicies.Evaluate(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// verify checks the signature of token with each candidate key in turn, then
// the exp and nbf claims.
func (v *Validator) verify(token, kid string, keys jwk.Set) (*Claims, error) {
	candidates, err := candidateKeys(kid, keys)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(signingAlgorithms),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
	)

	var lastErr error
	for _, key := range candidates {
		claims := &Claims{}
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err == nil {
			return claims, nil
		}
		lastErr = err
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

// ValidateToken verifies token independently of any configured provider. The
// token's audience must be one of audiences and its issuer one of issuers.
func ValidateToken(ctx context.Context, resolver *Resolver, token string, audiences, issuers []string, opts ...Option) (*Claims, error) {
	opts = append([]Option{
		WithPrePolicies(ExpectedClaim("aud", audiences...), ExpectedClaim("iss", issuers...)),
	}, opts...)
	return NewValidator(resolver, opts...).Validate(ctx, token)
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidClaims):
		return "invalid_claims"
	case errors.Is(err, ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, ErrInvalidJWKSURL):
		return "invalid_jwks_url"
	case errors.Is(err, ErrInvalidDiscoveryDocument):
		return "invalid_discovery_document"
	case errors.Is(err, ErrFetch):
		return "fetch_error"
	default:
		return "invalid_token"
	}
}
