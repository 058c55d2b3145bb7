package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Policy is a predicate over a claim set. Evaluate returns nil to pass.
type Policy interface {
	Evaluate(ctx context.Context, claims *Claims) error
}

// PolicyFunc adapts a function to the Policy interface
type PolicyFunc func(ctx context.Context, claims *Claims) error

// Evaluate calls f(ctx, claims)
func (f PolicyFunc) Evaluate(ctx context.Context, claims *Claims) error {
	return f(ctx, claims)
}

// Policies evaluates its members in order. The first failure stops evaluation.
type Policies []Policy

// Evaluate runs each policy in turn. Any failure is returned wrapping ErrInvalidClaims.
func (ps Policies) Evaluate(ctx context.Context, claims *Claims) error {
	for _, p := range ps {
		if err := p.Evaluate(ctx, claims); err != nil {
			if !errors.Is(err, ErrInvalidClaims) {
				err = fmt.Errorf("%w: %w", ErrInvalidClaims, err)
			}
			return err
		}
	}
	return nil
}

// AudienceIssuer is an acceptable (aud, iss) pairing
type AudienceIssuer struct {
	Audience string
	Issuer   string
}

// ExpectedAudienceAndIssuer passes when the token's issuer and one of its
// audiences match at least one pair.
func ExpectedAudienceAndIssuer(pairs ...AudienceIssuer) Policy {
	return PolicyFunc(func(ctx context.Context, claims *Claims) error {
		for _, p := range pairs {
			if claims.Issuer == p.Issuer && claims.HasAudience(p.Audience) {
				return nil
			}
		}
		slog.InfoContext(ctx, "Rejecting token since it has no acceptable audience and issuer",
			"issuer", claims.Issuer, "audience", []string(claims.Audience))
		return fmt.Errorf("%w: token does not have an acceptable audience and issuer", ErrInvalidClaims)
	})
}

// ExpectedClaim passes when the named claim equals one of values. For array
// valued claims, any element may match.
func ExpectedClaim(name string, values ...string) Policy {
	return PolicyFunc(func(ctx context.Context, claims *Claims) error {
		v, ok := claims.Get(name)
		if !ok {
			return fmt.Errorf("%w: token is missing claim %q", ErrInvalidClaims, name)
		}
		if claimMatches(v, values) {
			return nil
		}
		slog.InfoContext(ctx, "Rejecting token since claim has unexpected value", "claim", name)
		return fmt.Errorf("%w: claim %q does not match any expected value", ErrInvalidClaims, name)
	})
}

func claimMatches(v any, values []string) bool {
	switch v := v.(type) {
	case string:
		return slices.Contains(values, v)
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok && slices.Contains(values, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(values, s) {
				return true
			}
		}
	}
	return false
}

// RequiredClaims passes when every named claim is present
func RequiredClaims(names ...string) Policy {
	return PolicyFunc(func(ctx context.Context, claims *Claims) error {
		for _, name := range names {
			if _, ok := claims.Get(name); !ok {
				return fmt.Errorf("%w: token is missing required claim %q", ErrInvalidClaims, name)
			}
		}
		return nil
	})
}

// AllowedUsers restricts sign-in to verified email addresses that are listed
// explicitly or belong to one of the listed domains. With both lists empty,
// every token passes.
func AllowedUsers(domains, users []string) Policy {
	return PolicyFunc(func(ctx context.Context, claims *Claims) error {
		if len(domains) == 0 && len(users) == 0 {
			return nil
		}
		if claims.Email == nil || !claims.EmailVerified {
			return fmt.Errorf("%w: token does not carry a verified email address", ErrInvalidClaims)
		}
		email := strings.ToLower(*claims.Email)
		if slices.Contains(users, email) {
			return nil
		}
		if at := strings.LastIndex(email, "@"); at >= 0 && slices.Contains(domains, email[at+1:]) {
			return nil
		}
		slog.InfoContext(ctx, "Rejecting token since user is not allowed", "email", email)
		return fmt.Errorf("%w: user is not allowed", ErrInvalidClaims)
	})
}
