package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
	"github.com/rjw57/componentsdb/internal/domain/entities"
	"github.com/rjw57/componentsdb/internal/domain/repositories"
	"github.com/rjw57/componentsdb/internal/pkg/idgen"
	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

// Default token lifetimes
const (
	DefaultAccessTokenLifetime  = time.Hour
	DefaultRefreshTokenLifetime = 7 * 24 * time.Hour
)

// UserCredentials are the first-party tokens issued to a user
type UserCredentials struct {
	User                 *entities.User
	AccessToken          string
	RefreshToken         string
	AccessTokenLifetime  int64 // seconds
	RefreshTokenLifetime int64 // seconds
}

// AuthenticationProvider signs up and signs in users with federated identity
// tokens and issues, refreshes and authenticates first-party tokens
type AuthenticationProvider struct {
	uow                  repositories.UnitOfWork
	registry             *oidc.Registry
	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration
	now                  func() time.Time
	logger               *slog.Logger
}

// ProviderOption configures an AuthenticationProvider
type ProviderOption func(*AuthenticationProvider)

// WithAccessTokenLifetime overrides DefaultAccessTokenLifetime
func WithAccessTokenLifetime(d time.Duration) ProviderOption {
	return func(p *AuthenticationProvider) {
		p.accessTokenLifetime = d
	}
}

// WithRefreshTokenLifetime overrides DefaultRefreshTokenLifetime
func WithRefreshTokenLifetime(d time.Duration) ProviderOption {
	return func(p *AuthenticationProvider) {
		p.refreshTokenLifetime = d
	}
}

// WithClock sets the time source for token expiry
func WithClock(now func() time.Time) ProviderOption {
	return func(p *AuthenticationProvider) {
		p.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *AuthenticationProvider) {
		p.logger = logger
	}
}

// NewAuthenticationProvider creates an authentication provider. registry holds
// the federated identity providers users may sign up and sign in with.
func NewAuthenticationProvider(uow repositories.UnitOfWork, registry *oidc.Registry, opts ...ProviderOption) *AuthenticationProvider {
	p := &AuthenticationProvider{
		uow:                  uow,
		registry:             registry,
		accessTokenLifetime:  DefaultAccessTokenLifetime,
		refreshTokenLifetime: DefaultRefreshTokenLifetime,
		now:                  time.Now,
		logger:               slog.Default().With("component", "authentication_provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateUserFromFederatedCredential signs up a new user identified by a token
// from the named provider. If the token has a jti claim it must not have been
// presented before.
func (p *AuthenticationProvider) CreateUserFromFederatedCredential(ctx context.Context, provider, credential string) (_ *UserCredentials, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAuthOperation("create_user_from_federated_credential", time.Since(start), err, authErrorKinds)
	}()

	existing, verified, err := p.queryUserFromFederatedCredential(ctx, provider, credential)
	if err != nil {
		p.audit(ctx, entities.NewAuditLog(nil, entities.ActionUserSignUpFailed, entities.ResourceFederatedCredential).
			WithMetadata("provider", provider).
			WithError(err))
		return nil, err
	}
	if existing != nil {
		err = fmt.Errorf("%w: user already registered with that identity", ErrUserAlreadySignedUp)
		p.audit(ctx, entities.NewAuditLog(&existing.ID, entities.ActionUserSignUpFailed, entities.ResourceFederatedCredential).
			WithMetadata("provider", provider).
			WithError(err))
		return nil, err
	}

	creds, linked, err := p.createUserForClaims(ctx, verified)
	if err != nil {
		p.audit(ctx, entities.NewAuditLog(nil, entities.ActionUserSignUpFailed, entities.ResourceFederatedCredential).
			WithMetadata("provider", provider).
			WithError(err))
		return nil, err
	}

	p.logger.Info("user signed up with federated credential",
		slog.String("user_id", creds.User.ID),
		slog.String("provider", provider),
		slog.String("subject", linked.Subject))
	p.audit(ctx, entities.NewAuditLog(&creds.User.ID, entities.ActionUserSignedUp, entities.ResourceUser).
		WithResourceID(creds.User.ID).
		WithMetadata("provider", provider).
		WithMetadata("credential_id", linked.ID))
	return creds, nil
}

// UserCredentialsFromFederatedCredential signs in the user identified by a
// token from the named provider. If the token has a jti claim it must not
// have been presented before.
func (p *AuthenticationProvider) UserCredentialsFromFederatedCredential(ctx context.Context, provider, credential string) (_ *UserCredentials, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAuthOperation("user_credentials_from_federated_credential", time.Since(start), err, authErrorKinds)
	}()

	user, _, err := p.queryUserFromFederatedCredential(ctx, provider, credential)
	if err == nil && user == nil {
		err = ErrNoSuchUser
	}
	if err != nil {
		p.audit(ctx, entities.NewAuditLog(nil, entities.ActionUserSignInFailed, entities.ResourceFederatedCredential).
			WithMetadata("provider", provider).
			WithError(err))
		return nil, err
	}

	creds, err := p.CreateUserCredentials(ctx, user)
	if err != nil {
		return nil, err
	}

	p.audit(ctx, entities.NewAuditLog(&user.ID, entities.ActionUserSignedIn, entities.ResourceUser).
		WithResourceID(user.ID).
		WithMetadata("provider", provider))
	return creds, nil
}

// UserCredentialsFromRefreshToken redeems a refresh token for a new access
// and refresh token pair. A refresh token can be redeemed at most once.
func (p *AuthenticationProvider) UserCredentialsFromRefreshToken(ctx context.Context, refreshToken string) (_ *UserCredentials, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAuthOperation("user_credentials_from_refresh_token", time.Since(start), err, authErrorKinds)
	}()

	creds, err := p.redeemRefreshToken(ctx, refreshToken)
	if err != nil {
		p.audit(ctx, entities.NewAuditLog(nil, entities.ActionTokenRefreshFailed, entities.ResourceRefreshToken).
			WithError(err))
		return nil, err
	}

	p.audit(ctx, entities.NewAuditLog(&creds.User.ID, entities.ActionTokenRefreshed, entities.ResourceRefreshToken).
		WithResourceID(creds.User.ID))
	return creds, nil
}

func (p *AuthenticationProvider) redeemRefreshToken(ctx context.Context, refreshToken string) (*UserCredentials, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	repos := tx.GetRepositories()

	now := p.now()
	userID, err := repos.Tokens.RedeemRefreshToken(ctx, idgen.HashToken(refreshToken), now)
	if errors.Is(err, repositories.ErrTokenNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	user, err := repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token owner: %w", err)
	}

	creds, err := p.issueTokens(ctx, repos.Tokens, user, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refresh: %w", err)
	}
	return creds, nil
}

// AuthenticateUserFromAccessToken returns the owner of an unexpired access token
func (p *AuthenticationProvider) AuthenticateUserFromAccessToken(ctx context.Context, accessToken string) (_ *entities.User, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAuthOperation("authenticate_user_from_access_token", time.Since(start), err, authErrorKinds)
	}()

	user, err := p.uow.Repositories().Tokens.GetUserByAccessToken(ctx, idgen.HashToken(accessToken), p.now())
	if errors.Is(err, repositories.ErrTokenNotFound) {
		return nil, ErrInvalidAccessToken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUserCredentials issues a new access and refresh token pair for user
func (p *AuthenticationProvider) CreateUserCredentials(ctx context.Context, user *entities.User) (*UserCredentials, error) {
	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	creds, err := p.issueTokens(ctx, tx.GetRepositories().Tokens, user, p.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user credentials: %w", err)
	}
	return creds, nil
}

// CleanupExpiredTokens deletes access and refresh tokens that expired more
// than olderThan ago and returns the number deleted
func (p *AuthenticationProvider) CleanupExpiredTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	before := p.now().Add(-olderThan)
	deleted, err := p.uow.Repositories().Tokens.DeleteExpired(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("deleted expired tokens", slog.Int64("count", deleted))
		p.audit(ctx, entities.NewAuditLog(nil, entities.ActionTokensCleanedUp, entities.ResourceSystem).
			WithMetadata("deleted", deleted).
			WithMetadata("older_than", olderThan.String()))
	}
	return deleted, nil
}

// issueTokens stores a new token pair for user using tokens, which should be
// bound to the caller's transaction
func (p *AuthenticationProvider) issueTokens(ctx context.Context, tokens repositories.TokenRepository, user *entities.User, now time.Time) (*UserCredentials, error) {
	accessToken, err := idgen.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := idgen.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	if err := tokens.CreateAccessToken(ctx, &entities.AccessToken{
		TokenHash: idgen.HashToken(accessToken),
		UserID:    user.ID,
		ExpiresAt: now.Add(p.accessTokenLifetime),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := tokens.CreateRefreshToken(ctx, &entities.RefreshToken{
		TokenHash: idgen.HashToken(refreshToken),
		UserID:    user.ID,
		ExpiresAt: now.Add(p.refreshTokenLifetime),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	return &UserCredentials{
		User:                 user,
		AccessToken:          accessToken,
		RefreshToken:         refreshToken,
		AccessTokenLifetime:  int64(p.accessTokenLifetime / time.Second),
		RefreshTokenLifetime: int64(p.refreshTokenLifetime / time.Second),
	}, nil
}

// verifiedCredential is a federated token that passed verification
type verifiedCredential struct {
	provider *oidc.Provider
	claims   *oidc.Claims
}

// queryUserFromFederatedCredential verifies credential with the named
// provider, records its use and returns the linked user, or nil if the
// identity is not linked to any user. The use is recorded whatever the
// outcome so that a token with a jti is spent as soon as it is seen.
func (p *AuthenticationProvider) queryUserFromFederatedCredential(ctx context.Context, providerName, credential string) (*entities.User, *verifiedCredential, error) {
	provider, validator, ok := p.registry.Get(providerName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidProvider, providerName)
	}

	claims, err := validator.Validate(ctx, credential)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidFederatedCredential, err)
	}
	switch {
	case len(claims.Audience) == 0:
		return nil, nil, fmt.Errorf("%w: claim 'aud' not present", ErrInvalidFederatedCredential)
	case claims.Issuer == "":
		return nil, nil, fmt.Errorf("%w: claim 'iss' not present", ErrInvalidFederatedCredential)
	case claims.Subject == "":
		return nil, nil, fmt.Errorf("%w: claim 'sub' not present", ErrInvalidFederatedCredential)
	}

	repos := p.uow.Repositories()
	use := entities.NewFederatedUserCredentialUse(claims.Map())
	use.CreatedAt = p.now().UTC()
	if err := repos.CredentialUses.Create(ctx, use); err != nil {
		return nil, nil, err
	}

	if use.JTI != nil {
		others, err := repos.CredentialUses.CountOtherUses(ctx, *use.JTI, use.ID)
		if err != nil {
			return nil, nil, err
		}
		if others > 0 {
			p.logger.Info("rejecting reused federated credential",
				slog.String("provider", providerName),
				slog.String("jti", *use.JTI))
			return nil, nil, fmt.Errorf("%w: the federated credential has already been used", ErrInvalidFederatedCredential)
		}
	}

	user, err := repos.Credentials.GetUserByCredential(ctx, claims.Issuer, provider.Audience, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return user, &verifiedCredential{provider: provider, claims: claims}, nil
}

// createUserForClaims creates a user, links the federated identity and issues
// tokens in one transaction
func (p *AuthenticationProvider) createUserForClaims(ctx context.Context, verified *verifiedCredential) (*UserCredentials, *entities.FederatedUserCredential, error) {
	claims := verified.claims
	now := p.now().UTC()

	displayName := claims.Subject
	if claims.Name != nil {
		displayName = *claims.Name
	}
	user := &entities.User{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		DisplayName:   displayName,
		AvatarURL:     claims.Picture,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	credential := &entities.FederatedUserCredential{
		Issuer:    claims.Issuer,
		Audience:  verified.provider.Audience,
		Subject:   claims.Subject,
		CreatedAt: now,
	}

	tx, err := p.uow.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()
	repos := tx.GetRepositories()

	if err := repos.Users.Create(ctx, user); err != nil {
		return nil, nil, err
	}
	credential.UserID = user.ID
	if err := repos.Credentials.Create(ctx, credential); err != nil {
		if errors.Is(err, repositories.ErrCredentialExists) {
			// Lost a race with a concurrent sign-up for the same identity
			return nil, nil, fmt.Errorf("%w: user already registered with that identity", ErrUserAlreadySignedUp)
		}
		return nil, nil, err
	}

	creds, err := p.issueTokens(ctx, repos.Tokens, user, now)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit sign-up: %w", err)
	}
	return creds, credential, nil
}

// audit writes an audit log entry. Failures are logged and otherwise ignored.
func (p *AuthenticationProvider) audit(ctx context.Context, log *entities.AuditLog) {
	log.CreatedAt = p.now().UTC()
	if err := p.uow.Repositories().Audit.Create(ctx, log); err != nil {
		p.logger.Warn("failed to write audit log",
			slog.String("action", string(log.Action)),
			slog.String("error", err.Error()))
	}
}
