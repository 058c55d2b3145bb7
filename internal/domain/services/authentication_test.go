package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rjw57/componentsdb/internal/auth/oidc"
	"github.com/rjw57/componentsdb/internal/auth/oidc/oidctest"
	"github.com/rjw57/componentsdb/internal/domain/entities"
	"github.com/rjw57/componentsdb/internal/infrastructure/database/sqlstore"
	"github.com/rjw57/componentsdb/migrations"
)

const testAudience = "aud-1"

type testEnv struct {
	issuer *oidctest.Issuer
	uow    *sqlstore.UnitOfWork
	auth   *AuthenticationProvider

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T, providerOpts ...oidc.Option) *testEnv {
	t.Helper()

	env := &testEnv{
		issuer: oidctest.NewIssuer(t),
		now:    time.Now(),
	}

	cache := oidc.NewResponseCache(0, 0)
	t.Cleanup(cache.Stop)
	resolver := oidc.NewResolver(oidc.NewHTTPFetcher(env.issuer.Client(), 0), cache)
	registry, err := oidc.NewRegistry(resolver, []oidc.Provider{
		{Name: "acme", Issuer: env.issuer.URL(), Audience: testAudience},
	}, providerOpts...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	conn, err := sqlstore.NewConnection(sqlstore.DriverSQLite, sqlstore.SQLiteDSN(filepath.Join(t.TempDir(), "auth.db")))
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.RunMigrations(migrations.FS); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	env.uow = sqlstore.NewUnitOfWork(conn)
	env.auth = NewAuthenticationProvider(env.uow, registry, WithClock(env.clock))
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// token signs claims, filling in iss, aud and exp when absent
func (e *testEnv) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = e.issuer.URL()
	}
	if _, ok := claims["aud"]; !ok {
		claims["aud"] = testAudience
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	return e.issuer.Sign(t, claims)
}

func (e *testEnv) userCount(t *testing.T) int64 {
	t.Helper()
	count, err := e.uow.Repositories().Users.Count(context.Background())
	if err != nil {
		t.Fatalf("Users.Count() error = %v", err)
	}
	return count
}

func TestSignUpScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	token := env.token(t, jwt.MapClaims{"sub": "user-42", "jti": "t1"})
	creds, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", token)
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" || creds.AccessToken == creds.RefreshToken {
		t.Errorf("CreateUserFromFederatedCredential() returned tokens %q and %q", creds.AccessToken, creds.RefreshToken)
	}
	if creds.AccessTokenLifetime != 3600 || creds.RefreshTokenLifetime != 7*24*3600 {
		t.Errorf("lifetimes = %d, %d, want 3600, %d", creds.AccessTokenLifetime, creds.RefreshTokenLifetime, 7*24*3600)
	}
	if got := env.userCount(t); got != 1 {
		t.Errorf("user count = %d, want 1", got)
	}
	linked, err := env.uow.Repositories().Credentials.ListByUser(ctx, creds.User.ID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(linked) != 1 || linked[0].Subject != "user-42" || linked[0].Audience != testAudience || linked[0].Issuer != env.issuer.URL() {
		t.Errorf("ListByUser() = %+v, want one credential for user-42", linked)
	}

	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", token); !errors.Is(err, ErrInvalidFederatedCredential) {
		t.Errorf("replayed sign-up error = %v, want ErrInvalidFederatedCredential", err)
	}

	other := env.token(t, jwt.MapClaims{"sub": "user-42", "jti": "t2"})
	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", other); !errors.Is(err, ErrUserAlreadySignedUp) {
		t.Errorf("second sign-up error = %v, want ErrUserAlreadySignedUp", err)
	}
	if got := env.userCount(t); got != 1 {
		t.Errorf("user count after failed sign-ups = %d, want 1", got)
	}

	logs, err := env.uow.Repositories().Audit.ListRecent(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	var signedUp int
	for _, log := range logs {
		if log.Action == entities.ActionUserSignedUp {
			signedUp++
		}
	}
	if signedUp != 1 {
		t.Errorf("found %d sign-up audit entries, want 1", signedUp)
	}
}

func TestSignUpPopulatesUserFromClaims(t *testing.T) {
	tests := []struct {
		name            string
		claims          jwt.MapClaims
		wantDisplayName string
		wantEmail       string
		wantVerified    bool
		wantAvatar      string
	}{
		{
			name: "all optional claims",
			claims: jwt.MapClaims{
				"sub": "s1", "email": "alice@example.com", "email_verified": true,
				"name": "Alice", "picture": "https://example.com/alice.png",
			},
			wantDisplayName: "Alice",
			wantEmail:       "alice@example.com",
			wantVerified:    true,
			wantAvatar:      "https://example.com/alice.png",
		},
		{
			name:            "string email_verified",
			claims:          jwt.MapClaims{"sub": "s2", "email": "bob@example.com", "email_verified": "true"},
			wantDisplayName: "s2",
			wantEmail:       "bob@example.com",
			wantVerified:    true,
		},
		{
			name:            "subject only",
			claims:          jwt.MapClaims{"sub": "s3"},
			wantDisplayName: "s3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			creds, err := env.auth.CreateUserFromFederatedCredential(context.Background(), "acme", env.token(t, tt.claims))
			if err != nil {
				t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
			}

			user, err := env.uow.Repositories().Users.GetByID(context.Background(), creds.User.ID)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if user.DisplayName != tt.wantDisplayName {
				t.Errorf("DisplayName = %q, want %q", user.DisplayName, tt.wantDisplayName)
			}
			if got := deref(user.Email); got != tt.wantEmail {
				t.Errorf("Email = %q, want %q", got, tt.wantEmail)
			}
			if user.EmailVerified != tt.wantVerified {
				t.Errorf("EmailVerified = %v, want %v", user.EmailVerified, tt.wantVerified)
			}
			if got := deref(user.AvatarURL); got != tt.wantAvatar {
				t.Errorf("AvatarURL = %q, want %q", got, tt.wantAvatar)
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestSignInWithoutJTIIsRepeatable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	token := env.token(t, jwt.MapClaims{"sub": "user-1"})
	signedUp, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", token)
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	for i := range 2 {
		creds, err := env.auth.UserCredentialsFromFederatedCredential(ctx, "acme", token)
		if err != nil {
			t.Fatalf("sign-in %d error = %v", i, err)
		}
		if creds.User.ID != signedUp.User.ID {
			t.Errorf("sign-in %d user = %s, want %s", i, creds.User.ID, signedUp.User.ID)
		}
	}
}

func TestFederatedCredentialReplay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "user-1", "jti": "a"})); err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	tests := []struct {
		name         string
		claims       jwt.MapClaims
		wantFirst    error
		wantReplayed error
	}{
		{"after success", jwt.MapClaims{"sub": "user-1", "jti": "b"}, nil, ErrInvalidFederatedCredential},
		{"after failure", jwt.MapClaims{"sub": "nobody", "jti": "c"}, ErrNoSuchUser, ErrInvalidFederatedCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := env.token(t, tt.claims)
			if _, err := env.auth.UserCredentialsFromFederatedCredential(ctx, "acme", token); !errors.Is(err, tt.wantFirst) {
				t.Fatalf("first sign-in error = %v, want %v", err, tt.wantFirst)
			}
			if _, err := env.auth.UserCredentialsFromFederatedCredential(ctx, "acme", token); !errors.Is(err, tt.wantReplayed) {
				t.Errorf("replayed sign-in error = %v, want %v", err, tt.wantReplayed)
			}
		})
	}
}

func TestFederatedCredentialErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name     string
		provider string
		token    func(t *testing.T) string
		wantErrs []error
	}{
		{
			name:     "unknown provider",
			provider: "nope",
			token:    func(t *testing.T) string { return env.token(t, jwt.MapClaims{"sub": "s"}) },
			wantErrs: []error{ErrInvalidProvider},
		},
		{
			name:     "malformed token",
			provider: "acme",
			token:    func(t *testing.T) string { return "not-a-jwt" },
			wantErrs: []error{ErrInvalidFederatedCredential, oidc.ErrInvalidToken},
		},
		{
			name:     "missing subject",
			provider: "acme",
			token:    func(t *testing.T) string { return env.token(t, jwt.MapClaims{}) },
			wantErrs: []error{ErrInvalidFederatedCredential},
		},
		{
			name:     "expired",
			provider: "acme",
			token: func(t *testing.T) string {
				return env.token(t, jwt.MapClaims{"sub": "s", "exp": time.Now().Add(-time.Hour).Unix()})
			},
			wantErrs: []error{ErrInvalidFederatedCredential, oidc.ErrInvalidToken},
		},
		{
			name:     "unknown user",
			provider: "acme",
			token:    func(t *testing.T) string { return env.token(t, jwt.MapClaims{"sub": "nobody"}) },
			wantErrs: []error{ErrNoSuchUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.UserCredentialsFromFederatedCredential(ctx, tt.provider, tt.token(t))
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("UserCredentialsFromFederatedCredential() error = %v, want %v", err, want)
				}
			}
			if !IsAuthError(err) {
				t.Errorf("IsAuthError(%v) = false", err)
			}
		})
	}
}

func TestPrePolicyRejectsWithoutFetching(t *testing.T) {
	env := newTestEnv(t)

	token := env.token(t, jwt.MapClaims{"sub": "s", "aud": "someone-else"})
	_, err := env.auth.CreateUserFromFederatedCredential(context.Background(), "acme", token)
	if !errors.Is(err, ErrInvalidFederatedCredential) || !errors.Is(err, oidc.ErrInvalidClaims) {
		t.Errorf("error = %v, want ErrInvalidFederatedCredential and ErrInvalidClaims", err)
	}
	if got := env.issuer.Requests(); got != 0 {
		t.Errorf("issuer served %d requests, want 0", got)
	}
}

func TestDiscoveryIssuerMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.issuer.SetDiscovery(map[string]any{
		"issuer":   "https://impostor.example.com",
		"jwks_uri": env.issuer.URL() + "/jwks",
	})

	token := env.token(t, jwt.MapClaims{"sub": "s"})
	_, err := env.auth.CreateUserFromFederatedCredential(context.Background(), "acme", token)
	if !errors.Is(err, oidc.ErrInvalidDiscoveryDocument) {
		t.Errorf("error = %v, want ErrInvalidDiscoveryDocument", err)
	}
}

func TestPostPolicy(t *testing.T) {
	rule, err := oidc.NewCELPolicy(`claims.email.endsWith("@example.com")`)
	if err != nil {
		t.Fatalf("NewCELPolicy() error = %v", err)
	}
	env := newTestEnv(t, oidc.WithPostPolicies(rule))
	ctx := context.Background()

	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme",
		env.token(t, jwt.MapClaims{"sub": "s1", "email": "mallory@evil.example"})); !errors.Is(err, oidc.ErrInvalidClaims) {
		t.Errorf("error = %v, want ErrInvalidClaims", err)
	}
	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme",
		env.token(t, jwt.MapClaims{"sub": "s2", "email": "alice@example.com"})); err != nil {
		t.Errorf("CreateUserFromFederatedCredential() error = %v", err)
	}
}

func TestAccessToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	creds, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "s"}))
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	user, err := env.auth.AuthenticateUserFromAccessToken(ctx, creds.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateUserFromAccessToken() error = %v", err)
	}
	if user.ID != creds.User.ID {
		t.Errorf("AuthenticateUserFromAccessToken() user = %s, want %s", user.ID, creds.User.ID)
	}

	tests := []struct {
		name    string
		token   string
		advance time.Duration
	}{
		{"unknown", "not-a-token", 0},
		{"refresh token", creds.RefreshToken, 0},
		{"expired", creds.AccessToken, DefaultAccessTokenLifetime + time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.advance(tt.advance)
			if _, err := env.auth.AuthenticateUserFromAccessToken(ctx, tt.token); !errors.Is(err, ErrInvalidAccessToken) {
				t.Errorf("AuthenticateUserFromAccessToken() error = %v, want ErrInvalidAccessToken", err)
			}
		})
	}
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "s"}))
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	second, err := env.auth.UserCredentialsFromRefreshToken(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("UserCredentialsFromRefreshToken() error = %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Errorf("refreshed user = %s, want %s", second.User.ID, first.User.ID)
	}
	if second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Error("refresh returned a previously issued token")
	}

	if _, err := env.auth.UserCredentialsFromRefreshToken(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("second redemption error = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := env.auth.AuthenticateUserFromAccessToken(ctx, second.AccessToken); err != nil {
		t.Errorf("new access token rejected: %v", err)
	}
	if _, err := env.auth.UserCredentialsFromRefreshToken(ctx, second.RefreshToken); err != nil {
		t.Errorf("new refresh token rejected: %v", err)
	}
}

func TestRefreshTokenExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	creds, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "s"}))
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	env.advance(DefaultRefreshTokenLifetime + time.Second)
	if _, err := env.auth.UserCredentialsFromRefreshToken(ctx, creds.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("UserCredentialsFromRefreshToken() error = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := env.auth.UserCredentialsFromRefreshToken(ctx, "unknown"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("UserCredentialsFromRefreshToken(unknown) error = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestConcurrentRefreshRedemption(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	creds, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "s"}))
	if err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	var successes atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for range 8 {
		g.Go(func() error {
			_, err := env.auth.UserCredentialsFromRefreshToken(gctx, creds.RefreshToken)
			switch {
			case err == nil:
				successes.Add(1)
			case !errors.Is(err, ErrInvalidRefreshToken):
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("redemption failed unexpectedly: %v", err)
	}
	if got := successes.Load(); got != 1 {
		t.Errorf("%d redemptions succeeded, want 1", got)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.auth.CreateUserFromFederatedCredential(ctx, "acme", env.token(t, jwt.MapClaims{"sub": "s"})); err != nil {
		t.Fatalf("CreateUserFromFederatedCredential() error = %v", err)
	}

	deleted, err := env.auth.CleanupExpiredTokens(ctx, 0)
	if err != nil || deleted != 0 {
		t.Fatalf("CleanupExpiredTokens() = %d, %v, want 0, nil", deleted, err)
	}

	env.advance(2 * time.Hour)
	deleted, err = env.auth.CleanupExpiredTokens(ctx, 0)
	if err != nil || deleted != 1 {
		t.Errorf("CleanupExpiredTokens() after access expiry = %d, %v, want 1, nil", deleted, err)
	}

	env.advance(DefaultRefreshTokenLifetime)
	deleted, err = env.auth.CleanupExpiredTokens(ctx, 0)
	if err != nil || deleted != 1 {
		t.Errorf("CleanupExpiredTokens() after refresh expiry = %d, %v, want 1, nil", deleted, err)
	}
}
