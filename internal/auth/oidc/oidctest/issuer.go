// Package oidctest provides an in-process OIDC issuer for tests. It serves a
// discovery document and a JWK set over TLS and signs tokens with RS256.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Issuer is a test OIDC issuer
type Issuer struct {
	Server *httptest.Server

	mu              sync.Mutex
	key             *rsa.PrivateKey
	keyID           string
	published       []publishedKey
	discovery       map[string]any
	discoveryStatus int
	generation      int

	requests atomic.Int64
}

type publishedKey struct {
	key   *rsa.PublicKey
	keyID string
}

// NewIssuer starts an issuer that is shut down when the test ends
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()

	iss := &Issuer{}
	iss.RotateKey(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", iss.serveDiscovery)
	mux.HandleFunc("/jwks", iss.serveJWKS)
	iss.Server = httptest.NewTLSServer(mux)
	t.Cleanup(iss.Server.Close)

	return iss
}

// URL is the issuer identifier, as it appears in iss claims
func (i *Issuer) URL() string {
	return i.Server.URL
}

// Client returns an HTTP client that trusts the issuer's certificate
func (i *Issuer) Client() *http.Client {
	return i.Server.Client()
}

// Requests returns the number of requests served so far
func (i *Issuer) Requests() int64 {
	return i.requests.Load()
}

// SetDiscovery replaces the discovery document. Nil restores the default.
func (i *Issuer) SetDiscovery(doc map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.discovery = doc
}

// FailDiscovery makes the discovery endpoint respond with status. Zero restores it.
func (i *Issuer) FailDiscovery(status int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.discoveryStatus = status
}

// RotateKey generates a new signing key, publishes it alongside the previous
// keys and uses it for subsequent tokens.
func (i *Issuer) RotateKey(t testing.TB) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.generation++
	i.key = key
	i.keyID = fmt.Sprintf("test-key-%d", i.generation)
	i.published = append(i.published, publishedKey{key: &key.PublicKey, keyID: i.keyID})
}

// KeyID is the kid of the current signing key
func (i *Issuer) KeyID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keyID
}

// Sign issues a token for claims using the current key, with a kid header
func (i *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	i.mu.Lock()
	key, kid := i.key, i.keyID
	i.mu.Unlock()
	return SignWithKey(t, key, kid, claims)
}

// SignWithoutKeyID issues a token using the current key and no kid header
func (i *Issuer) SignWithoutKeyID(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	i.mu.Lock()
	key := i.key
	i.mu.Unlock()
	return SignWithKey(t, key, "", claims)
}

// SignWithKey signs claims with an arbitrary RSA key
func SignWithKey(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func (i *Issuer) serveDiscovery(w http.ResponseWriter, _ *http.Request) {
	i.requests.Add(1)

	i.mu.Lock()
	status, doc := i.discoveryStatus, i.discovery
	i.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if doc == nil {
		doc = map[string]any{
			"issuer":   i.URL(),
			"jwks_uri": i.URL() + "/jwks",
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (i *Issuer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	i.requests.Add(1)

	i.mu.Lock()
	published := append([]publishedKey(nil), i.published...)
	i.mu.Unlock()

	set := jwk.NewSet()
	for _, p := range published {
		key, err := jwk.Import(p.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := key.Set(jwk.KeyIDKey, p.keyID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := set.AddKey(key); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}
