package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v5"
)

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) lastReason(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		t.Fatal("expected at least one metric record")
	}
	return m.records[len(m.records)-1].reason
}

// oidcFixture wires a JWKS endpoint, a validator with a fixed clock, and a
// signing key for minting tokens the validator will trust.
type oidcFixture struct {
	validator *OIDCValidator
	metrics   *recordingMetrics
	key       *rsa.PrivateKey
	now       time.Time
}

const expirationAudience = "https://api.localeats.example/internal"

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "scheduler-key",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)

	metrics := &recordingMetrics{}
	validator := NewOIDCValidator(NewJWKSCache(server.URL,
		WithJWKSLogger(noopLogger{}),
		WithJWKSClock(func() time.Time { return now }),
	),
		WithOIDCLogger(noopLogger{}),
		WithOIDCMetrics(metrics),
		WithOIDCClock(func() time.Time { return now }),
	)

	return &oidcFixture{validator: validator, metrics: metrics, key: key, now: now}
}

// mint signs a scheduler-style token with the fixture key, after letting the
// test adjust the claims.
func (f *oidcFixture) mint(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()

	claims := jwt.MapClaims{
		"aud":   []string{expirationAudience},
		"iss":   "https://accounts.google.com",
		"sub":   "113941903655887",
		"email": "expiration-runner@localeats-prod.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheReusesFetchedKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	jwk := jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     "key1",
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}

	var mu sync.Mutex
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=3600")
		if err := json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}); err != nil {
			t.Fatalf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	cache := NewJWKSCache(server.URL,
		WithJWKSLogger(noopLogger{}),
		WithJWKSClock(func() time.Time { return time.Unix(1_000_000, 0) }),
	)

	ctx := context.Background()
	got, err := cache.Key(ctx, "key1")
	if err != nil {
		t.Fatalf("cache.Key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", got)
	}

	if _, err := cache.Key(ctx, "key1"); err != nil {
		t.Fatalf("cache.Key second call: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if requests != 1 {
		t.Fatalf("expected single JWKS fetch, got %d", requests)
	}
}

func TestRequireOIDCAcceptsSchedulerToken(t *testing.T) {
	fix := newOIDCFixture(t)
	token := fix.mint(t, nil)

	middleware := fix.validator.RequireOIDC(expirationAudience, []string{"https://accounts.google.com"})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/expirations", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected service identity in context")
		}
		if identity.Email != "expiration-runner@localeats-prod.iam.gserviceaccount.com" {
			t.Fatalf("unexpected identity email %q", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if reason := fix.metrics.lastReason(t); reason != "ok" {
		t.Fatalf("expected ok metric, got %q", reason)
	}
}

func TestRequireOIDCRejectsAudienceMismatch(t *testing.T) {
	fix := newOIDCFixture(t)
	token := fix.mint(t, func(claims jwt.MapClaims) {
		claims["aud"] = []string{"https://other-service.example"}
	})

	middleware := fix.validator.RequireOIDC(expirationAudience, []string{"https://accounts.google.com"})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/expirations", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run on audience mismatch")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if reason := fix.metrics.lastReason(t); reason != "audience_mismatch" {
		t.Fatalf("expected audience_mismatch metric, got %q", reason)
	}
}

func TestRequireOIDCRejectsUnknownIssuer(t *testing.T) {
	fix := newOIDCFixture(t)
	token := fix.mint(t, func(claims jwt.MapClaims) {
		claims["iss"] = "https://evil.example"
	})

	middleware := fix.validator.RequireOIDC(expirationAudience, []string{"https://accounts.google.com"})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/expirations", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for an unknown issuer")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if reason := fix.metrics.lastReason(t); reason != "issuer_mismatch" {
		t.Fatalf("expected issuer_mismatch metric, got %q", reason)
	}
}

func TestRequireOIDCUsesIAPHeader(t *testing.T) {
	fix := newOIDCFixture(t)
	token := fix.mint(t, func(claims jwt.MapClaims) {
		claims["aud"] = []string{"/projects/123/global/backendServices/456"}
		claims["iss"] = "https://cloud.google.com/iap"
	})

	middleware := fix.validator.RequireOIDC("/projects/123/global/backendServices/456", []string{"https://cloud.google.com/iap"})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/expirations", nil)
	req.Header.Set("X-Goog-Iap-Jwt-Assertion", token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
}

func TestRequireOIDCReportsJWKSOutage(t *testing.T) {
	fix := newOIDCFixture(t)
	token := fix.mint(t, nil)

	// Point the cache at a dead endpoint before any keys were fetched.
	fix.validator.cache.url = "http://127.0.0.1:65535/invalid"

	middleware := fix.validator.RequireOIDC(expirationAudience, []string{"https://accounts.google.com"})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/expirations", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run while JWKS is unreachable")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if reason := fix.metrics.lastReason(t); reason != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable metric, got %q", reason)
	}
}
