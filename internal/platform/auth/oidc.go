package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the JWKS document.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing JWKS.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

const (
	defaultJWKSRefreshInterval = 15 * time.Minute
	defaultJWKSRefreshTimeout  = 5 * time.Second
)

// JWKSCache fetches JSON Web Keys on demand and keeps them warm with an
// optional background refresh halfway through their validity window.
type JWKSCache struct {
	url    string
	client *http.Client
	logger Logger
	now    func() time.Time

	refreshInterval time.Duration
	refreshTimeout  time.Duration

	background bool

	mu       sync.RWMutex
	keys     map[string]jose.JSONWebKey
	expiry   time.Time
	prefetch time.Time

	refreshMu       sync.Mutex
	asyncRefreshing atomic.Bool
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// NewJWKSCache constructs a JWKS cache for the provided URL.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:             url,
		client:          &http.Client{Timeout: 10 * time.Second},
		logger:          log.Default(),
		now:             time.Now,
		refreshInterval: defaultJWKSRefreshInterval,
		refreshTimeout:  defaultJWKSRefreshTimeout,
		background:      true,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}

	return cache
}

// WithJWKSHTTPClient overrides the HTTP client used to fetch JWKS documents.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSLogger sets a custom logger for JWKS operations.
func WithJWKSLogger(logger Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJWKSRefreshInterval overrides the fallback refresh interval when cache headers are absent.
func WithJWKSRefreshInterval(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.refreshInterval = d
		}
	}
}

// WithJWKSRefreshTimeout sets the timeout applied to JWKS fetches.
func WithJWKSRefreshTimeout(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithJWKSClock injects a custom time source (useful for tests).
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithoutJWKSBackgroundRefresh disables background refresh scheduling.
func WithoutJWKSBackgroundRefresh() JWKSOption {
	return func(c *JWKSCache) {
		c.background = false
	}
}

// Keyfunc returns a jwt.Keyfunc backed by the cache. Only RS256 is accepted.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	if ctx == nil {
		ctx = context.Background()
	}

	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Method)
		}
		return c.Key(ctx, kid)
	}
}

// Key resolves the public key for the provided kid, refreshing the JWKS if
// the cached document expired or never mentioned the kid. An unknown kid
// after a fresh fetch is a hard failure, not a retry loop.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := c.now()
	if c.needsRefresh(now) {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
	}

	if key, ok := c.cachedKey(kid); ok {
		if c.shouldPrefetch(now) {
			c.scheduleRefresh()
		}
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cachedKey(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cachedKey(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) needsRefresh(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 {
		return true
	}
	if c.expiry.IsZero() {
		return false
	}
	return !now.Before(c.expiry)
}

func (c *JWKSCache) shouldPrefetch(now time.Time) bool {
	if !c.background {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.prefetch.IsZero() || c.expiry.IsZero() || now.After(c.expiry) {
		return false
	}
	return !now.Before(c.prefetch)
}

func (c *JWKSCache) scheduleRefresh() {
	if !c.background {
		return
	}
	if !c.asyncRefreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.asyncRefreshing.Store(false)
		if err := c.refresh(context.Background()); err != nil && c.logger != nil {
			c.logger.Printf("auth: background jwks refresh failed: %v", err)
		}
	}()
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
	}

	keys, validity, err := c.fetchKeySet(ctx)
	if err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	c.keys = keys
	c.expiry = now.Add(validity)
	c.prefetch = now.Add(validity / 2)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Printf("auth: refreshed jwks (%d keys, valid for %s)", len(keys), validity)
	}
	return nil
}

// fetchKeySet downloads and indexes the JWKS document, returning how long
// the response allows it to be cached.
func (c *JWKSCache) fetchKeySet(ctx context.Context) (map[string]jose.JSONWebKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, 0, fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.Valid() {
			continue
		}
		keys[jwk.KeyID] = jwk
	}
	if len(keys) == 0 {
		return nil, 0, fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	return keys, c.cacheValidity(resp), nil
}

// cacheValidity derives the document lifetime from Cache-Control max-age or
// Expires, falling back to the configured refresh interval.
func (c *JWKSCache) cacheValidity(resp *http.Response) time.Duration {
	validity := c.refreshInterval
	if header := resp.Header.Get("Cache-Control"); header != "" {
		if maxAge := parseMaxAge(header); maxAge > 0 {
			validity = maxAge
		}
	}
	if expires := resp.Header.Get("Expires"); expires != "" {
		if ts, err := http.ParseTime(expires); err == nil {
			if delta := ts.Sub(c.now()); delta > 0 {
				validity = delta
			}
		}
	}
	if validity <= 0 {
		validity = defaultJWKSRefreshInterval
	}
	return validity
}

func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(strings.ToLower(directive), "max-age=") {
			continue
		}
		value := strings.TrimSpace(directive[len("max-age="):])
		if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// OIDCValidator checks Google-signed OIDC tokens (Cloud Scheduler, Pub/Sub
// push, IAP) against a JWKS cache.
type OIDCValidator struct {
	cache   *JWKSCache
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// NewOIDCValidator constructs an OIDCValidator.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	validator := &OIDCValidator{
		cache:  cache,
		logger: log.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}

	return validator
}

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMetrics sets the metrics recorder.
func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = recorder
	}
}

// WithOIDCClock injects a custom clock (primarily for testing).
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// ServiceIdentity captures details about the authenticated service principal.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string

	Token  *jwt.Token
	Claims map[string]any
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by the middleware.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// oidcFailure carries the HTTP response and metrics reason for a rejected
// request.
type oidcFailure struct {
	status  int
	code    string
	message string
	reason  string
}

// RequireOIDC enforces presence of a valid Google-signed OIDC/IAP token on the request.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	expectedAudience := strings.TrimSpace(audience)
	allowedIssuers := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers[issuer] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			identity, failure := v.authenticate(ctx, r, expectedAudience, allowedIssuers)
			if failure != nil {
				v.record(ctx, false, failure.reason, start)
				respondAuthError(w, failure.status, failure.code, failure.message)
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

// authenticate parses and validates the token, returning the identity for
// downstream handlers or the failure to respond with.
func (v *OIDCValidator) authenticate(ctx context.Context, r *http.Request, expectedAudience string, allowedIssuers map[string]struct{}) (*ServiceIdentity, *oidcFailure) {
	if expectedAudience == "" {
		return nil, &oidcFailure{
			status: http.StatusServiceUnavailable, code: "verification_unavailable",
			message: "oidc audience not configured", reason: "audience_not_configured",
		}
	}

	tokenStr, source := extractOIDCToken(r)
	if tokenStr == "" {
		return nil, &oidcFailure{
			status: http.StatusUnauthorized, code: "unauthenticated",
			message: "oidc token missing", reason: "token_missing",
		}
	}

	if v == nil || v.cache == nil {
		return nil, &oidcFailure{
			status: http.StatusServiceUnavailable, code: "verification_unavailable",
			message: "oidc verification unavailable", reason: "cache_unavailable",
		}
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithTimeFunc(v.now))
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(tokenStr, claims, v.cache.Keyfunc(ctx))
	if err != nil {
		status, reason := http.StatusUnauthorized, "token_invalid"
		if errors.Is(err, ErrJWKSFetchFailed) {
			status, reason = http.StatusServiceUnavailable, "jwks_unavailable"
		}
		if v.logger != nil {
			v.logger.Printf("auth: oidc verification failed (%s): %v", reason, err)
		}
		return nil, &oidcFailure{
			status: status, code: "invalid_token",
			message: "oidc token verification failed", reason: reason,
		}
	}

	issuer, _ := claims["iss"].(string)
	if len(allowedIssuers) > 0 {
		if _, ok := allowedIssuers[issuer]; !ok {
			if v.logger != nil {
				v.logger.Printf("auth: oidc issuer mismatch, got %q", issuer)
			}
			return nil, &oidcFailure{
				status: http.StatusUnauthorized, code: "invalid_token",
				message: "oidc issuer mismatch", reason: "issuer_mismatch",
			}
		}
	}

	if !containsString(audienceFromClaims(claims), expectedAudience) {
		if v.logger != nil {
			v.logger.Printf("auth: oidc audience mismatch, expected %q (hdr=%s)", expectedAudience, source)
		}
		return nil, &oidcFailure{
			status: http.StatusUnauthorized, code: "invalid_token",
			message: "oidc audience mismatch", reason: "audience_mismatch",
		}
	}

	email, _ := claims["email"].(string)
	subject, _ := claims["sub"].(string)

	return &ServiceIdentity{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: expectedAudience,
		Token:    parsed,
		Claims:   cloneClaims(claims),
	}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v == nil || v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
}

// extractOIDCToken prefers the Authorization bearer token and falls back to
// the IAP assertion header.
func extractOIDCToken(r *http.Request) (token string, source string) {
	if r == nil {
		return "", ""
	}
	if authz := r.Header.Get("Authorization"); authz != "" {
		if bearer, ok := extractBearerToken(authz); ok {
			return bearer, "authorization"
		}
	}
	if assertion := strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion")); assertion != "" {
		return assertion, "iap"
	}
	return "", ""
}

// audienceFromClaims flattens the aud claim, which may be a string or a list.
func audienceFromClaims(claims jwt.MapClaims) []string {
	switch aud := claims["aud"].(type) {
	case string:
		return []string{strings.TrimSpace(aud)}
	case []string:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(aud))
		for _, item := range aud {
			str, ok := item.(string)
			if !ok {
				continue
			}
			if str = strings.TrimSpace(str); str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func cloneClaims(claims jwt.MapClaims) map[string]any {
	out := make(map[string]any, len(claims))
	for key, value := range claims {
		out[key] = value
	}
	return out
}
