package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultRoleClaim     = "role"
	defaultLocaleClaim   = "locale"
	defaultEmailClaim    = "email"
	defaultPhoneClaim    = "phone_number"
	defaultFallbackRole  = RoleUser
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided identity token has expired.
	ErrTokenExpired = errors.New("auth: identity token expired")
	// ErrTokenInvalid signals that the provided identity token failed verification.
	ErrTokenInvalid = errors.New("auth: identity token invalid")
)

// TokenVerifier verifies customer identity tokens issued by the storefront.
type TokenVerifier interface {
	VerifyIdentityToken(ctx context.Context, token string) (*Identity, error)
}

// JWTVerifier validates signed identity tokens. Keys come from a JWKS
// endpoint when configured, otherwise from a static HMAC secret (local
// development and tests).
type JWTVerifier struct {
	keys     *JWKSCache
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time

	roleClaim   string
	localeClaim string
	emailClaim  string
	phoneClaim  string
}

// JWTVerifierOption customises JWTVerifier behaviour.
type JWTVerifierOption func(*JWTVerifier)

// WithJWKS sources verification keys from the provided JWKS cache.
func WithJWKS(cache *JWKSCache) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.keys = cache
	}
}

// WithHMACSecret verifies HS256 tokens with a shared secret.
func WithHMACSecret(secret []byte) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if len(secret) > 0 {
			v.secret = secret
		}
	}
}

// WithIssuer pins the expected token issuer.
func WithIssuer(issuer string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience pins the expected token audience.
func WithAudience(audience string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

// WithLeeway allows clock skew when validating time claims.
func WithLeeway(d time.Duration) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if d > 0 {
			v.leeway = d
		}
	}
}

// WithVerifierClock injects a custom clock, primarily for tests.
func WithVerifierClock(now func() time.Time) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewJWTVerifier constructs a verifier. At least one key source (JWKS or
// HMAC secret) must be configured.
func NewJWTVerifier(opts ...JWTVerifierOption) (*JWTVerifier, error) {
	v := &JWTVerifier{
		leeway:      30 * time.Second,
		now:         time.Now,
		roleClaim:   defaultRoleClaim,
		localeClaim: defaultLocaleClaim,
		emailClaim:  defaultEmailClaim,
		phoneClaim:  defaultPhoneClaim,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if v.keys == nil && len(v.secret) == 0 {
		return nil, errors.New("auth: jwt verifier requires a JWKS cache or an HMAC secret")
	}
	return v, nil
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone_number,omitempty"`
	Role   string `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// VerifyIdentityToken parses and validates the token, returning the identity
// it was issued for.
func (v *JWTVerifier) VerifyIdentityToken(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := &identityClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.validMethods()),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	parsed, err := parser.ParseWithClaims(token, claims, v.keyfunc(ctx))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}

	identity := &Identity{
		UID:    uid,
		Email:  strings.TrimSpace(claims.Email),
		Phone:  strings.TrimSpace(claims.Phone),
		Locale: strings.TrimSpace(claims.Locale),
	}
	if role := normaliseRole(claims.Role); role != "" {
		identity.Roles = []string{role}
	}
	return identity, nil
}

func (v *JWTVerifier) validMethods() []string {
	if v.keys != nil {
		return []string{"RS256", "ES256"}
	}
	return []string{"HS256"}
}

func (v *JWTVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	if v.keys != nil {
		return v.keys.Keyfunc(ctx)
	}
	return func(*jwt.Token) (any, error) {
		return v.secret, nil
	}
}

func containsAudience(audiences jwt.ClaimStrings, expected string) bool {
	for _, aud := range audiences {
		if aud == expected {
			return true
		}
	}
	return false
}

// Authenticator wires identity token verification into HTTP middleware.
type Authenticator struct {
	verifier     TokenVerifier
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithFallbackRole sets the default role when the token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		role = normaliseRole(role)
		if role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		fallbackRole: defaultFallbackRole,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token and ensures allowed roles.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := a.contextWithTimeout(r.Context())
			if cancel != nil {
				defer cancel()
			}

			identity, err := a.verifier.VerifyIdentityToken(ctx, tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			if len(identity.Roles) == 0 && a.fallbackRole != "" {
				identity.Roles = []string{a.fallbackRole}
			}
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusUnauthorized, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "identity token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "identity token verification failed")
	}
}
