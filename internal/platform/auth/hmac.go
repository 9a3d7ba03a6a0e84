package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultTimestampHeader = "X-Signature-Timestamp"
	defaultNonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// SecretProvider resolves the shared secret a caller signed its request with.
type SecretProvider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretProviderFunc adapts a function to the SecretProvider interface.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, name string) (string, error) {
	if f == nil {
		return "", errors.New("auth: secret provider not configured")
	}
	return f(ctx, name)
}

// NonceStore remembers nonces so a captured request cannot be replayed.
type NonceStore interface {
	// UseNonce records the nonce within the scope. It returns true when the
	// nonce was fresh and false when it was already seen.
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local nonce registry for tests and local
// development; production replay protection needs a shared store.
type InMemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{seen: make(map[string]time.Time)}
}

// UseNonce records the nonce until the provided expiry, rejecting replays
// until then.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}

	now := time.Now()
	if expiry.Before(now) {
		return false, errors.New("auth: nonce expiry is in the past")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)

	key := scope + "::" + nonce
	if existing, ok := s.seen[key]; ok && existing.After(now) {
		return false, nil
	}
	s.seen[key] = expiry
	return true, nil
}

// sweep drops expired entries. Callers hold the lock.
func (s *InMemoryNonceStore) sweep(now time.Time) {
	for key, expiry := range s.seen {
		if expiry.Before(now) {
			delete(s.seen, key)
		}
	}
}

// HMACValidator verifies signed partner requests: the signature covers the
// method, the path, a timestamp, a nonce, and the body hash, so none of them
// can be altered in transit.
type HMACValidator struct {
	provider SecretProvider
	nonces   NonceStore

	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string

	clockSkew time.Duration
	nonceTTL  time.Duration

	secretCache sync.Map
}

// HMACOption customises the validator.
type HMACOption func(*HMACValidator)

// NewHMACValidator builds a validator using the given secret provider and nonce store.
func NewHMACValidator(provider SecretProvider, nonces NonceStore, opts ...HMACOption) *HMACValidator {
	validator := &HMACValidator{
		provider:        provider,
		nonces:          nonces,
		logger:          log.Default(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}

	return validator
}

// WithHMACLogger overrides the validator logger.
func WithHMACLogger(logger Logger) HMACOption {
	return func(v *HMACValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithHMACMetrics sets the metrics recorder.
func WithHMACMetrics(metrics MetricsRecorder) HMACOption {
	return func(v *HMACValidator) {
		v.metrics = metrics
	}
}

// WithHMACClock injects a custom clock, primarily for tests.
func WithHMACClock(now func() time.Time) HMACOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHMACHeaders customises the header names used by the middleware.
func WithHMACHeaders(signature, timestamp, nonce string) HMACOption {
	return func(v *HMACValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithHMACClockSkew adjusts the accepted timestamp skew.
func WithHMACClockSkew(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.clockSkew = d
		}
	}
}

// WithHMACNonceTTL customises the nonce retention duration.
func WithHMACNonceTTL(d time.Duration) HMACOption {
	return func(v *HMACValidator) {
		if d > 0 {
			v.nonceTTL = d
		}
	}
}

// HMACMetadata describes the verification context for downstream handlers.
type HMACMetadata struct {
	SecretName   string
	Timestamp    time.Time
	Nonce        string
	Signature    []byte
	RawSignature string
}

type hmacContextKey struct{}

// WithHMACMetadata stores the metadata on the context.
func WithHMACMetadata(ctx context.Context, meta *HMACMetadata) context.Context {
	if meta == nil {
		return ctx
	}
	return context.WithValue(ctx, hmacContextKey{}, meta)
}

// HMACMetadataFromContext retrieves metadata from the context.
func HMACMetadataFromContext(ctx context.Context) (*HMACMetadata, bool) {
	meta, ok := ctx.Value(hmacContextKey{}).(*HMACMetadata)
	if !ok || meta == nil {
		return nil, false
	}
	return meta, true
}

// hmacFailure carries the HTTP response and the metrics reason for a
// rejected request.
type hmacFailure struct {
	status  int
	code    string
	message string
	reason  string
}

func hmacReject(code, message string) *hmacFailure {
	return &hmacFailure{status: http.StatusUnauthorized, code: code, message: message, reason: code}
}

func hmacUnavailable(reason, message string) *hmacFailure {
	return &hmacFailure{status: http.StatusServiceUnavailable, code: "verification_unavailable", message: message, reason: reason}
}

// RequireHMAC enforces the presence of a valid HMAC signature on the request.
func (v *HMACValidator) RequireHMAC(secretName string) func(http.Handler) http.Handler {
	scopedSecret := strings.TrimSpace(secretName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			meta, failure := v.verify(r, scopedSecret)
			if failure != nil {
				v.record(ctx, false, failure.reason, start)
				respondAuthError(w, failure.status, failure.code, failure.message)
				return
			}

			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithHMACMetadata(ctx, meta)))
		})
	}
}

// verify runs the full signature check and returns either the metadata for
// downstream handlers or the failure to respond with.
func (v *HMACValidator) verify(r *http.Request, secretName string) (*HMACMetadata, *hmacFailure) {
	ctx := r.Context()

	if secretName == "" {
		return nil, hmacUnavailable("secret_not_configured", "hmac secret not configured")
	}

	secret, err := v.loadSecret(ctx, secretName)
	if err != nil {
		if v.logger != nil {
			v.logger.Printf("auth: hmac secret lookup failed: %v", err)
		}
		return nil, hmacUnavailable("secret_unavailable", "hmac secret unavailable")
	}

	signatureValue := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	if signatureValue == "" {
		return nil, hmacReject("signature_missing", "signature header missing")
	}

	timestampValue := strings.TrimSpace(r.Header.Get(v.timestampHeader))
	if timestampValue == "" {
		return nil, hmacReject("timestamp_missing", "signature timestamp missing")
	}
	timestamp, err := parseSignatureTimestamp(timestampValue)
	if err != nil {
		return nil, hmacReject("timestamp_invalid", "signature timestamp invalid")
	}
	if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
		return nil, hmacReject("timestamp_skew", "signature timestamp outside allowed window")
	}

	nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
	if nonce == "" {
		return nil, hmacReject("nonce_missing", "signature nonce missing")
	}

	body, err := snapshotBody(r)
	if err != nil {
		return nil, &hmacFailure{
			status:  http.StatusBadRequest,
			code:    "invalid_body",
			message: "unable to read body for signature verification",
			reason:  "body_unreadable",
		}
	}

	signature, err := decodeSignature(signatureValue)
	if err != nil {
		return nil, hmacReject("signature_invalid", "signature encoding invalid")
	}
	expected := computeHMAC(secret, canonicalRequest(r, body, timestampValue, nonce))
	if !hmac.Equal(signature, expected) {
		return nil, hmacReject("signature_mismatch", "signature verification failed")
	}

	if failure := v.consumeNonce(ctx, secretName, nonce, timestamp); failure != nil {
		return nil, failure
	}

	return &HMACMetadata{
		SecretName:   secretName,
		Timestamp:    timestamp,
		Nonce:        nonce,
		Signature:    signature,
		RawSignature: signatureValue,
	}, nil
}

// consumeNonce marks the nonce as used. The retention window starts at the
// signature timestamp but never lands in the past.
func (v *HMACValidator) consumeNonce(ctx context.Context, scope, nonce string, timestamp time.Time) *hmacFailure {
	if v.nonces == nil {
		return hmacUnavailable("nonce_store_unavailable", "nonce store unavailable")
	}

	expiry := timestamp.Add(v.nonceTTL)
	if now := v.now(); expiry.Before(now) {
		expiry = now.Add(v.nonceTTL)
	}

	fresh, err := v.nonces.UseNonce(ctx, scope, nonce, expiry)
	if err != nil {
		if v.logger != nil {
			v.logger.Printf("auth: nonce store error: %v", err)
		}
		return hmacUnavailable("nonce_store_error", "nonce storage error")
	}
	if !fresh {
		return hmacReject("nonce_replay", "duplicate signature nonce")
	}
	return nil
}

// RequireHMACResolver selects a secret dynamically using the supplied resolver.
func (v *HMACValidator) RequireHMACResolver(resolver func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				v.record(r.Context(), false, "secret_not_configured", v.now())
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "hmac secret resolver not configured")
				return
			}

			secretName, ok := resolver(r)
			if !ok || strings.TrimSpace(secretName) == "" {
				v.record(r.Context(), false, "provider_unknown", v.now())
				respondAuthError(w, http.StatusUnauthorized, "unknown_provider", "webhook provider not recognised")
				return
			}

			v.RequireHMAC(secretName)(next).ServeHTTP(w, r)
		})
	}
}

func (v *HMACValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v == nil || v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "hmac", success, reason, v.now().Sub(start))
}

func (v *HMACValidator) loadSecret(ctx context.Context, name string) ([]byte, error) {
	if v == nil || v.provider == nil {
		return nil, errors.New("auth: secret provider not configured")
	}

	if cached, ok := v.secretCache.Load(name); ok {
		if secret, ok := cached.([]byte); ok && len(secret) > 0 {
			return secret, nil
		}
	}

	raw, err := v.provider.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	secret := []byte(raw)
	if len(secret) == 0 {
		return nil, errors.New("auth: secret is empty")
	}

	v.secretCache.Store(name, secret)
	return secret, nil
}

// snapshotBody reads the body for hashing and restores it so the handler can
// read it again.
func snapshotBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

// decodeSignature accepts base64 (preferred) or hex encoded signatures.
func decodeSignature(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

// parseSignatureTimestamp accepts RFC3339 (with or without fractional
// seconds) and Unix epoch seconds.
func parseSignatureTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

// canonicalRequest is the byte string both sides sign: method, escaped path,
// timestamp, nonce and the hex SHA-256 of the body, newline separated.
func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	method := strings.ToUpper(r.Method)
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	digest := sha256.Sum256(body)
	lines := []string{method, path, timestamp, nonce, hex.EncodeToString(digest[:])}
	return []byte(strings.Join(lines, "\n"))
}

func computeHMAC(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
