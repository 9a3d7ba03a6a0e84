package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mapSecretProvider map[string]string

func (m mapSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if secret, ok := m[name]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

// signedRequest builds a POST carrying a valid signature over the given body.
func signedRequest(path string, body []byte, secret, timestamp, nonce string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	signature := computeHMAC([]byte(secret), canonicalRequest(req, body, timestamp, nonce))
	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
	return req
}

func newHMACValidatorForTest(provider SecretProvider, now time.Time, metrics MetricsRecorder) *HMACValidator {
	opts := []HMACOption{
		WithHMACLogger(noopLogger{}),
		WithHMACClock(func() time.Time { return now }),
	}
	if metrics != nil {
		opts = append(opts, WithHMACMetrics(metrics))
	}
	return NewHMACValidator(provider, NewInMemoryNonceStore(), opts...)
}

func TestRequireHMACAcceptsValidSignature(t *testing.T) {
	const secretName = "webhooks/partner-pos"
	const secretValue = "pos-shared-secret"

	metrics := &recordingMetrics{}
	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(mapSecretProvider{secretName: secretValue}, now, metrics)

	body := []byte(`{"orderCode":"ORDER1234567","status":"accepted"}`)
	req := signedRequest("/webhooks/pos/orders", body, secretValue, now.Format(time.RFC3339), "nonce-1")

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := HMACMetadataFromContext(r.Context())
		if !ok {
			t.Fatalf("expected hmac metadata in context")
		}
		if meta.SecretName != secretName {
			t.Fatalf("unexpected secret name %q", meta.SecretName)
		}
		if meta.Nonce != "nonce-1" {
			t.Fatalf("unexpected nonce %q", meta.Nonce)
		}
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.records) != 1 || !metrics.records[0].success {
		t.Fatalf("expected one success metric, got %+v", metrics.records)
	}
}

func TestRequireHMACRejectsReplay(t *testing.T) {
	const secretName = "webhooks/partner-pos"
	const secretValue = "pos-shared-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(mapSecretProvider{secretName: secretValue}, now, nil)

	body := []byte(`{"orderCode":"ORDER1234567","status":"ready"}`)
	timestamp := now.Format(time.RFC3339)

	handler := validator.RequireHMAC(secretName)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest("/webhooks/pos/orders", body, secretValue, timestamp, "nonce-replay"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first delivery to succeed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest("/webhooks/pos/orders", body, secretValue, timestamp, "nonce-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replayed nonce rejected with 401, got %d", rr.Code)
	}
}

func TestRequireHMACRejectsTamperedBody(t *testing.T) {
	const secretName = "webhooks/partner-pos"
	const secretValue = "pos-shared-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(mapSecretProvider{secretName: secretValue}, now, nil)

	timestamp := now.Format(time.RFC3339)
	req := signedRequest("/webhooks/pos/orders", []byte(`{"status":"ready"}`), secretValue, timestamp, "nonce-2")
	// Swap the body after signing.
	req.Body = httptest.NewRequest(http.MethodPost, "/webhooks/pos/orders", bytes.NewReader([]byte(`{"status":"delivered"}`))).Body

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run on a tampered body")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on signature mismatch, got %d", rr.Code)
	}
}

func TestRequireHMACRejectsStaleTimestamp(t *testing.T) {
	const secretName = "webhooks/partner-pos"
	const secretValue = "pos-shared-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(mapSecretProvider{secretName: secretValue}, now, nil)

	stale := now.Add(-10 * time.Minute).Format(time.RFC3339)
	req := signedRequest("/webhooks/pos/orders", []byte(`{}`), secretValue, stale, "nonce-3")

	rr := httptest.NewRecorder()
	validator.RequireHMAC(secretName)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for a stale timestamp")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on timestamp skew, got %d", rr.Code)
	}
}

func TestRequireHMACSecretUnavailable(t *testing.T) {
	provider := SecretProviderFunc(func(context.Context, string) (string, error) {
		return "", fmt.Errorf("secret backend down")
	})
	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(provider, now, nil)

	rr := httptest.NewRecorder()
	validator.RequireHMAC("missing/secret")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run when the secret cannot be resolved")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/pos/orders", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when secret unavailable, got %d", rr.Code)
	}
}

func TestRequireHMACResolver(t *testing.T) {
	const secretName = "webhooks/stripe"
	const secretValue = "resolver-secret"

	now := time.Now().UTC().Truncate(time.Second)
	validator := newHMACValidatorForTest(mapSecretProvider{secretName: secretValue}, now, nil)

	req := signedRequest("/webhooks/payments", []byte(`{"event":"payment_intent.succeeded"}`), secretValue, now.Format(time.RFC3339), "nonce-4")

	rr := httptest.NewRecorder()
	validator.RequireHMACResolver(func(*http.Request) (string, bool) {
		return secretName, true
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from resolver middleware, got %d", rr.Code)
	}

	unknown := httptest.NewRecorder()
	validator.RequireHMACResolver(func(*http.Request) (string, bool) {
		return "", false
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for an unrecognised provider")
	})).ServeHTTP(unknown, httptest.NewRequest(http.MethodPost, "/webhooks/unknown", nil))

	if unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown provider, got %d", unknown.Code)
	}
}
