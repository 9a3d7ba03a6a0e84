package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/payments"
	"github.com/localeats/api/internal/services"
)

// Webhook tests run with an empty signing secret so payloads parse without a
// provider signature.
func newWebhookRouter(h *WebhookHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/webhooks", h.Routes)
	return r
}

func postWebhook(router chi.Router, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAppliesSucceededIntent(t *testing.T) {
	var got services.ProviderNotification
	svc := &stubOrderService{
		applyNotificationFunc: func(_ context.Context, notice services.ProviderNotification) (domain.Order, error) {
			got = notice
			return domain.Order{OrderCode: "ORDER1234567", Status: domain.OrderStatusPaid}, nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(svc, ""))

	body := `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`
	rec := postWebhook(router, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Provider != "stripe" || got.ProviderPaymentID != "pi_1" {
		t.Fatalf("unexpected notification %+v", got)
	}
	if got.Status != payments.StatusSucceeded {
		t.Fatalf("unexpected status %q", got.Status)
	}
	payload := decodeBody(t, rec)
	if payload["received"] != true {
		t.Fatalf("unexpected body %v", payload)
	}
}

func TestWebhookMapsFailedIntent(t *testing.T) {
	var got services.ProviderNotification
	svc := &stubOrderService{
		applyNotificationFunc: func(_ context.Context, notice services.ProviderNotification) (domain.Order, error) {
			got = notice
			return domain.Order{}, nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(svc, ""))

	body := `{"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2"}}}`
	rec := postWebhook(router, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Status != payments.StatusFailed {
		t.Fatalf("unexpected status %q", got.Status)
	}
}

func TestWebhookAcksUnknownEventType(t *testing.T) {
	called := false
	svc := &stubOrderService{
		applyNotificationFunc: func(context.Context, services.ProviderNotification) (domain.Order, error) {
			called = true
			return domain.Order{}, nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(svc, ""))

	rec := postWebhook(router, `{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if called {
		t.Fatal("unhandled event type must not reach the reconciler")
	}
}

func TestWebhookRetriesOnStorageUnavailable(t *testing.T) {
	svc := &stubOrderService{
		applyNotificationFunc: func(context.Context, services.ProviderNotification) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderUnavailable
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(svc, ""))

	rec := postWebhook(router, `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_3"}}}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "notification_retry" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestWebhookSwallowsPermanentErrors(t *testing.T) {
	var logged string
	svc := &stubOrderService{
		applyNotificationFunc: func(context.Context, services.ProviderNotification) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}
	handler := NewWebhookHandlers(svc, "", WithWebhookLogger(func(_ *http.Request, event string, _ map[string]any) {
		logged = event
	}))
	router := newWebhookRouter(handler)

	rec := postWebhook(router, `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_4"}}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected permanent failure to be acked with 200, got %d", rec.Code)
	}
	if logged != "webhook.swallowed" {
		t.Fatalf("expected swallowed event to be logged, got %q", logged)
	}
}

func TestWebhookRejectsUnsignedPayloadWhenSecretSet(t *testing.T) {
	router := newWebhookRouter(NewWebhookHandlers(&stubOrderService{}, "whsec_test"))

	rec := postWebhook(router, `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_5"}}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "invalid_signature" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}
