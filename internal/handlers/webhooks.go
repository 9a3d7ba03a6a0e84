package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/localeats/api/internal/payments"
	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives asynchronous payment notifications from the
// provider and feeds them to the reconciler.
type WebhookHandlers struct {
	orders        services.OrderService
	signingSecret string
	logger        func(r *http.Request, event string, fields map[string]any)
}

// WebhookHandlersOption customises webhook handler behaviour.
type WebhookHandlersOption func(*WebhookHandlers)

// WithWebhookLogger injects a logger for swallowed notification errors.
func WithWebhookLogger(logger func(r *http.Request, event string, fields map[string]any)) WebhookHandlersOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs the payment webhook handlers. The signing
// secret is the provider's endpoint secret; empty disables signature checks
// (tests and local development only).
func NewWebhookHandlers(orders services.OrderService, signingSecret string, opts ...WebhookHandlersOption) *WebhookHandlers {
	h := &WebhookHandlers{
		orders:        orders,
		signingSecret: strings.TrimSpace(signingSecret),
		logger:        func(*http.Request, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePaymentEvent)
}

// handlePaymentEvent applies one provider notification. Processing failures
// after signature verification are acknowledged with 200 and logged so the
// provider does not retry a payload we cannot ever apply; transient storage
// errors return 5xx to trigger a retry.
func (h *WebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, err := h.parseEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	notice, ok := notificationFromEvent(event)
	if !ok {
		// Unhandled event types are acknowledged so the provider stops
		// retrying them.
		h.logger(r, "webhook.ignored", map[string]any{"type": string(event.Type)})
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if _, err := h.orders.ApplyProviderNotification(ctx, notice); err != nil {
		if isRetryableNotificationError(err) {
			httpx.WriteError(ctx, w, httpx.NewError("notification_retry", "notification could not be applied; retry", http.StatusServiceUnavailable))
			return
		}
		h.logger(r, "webhook.swallowed", map[string]any{
			"type":              string(event.Type),
			"providerPaymentId": notice.ProviderPaymentID,
			"error":             err.Error(),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

func (h *WebhookHandlers) parseEvent(body []byte, signature string) (stripe.Event, error) {
	if h.signingSecret != "" {
		return webhook.ConstructEvent(body, signature, h.signingSecret)
	}
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

func notificationFromEvent(event stripe.Event) (services.ProviderNotification, bool) {
	var status payments.Status
	switch event.Type {
	case "payment_intent.succeeded":
		status = payments.StatusSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = payments.StatusFailed
	case "payment_intent.processing":
		status = payments.StatusPending
	default:
		return services.ProviderNotification{}, false
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil || strings.TrimSpace(intent.ID) == "" {
		return services.ProviderNotification{}, false
	}

	return services.ProviderNotification{
		Provider:          "stripe",
		ProviderPaymentID: intent.ID,
		Status:            status,
	}, true
}

// isRetryableNotificationError reports whether the provider should redeliver.
// Unknown payments and invalid transitions never become applicable, so they
// are swallowed; storage unavailability is worth a retry.
func isRetryableNotificationError(err error) bool {
	return errors.Is(err, services.ErrOrderUnavailable) || errors.Is(err, services.ErrOrderConflict)
}
