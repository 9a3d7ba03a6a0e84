package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"
)

const maxInternalBodySize = 16 * 1024

// InternalHandlers serves operator and push-delivery endpoints. The router
// mounts them behind OIDC (or HMAC) middleware.
type InternalHandlers struct {
	orders services.OrderService
	clock  func() time.Time
}

// NewInternalHandlers constructs the internal route handlers.
func NewInternalHandlers(orders services.OrderService, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{orders: orders, clock: clock}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/expirations", h.expirePayment)
	r.Post("/payments/expirations/run", h.runExpirations)
}

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type expirationTask struct {
	PaymentID string    `json:"paymentId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// expirePayment handles one scheduled expiration reminder delivered by
// Pub/Sub push. Deliveries that arrive before the window elapsed are
// rejected with 429 so the subscription redelivers them later; the due-task
// sweep remains the backstop either way.
func (h *InternalHandlers) expirePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var envelope pushEnvelope
	if err := decodeJSONBody(r, maxInternalBodySize, &envelope); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	task, err := decodeExpirationTask(envelope)
	if err != nil {
		// Malformed messages can never become applicable; ack them so the
		// subscription does not loop.
		writeJSONResponse(w, http.StatusOK, map[string]any{"received": true, "skipped": "malformed"})
		return
	}

	if !task.ExpiresAt.IsZero() && h.clock().UTC().Before(task.ExpiresAt.UTC()) {
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(task.ExpiresAt)/time.Second)+1))
		httpx.WriteError(ctx, w, httpx.NewError("expiration_not_due", "payment expiration window has not elapsed", http.StatusTooManyRequests))
		return
	}

	if err := h.orders.ExpirePayment(ctx, task.PaymentID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

// runExpirations sweeps due QR payments. Cloud Scheduler drives it.
func (h *InternalHandlers) runExpirations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Limit int `json:"limit,omitempty"`
	}
	if body, err := readLimitedBody(r, maxInternalBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	}

	processed, err := h.orders.RunExpirationChecks(ctx, req.Limit)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"processed": processed})
}

func decodeExpirationTask(envelope pushEnvelope) (expirationTask, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envelope.Message.Data))
	if err != nil {
		return expirationTask{}, err
	}
	var task expirationTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return expirationTask{}, err
	}
	if strings.TrimSpace(task.PaymentID) == "" {
		return expirationTask{}, errEmptyBody
	}
	return task, nil
}
