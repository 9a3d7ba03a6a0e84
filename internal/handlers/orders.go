package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/repositories"
	"github.com/localeats/api/internal/services"

	domain "github.com/localeats/api/internal/domain"
)

const maxOrderBodySize = 8 * 1024

// OrderHandlers exposes order reads and the cancel command over HTTP.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs handlers delegating to the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderCode}", h.getOrder)
	r.Get("/{orderCode}/history", h.listHistory)
	r.Post("/{orderCode}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderCode"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	merchantCode := strings.TrimSpace(query.Get("merchantCode"))
	if merchantCode == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "merchantCode is required", http.StatusBadRequest))
		return
	}

	filter := repositories.OrderListFilter{
		Pagination: domain.Pagination{
			PageToken: strings.TrimSpace(query.Get("pageToken")),
		},
	}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a positive integer", http.StatusBadRequest))
			return
		}
		filter.Pagination.PageSize = size
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("createdFrom")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdFrom must be RFC3339", http.StatusBadRequest))
			return
		}
		filter.CreatedFrom = &from
	}
	if raw := strings.TrimSpace(query.Get("createdTo")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdTo must be RFC3339", http.StatusBadRequest))
			return
		}
		filter.CreatedTo = &to
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("sort"))); raw != "" {
		if raw != string(domain.SortAsc) && raw != string(domain.SortDesc) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sort must be asc or desc", http.StatusBadRequest))
			return
		}
		filter.Sort = domain.SortOrder(raw)
	}

	page, err := h.orders.ListOrders(ctx, merchantCode, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":        items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	pager := domain.Pagination{PageToken: strings.TrimSpace(query.Get("pageToken"))}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a positive integer", http.StatusBadRequest))
			return
		}
		pager.PageSize = size
	}

	page, err := h.orders.ListOrderHistory(ctx, chi.URLParam(r, "orderCode"), pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	entries := make([]map[string]any, 0, len(page.Items))
	for _, change := range page.Items {
		entries = append(entries, map[string]any{
			"from":      string(change.From),
			"to":        string(change.To),
			"actor":     change.Actor,
			"reason":    change.Reason,
			"createdAt": formatTime(change.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"history":       entries,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Actor  string `json:"actor,omitempty"`
		Reason string `json:"reason,omitempty"`
	}
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "orderCode"), req.Actor, req.Reason)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", trimSentinel(err), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider rejected the request; retry", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}
