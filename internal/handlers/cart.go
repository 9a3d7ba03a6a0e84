package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"

	domain "github.com/localeats/api/internal/domain"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the cart mutation commands over HTTP.
type CartHandlers struct {
	carts   services.CartService
	limiter rateLimiter
}

// CartHandlersOption customises cart handler behaviour.
type CartHandlersOption func(*CartHandlers)

// WithCartRateLimit throttles cart mutations per client IP.
func WithCartRateLimit(limit int, window time.Duration) CartHandlersOption {
	return func(h *CartHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewCartHandlers constructs handlers delegating to the cart service.
func NewCartHandlers(carts services.CartService, opts ...CartHandlersOption) *CartHandlers {
	h := &CartHandlers{carts: carts}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /carts endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
	r.Post("/items", h.addItem)
	r.Get("/{cartCode}", h.getCart)
	r.Delete("/{cartCode}", h.deleteCart)
	r.Post("/{cartCode}/clear", h.clearCart)
	r.Post("/{cartCode}/items/{productCode}/increment", h.incrementItem)
	r.Post("/{cartCode}/items/{productCode}/decrement", h.decrementItem)
	r.Delete("/{cartCode}/items/{productCode}", h.removeItem)
	r.Put("/{cartCode}/items/{productCode}/observation", h.insertObservation)
	r.Post("/{cartCode}/items/{productCode}/options/{optionCode}/increment", h.incrementOption)
	r.Post("/{cartCode}/items/{productCode}/options/{optionCode}/decrement", h.decrementOption)
}

func (h *CartHandlers) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(r.RemoteAddr) {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many cart mutations; slow down", http.StatusTooManyRequests))
	return false
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	var req struct {
		MerchantCode string `json:"merchantCode"`
	}
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.CreateCart(ctx, req.MerchantCode)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartPayload(cart))
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartCode"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	var req struct {
		MerchantCode string `json:"merchantCode"`
		CartCode     string `json:"cartCode"`
		ProductCode  string `json:"productCode"`
	}
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddItemCommand{
		MerchantCode: req.MerchantCode,
		CartCode:     req.CartCode,
		ProductCode:  req.ProductCode,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) incrementItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.carts.IncrementItem)
}

func (h *CartHandlers) decrementItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.carts.DecrementItem)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	h.itemMutation(w, r, h.carts.RemoveItem)
}

func (h *CartHandlers) itemMutation(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (domain.Cart, error)) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	cart, err := op(ctx, chi.URLParam(r, "cartCode"), chi.URLParam(r, "productCode"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) incrementOption(w http.ResponseWriter, r *http.Request) {
	h.optionMutation(w, r, h.carts.IncrementOptionQuantity)
}

func (h *CartHandlers) decrementOption(w http.ResponseWriter, r *http.Request) {
	h.optionMutation(w, r, h.carts.DecrementOptionQuantity)
}

func (h *CartHandlers) optionMutation(w http.ResponseWriter, r *http.Request, op func(context.Context, services.OptionQuantityCommand) (domain.Cart, error)) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	cart, err := op(ctx, services.OptionQuantityCommand{
		CartCode:    chi.URLParam(r, "cartCode"),
		ProductCode: chi.URLParam(r, "productCode"),
		OptionCode:  chi.URLParam(r, "optionCode"),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) insertObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	var req struct {
		Observation string `json:"observation"`
	}
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.InsertObservation(ctx, chi.URLParam(r, "cartCode"), chi.URLParam(r, "productCode"), req.Observation)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	cart, err := h.carts.ClearCart(ctx, chi.URLParam(r, "cartCode"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}

	if err := h.carts.DeleteCart(ctx, chi.URLParam(r, "cartCode")); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "product has no line in this cart", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductOptionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_option_not_found", "product option not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("cart_invalid_state", trimSentinel(err), http.StatusConflict))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

// trimSentinel drops internal wrapping noise but keeps the human detail.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
