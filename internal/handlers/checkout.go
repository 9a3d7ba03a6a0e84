package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"

	domain "github.com/localeats/api/internal/domain"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers exposes the checkout orchestration over HTTP.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers delegating to the checkout service.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.processCheckout)
}

type checkoutRequest struct {
	MerchantCode  string                  `json:"merchantCode"`
	CartCode      string                  `json:"cartCode"`
	IdentityToken string                  `json:"identityToken,omitempty"`
	Customer      checkoutCustomerRequest `json:"customer"`
	DeliveryFee   string                  `json:"deliveryFee"`
	Payment       checkoutPaymentRequest  `json:"payment"`
}

type checkoutCustomerRequest struct {
	Name    string                 `json:"name"`
	Email   string                 `json:"email,omitempty"`
	Phone   string                 `json:"phone"`
	Address checkoutAddressRequest `json:"address"`
}

type checkoutAddressRequest struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Complement string `json:"complement,omitempty"`
}

type checkoutPaymentRequest struct {
	Method     string `json:"method"`
	CardToken  string `json:"cardToken,omitempty"`
	CashChange string `json:"cashChange,omitempty"`
	PayerEmail string `json:"payerEmail,omitempty"`
}

func (h *CheckoutHandlers) processCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd, err := buildCheckoutCommand(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.checkout.ProcessCheckout(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func buildCheckoutCommand(req checkoutRequest) (services.CheckoutCommand, error) {
	fee := decimal.Zero
	if raw := strings.TrimSpace(req.DeliveryFee); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return services.CheckoutCommand{}, errors.New("deliveryFee must be a decimal string")
		}
		fee = parsed
	}

	instruction := services.PaymentInstruction{
		Method:     domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Payment.Method))),
		CardToken:  strings.TrimSpace(req.Payment.CardToken),
		PayerEmail: strings.TrimSpace(req.Payment.PayerEmail),
	}
	if raw := strings.TrimSpace(req.Payment.CashChange); raw != "" {
		change, err := decimal.NewFromString(raw)
		if err != nil {
			return services.CheckoutCommand{}, errors.New("cashChange must be a decimal string")
		}
		instruction.CashChange = &change
	}

	return services.CheckoutCommand{
		MerchantCode:  req.MerchantCode,
		CartCode:      req.CartCode,
		IdentityToken: req.IdentityToken,
		Customer: services.CustomerDetails{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
			Address: domain.Address{
				Street:     req.Customer.Address.Street,
				Number:     req.Customer.Address.Number,
				District:   req.Customer.Address.District,
				City:       req.Customer.Address.City,
				State:      req.Customer.Address.State,
				PostalCode: req.Customer.Address.PostalCode,
				Complement: req.Customer.Address.Complement,
			},
		},
		DeliveryFee: fee,
		Payment:     instruction,
	}, nil
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartAlreadyFinalized):
		httpx.WriteError(ctx, w, httpx.NewError("cart_finished", "cart was already finalized by a previous checkout", http.StatusConflict))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "identity token does not resolve to a user", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "cart changed during checkout; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider rejected the request; retry", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}
