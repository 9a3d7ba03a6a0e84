package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"
)

// PublicHandlers serves unauthenticated storefront reads.
type PublicHandlers struct {
	bestSellers services.BestSellerService
}

// NewPublicHandlers constructs the public route handlers.
func NewPublicHandlers(bestSellers services.BestSellerService) *PublicHandlers {
	return &PublicHandlers{bestSellers: bestSellers}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/best-sellers", h.getBestSellers)
}

func (h *PublicHandlers) getBestSellers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	merchantCode := strings.TrimSpace(r.URL.Query().Get("merchantCode"))
	report, err := h.bestSellers.GetBestSellers(ctx, merchantCode)
	if err != nil {
		if errors.Is(err, services.ErrBestSellerUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("bestsellers_unavailable", "best-seller report is temporarily unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("bestsellers_error", "best-seller report failed", http.StatusInternalServerError))
		return
	}

	items := make([]map[string]any, 0, len(report))
	for _, row := range report {
		items = append(items, map[string]any{
			"productCode": row.ProductCode,
			"productName": row.ProductName,
			"quantity":    row.Quantity,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"bestSellers": items})
}
