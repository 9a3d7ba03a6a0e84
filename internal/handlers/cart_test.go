package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/services"
)

func newCartRouter(h *CartHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/carts", h.Routes)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return payload
}

func TestCreateCartReturnsCreatedCart(t *testing.T) {
	svc := &stubCartService{
		createCartFunc: func(_ context.Context, merchantCode string) (domain.Cart, error) {
			if merchantCode != "burgers-centro" {
				t.Fatalf("unexpected merchant code %q", merchantCode)
			}
			return domain.Cart{
				CartCode:     "A1B2C3D4",
				MerchantCode: merchantCode,
				Status:       domain.CartStatusCreated,
				Total:        decimal.Zero,
			}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/carts", strings.NewReader(`{"merchantCode":"burgers-centro"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["cartCode"] != "A1B2C3D4" {
		t.Fatalf("unexpected cart code %v", payload["cartCode"])
	}
	if payload["status"] != string(domain.CartStatusCreated) {
		t.Fatalf("unexpected status %v", payload["status"])
	}
}

func TestCreateCartRejectsInvalidJSON(t *testing.T) {
	router := newCartRouter(NewCartHandlers(&stubCartService{}))

	req := httptest.NewRequest(http.MethodPost, "/carts", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "invalid_request" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestGetCartNotFound(t *testing.T) {
	svc := &stubCartService{
		getCartFunc: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartNotFound
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodGet, "/carts/MISSING1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "cart_not_found" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestAddItemForwardsCommand(t *testing.T) {
	var got services.AddItemCommand
	svc := &stubCartService{
		addItemFunc: func(_ context.Context, cmd services.AddItemCommand) (domain.Cart, error) {
			got = cmd
			return domain.Cart{
				CartCode: cmd.CartCode,
				Status:   domain.CartStatusActive,
				Total:    decimal.RequireFromString("20.00"),
				Items: []domain.CartItem{{
					ProductCode: cmd.ProductCode,
					ProductName: "X-Burger",
					UnitPrice:   decimal.RequireFromString("10.00"),
					Quantity:    2,
					TotalPrice:  decimal.RequireFromString("20.00"),
					Status:      domain.CartItemStatusPending,
				}},
			}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	body := `{"merchantCode":"burgers-centro","cartCode":"A1B2C3D4","productCode":"xburger"}`
	req := httptest.NewRequest(http.MethodPost, "/carts/items", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.MerchantCode != "burgers-centro" || got.CartCode != "A1B2C3D4" || got.ProductCode != "xburger" {
		t.Fatalf("unexpected command %+v", got)
	}
	payload := decodeBody(t, rec)
	if payload["total"] != "20.00" {
		t.Fatalf("unexpected total %v", payload["total"])
	}
}

func TestIncrementItemRoutesParams(t *testing.T) {
	svc := &stubCartService{
		incrementItemFunc: func(_ context.Context, cartCode, productCode string) (domain.Cart, error) {
			if cartCode != "A1B2C3D4" || productCode != "xburger" {
				t.Fatalf("unexpected params %q %q", cartCode, productCode)
			}
			return domain.Cart{CartCode: cartCode, Status: domain.CartStatusActive, Total: decimal.Zero}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/carts/A1B2C3D4/items/xburger/increment", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDecrementOptionRoutesCommand(t *testing.T) {
	var got services.OptionQuantityCommand
	svc := &stubCartService{
		decrementOptionFunc: func(_ context.Context, cmd services.OptionQuantityCommand) (domain.Cart, error) {
			got = cmd
			return domain.Cart{CartCode: cmd.CartCode, Status: domain.CartStatusActive, Total: decimal.Zero}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/carts/A1B2C3D4/items/xburger/options/extra-cheese/decrement", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.CartCode != "A1B2C3D4" || got.ProductCode != "xburger" || got.OptionCode != "extra-cheese" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestInsertObservation(t *testing.T) {
	svc := &stubCartService{
		insertObservationFunc: func(_ context.Context, cartCode, productCode, observation string) (domain.Cart, error) {
			if observation != "no onions" {
				t.Fatalf("unexpected observation %q", observation)
			}
			return domain.Cart{CartCode: cartCode, Status: domain.CartStatusActive, Total: decimal.Zero}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodPut, "/carts/A1B2C3D4/items/xburger/observation", strings.NewReader(`{"observation":"no onions"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteCartReturnsNoContent(t *testing.T) {
	deleted := false
	svc := &stubCartService{
		deleteCartFunc: func(_ context.Context, cartCode string) error {
			deleted = true
			return nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodDelete, "/carts/A1B2C3D4", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !deleted {
		t.Fatal("expected delete to reach the service")
	}
}

func TestCartConflictMapsToConflict(t *testing.T) {
	svc := &stubCartService{
		clearCartFunc: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartConflict
		},
	}
	router := newCartRouter(NewCartHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/carts/A1B2C3D4/clear", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "cart_conflict" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestCartMutationsRateLimited(t *testing.T) {
	svc := &stubCartService{
		incrementItemFunc: func(_ context.Context, cartCode, productCode string) (domain.Cart, error) {
			return domain.Cart{CartCode: cartCode, Status: domain.CartStatusActive, Total: decimal.Zero}, nil
		},
	}
	router := newCartRouter(NewCartHandlers(svc, WithCartRateLimit(1, time.Minute)))

	first := httptest.NewRequest(http.MethodPost, "/carts/A1B2C3D4/items/xburger/increment", nil)
	first.RemoteAddr = "10.0.0.1:4000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/carts/A1B2C3D4/items/xburger/increment", nil)
	second.RemoteAddr = "10.0.0.1:4000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
}
