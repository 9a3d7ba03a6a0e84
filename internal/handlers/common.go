package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, dst any) error {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// money renders decimal amounts with two fractional digits, the storefront's
// display convention. The exact value still lives in the service layer.
func money(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

type cartPayload struct {
	CartCode     string            `json:"cartCode"`
	MerchantCode string            `json:"merchantCode"`
	Items        []cartItemPayload `json:"items"`
	Total        string            `json:"total"`
	DeliveryFee  string            `json:"deliveryFee,omitempty"`
	Status       string            `json:"status"`
	OrderCode    string            `json:"orderCode,omitempty"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ProductCode string                  `json:"productCode"`
	ProductName string                  `json:"productName"`
	UnitPrice   string                  `json:"unitPrice"`
	Quantity    int64                   `json:"quantity"`
	TotalPrice  string                  `json:"totalPrice"`
	Status      string                  `json:"status"`
	Observation string                  `json:"observation,omitempty"`
	Options     []cartItemOptionPayload `json:"options,omitempty"`
}

type cartItemOptionPayload struct {
	OptionCode string `json:"optionCode"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int64  `json:"quantity"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		entry := cartItemPayload{
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   money(item.UnitPrice),
			Quantity:    item.Quantity,
			TotalPrice:  money(item.TotalPrice),
			Status:      string(item.Status),
			Observation: item.Observation,
		}
		for _, opt := range item.Options {
			entry.Options = append(entry.Options, cartItemOptionPayload{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      money(opt.Price),
				Quantity:   opt.Quantity,
			})
		}
		items = append(items, entry)
	}

	payload := cartPayload{
		CartCode:     cart.CartCode,
		MerchantCode: cart.MerchantCode,
		Items:        items,
		Total:        money(cart.Total),
		Status:       string(cart.Status),
		OrderCode:    cart.OrderCode,
	}
	if !cart.DeliveryFee.IsZero() {
		payload.DeliveryFee = money(cart.DeliveryFee)
	}
	if !cart.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(cart.CreatedAt)
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

type orderPayload struct {
	OrderCode    string             `json:"orderCode"`
	CartCode     string             `json:"cartCode"`
	MerchantCode string             `json:"merchantCode"`
	UserID       string             `json:"userId,omitempty"`
	Items        []orderItemPayload `json:"items"`
	Total        string             `json:"total"`
	DeliveryFee  string             `json:"deliveryFee"`
	Status       string             `json:"status"`
	Method       string             `json:"method"`
	CashChange   string             `json:"cashChange,omitempty"`
	PaymentID    string             `json:"paymentId,omitempty"`
	CreatedAt    string             `json:"createdAt,omitempty"`
	UpdatedAt    string             `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductCode string                  `json:"productCode"`
	ProductName string                  `json:"productName"`
	UnitPrice   string                  `json:"unitPrice"`
	Quantity    int64                   `json:"quantity"`
	TotalPrice  string                  `json:"totalPrice"`
	Observation string                  `json:"observation,omitempty"`
	Options     []cartItemOptionPayload `json:"options,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		entry := orderItemPayload{
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   money(item.UnitPrice),
			Quantity:    item.Quantity,
			TotalPrice:  money(item.TotalPrice),
			Observation: item.Observation,
		}
		for _, opt := range item.Options {
			entry.Options = append(entry.Options, cartItemOptionPayload{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      money(opt.Price),
				Quantity:   opt.Quantity,
			})
		}
		items = append(items, entry)
	}

	payload := orderPayload{
		OrderCode:    order.OrderCode,
		CartCode:     order.CartCode,
		MerchantCode: order.MerchantCode,
		UserID:       order.UserID,
		Items:        items,
		Total:        money(order.Total),
		DeliveryFee:  money(order.DeliveryFee),
		Status:       string(order.Status),
		Method:       string(order.Method),
		PaymentID:    order.PaymentID,
	}
	if order.CashChange != nil {
		payload.CashChange = money(*order.CashChange)
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(order.CreatedAt)
	}
	if !order.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(order.UpdatedAt)
	}
	return payload
}
