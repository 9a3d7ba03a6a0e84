package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/platform/pagination"
	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore, keyed by order code.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// Create persists a new order. A duplicate order code surfaces as a conflict.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	code := strings.TrimSpace(order.OrderCode)
	if code == "" {
		return domain.Order{}, errors.New("order repository: order code is required")
	}

	result, err := r.base.Create(ctx, code, encodeOrder(order))
	if err != nil {
		return domain.Order{}, err
	}
	saved := order
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByCode loads the order for the given code.
func (r *OrderRepository) FindByCode(ctx context.Context, orderCode string) (domain.Order, error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return domain.Order{}, errors.New("order repository: order code is required")
	}
	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc)
}

// Update replaces the order. The expected timestamp must match the document's
// last commit time or the write fails with a conflict.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdatedAt *time.Time) (domain.Order, error) {
	code := strings.TrimSpace(order.OrderCode)
	if code == "" {
		return domain.Order{}, errors.New("order repository: order code is required")
	}

	doc := encodeOrder(order)
	if expectedUpdatedAt == nil || expectedUpdatedAt.IsZero() {
		result, err := r.base.Set(ctx, code, doc)
		if err != nil {
			return domain.Order{}, err
		}
		saved := order
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "paymentId", Value: doc.PaymentID},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if doc.CashChange == "" {
		updates = append(updates, firestore.Update{Path: "cashChange", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "cashChange", Value: doc.CashChange})
	}

	result, err := r.base.Update(ctx, code, updates, firestore.LastUpdateTime(expectedUpdatedAt.UTC()))
	if err != nil {
		return domain.Order{}, err
	}
	saved := order
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ListByMerchant pages through a merchant's orders, newest first by default.
func (r *OrderRepository) ListByMerchant(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	merchant := strings.TrimSpace(merchantCode)
	if merchant == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: merchant code is required")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultMaxPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("merchantCode", "==", merchant)
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.CreatedFrom != nil {
			q = q.Where("createdAt", ">=", filter.CreatedFrom.UTC())
		}
		if filter.CreatedTo != nil {
			q = q.Where("createdAt", "<", filter.CreatedTo.UTC())
		}
		q = q.OrderBy("createdAt", direction)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(reviveCursorValues(cursor.StartAfter)...)
		}
		// One extra row decides whether another page exists.
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ScanOrders streams every order, optionally scoped to one merchant, into fn.
func (r *OrderRepository) ScanOrders(ctx context.Context, merchantCode string, fn func(domain.Order) error) error {
	if fn == nil {
		return errors.New("order repository: scan callback is required")
	}
	merchant := strings.TrimSpace(merchantCode)

	return r.base.Stream(ctx, func(q firestore.Query) firestore.Query {
		if merchant != "" {
			q = q.Where("merchantCode", "==", merchant)
		}
		return q.OrderBy("createdAt", firestore.Asc)
	}, func(doc pfirestore.Document[orderDocument]) error {
		order, err := decodeOrder(doc)
		if err != nil {
			return err
		}
		return fn(order)
	})
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		options := make([]cartItemOptionDocument, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, cartItemOptionDocument{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      opt.Price.String(),
				Quantity:   opt.Quantity,
			})
		}
		items = append(items, orderItemDocument{
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice.String(),
			Observation: item.Observation,
			Options:     options,
		})
	}

	cashChange := ""
	if order.CashChange != nil {
		cashChange = order.CashChange.String()
	}

	createdAt := order.CreatedAt.UTC()
	updatedAt := order.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return orderDocument{
		ID:           strings.TrimSpace(order.ID),
		OrderCode:    strings.TrimSpace(order.OrderCode),
		CartCode:     strings.TrimSpace(order.CartCode),
		MerchantCode: strings.TrimSpace(order.MerchantCode),
		UserID:       strings.TrimSpace(order.UserID),
		Items:        items,
		Total:        order.Total.String(),
		DeliveryFee:  order.DeliveryFee.String(),
		Status:       string(order.Status),
		Method:       string(order.Method),
		CashChange:   cashChange,
		PaymentID:    strings.TrimSpace(order.PaymentID),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

func decodeOrder(doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	total, err := parseDecimal(doc.Data.Total, "order total")
	if err != nil {
		return domain.Order{}, err
	}
	fee, err := parseDecimal(doc.Data.DeliveryFee, "order delivery fee")
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(doc.Data.Items))
	for _, item := range doc.Data.Items {
		unitPrice, err := parseDecimal(item.UnitPrice, "order item unit price")
		if err != nil {
			return domain.Order{}, err
		}
		totalPrice, err := parseDecimal(item.TotalPrice, "order item total price")
		if err != nil {
			return domain.Order{}, err
		}
		options := make([]domain.OrderItemOption, 0, len(item.Options))
		for _, opt := range item.Options {
			price, err := parseDecimal(opt.Price, "order option price")
			if err != nil {
				return domain.Order{}, err
			}
			options = append(options, domain.OrderItemOption{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      price,
				Quantity:   opt.Quantity,
			})
		}
		if len(options) == 0 {
			options = nil
		}
		items = append(items, domain.OrderItem{
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  totalPrice,
			Observation: item.Observation,
			Options:     options,
		})
	}
	if len(items) == 0 {
		items = nil
	}

	order := domain.Order{
		ID:           doc.Data.ID,
		OrderCode:    firstNonEmpty(doc.Data.OrderCode, doc.ID),
		CartCode:     doc.Data.CartCode,
		MerchantCode: doc.Data.MerchantCode,
		UserID:       doc.Data.UserID,
		Items:        items,
		Total:        total,
		DeliveryFee:  fee,
		Status:       domain.OrderStatus(doc.Data.Status),
		Method:       domain.PaymentMethod(doc.Data.Method),
		PaymentID:    doc.Data.PaymentID,
		CreatedAt:    doc.Data.CreatedAt,
		UpdatedAt:    latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}
	if doc.Data.CashChange != "" {
		change, err := parseDecimal(doc.Data.CashChange, "order cash change")
		if err != nil {
			return domain.Order{}, err
		}
		order.CashChange = &change
	}
	return order, nil
}

// reviveCursorValues restores timestamp cursor components that the JSON page
// token round-trip turned into RFC 3339 strings.
func reviveCursorValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				out[i] = ts
				continue
			}
		}
		out[i] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type orderDocument struct {
	ID           string              `firestore:"id"`
	OrderCode    string              `firestore:"orderCode"`
	CartCode     string              `firestore:"cartCode"`
	MerchantCode string              `firestore:"merchantCode"`
	UserID       string              `firestore:"userId"`
	Items        []orderItemDocument `firestore:"items"`
	Total        string              `firestore:"total"`
	DeliveryFee  string              `firestore:"deliveryFee"`
	Status       string              `firestore:"status"`
	Method       string              `firestore:"method"`
	CashChange   string              `firestore:"cashChange,omitempty"`
	PaymentID    string              `firestore:"paymentId,omitempty"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductCode string                   `firestore:"productCode"`
	ProductName string                   `firestore:"productName"`
	UnitPrice   string                   `firestore:"unitPrice"`
	Quantity    int64                    `firestore:"quantity"`
	TotalPrice  string                   `firestore:"totalPrice"`
	Observation string                   `firestore:"observation,omitempty"`
	Options     []cartItemOptionDocument `firestore:"options,omitempty"`
}
