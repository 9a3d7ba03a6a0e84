package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/localeats/api/internal/domain"
	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists cart aggregates in Firestore. Documents are keyed
// by cart code, so code uniqueness falls out of the create-if-absent write.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// Create persists a new cart. A duplicate cart code surfaces as a conflict.
func (r *CartRepository) Create(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	code := strings.TrimSpace(cart.CartCode)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}

	doc, err := encodeCart(cart)
	if err != nil {
		return domain.Cart{}, err
	}
	result, err := r.base.Create(ctx, code, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByCode loads the cart aggregate for the given code.
func (r *CartRepository) FindByCode(ctx context.Context, cartCode string) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}
	doc, err := r.base.Get(ctx, code)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc)
}

// FindLatestForMerchant returns the most recently created cart of a merchant.
func (r *CartRepository) FindLatestForMerchant(ctx context.Context, merchantCode string) (domain.Cart, error) {
	merchant := strings.TrimSpace(merchantCode)
	if merchant == "" {
		return domain.Cart{}, errors.New("cart repository: merchant code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("merchantCode", "==", merchant).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	if len(docs) == 0 {
		return domain.Cart{}, pfirestore.NotFound("carts.latest", notFoundf("no cart for merchant %s", merchant))
	}
	return decodeCart(docs[0])
}

// Update replaces the cart aggregate. The expected timestamp must match the
// document's last commit time or the write fails with a conflict.
func (r *CartRepository) Update(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	code := strings.TrimSpace(cart.CartCode)
	if code == "" {
		return domain.Cart{}, errors.New("cart repository: cart code is required")
	}

	doc, err := encodeCart(cart)
	if err != nil {
		return domain.Cart{}, err
	}

	if expectedUpdatedAt == nil || expectedUpdatedAt.IsZero() {
		result, err := r.base.Set(ctx, code, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		saved := cart
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "id", Value: doc.ID},
		{Path: "merchantCode", Value: doc.MerchantCode},
		{Path: "items", Value: doc.Items},
		{Path: "total", Value: doc.Total},
		{Path: "deliveryFee", Value: doc.DeliveryFee},
		{Path: "status", Value: doc.Status},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if doc.OrderCode == "" {
		updates = append(updates, firestore.Update{Path: "orderCode", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "orderCode", Value: doc.OrderCode})
	}

	result, err := r.base.Update(ctx, code, updates, firestore.LastUpdateTime(expectedUpdatedAt.UTC()))
	if err != nil {
		return domain.Cart{}, err
	}
	saved := cart
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete removes the cart and, by ownership, its items.
func (r *CartRepository) Delete(ctx context.Context, cartCode string) error {
	code := strings.TrimSpace(cartCode)
	if code == "" {
		return errors.New("cart repository: cart code is required")
	}
	return r.base.Delete(ctx, code)
}

func encodeCart(cart domain.Cart) (cartDocument, error) {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		options := make([]cartItemOptionDocument, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, cartItemOptionDocument{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      opt.Price.String(),
				Quantity:   opt.Quantity,
			})
		}
		extras := make([]cartItemOptionDocument, 0, len(item.Extras))
		for _, extra := range item.Extras {
			extras = append(extras, cartItemOptionDocument{
				OptionCode: extra.ExtraCode,
				Name:       extra.Name,
				Price:      extra.Price.String(),
				Quantity:   extra.Quantity,
			})
		}
		items = append(items, cartItemDocument{
			ID:          item.ID,
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice.String(),
			Status:      string(item.Status),
			Observation: item.Observation,
			Options:     options,
			Extras:      extras,
		})
	}

	createdAt := cart.CreatedAt.UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return cartDocument{
		ID:           strings.TrimSpace(cart.ID),
		CartCode:     strings.TrimSpace(cart.CartCode),
		MerchantCode: strings.TrimSpace(cart.MerchantCode),
		Items:        items,
		Total:        cart.Total.String(),
		DeliveryFee:  cart.DeliveryFee.String(),
		Status:       string(cart.Status),
		OrderCode:    strings.TrimSpace(cart.OrderCode),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func decodeCart(doc pfirestore.Document[cartDocument]) (domain.Cart, error) {
	total, err := parseDecimal(doc.Data.Total, "cart total")
	if err != nil {
		return domain.Cart{}, err
	}
	fee, err := parseDecimal(doc.Data.DeliveryFee, "cart delivery fee")
	if err != nil {
		return domain.Cart{}, err
	}

	items := make([]domain.CartItem, 0, len(doc.Data.Items))
	for _, item := range doc.Data.Items {
		unitPrice, err := parseDecimal(item.UnitPrice, "item unit price")
		if err != nil {
			return domain.Cart{}, err
		}
		totalPrice, err := parseDecimal(item.TotalPrice, "item total price")
		if err != nil {
			return domain.Cart{}, err
		}

		options := make([]domain.CartItemOption, 0, len(item.Options))
		for _, opt := range item.Options {
			price, err := parseDecimal(opt.Price, "option price")
			if err != nil {
				return domain.Cart{}, err
			}
			options = append(options, domain.CartItemOption{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      price,
				Quantity:   opt.Quantity,
			})
		}
		extras := make([]domain.CartItemExtra, 0, len(item.Extras))
		for _, extra := range item.Extras {
			price, err := parseDecimal(extra.Price, "extra price")
			if err != nil {
				return domain.Cart{}, err
			}
			extras = append(extras, domain.CartItemExtra{
				ExtraCode: extra.OptionCode,
				Name:      extra.Name,
				Price:     price,
				Quantity:  extra.Quantity,
			})
		}
		if len(options) == 0 {
			options = nil
		}
		if len(extras) == 0 {
			extras = nil
		}

		items = append(items, domain.CartItem{
			ID:          item.ID,
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   unitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  totalPrice,
			Status:      domain.CartItemStatus(item.Status),
			Observation: item.Observation,
			Options:     options,
			Extras:      extras,
		})
	}
	if len(items) == 0 {
		items = nil
	}

	cartCode := strings.TrimSpace(doc.Data.CartCode)
	if cartCode == "" {
		cartCode = doc.ID
	}

	return domain.Cart{
		ID:           doc.Data.ID,
		CartCode:     cartCode,
		MerchantCode: doc.Data.MerchantCode,
		Items:        items,
		Total:        total,
		DeliveryFee:  fee,
		Status:       domain.CartStatus(doc.Data.Status),
		OrderCode:    doc.Data.OrderCode,
		CreatedAt:    doc.Data.CreatedAt,
		UpdatedAt:    latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}, nil
}

func latestTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary
	}
	return fallback
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

type cartDocument struct {
	ID           string             `firestore:"id"`
	CartCode     string             `firestore:"cartCode"`
	MerchantCode string             `firestore:"merchantCode"`
	Items        []cartItemDocument `firestore:"items"`
	Total        string             `firestore:"total"`
	DeliveryFee  string             `firestore:"deliveryFee"`
	Status       string             `firestore:"status"`
	OrderCode    string             `firestore:"orderCode,omitempty"`
	CreatedAt    time.Time          `firestore:"createdAt"`
	UpdatedAt    time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID          string                   `firestore:"id"`
	ProductCode string                   `firestore:"productCode"`
	ProductName string                   `firestore:"productName"`
	UnitPrice   string                   `firestore:"unitPrice"`
	Quantity    int64                    `firestore:"quantity"`
	TotalPrice  string                   `firestore:"totalPrice"`
	Status      string                   `firestore:"status"`
	Observation string                   `firestore:"observation,omitempty"`
	Options     []cartItemOptionDocument `firestore:"options,omitempty"`
	Extras      []cartItemOptionDocument `firestore:"extras,omitempty"`
}

type cartItemOptionDocument struct {
	OptionCode string `firestore:"optionCode"`
	Name       string `firestore:"name"`
	Price      string `firestore:"price"`
	Quantity   int64  `firestore:"quantity"`
}
