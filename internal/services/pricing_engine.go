package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
)

// ErrPricingInvalidInput signals bad pricing data such as negative prices or quantities.
var ErrPricingInvalidInput = errors.New("pricing: invalid input")

// CartPricer recomputes derived monetary fields and line eligibility. The
// engine is pure: it performs no I/O and mutates nothing beyond the values it
// is given.
type CartPricer interface {
	RepriceItem(item domain.CartItem, product domain.Product) (domain.CartItem, error)
	RepriceCart(cart domain.Cart) (domain.Cart, error)
}

// PricingEngine is the default CartPricer implementation. All arithmetic uses
// exact decimals so repeated increments never accumulate rounding drift.
type PricingEngine struct{}

// NewPricingEngine constructs the pricing engine.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

var _ CartPricer = (*PricingEngine)(nil)

// RepriceItem recomputes the line total and eligibility for a single cart
// line against its catalog product.
//
// Line total = product price x quantity + sum of option price x quantity +
// sum of extra price x quantity. A missing option list counts as empty.
func (e *PricingEngine) RepriceItem(item domain.CartItem, product domain.Product) (domain.CartItem, error) {
	if item.Quantity < 0 {
		return domain.CartItem{}, fmt.Errorf("%w: negative item quantity", ErrPricingInvalidInput)
	}
	if product.Price.IsNegative() {
		return domain.CartItem{}, fmt.Errorf("%w: negative product price", ErrPricingInvalidInput)
	}

	total := product.Price.Mul(decimal.NewFromInt(item.Quantity))

	var optionQty int64
	for _, opt := range item.Options {
		if opt.Quantity < 0 || opt.Price.IsNegative() {
			return domain.CartItem{}, ErrPricingInvalidInput
		}
		total = total.Add(opt.Price.Mul(decimal.NewFromInt(opt.Quantity)))
		optionQty += opt.Quantity
	}
	for _, extra := range item.Extras {
		if extra.Quantity < 0 || extra.Price.IsNegative() {
			return domain.CartItem{}, ErrPricingInvalidInput
		}
		total = total.Add(extra.Price.Mul(decimal.NewFromInt(extra.Quantity)))
	}

	item.UnitPrice = product.Price
	item.ProductName = product.Name
	item.TotalPrice = total
	item.Status = eligibility(product, optionQty)
	return item, nil
}

// RepriceCart recomputes the cart total from its line totals and the current
// delivery fee. Delivery fee defaults to zero before checkout.
func (e *PricingEngine) RepriceCart(cart domain.Cart) (domain.Cart, error) {
	if cart.DeliveryFee.IsNegative() {
		return domain.Cart{}, ErrPricingInvalidInput
	}
	total := decimal.Zero
	for _, item := range cart.Items {
		if item.TotalPrice.IsNegative() {
			return domain.Cart{}, ErrPricingInvalidInput
		}
		total = total.Add(item.TotalPrice)
	}
	cart.Total = total.Add(cart.DeliveryFee)
	return cart, nil
}

// eligibility applies the catalog's minimum-option rule. Products without a
// declared minimum are always released.
func eligibility(product domain.Product, optionQty int64) domain.CartItemStatus {
	if product.MinimumRequiredOptions <= 0 {
		return domain.CartItemStatusReleased
	}
	if optionQty >= product.MinimumRequiredOptions {
		return domain.CartItemStatusReleased
	}
	return domain.CartItemStatusBlocked
}
