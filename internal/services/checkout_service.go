package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput signals malformed or missing checkout data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrUserNotFound indicates the identity token references an unknown user.
	ErrUserNotFound = errors.New("checkout: user not found")
	// ErrCartAlreadyFinalized rejects checkout on a cart already consumed by one.
	ErrCartAlreadyFinalized = errors.New("checkout: cart already finalized")
	// ErrCheckoutConflict is returned when the cart changed underneath the checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates a dependency is temporarily unreachable.
	ErrCheckoutUnavailable = errors.New("checkout: temporarily unavailable")
)

// orderCodeLength is the length of generated order codes.
const orderCodeLength = 12

// IdentityTokenVerifier checks an identity token and returns the user id it
// was issued for.
type IdentityTokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// PaymentInitiator is the reconciler entry point checkout hands new orders to.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error)
}

// CustomerDetails carries the contact and delivery fields collected at checkout.
type CustomerDetails struct {
	Name    string
	Email   string
	Phone   string
	Address domain.Address
}

// PaymentInstruction selects the payment method and its method-specific data.
type PaymentInstruction struct {
	Method domain.PaymentMethod
	// CardToken is the provider-issued card credential for card payments.
	CardToken string
	// CashChange is the note the payer will hand over, cash only.
	CashChange *decimal.Decimal
	// PayerEmail identifies the payer for QR charges.
	PayerEmail string
}

// CheckoutCommand is the full input of ProcessCheckout.
type CheckoutCommand struct {
	MerchantCode  string
	CartCode      string
	IdentityToken string
	Customer      CustomerDetails
	DeliveryFee   decimal.Decimal
	Payment       PaymentInstruction
}

// CheckoutService materializes an order from a cart exactly once.
type CheckoutService interface {
	ProcessCheckout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error)
}

// CheckoutServiceDeps wires the collaborators required by NewCheckoutService.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Orders    repositories.OrderRepository
	Users     repositories.UserRepository
	Cache     CartCache
	Pricer    CartPricer
	Verifier  IdentityTokenVerifier
	Payments  PaymentInitiator
	UnitOfWork repositories.UnitOfWork
	// CodeGenerator produces order codes; defaults to ULID-derived 12-char codes.
	CodeGenerator func() string
	IDGenerator   func() string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    repositories.CartRepository
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	cache    CartCache
	pricer   CartPricer
	verifier IdentityTokenVerifier
	payments PaymentInitiator
	uow      repositories.UnitOfWork
	newCode  func() string
	newID    func() string
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NewCheckoutService validates dependencies and constructs the checkout orchestrator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("checkout service: user repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment initiator is required")
	}

	pricer := deps.Pricer
	if pricer == nil {
		pricer = NewPricingEngine()
	}
	cache := deps.Cache
	if cache == nil {
		cache = noopCartCache{}
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	newCode := deps.CodeGenerator
	if newCode == nil {
		newCode = func() string { return randomCode(orderCodeLength) }
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		users:    deps.Users,
		cache:    cache,
		pricer:   pricer,
		verifier: deps.Verifier,
		payments: deps.Payments,
		uow:      uow,
		newCode:  newCode,
		newID:    newID,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *checkoutService) ProcessCheckout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error) {
	merchant := strings.TrimSpace(cmd.MerchantCode)
	cartCode := strings.TrimSpace(cmd.CartCode)
	if merchant == "" || cartCode == "" {
		return domain.Order{}, fmt.Errorf("%w: merchant and cart codes are required", ErrCheckoutInvalidInput)
	}
	if cmd.DeliveryFee.IsNegative() {
		return domain.Order{}, fmt.Errorf("%w: delivery fee cannot be negative", ErrCheckoutInvalidInput)
	}
	switch cmd.Payment.Method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodPix:
	default:
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.Payment.Method)
	}

	user, err := s.resolveIdentity(ctx, strings.TrimSpace(cmd.IdentityToken), cmd.Customer)
	if err != nil {
		return domain.Order{}, err
	}

	cart, err := s.carts.FindByCode(ctx, cartCode)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	if cart.Status == domain.CartStatusFinished {
		return domain.Order{}, fmt.Errorf("%w: cart %s", ErrCartAlreadyFinalized, cartCode)
	}

	// Freeze the delivery fee on the cart and recompute the total before
	// anything is persisted.
	expected := cart.UpdatedAt
	cart.DeliveryFee = cmd.DeliveryFee
	repriced, err := s.pricer.RepriceCart(cart)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	cart = repriced
	if err := transitionCartStatus(&cart, domain.CartStatusCheckout); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCartAlreadyFinalized, err)
	}

	now := s.clock()
	cart.UpdatedAt = now
	order := domain.Order{
		ID:           s.newID(),
		OrderCode:    s.newCode(),
		CartCode:     cart.CartCode,
		MerchantCode: cart.MerchantCode,
		UserID:       user.ID,
		Items:        snapshotOrderItems(cart.Items),
		Total:        cart.Total,
		DeliveryFee:  cart.DeliveryFee,
		Status:       domain.OrderStatusCreated,
		Method:       cmd.Payment.Method,
		CashChange:   cmd.Payment.CashChange,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Status = domain.OrderStatusProcessing

	var savedCart domain.Cart
	var savedOrder domain.Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := s.carts.Update(ctx, cart, &expected)
		if err != nil {
			return err
		}
		savedCart = updated

		for attempt := 0; ; attempt++ {
			created, err := s.orders.Create(ctx, order)
			if err == nil {
				savedOrder = created
				return nil
			}
			repoErr := asRepositoryError(err)
			if repoErr == nil || !repoErr.IsConflict() || attempt >= 2 {
				return err
			}
			// Order code collision; regenerate and retry.
			order.OrderCode = s.newCode()
		}
	})
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.writeCache(ctx, savedCart)
	s.logger(ctx, "checkout.order.created", map[string]any{
		"orderCode":    savedOrder.OrderCode,
		"cartCode":     savedCart.CartCode,
		"merchantCode": merchant,
		"method":       string(cmd.Payment.Method),
	})

	initiated, err := s.payments.InitiatePayment(ctx, savedOrder, cmd.Payment)
	if err != nil {
		return domain.Order{}, err
	}
	return initiated, nil
}

// resolveIdentity implements the two identity paths: an identity token names
// an existing user whose contact fields are updated in place; without a token
// the phone number either finds an existing anonymous user or creates one.
func (s *checkoutService) resolveIdentity(ctx context.Context, token string, details CustomerDetails) (domain.User, error) {
	name := normalizeText(details.Name)
	email := strings.ToLower(strings.TrimSpace(details.Email))
	phone := normalizePhone(details.Phone)

	if token != "" {
		if s.verifier == nil {
			return domain.User{}, fmt.Errorf("%w: identity tokens are not accepted", ErrCheckoutInvalidInput)
		}
		subject, err := s.verifier.Verify(ctx, token)
		if err != nil {
			return domain.User{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
		user, err := s.users.FindByID(ctx, subject)
		if err != nil {
			if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsNotFound() {
				return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, subject)
			}
			return domain.User{}, s.translateRepoError(err)
		}
		user.Name = name
		user.Email = email
		user.Phone = phone
		user.Address = details.Address
		user.UpdatedAt = s.clock()
		updated, err := s.users.Update(ctx, user)
		if err != nil {
			return domain.User{}, s.translateRepoError(err)
		}
		return updated, nil
	}

	if phone == "" {
		return domain.User{}, fmt.Errorf("%w: phone number is required for anonymous checkout", ErrCheckoutInvalidInput)
	}

	user, err := s.users.FindByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if repoErr := asRepositoryError(err); repoErr == nil || !repoErr.IsNotFound() {
		return domain.User{}, s.translateRepoError(err)
	}

	now := s.clock()
	created, err := s.users.Create(ctx, domain.User{
		ID:        s.newID(),
		Name:      name,
		Email:     email,
		Phone:     phone,
		Anonymous: true,
		Address:   details.Address,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, s.translateRepoError(err)
	}
	return created, nil
}

func (s *checkoutService) writeCache(ctx context.Context, cart domain.Cart) {
	if err := s.cache.Put(ctx, cart); err != nil {
		if invErr := s.cache.Invalidate(ctx, cart.CartCode); invErr != nil {
			s.logger(ctx, "checkout.cache.incoherent", map[string]any{
				"cartCode": cart.CartCode,
				"error":    invErr.Error(),
			})
		}
	}
}

func (s *checkoutService) translateRepoError(err error) error {
	if repoErr := asRepositoryError(err); repoErr != nil {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return fmt.Errorf("checkout service: %w", err)
}

// snapshotOrderItems deep-copies cart lines into immutable order snapshots.
// Extras are folded into the option list; both are priced rows of the line.
func snapshotOrderItems(items []domain.CartItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		snapshot := domain.OrderItem{
			ProductCode: item.ProductCode,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
			Observation: item.Observation,
		}
		if n := len(item.Options) + len(item.Extras); n > 0 {
			snapshot.Options = make([]domain.OrderItemOption, 0, n)
		}
		for _, opt := range item.Options {
			snapshot.Options = append(snapshot.Options, domain.OrderItemOption{
				OptionCode: opt.OptionCode,
				Name:       opt.Name,
				Price:      opt.Price,
				Quantity:   opt.Quantity,
			})
		}
		for _, extra := range item.Extras {
			snapshot.Options = append(snapshot.Options, domain.OrderItemOption{
				OptionCode: extra.ExtraCode,
				Name:       extra.Name,
				Price:      extra.Price,
				Quantity:   extra.Quantity,
			})
		}
		out = append(out, snapshot)
	}
	return out
}

// normalizeText applies NFKC so full-width and compatibility characters
// compare equal across checkouts.
func normalizeText(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}

// normalizePhone keeps digits and a leading plus sign only.
func normalizePhone(phone string) string {
	normalized := norm.NFKC.String(phone)
	var b strings.Builder
	for i, r := range normalized {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
