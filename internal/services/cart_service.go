package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals malformed or missing request data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates the cart code does not resolve to a cart.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartItemNotFound indicates the product has no line in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrProductNotFound indicates the product code is unknown to the catalog.
	ErrProductNotFound = errors.New("cart: product not found")
	// ErrProductOptionNotFound indicates the option code is not declared by the product.
	ErrProductOptionNotFound = errors.New("cart: product option not found")
	// ErrCartInvalidState rejects an illegal cart status transition.
	ErrCartInvalidState = errors.New("cart: invalid state")
	// ErrCartConflict is returned when concurrent mutations exhausted the retry budget.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates the persistence layer is temporarily unreachable.
	ErrCartUnavailable = errors.New("cart: temporarily unavailable")
)

// cartMutationAttempts bounds the optimistic-lock retry loop for a single
// cart mutation before surfacing ErrCartConflict.
const cartMutationAttempts = 3

// cartCodeLength is the length of generated cart codes.
const cartCodeLength = 8

// cartStateTransitions is the single authority on legal cart status changes.
// Status writes go through transitionCartStatus so illegal moves are rejected
// instead of silently overwriting state.
var cartStateTransitions = map[domain.CartStatus][]domain.CartStatus{
	domain.CartStatusCreated:    {domain.CartStatusActive, domain.CartStatusProcessing, domain.CartStatusEmpty, domain.CartStatusClear, domain.CartStatusCheckout},
	domain.CartStatusActive:     {domain.CartStatusActive, domain.CartStatusProcessing, domain.CartStatusEmpty, domain.CartStatusClear, domain.CartStatusCheckout},
	domain.CartStatusProcessing: {domain.CartStatusActive, domain.CartStatusProcessing, domain.CartStatusEmpty, domain.CartStatusClear, domain.CartStatusCheckout},
	domain.CartStatusEmpty:      {domain.CartStatusActive, domain.CartStatusProcessing, domain.CartStatusEmpty, domain.CartStatusClear, domain.CartStatusCheckout},
	domain.CartStatusClear:      {domain.CartStatusActive, domain.CartStatusProcessing, domain.CartStatusEmpty, domain.CartStatusClear, domain.CartStatusCheckout},
	domain.CartStatusCheckout:   {domain.CartStatusCheckout, domain.CartStatusActive, domain.CartStatusFinished},
	domain.CartStatusFinished:   {},
}

// transitionCartStatus applies a status change after validating it against the
// transition table.
func transitionCartStatus(cart *domain.Cart, to domain.CartStatus) error {
	if cart == nil {
		return fmt.Errorf("%w: cart is nil", ErrCartInvalidInput)
	}
	for _, allowed := range cartStateTransitions[cart.Status] {
		if allowed == to {
			cart.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move cart from %s to %s", ErrCartInvalidState, cart.Status, to)
}

// CartCache is the explicit read-through cache port keyed by cart code.
// Mutating operations call Put or Invalidate before the write is considered
// complete so readers never observe a stale snapshot. Put calls are ordered
// by the snapshot's UpdatedAt: implementations discard a snapshot older than
// the cached entry, so a delayed write-back cannot shadow a later commit.
type CartCache interface {
	Get(ctx context.Context, cartCode string) (domain.Cart, bool, error)
	Put(ctx context.Context, cart domain.Cart) error
	Invalidate(ctx context.Context, cartCode string) error
}

type noopCartCache struct{}

func (noopCartCache) Get(context.Context, string) (domain.Cart, bool, error) {
	return domain.Cart{}, false, nil
}
func (noopCartCache) Put(context.Context, domain.Cart) error    { return nil }
func (noopCartCache) Invalidate(context.Context, string) error  { return nil }

// AddItemCommand identifies the cart (directly or by merchant fallback) and
// the product to add.
type AddItemCommand struct {
	MerchantCode string
	CartCode     string
	ProductCode  string
}

// OptionQuantityCommand identifies the option row to increment or decrement.
type OptionQuantityCommand struct {
	CartCode    string
	ProductCode string
	OptionCode  string
}

// CartService owns the cart aggregate and every mutation command against it.
type CartService interface {
	CreateCart(ctx context.Context, merchantCode string) (domain.Cart, error)
	GetCart(ctx context.Context, cartCode string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (domain.Cart, error)
	IncrementItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error)
	DecrementItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error)
	IncrementOptionQuantity(ctx context.Context, cmd OptionQuantityCommand) (domain.Cart, error)
	DecrementOptionQuantity(ctx context.Context, cmd OptionQuantityCommand) (domain.Cart, error)
	InsertObservation(ctx context.Context, cartCode string, productCode string, observation string) (domain.Cart, error)
	RemoveItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error)
	ClearCart(ctx context.Context, cartCode string) (domain.Cart, error)
	DeleteCart(ctx context.Context, cartCode string) error
}

// CartServiceDeps wires the collaborators required by NewCartService.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Cache   CartCache
	Pricer  CartPricer
	// CodeGenerator produces cart codes; defaults to ULID-derived 8-char codes.
	CodeGenerator func() string
	IDGenerator   func() string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	// Sanitize cleans free-text observations before storage.
	Sanitize func(string) string
}

type cartService struct {
	carts    repositories.CartRepository
	catalog  repositories.CatalogRepository
	cache    CartCache
	pricer   CartPricer
	newCode  func() string
	newID    func() string
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	sanitize func(string) string
}

// NewCartService validates dependencies and constructs the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}

	pricer := deps.Pricer
	if pricer == nil {
		pricer = NewPricingEngine()
	}
	cache := deps.Cache
	if cache == nil {
		cache = noopCartCache{}
	}
	newCode := deps.CodeGenerator
	if newCode == nil {
		newCode = func() string { return randomCode(cartCodeLength) }
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
	sanitize := deps.Sanitize
	if sanitize == nil {
		policy := bluemonday.StrictPolicy()
		sanitize = func(text string) string {
			return strings.TrimSpace(policy.Sanitize(text))
		}
	}

	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		cache:   cache,
		pricer:  pricer,
		newCode: newCode,
		newID:   newID,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		sanitize: sanitize,
	}, nil
}

func (s *cartService) CreateCart(ctx context.Context, merchantCode string) (domain.Cart, error) {
	merchant := strings.TrimSpace(merchantCode)
	if merchant == "" {
		return domain.Cart{}, fmt.Errorf("%w: merchant code is required", ErrCartInvalidInput)
	}

	var lastErr error
	for attempt := 0; attempt < cartMutationAttempts; attempt++ {
		now := s.clock()
		cart := domain.Cart{
			ID:           s.newID(),
			CartCode:     s.newCode(),
			MerchantCode: merchant,
			Status:       domain.CartStatusCreated,
			Total:        decimal.Zero,
			DeliveryFee:  decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		created, err := s.carts.Create(ctx, cart)
		if err != nil {
			// A conflict here means the generated code is taken; retry
			// with a fresh one.
			if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsConflict() {
				lastErr = err
				continue
			}
			return domain.Cart{}, s.translateRepoError(err)
		}

		s.writeCache(ctx, created)
		s.logger(ctx, "cart.created", map[string]any{
			"cartCode":     created.CartCode,
			"merchantCode": merchant,
		})
		return created, nil
	}
	return domain.Cart{}, fmt.Errorf("%w: cart code collisions exhausted retries: %v", ErrCartConflict, lastErr)
}

func (s *cartService) GetCart(ctx context.Context, cartCode string) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	if code == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}

	cached, ok, err := s.cache.Get(ctx, code)
	if err != nil {
		s.logger(ctx, "cart.cache.read_failed", map[string]any{"cartCode": code, "error": err.Error()})
	} else if ok {
		return cached, nil
	}

	cart, err := s.carts.FindByCode(ctx, code)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	s.writeCache(ctx, cart)
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddItemCommand) (domain.Cart, error) {
	merchant := strings.TrimSpace(cmd.MerchantCode)
	productCode := strings.TrimSpace(cmd.ProductCode)
	if merchant == "" || productCode == "" {
		return domain.Cart{}, fmt.Errorf("%w: merchant and product codes are required", ErrCartInvalidInput)
	}

	cart, err := s.resolveCart(ctx, merchant, strings.TrimSpace(cmd.CartCode))
	if err != nil {
		return domain.Cart{}, err
	}

	product, err := s.findProduct(ctx, merchant, productCode)
	if err != nil {
		return domain.Cart{}, err
	}

	updated, err := s.mutate(ctx, cart.CartCode, func(cart *domain.Cart) error {
		idx := findItem(cart.Items, productCode)
		if idx < 0 {
			cart.Items = append(cart.Items, domain.CartItem{
				ID:          s.newID(),
				ProductCode: product.Code,
				ProductName: product.Name,
				UnitPrice:   product.Price,
				Quantity:    1,
				Status:      domain.CartItemStatusPending,
			})
			idx = len(cart.Items) - 1
		}
		// An existing line is re-validated without incrementing. Quantity
		// changes go through IncrementItem.
		if err := s.repriceLine(cart, idx, product); err != nil {
			return err
		}
		return transitionCartStatus(cart, domain.CartStatusActive)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger(ctx, "cart.item.added", map[string]any{
		"cartCode":    updated.CartCode,
		"productCode": productCode,
	})
	return updated, nil
}

func (s *cartService) IncrementItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error) {
	return s.adjustItem(ctx, cartCode, productCode, +1)
}

func (s *cartService) DecrementItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error) {
	return s.adjustItem(ctx, cartCode, productCode, -1)
}

func (s *cartService) adjustItem(ctx context.Context, cartCode string, productCode string, delta int64) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	productCode = strings.TrimSpace(productCode)
	if code == "" || productCode == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart and product codes are required", ErrCartInvalidInput)
	}

	updated, err := s.mutate(ctx, code, func(cart *domain.Cart) error {
		idx := findItem(cart.Items, productCode)
		if idx < 0 {
			return fmt.Errorf("%w: product %s", ErrCartItemNotFound, productCode)
		}

		product, err := s.findProduct(ctx, cart.MerchantCode, productCode)
		if err != nil {
			// The line no longer matches the catalog; treat it the same
			// as a missing line.
			if errors.Is(err, ErrProductNotFound) {
				return fmt.Errorf("%w: product %s left the catalog", ErrCartItemNotFound, productCode)
			}
			return err
		}

		cart.Items[idx].Quantity += delta
		if cart.Items[idx].Quantity <= 0 {
			cart.Items = removeItemAt(cart.Items, idx)
			if err := s.repriceCart(cart); err != nil {
				return err
			}
			if len(cart.Items) == 0 {
				return transitionCartStatus(cart, domain.CartStatusEmpty)
			}
			return transitionCartStatus(cart, domain.CartStatusProcessing)
		}

		if err := s.repriceLine(cart, idx, product); err != nil {
			return err
		}
		return transitionCartStatus(cart, domain.CartStatusProcessing)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger(ctx, "cart.item.adjusted", map[string]any{
		"cartCode":    updated.CartCode,
		"productCode": productCode,
		"delta":       delta,
	})
	return updated, nil
}

func (s *cartService) IncrementOptionQuantity(ctx context.Context, cmd OptionQuantityCommand) (domain.Cart, error) {
	return s.adjustOption(ctx, cmd, +1)
}

func (s *cartService) DecrementOptionQuantity(ctx context.Context, cmd OptionQuantityCommand) (domain.Cart, error) {
	return s.adjustOption(ctx, cmd, -1)
}

func (s *cartService) adjustOption(ctx context.Context, cmd OptionQuantityCommand, delta int64) (domain.Cart, error) {
	code := strings.TrimSpace(cmd.CartCode)
	productCode := strings.TrimSpace(cmd.ProductCode)
	optionCode := strings.TrimSpace(cmd.OptionCode)
	if code == "" || productCode == "" || optionCode == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart, product and option codes are required", ErrCartInvalidInput)
	}

	updated, err := s.mutate(ctx, code, func(cart *domain.Cart) error {
		product, err := s.findProduct(ctx, cart.MerchantCode, productCode)
		if err != nil {
			return err
		}

		declared, ok := findProductOption(product, optionCode)
		if !ok {
			return fmt.Errorf("%w: option %s on product %s", ErrProductOptionNotFound, optionCode, productCode)
		}

		idx := findItem(cart.Items, productCode)
		if idx < 0 {
			// Adjusting an option on a product not yet in the cart adds
			// the line first.
			cart.Items = append(cart.Items, domain.CartItem{
				ID:          s.newID(),
				ProductCode: product.Code,
				ProductName: product.Name,
				UnitPrice:   product.Price,
				Quantity:    1,
				Status:      domain.CartItemStatusPending,
			})
			idx = len(cart.Items) - 1
		}

		item := &cart.Items[idx]
		optIdx := findItemOption(item.Options, optionCode)
		switch {
		case optIdx < 0 && delta > 0:
			item.Options = append(item.Options, domain.CartItemOption{
				OptionCode: declared.Code,
				Name:       declared.Name,
				Price:      declared.AdditionalPrice,
				Quantity:   delta,
			})
		case optIdx < 0:
			return fmt.Errorf("%w: option %s not present on line", ErrProductOptionNotFound, optionCode)
		default:
			item.Options[optIdx].Quantity += delta
			if item.Options[optIdx].Quantity <= 0 {
				item.Options = append(item.Options[:optIdx], item.Options[optIdx+1:]...)
			}
		}

		if err := s.repriceLine(cart, idx, product); err != nil {
			return err
		}
		return transitionCartStatus(cart, domain.CartStatusActive)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger(ctx, "cart.option.adjusted", map[string]any{
		"cartCode":    updated.CartCode,
		"productCode": productCode,
		"optionCode":  optionCode,
		"delta":       delta,
	})
	return updated, nil
}

func (s *cartService) InsertObservation(ctx context.Context, cartCode string, productCode string, observation string) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	productCode = strings.TrimSpace(productCode)
	if code == "" || productCode == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart and product codes are required", ErrCartInvalidInput)
	}

	text := s.sanitize(observation)

	return s.mutate(ctx, code, func(cart *domain.Cart) error {
		idx := findItem(cart.Items, productCode)
		if idx < 0 {
			return fmt.Errorf("%w: product %s", ErrCartItemNotFound, productCode)
		}
		cart.Items[idx].Observation = text
		return nil
	})
}

func (s *cartService) RemoveItem(ctx context.Context, cartCode string, productCode string) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	productCode = strings.TrimSpace(productCode)
	if code == "" || productCode == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart and product codes are required", ErrCartInvalidInput)
	}

	updated, err := s.mutate(ctx, code, func(cart *domain.Cart) error {
		idx := findItem(cart.Items, productCode)
		if idx < 0 {
			return fmt.Errorf("%w: product %s", ErrCartItemNotFound, productCode)
		}
		cart.Items = removeItemAt(cart.Items, idx)
		if err := s.repriceCart(cart); err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return transitionCartStatus(cart, domain.CartStatusEmpty)
		}
		return transitionCartStatus(cart, domain.CartStatusProcessing)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger(ctx, "cart.item.removed", map[string]any{
		"cartCode":    updated.CartCode,
		"productCode": productCode,
	})
	return updated, nil
}

func (s *cartService) ClearCart(ctx context.Context, cartCode string) (domain.Cart, error) {
	code := strings.TrimSpace(cartCode)
	if code == "" {
		return domain.Cart{}, fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}

	updated, err := s.mutate(ctx, code, func(cart *domain.Cart) error {
		cart.Items = nil
		cart.DeliveryFee = decimal.Zero
		cart.Total = decimal.Zero
		return transitionCartStatus(cart, domain.CartStatusClear)
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger(ctx, "cart.cleared", map[string]any{"cartCode": code})
	return updated, nil
}

func (s *cartService) DeleteCart(ctx context.Context, cartCode string) error {
	code := strings.TrimSpace(cartCode)
	if code == "" {
		return fmt.Errorf("%w: cart code is required", ErrCartInvalidInput)
	}

	if err := s.carts.Delete(ctx, code); err != nil {
		return s.translateRepoError(err)
	}
	if err := s.cache.Invalidate(ctx, code); err != nil {
		s.logger(ctx, "cart.cache.invalidate_failed", map[string]any{"cartCode": code, "error": err.Error()})
	}
	s.logger(ctx, "cart.deleted", map[string]any{"cartCode": code})
	return nil
}

// mutate runs the read-modify-recompute-write sequence under optimistic
// locking, retrying on conflict with a fresh read of the aggregate. The cache
// entry is replaced before the mutation returns.
func (s *cartService) mutate(ctx context.Context, cartCode string, apply func(cart *domain.Cart) error) (domain.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < cartMutationAttempts; attempt++ {
		cart, err := s.carts.FindByCode(ctx, cartCode)
		if err != nil {
			return domain.Cart{}, s.translateRepoError(err)
		}
		expected := cart.UpdatedAt

		if err := apply(&cart); err != nil {
			return domain.Cart{}, err
		}
		cart.UpdatedAt = s.clock()

		saved, err := s.carts.Update(ctx, cart, &expected)
		if err != nil {
			if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsConflict() {
				lastErr = err
				continue
			}
			return domain.Cart{}, s.translateRepoError(err)
		}

		s.writeCache(ctx, saved)
		return saved, nil
	}
	return domain.Cart{}, fmt.Errorf("%w: concurrent cart mutation exhausted retries: %v", ErrCartConflict, lastErr)
}

// resolveCart implements the add-item fallback chain: explicit code, else the
// merchant's most recent open cart, else a brand new cart.
func (s *cartService) resolveCart(ctx context.Context, merchantCode string, cartCode string) (domain.Cart, error) {
	if cartCode != "" {
		cart, err := s.carts.FindByCode(ctx, cartCode)
		if err != nil {
			return domain.Cart{}, s.translateRepoError(err)
		}
		return cart, nil
	}

	cart, err := s.carts.FindLatestForMerchant(ctx, merchantCode)
	if err == nil {
		return cart, nil
	}
	if repoErr := asRepositoryError(err); repoErr == nil || !repoErr.IsNotFound() {
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.CreateCart(ctx, merchantCode)
}

func (s *cartService) findProduct(ctx context.Context, merchantCode string, productCode string) (domain.Product, error) {
	product, err := s.catalog.FindProductByCode(ctx, merchantCode, productCode)
	if err != nil {
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsNotFound() {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productCode)
		}
		return domain.Product{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return product, nil
}

// repriceLine recomputes the affected line and then the cart total.
func (s *cartService) repriceLine(cart *domain.Cart, idx int, product domain.Product) error {
	priced, err := s.pricer.RepriceItem(cart.Items[idx], product)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	cart.Items[idx] = priced
	return s.repriceCart(cart)
}

func (s *cartService) repriceCart(cart *domain.Cart) error {
	priced, err := s.pricer.RepriceCart(*cart)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	*cart = priced
	return nil
}

func (s *cartService) writeCache(ctx context.Context, cart domain.Cart) {
	if err := s.cache.Put(ctx, cart); err != nil {
		// Eviction keeps the coherence guarantee when the write-through fails.
		if invErr := s.cache.Invalidate(ctx, cart.CartCode); invErr != nil {
			s.logger(ctx, "cart.cache.incoherent", map[string]any{
				"cartCode": cart.CartCode,
				"error":    invErr.Error(),
			})
			return
		}
		s.logger(ctx, "cart.cache.write_failed", map[string]any{
			"cartCode": cart.CartCode,
			"error":    err.Error(),
		})
	}
}

func (s *cartService) translateRepoError(err error) error {
	if repoErr := asRepositoryError(err); repoErr != nil {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return fmt.Errorf("cart service: %w", err)
}

func asRepositoryError(err error) repositories.RepositoryError {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr
	}
	return nil
}

func findItem(items []domain.CartItem, productCode string) int {
	for i := range items {
		if items[i].ProductCode == productCode {
			return i
		}
	}
	return -1
}

func findItemOption(options []domain.CartItemOption, optionCode string) int {
	for i := range options {
		if options[i].OptionCode == optionCode {
			return i
		}
	}
	return -1
}

func findProductOption(product domain.Product, optionCode string) (domain.ProductOption, bool) {
	for _, opt := range product.Options {
		if opt.Code == optionCode {
			return opt, true
		}
	}
	return domain.ProductOption{}, false
}

func removeItemAt(items []domain.CartItem, idx int) []domain.CartItem {
	return append(items[:idx], items[idx+1:]...)
}

// randomCode derives an upper-alphanumeric code of the given length from ULID
// entropy. The timestamp prefix is skipped so codes generated within the same
// millisecond do not share a common leading run.
func randomCode(length int) string {
	id := ulid.Make().String()
	if length >= len(id) {
		return id
	}
	return id[len(id)-length:]
}
