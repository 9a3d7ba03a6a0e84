package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/localeats/api/internal/domain"
)

type stubUserRepository struct {
	createFunc      func(ctx context.Context, user domain.User) (domain.User, error)
	findByIDFunc    func(ctx context.Context, userID string) (domain.User, error)
	findByPhoneFunc func(ctx context.Context, phone string) (domain.User, error)
	updateFunc      func(ctx context.Context, user domain.User) (domain.User, error)
}

func (s *stubUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, user)
	}
	return user, nil
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, userID)
	}
	return domain.User{}, &repositoryErrorStub{notFound: true}
}

func (s *stubUserRepository) FindByPhone(ctx context.Context, phone string) (domain.User, error) {
	if s.findByPhoneFunc != nil {
		return s.findByPhoneFunc(ctx, phone)
	}
	return domain.User{}, &repositoryErrorStub{notFound: true}
}

func (s *stubUserRepository) Update(ctx context.Context, user domain.User) (domain.User, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, user)
	}
	return user, nil
}

type stubVerifier struct {
	verifyFunc func(ctx context.Context, token string) (string, error)
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (string, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, token)
	}
	return "", errors.New("unexpected Verify call")
}

type stubPaymentInitiator struct {
	initiateFunc func(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error)
}

func (s *stubPaymentInitiator) InitiatePayment(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error) {
	if s.initiateFunc != nil {
		return s.initiateFunc(ctx, order, instruction)
	}
	return order, nil
}

type checkoutFixture struct {
	carts     *stubCartRepository
	orders    *stubOrderRepository
	users     *stubUserRepository
	cache     *fakeCartCache
	verifier  *stubVerifier
	initiator *stubPaymentInitiator
	now       time.Time
}

func newCheckoutServiceForTest(t *testing.T, fix *checkoutFixture) CheckoutService {
	t.Helper()
	if fix.carts == nil {
		fix.carts = &stubCartRepository{}
	}
	if fix.orders == nil {
		fix.orders = &stubOrderRepository{}
	}
	if fix.users == nil {
		fix.users = &stubUserRepository{}
	}
	if fix.cache == nil {
		fix.cache = newFakeCartCache()
	}
	if fix.initiator == nil {
		fix.initiator = &stubPaymentInitiator{}
	}
	fix.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var verifier IdentityTokenVerifier
	if fix.verifier != nil {
		verifier = fix.verifier
	}
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:         fix.carts,
		Orders:        fix.orders,
		Users:         fix.users,
		Cache:         fix.cache,
		Verifier:      verifier,
		Payments:      fix.initiator,
		CodeGenerator: func() string { return "ORDERCODE123" },
		IDGenerator:   func() string { return "id-1" },
		Clock:         func() time.Time { return fix.now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}
	return service
}

func activeCart(t *testing.T) domain.Cart {
	t.Helper()
	return domain.Cart{
		ID:           "cart-id-1",
		CartCode:     "CARTCODE",
		MerchantCode: "merchant-1",
		Status:       domain.CartStatusActive,
		Items: []domain.CartItem{
			{
				ID:          "item-1",
				ProductCode: "prod-1",
				ProductName: "Margherita",
				UnitPrice:   dec(t, "10.00"),
				Quantity:    2,
				TotalPrice:  dec(t, "22.50"),
				Status:      domain.CartItemStatusReleased,
				Observation: "extra crispy",
				Options: []domain.CartItemOption{
					{OptionCode: "opt-1", Name: "Extra cheese", Price: dec(t, "2.50"), Quantity: 1},
				},
			},
		},
		Total:     dec(t, "22.50"),
		UpdatedAt: time.Date(2026, 3, 14, 11, 50, 0, 0, time.UTC),
	}
}

func checkoutCommand(t *testing.T) CheckoutCommand {
	t.Helper()
	return CheckoutCommand{
		MerchantCode: "merchant-1",
		CartCode:     "CARTCODE",
		Customer: CustomerDetails{
			Name:  "Ana Souza",
			Phone: "+55 (11) 91234-5678",
			Address: domain.Address{
				Street: "Rua das Flores",
				Number: "42",
				City:   "Sao Paulo",
			},
		},
		DeliveryFee: dec(t, "5.00"),
		Payment:     PaymentInstruction{Method: domain.PaymentMethodCash},
	}
}

func TestCheckoutFreezesFeeAndSnapshotsItems(t *testing.T) {
	var savedCart domain.Cart
	var initiated domain.Order

	fix := &checkoutFixture{
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return activeCart(t), nil
			},
			updateFunc: func(_ context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
				if expected == nil || !expected.Equal(time.Date(2026, 3, 14, 11, 50, 0, 0, time.UTC)) {
					t.Fatalf("expected optimistic lock on the pre-checkout timestamp, got %v", expected)
				}
				savedCart = cart
				return cart, nil
			},
		},
		initiator: &stubPaymentInitiator{
			initiateFunc: func(_ context.Context, order domain.Order, _ PaymentInstruction) (domain.Order, error) {
				initiated = order
				order.Status = domain.OrderStatusAwaitingPayment
				return order, nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	order, err := service.ProcessCheckout(context.Background(), checkoutCommand(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if savedCart.Status != domain.CartStatusCheckout {
		t.Fatalf("expected cart CHECKOUT, got %s", savedCart.Status)
	}
	if !savedCart.DeliveryFee.Equal(dec(t, "5.00")) {
		t.Fatalf("expected delivery fee 5.00 frozen on the cart, got %s", savedCart.DeliveryFee)
	}
	if !savedCart.Total.Equal(dec(t, "27.50")) {
		t.Fatalf("expected cart total 27.50, got %s", savedCart.Total)
	}

	if initiated.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING order handed to the initiator, got %s", initiated.Status)
	}
	if initiated.OrderCode != "ORDERCODE123" {
		t.Fatalf("unexpected order code %q", initiated.OrderCode)
	}
	if !initiated.Total.Equal(dec(t, "27.50")) || !initiated.DeliveryFee.Equal(dec(t, "5.00")) {
		t.Fatalf("expected order totals frozen from the cart, got total %s fee %s", initiated.Total, initiated.DeliveryFee)
	}
	if len(initiated.Items) != 1 {
		t.Fatalf("expected one snapshotted item, got %d", len(initiated.Items))
	}
	item := initiated.Items[0]
	if item.ProductCode != "prod-1" || item.Quantity != 2 || !item.TotalPrice.Equal(dec(t, "22.50")) {
		t.Fatalf("unexpected item snapshot: %+v", item)
	}
	if len(item.Options) != 1 || item.Options[0].OptionCode != "opt-1" {
		t.Fatalf("expected the option snapshotted, got %+v", item.Options)
	}

	if order.Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected the initiator's order returned, got %s", order.Status)
	}
}

func TestCheckoutSnapshotIsIndependentOfCart(t *testing.T) {
	cart := activeCart(t)
	var initiated domain.Order

	fix := &checkoutFixture{
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return cart, nil
			},
		},
		initiator: &stubPaymentInitiator{
			initiateFunc: func(_ context.Context, order domain.Order, _ PaymentInstruction) (domain.Order, error) {
				initiated = order
				return order, nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	if _, err := service.ProcessCheckout(context.Background(), checkoutCommand(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the cart line afterwards must not leak into the snapshot.
	cart.Items[0].Options[0].Name = "changed"
	if initiated.Items[0].Options[0].Name != "Extra cheese" {
		t.Fatal("expected the order snapshot to be deep-copied")
	}
}

func TestCheckoutAnonymousIdentityByPhone(t *testing.T) {
	var createdUser domain.User
	fix := &checkoutFixture{
		users: &stubUserRepository{
			createFunc: func(_ context.Context, user domain.User) (domain.User, error) {
				createdUser = user
				return user, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return activeCart(t), nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	if _, err := service.ProcessCheckout(context.Background(), checkoutCommand(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !createdUser.Anonymous {
		t.Fatal("expected an anonymous user")
	}
	if createdUser.Phone != "+5511912345678" {
		t.Fatalf("expected normalized phone, got %q", createdUser.Phone)
	}
}

func TestCheckoutAnonymousReusesExistingPhone(t *testing.T) {
	created := false
	var orderUserID string
	fix := &checkoutFixture{
		users: &stubUserRepository{
			findByPhoneFunc: func(_ context.Context, phone string) (domain.User, error) {
				return domain.User{ID: "user-77", Phone: phone, Anonymous: true}, nil
			},
			createFunc: func(_ context.Context, user domain.User) (domain.User, error) {
				created = true
				return user, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return activeCart(t), nil
			},
		},
		initiator: &stubPaymentInitiator{
			initiateFunc: func(_ context.Context, order domain.Order, _ PaymentInstruction) (domain.Order, error) {
				orderUserID = order.UserID
				return order, nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	if _, err := service.ProcessCheckout(context.Background(), checkoutCommand(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected no new user for a known phone")
	}
	if orderUserID != "user-77" {
		t.Fatalf("expected order attributed to user-77, got %q", orderUserID)
	}
}

func TestCheckoutAnonymousRequiresPhone(t *testing.T) {
	service := newCheckoutServiceForTest(t, &checkoutFixture{})

	cmd := checkoutCommand(t)
	cmd.Customer.Phone = ""
	_, err := service.ProcessCheckout(context.Background(), cmd)
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestCheckoutTokenUpdatesExistingUser(t *testing.T) {
	var updatedUser domain.User
	fix := &checkoutFixture{
		verifier: &stubVerifier{
			verifyFunc: func(_ context.Context, token string) (string, error) {
				if token != "token-1" {
					t.Fatalf("unexpected token %q", token)
				}
				return "user-42", nil
			},
		},
		users: &stubUserRepository{
			findByIDFunc: func(_ context.Context, userID string) (domain.User, error) {
				return domain.User{ID: userID, Name: "Old Name"}, nil
			},
			updateFunc: func(_ context.Context, user domain.User) (domain.User, error) {
				updatedUser = user
				return user, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return activeCart(t), nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	cmd := checkoutCommand(t)
	cmd.IdentityToken = "token-1"
	if _, err := service.ProcessCheckout(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updatedUser.ID != "user-42" || updatedUser.Name != "Ana Souza" {
		t.Fatalf("expected contact fields refreshed on user-42, got %+v", updatedUser)
	}
	if updatedUser.Anonymous {
		t.Fatal("expected the identified user to stay non-anonymous")
	}
}

func TestCheckoutTokenUnknownUser(t *testing.T) {
	fix := &checkoutFixture{
		verifier: &stubVerifier{
			verifyFunc: func(_ context.Context, _ string) (string, error) {
				return "user-gone", nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	cmd := checkoutCommand(t)
	cmd.IdentityToken = "token-1"
	_, err := service.ProcessCheckout(context.Background(), cmd)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCheckoutFinishedCartRejected(t *testing.T) {
	fix := &checkoutFixture{
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				cart := activeCart(t)
				cart.Status = domain.CartStatusFinished
				return cart, nil
			},
		},
	}
	service := newCheckoutServiceForTest(t, fix)

	_, err := service.ProcessCheckout(context.Background(), checkoutCommand(t))
	if !errors.Is(err, ErrCartAlreadyFinalized) {
		t.Fatalf("expected ErrCartAlreadyFinalized, got %v", err)
	}
}

func TestCheckoutRetriesOrderCodeCollision(t *testing.T) {
	attempts := 0
	codes := []string{"DUPLICATE", "FRESHCODE"}
	codeIdx := 0

	fix := &checkoutFixture{
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return activeCart(t), nil
			},
		},
		orders: &stubOrderRepository{
			createFunc: func(_ context.Context, order domain.Order) (domain.Order, error) {
				attempts++
				if order.OrderCode == "DUPLICATE" {
					return domain.Order{}, &repositoryErrorStub{conflict: true}
				}
				return order, nil
			},
		},
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    fix.carts,
		Orders:   fix.orders,
		Users:    &stubUserRepository{},
		Payments: &stubPaymentInitiator{},
		CodeGenerator: func() string {
			code := codes[codeIdx]
			if codeIdx < len(codes)-1 {
				codeIdx++
			}
			return code
		},
		Clock: func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := svc.ProcessCheckout(context.Background(), checkoutCommand(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 create attempts, got %d", attempts)
	}
	if order.OrderCode != "FRESHCODE" {
		t.Fatalf("expected the regenerated code, got %q", order.OrderCode)
	}
}

func TestCheckoutNegativeDeliveryFee(t *testing.T) {
	service := newCheckoutServiceForTest(t, &checkoutFixture{})

	cmd := checkoutCommand(t)
	cmd.DeliveryFee = dec(t, "-1.00")
	_, err := service.ProcessCheckout(context.Background(), cmd)
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestCheckoutUnsupportedPaymentMethod(t *testing.T) {
	service := newCheckoutServiceForTest(t, &checkoutFixture{})

	cmd := checkoutCommand(t)
	cmd.Payment.Method = "BARTER"
	_, err := service.ProcessCheckout(context.Background(), cmd)
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}
