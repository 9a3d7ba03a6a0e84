package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/payments"
	"github.com/localeats/api/internal/repositories"
)

type stubOrderRepository struct {
	createFunc         func(ctx context.Context, order domain.Order) (domain.Order, error)
	findFunc     func(ctx context.Context, orderCode string) (domain.Order, error)
	updateFunc         func(ctx context.Context, order domain.Order, expected *time.Time) (domain.Order, error)
	listFunc func(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	scanFunc     func(ctx context.Context, merchantCode string, fn func(domain.Order) error) error
}

func (s *stubOrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.createFunc == nil {
		return order, nil
	}
	return s.createFunc(ctx, order)
}

func (s *stubOrderRepository) FindByCode(ctx context.Context, orderCode string) (domain.Order, error) {
	if s.findFunc == nil {
		return domain.Order{}, &repositoryErrorStub{notFound: true}
	}
	return s.findFunc(ctx, orderCode)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order, expected *time.Time) (domain.Order, error) {
	if s.updateFunc == nil {
		return order, nil
	}
	return s.updateFunc(ctx, order, expected)
}

func (s *stubOrderRepository) ListByMerchant(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFunc(ctx, merchantCode, filter)
}

func (s *stubOrderRepository) ScanOrders(ctx context.Context, merchantCode string, fn func(domain.Order) error) error {
	if s.scanFunc == nil {
		return nil
	}
	return s.scanFunc(ctx, merchantCode, fn)
}

type stubPaymentRepository struct {
	createFunc             func(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	findByIDFunc           func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByProviderIDFunc   func(ctx context.Context, provider string, providerPaymentID string) (domain.Payment, error)
	updateFunc             func(ctx context.Context, payment domain.Payment, expected *time.Time) (domain.Payment, error)
	listDueFunc func(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
}

func (s *stubPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if s.createFunc == nil {
		return payment, nil
	}
	return s.createFunc(ctx, payment)
}

func (s *stubPaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByIDFunc == nil {
		return domain.Payment{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByIDFunc(ctx, paymentID)
}

func (s *stubPaymentRepository) FindByProviderID(ctx context.Context, provider string, providerPaymentID string) (domain.Payment, error) {
	if s.findByProviderIDFunc == nil {
		return domain.Payment{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByProviderIDFunc(ctx, provider, providerPaymentID)
}

func (s *stubPaymentRepository) Update(ctx context.Context, payment domain.Payment, expected *time.Time) (domain.Payment, error) {
	if s.updateFunc == nil {
		return payment, nil
	}
	return s.updateFunc(ctx, payment, expected)
}

func (s *stubPaymentRepository) ListDueExpirations(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	if s.listDueFunc == nil {
		return nil, nil
	}
	return s.listDueFunc(ctx, before, limit)
}

type stubChargeGateway struct {
	createChargeFunc func(ctx context.Context, provider string, req payments.ChargeRequest) (payments.Charge, error)
	lookupChargeFunc func(ctx context.Context, provider string, providerPaymentID string) (payments.Charge, error)
}

func (s *stubChargeGateway) CreateCharge(ctx context.Context, provider string, req payments.ChargeRequest) (payments.Charge, error) {
	if s.createChargeFunc == nil {
		return payments.Charge{}, errors.New("unexpected CreateCharge call")
	}
	return s.createChargeFunc(ctx, provider, req)
}

func (s *stubChargeGateway) LookupCharge(ctx context.Context, provider string, providerPaymentID string) (payments.Charge, error) {
	if s.lookupChargeFunc == nil {
		return payments.Charge{}, errors.New("unexpected LookupCharge call")
	}
	return s.lookupChargeFunc(ctx, provider, providerPaymentID)
}

type stubExpirationScheduler struct {
	scheduled []string
	err       error
}

func (s *stubExpirationScheduler) ScheduleExpiration(_ context.Context, paymentID string, _ time.Time) error {
	s.scheduled = append(s.scheduled, paymentID)
	return s.err
}

type stubOrderAudit struct {
	changes []domain.OrderStatusChange
}

func (s *stubOrderAudit) Append(_ context.Context, change domain.OrderStatusChange) error {
	s.changes = append(s.changes, change)
	return nil
}

func (s *stubOrderAudit) ListByOrder(_ context.Context, orderCode string, _ domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error) {
	var out []domain.OrderStatusChange
	for _, change := range s.changes {
		if change.OrderCode == orderCode {
			out = append(out, change)
		}
	}
	return domain.CursorPage[domain.OrderStatusChange]{Items: out}, nil
}

type orderServiceFixture struct {
	orders    *stubOrderRepository
	payments  *stubPaymentRepository
	carts     *stubCartRepository
	audit     *stubOrderAudit
	charges   *stubChargeGateway
	scheduler *stubExpirationScheduler
	cache     *fakeCartCache
	now       time.Time
}

func newOrderServiceForTest(t *testing.T, fix *orderServiceFixture) OrderService {
	t.Helper()
	if fix.orders == nil {
		fix.orders = &stubOrderRepository{}
	}
	if fix.payments == nil {
		fix.payments = &stubPaymentRepository{}
	}
	if fix.carts == nil {
		fix.carts = &stubCartRepository{}
	}
	if fix.audit == nil {
		fix.audit = &stubOrderAudit{}
	}
	if fix.charges == nil {
		fix.charges = &stubChargeGateway{}
	}
	if fix.scheduler == nil {
		fix.scheduler = &stubExpirationScheduler{}
	}
	if fix.cache == nil {
		fix.cache = newFakeCartCache()
	}
	fix.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	service, err := NewOrderService(OrderServiceDeps{
		Orders:      fix.orders,
		Payments:    fix.payments,
		Carts:       fix.carts,
		Audit:       fix.audit,
		Cache:       fix.cache,
		Charges:     fix.charges,
		Scheduler:   fix.scheduler,
		Currency:    "brl",
		IDGenerator: func() string { return "pay-1" },
		Clock:       func() time.Time { return fix.now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}
	return service
}

func processingOrder(t *testing.T) domain.Order {
	t.Helper()
	created := time.Date(2026, 3, 14, 11, 55, 0, 0, time.UTC)
	return domain.Order{
		ID:           "order-id-1",
		OrderCode:    "ORDERCODE123",
		CartCode:     "CARTCODE",
		MerchantCode: "merchant-1",
		UserID:       "user-1",
		Items: []domain.OrderItem{
			{ProductCode: "prod-1", ProductName: "Margherita", UnitPrice: dec(t, "10.00"), Quantity: 2, TotalPrice: dec(t, "22.50")},
		},
		Total:       dec(t, "27.50"),
		DeliveryFee: dec(t, "5.00"),
		Status:      domain.OrderStatusProcessing,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func checkoutCart(t *testing.T) domain.Cart {
	t.Helper()
	return domain.Cart{
		ID:           "cart-id-1",
		CartCode:     "CARTCODE",
		MerchantCode: "merchant-1",
		Status:       domain.CartStatusCheckout,
		Total:        dec(t, "27.50"),
		DeliveryFee:  dec(t, "5.00"),
		UpdatedAt:    time.Date(2026, 3, 14, 11, 55, 0, 0, time.UTC),
	}
}

func TestOrderServiceInitiateCardApproved(t *testing.T) {
	var savedPayment domain.Payment
	var savedOrder domain.Order
	var finishedCart domain.Cart
	var chargeReq payments.ChargeRequest

	fix := &orderServiceFixture{
		charges: &stubChargeGateway{
			createChargeFunc: func(_ context.Context, _ string, req payments.ChargeRequest) (payments.Charge, error) {
				chargeReq = req
				return payments.Charge{
					Provider:          "stripe",
					ProviderPaymentID: "pi_123",
					Status:            payments.StatusSucceeded,
					Amount:            req.Amount,
					Currency:          req.Currency,
				}, nil
			},
		},
		payments: &stubPaymentRepository{
			createFunc: func(_ context.Context, payment domain.Payment) (domain.Payment, error) {
				savedPayment = payment
				return payment, nil
			},
		},
		orders: &stubOrderRepository{
			updateFunc: func(_ context.Context, order domain.Order, _ *time.Time) (domain.Order, error) {
				savedOrder = order
				return order, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return checkoutCart(t), nil
			},
			updateFunc: func(_ context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
				finishedCart = cart
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	order, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:    domain.PaymentMethodCard,
		CardToken: "tok_visa",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected status PAID, got %s", order.Status)
	}
	if chargeReq.Amount != 2750 {
		t.Fatalf("expected charge of 2750 minor units, got %d", chargeReq.Amount)
	}
	if chargeReq.IdempotencyKey != "ORDERCODE123" {
		t.Fatalf("expected order code as idempotency key, got %q", chargeReq.IdempotencyKey)
	}
	if savedPayment.Status != domain.PaymentStatusConfirmed {
		t.Fatalf("expected payment CONFIRMED, got %s", savedPayment.Status)
	}
	if savedPayment.ProviderPaymentID != "pi_123" {
		t.Fatalf("expected provider payment id recorded, got %q", savedPayment.ProviderPaymentID)
	}
	if savedOrder.PaymentID != "pay-1" {
		t.Fatalf("expected order linked to payment, got %q", savedOrder.PaymentID)
	}
	if finishedCart.Status != domain.CartStatusFinished {
		t.Fatalf("expected cart FINISHED, got %s", finishedCart.Status)
	}
	if len(fix.audit.changes) != 1 || fix.audit.changes[0].To != domain.OrderStatusPaid {
		t.Fatalf("expected one audit entry to PAID, got %+v", fix.audit.changes)
	}
}

func TestOrderServiceInitiateCardDeclined(t *testing.T) {
	cartTouched := false
	fix := &orderServiceFixture{
		charges: &stubChargeGateway{
			createChargeFunc: func(_ context.Context, _ string, req payments.ChargeRequest) (payments.Charge, error) {
				return payments.Charge{
					Provider:          "stripe",
					ProviderPaymentID: "pi_456",
					Status:            payments.StatusFailed,
				}, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				cartTouched = true
				return checkoutCart(t), nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	order, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:    domain.PaymentMethodCard,
		CardToken: "tok_declined",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusFailPaid {
		t.Fatalf("expected status FAIL_PAID, got %s", order.Status)
	}
	if cartTouched {
		t.Fatal("expected the cart to stay untouched on a declined charge")
	}
}

func TestOrderServiceInitiateCardProviderErrorLeavesOrderRetryable(t *testing.T) {
	paymentCreated := false
	fix := &orderServiceFixture{
		charges: &stubChargeGateway{
			createChargeFunc: func(_ context.Context, _ string, _ payments.ChargeRequest) (payments.Charge, error) {
				return payments.Charge{}, errors.New("provider down")
			},
		},
		payments: &stubPaymentRepository{
			createFunc: func(_ context.Context, payment domain.Payment) (domain.Payment, error) {
				paymentCreated = true
				return payment, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	_, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:    domain.PaymentMethodCard,
		CardToken: "tok_visa",
	})
	if !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("expected ErrPaymentProvider, got %v", err)
	}
	if paymentCreated {
		t.Fatal("expected no payment record when the provider call fails")
	}
}

func TestOrderServiceInitiateCash(t *testing.T) {
	var savedPayment domain.Payment
	var finishedCart domain.Cart
	change := dec(t, "50.00")

	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			createFunc: func(_ context.Context, payment domain.Payment) (domain.Payment, error) {
				savedPayment = payment
				return payment, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return checkoutCart(t), nil
			},
			updateFunc: func(_ context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
				finishedCart = cart
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	order, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:     domain.PaymentMethodCash,
		CashChange: &change,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected status AWAITING_PAYMENT, got %s", order.Status)
	}
	if order.CashChange == nil || !order.CashChange.Equal(change) {
		t.Fatalf("expected cash change 50.00 on the order, got %v", order.CashChange)
	}
	if savedPayment.Provider != "cash" || savedPayment.Status != domain.PaymentStatusAwaiting {
		t.Fatalf("unexpected payment record: %+v", savedPayment)
	}
	if finishedCart.Status != domain.CartStatusFinished {
		t.Fatalf("expected cart FINISHED, got %s", finishedCart.Status)
	}
}

func TestOrderServiceInitiateCashChangeBelowTotal(t *testing.T) {
	change := dec(t, "20.00")
	service := newOrderServiceForTest(t, &orderServiceFixture{})

	_, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:     domain.PaymentMethodCash,
		CashChange: &change,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceInitiatePixSchedulesExpiration(t *testing.T) {
	var savedPayment domain.Payment
	expiresAt := time.Date(2026, 3, 14, 12, 10, 0, 0, time.UTC)

	fix := &orderServiceFixture{
		charges: &stubChargeGateway{
			createChargeFunc: func(_ context.Context, _ string, req payments.ChargeRequest) (payments.Charge, error) {
				if req.Method != payments.MethodQR {
					t.Fatalf("expected a QR charge, got %s", req.Method)
				}
				return payments.Charge{
					Provider:          "stripe",
					ProviderPaymentID: "pi_pix",
					Status:            payments.StatusPending,
					QRCodeURL:         "https://qr.example/pi_pix.png",
					QRCodeBase64:      "deadbeef",
					ExpiresAt:         &expiresAt,
				}, nil
			},
		},
		payments: &stubPaymentRepository{
			createFunc: func(_ context.Context, payment domain.Payment) (domain.Payment, error) {
				savedPayment = payment
				return payment, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return checkoutCart(t), nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	order, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method:     domain.PaymentMethodPix,
		PayerEmail: "payer@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusAwaitingPayment {
		t.Fatalf("expected status AWAITING_PAYMENT, got %s", order.Status)
	}
	if savedPayment.QRCodeURL == "" || savedPayment.QRCodeBase64 == "" {
		t.Fatalf("expected QR fields on the payment, got %+v", savedPayment)
	}
	if savedPayment.ExpiresAt == nil || !savedPayment.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected provider expiry on the payment, got %v", savedPayment.ExpiresAt)
	}
	if len(fix.scheduler.scheduled) != 1 || fix.scheduler.scheduled[0] != "pay-1" {
		t.Fatalf("expected one scheduled expiration for pay-1, got %v", fix.scheduler.scheduled)
	}
}

func TestOrderServiceInitiatePixRequiresPayerEmail(t *testing.T) {
	service := newOrderServiceForTest(t, &orderServiceFixture{})

	_, err := service.InitiatePayment(context.Background(), processingOrder(t), PaymentInstruction{
		Method: domain.PaymentMethodPix,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceNotificationApproves(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusAwaitingPayment
	order.PaymentID = "pay-1"

	var savedOrder domain.Order
	var savedPayment domain.Payment

	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			findByProviderIDFunc: func(_ context.Context, _ string, providerPaymentID string) (domain.Payment, error) {
				return domain.Payment{
					ID:                "pay-1",
					OrderCode:         order.OrderCode,
					Provider:          "stripe",
					ProviderPaymentID: providerPaymentID,
					Status:            domain.PaymentStatusAwaiting,
				}, nil
			},
			updateFunc: func(_ context.Context, payment domain.Payment, _ *time.Time) (domain.Payment, error) {
				savedPayment = payment
				return payment, nil
			},
		},
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
			updateFunc: func(_ context.Context, updated domain.Order, _ *time.Time) (domain.Order, error) {
				savedOrder = updated
				return updated, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				cart := checkoutCart(t)
				cart.Status = domain.CartStatusFinished
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	updated, err := service.ApplyProviderNotification(context.Background(), ProviderNotification{
		Provider:          "stripe",
		ProviderPaymentID: "pi_pix",
		Status:            payments.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid || savedOrder.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order PAID, got %s", updated.Status)
	}
	if savedPayment.Status != domain.PaymentStatusConfirmed {
		t.Fatalf("expected payment CONFIRMED, got %s", savedPayment.Status)
	}
}

func TestOrderServiceNotificationRejects(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusAwaitingPayment

	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			findByProviderIDFunc: func(_ context.Context, _ string, _ string) (domain.Payment, error) {
				return domain.Payment{ID: "pay-1", OrderCode: order.OrderCode, Status: domain.PaymentStatusAwaiting}, nil
			},
		},
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	updated, err := service.ApplyProviderNotification(context.Background(), ProviderNotification{
		ProviderPaymentID: "pi_pix",
		Status:            payments.StatusFailed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusRejected {
		t.Fatalf("expected order REJECTED, got %s", updated.Status)
	}
}

func TestOrderServiceNotificationIdempotentOnTerminalOrder(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusPaid

	orderUpdated := false
	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			findByProviderIDFunc: func(_ context.Context, _ string, _ string) (domain.Payment, error) {
				return domain.Payment{ID: "pay-1", OrderCode: order.OrderCode, Status: domain.PaymentStatusConfirmed}, nil
			},
		},
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
			updateFunc: func(_ context.Context, updated domain.Order, _ *time.Time) (domain.Order, error) {
				orderUpdated = true
				return updated, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	updated, err := service.ApplyProviderNotification(context.Background(), ProviderNotification{
		ProviderPaymentID: "pi_pix",
		Status:            payments.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order to stay PAID, got %s", updated.Status)
	}
	if orderUpdated {
		t.Fatal("expected no write for a notification on a terminal order")
	}
}

func TestOrderServiceNotificationUnknownPayment(t *testing.T) {
	service := newOrderServiceForTest(t, &orderServiceFixture{})

	_, err := service.ApplyProviderNotification(context.Background(), ProviderNotification{
		ProviderPaymentID: "pi_unknown",
		Status:            payments.StatusSucceeded,
	})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestOrderServiceCancelReopensCart(t *testing.T) {
	order := processingOrder(t)
	var reopenedCart domain.Cart

	fix := &orderServiceFixture{
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				return checkoutCart(t), nil
			},
			updateFunc: func(_ context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
				reopenedCart = cart
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	updated, err := service.CancelOrder(context.Background(), order.OrderCode, "merchant", "kitchen closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected order CANCELLED, got %s", updated.Status)
	}
	if reopenedCart.Status != domain.CartStatusActive {
		t.Fatalf("expected cart reopened as ACTIVE, got %s", reopenedCart.Status)
	}
	if reopenedCart.OrderCode != order.OrderCode {
		t.Fatalf("expected reopened cart to reference %s, got %q", order.OrderCode, reopenedCart.OrderCode)
	}
}

func TestOrderServiceCancelSkipsIllegalCartReopen(t *testing.T) {
	order := processingOrder(t)
	cartWritten := false

	fix := &orderServiceFixture{
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				cart := checkoutCart(t)
				cart.Status = domain.CartStatusFinished
				return cart, nil
			},
			updateFunc: func(_ context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
				cartWritten = true
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	updated, err := service.CancelOrder(context.Background(), order.OrderCode, "merchant", "kitchen closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected order CANCELLED, got %s", updated.Status)
	}
	if cartWritten {
		t.Fatal("expected no cart write when reopening is not a legal transition")
	}
}

func TestOrderServiceCancelRejectsNonProcessing(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusAwaitingPayment

	fix := &orderServiceFixture{
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	_, err := service.CancelOrder(context.Background(), order.OrderCode, "merchant", "too late")
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOrderServiceExpirationCancelsUnpaid(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusAwaitingPayment
	expiresAt := time.Date(2026, 3, 14, 11, 58, 0, 0, time.UTC)

	var savedPayment domain.Payment
	var savedOrder domain.Order

	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			listDueFunc: func(_ context.Context, _ time.Time, _ int) ([]domain.Payment, error) {
				return []domain.Payment{{
					ID:                "pay-1",
					OrderCode:         order.OrderCode,
					Provider:          "stripe",
					ProviderPaymentID: "pi_pix",
					Method:            domain.PaymentMethodPix,
					Status:            domain.PaymentStatusAwaiting,
					ExpiresAt:         &expiresAt,
				}}, nil
			},
			updateFunc: func(_ context.Context, payment domain.Payment, _ *time.Time) (domain.Payment, error) {
				savedPayment = payment
				return payment, nil
			},
		},
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
			updateFunc: func(_ context.Context, updated domain.Order, _ *time.Time) (domain.Order, error) {
				savedOrder = updated
				return updated, nil
			},
		},
		charges: &stubChargeGateway{
			lookupChargeFunc: func(_ context.Context, _ string, _ string) (payments.Charge, error) {
				return payments.Charge{Status: payments.StatusPending}, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	processed, err := service.RunExpirationChecks(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed expiration, got %d", processed)
	}
	if savedPayment.Status != domain.PaymentStatusCancelled {
		t.Fatalf("expected payment CANCELLED, got %s", savedPayment.Status)
	}
	if savedOrder.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected order CANCELLED, got %s", savedOrder.Status)
	}
	if len(fix.audit.changes) != 1 || fix.audit.changes[0].Reason != "qr_code_expired" {
		t.Fatalf("expected one audit entry with reason qr_code_expired, got %+v", fix.audit.changes)
	}
}

func TestOrderServiceExpirationHonoursLateApproval(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusAwaitingPayment

	var savedOrder domain.Order
	fix := &orderServiceFixture{
		payments: &stubPaymentRepository{
			findByIDFunc: func(_ context.Context, _ string) (domain.Payment, error) {
				return domain.Payment{
					ID:                "pay-1",
					OrderCode:         order.OrderCode,
					Provider:          "stripe",
					ProviderPaymentID: "pi_pix",
					Status:            domain.PaymentStatusAwaiting,
				}, nil
			},
		},
		orders: &stubOrderRepository{
			findFunc: func(_ context.Context, _ string) (domain.Order, error) {
				return order, nil
			},
			updateFunc: func(_ context.Context, updated domain.Order, _ *time.Time) (domain.Order, error) {
				savedOrder = updated
				return updated, nil
			},
		},
		charges: &stubChargeGateway{
			lookupChargeFunc: func(_ context.Context, _ string, _ string) (payments.Charge, error) {
				return payments.Charge{Status: payments.StatusSucceeded}, nil
			},
		},
		carts: &stubCartRepository{
			findFunc: func(_ context.Context, _ string) (domain.Cart, error) {
				cart := checkoutCart(t)
				cart.Status = domain.CartStatusFinished
				return cart, nil
			},
		},
	}
	service := newOrderServiceForTest(t, fix)

	if err := service.ExpirePayment(context.Background(), "pay-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if savedOrder.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order PAID after late approval, got %s", savedOrder.Status)
	}
}

func TestOrderServiceRejectsNonProcessingInitiation(t *testing.T) {
	order := processingOrder(t)
	order.Status = domain.OrderStatusPaid

	service := newOrderServiceForTest(t, &orderServiceFixture{})
	_, err := service.InitiatePayment(context.Background(), order, PaymentInstruction{Method: domain.PaymentMethodCash})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}
