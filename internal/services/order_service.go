package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/payments"
	"github.com/localeats/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals malformed or missing order data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order code resolves to nothing.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState rejects a transition the lifecycle does not allow.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict is returned when the order changed underneath the caller.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates a dependency is temporarily unreachable.
	ErrOrderUnavailable = errors.New("order: temporarily unavailable")
	// ErrPaymentNotFound indicates no local payment matches the provider reference.
	ErrPaymentNotFound = errors.New("order: payment not found")
	// ErrPaymentProvider wraps provider failures that left no charge behind.
	// The order stays in its pre-charge state so payment can be retried.
	ErrPaymentProvider = errors.New("order: payment provider failure")
)

// defaultPaymentExpiry bounds how long a QR charge stays scannable when the
// configuration does not say otherwise.
const defaultPaymentExpiry = 10 * time.Minute

// orderStateTransitions is the single source of truth for the order lifecycle.
// States with no entries are terminal.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusCreated: {
		domain.OrderStatusProcessing,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusAwaitingPayment,
		domain.OrderStatusPaid,
		domain.OrderStatusFailPaid,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusAwaitingPayment: {
		domain.OrderStatusPaid,
		domain.OrderStatusRejected,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPaid:      {},
	domain.OrderStatusFailPaid:  {},
	domain.OrderStatusRejected:  {},
	domain.OrderStatusCancelled: {},
}

func isTerminalOrderStatus(status domain.OrderStatus) bool {
	next, ok := orderStateTransitions[status]
	return ok && len(next) == 0
}

func transitionOrderStatus(order *domain.Order, to domain.OrderStatus) error {
	allowed, ok := orderStateTransitions[order.Status]
	if !ok {
		return fmt.Errorf("unknown order status %q", order.Status)
	}
	for _, candidate := range allowed {
		if candidate == to {
			order.Status = to
			return nil
		}
	}
	return fmt.Errorf("order status %q cannot move to %q", order.Status, to)
}

// ChargeGateway abstracts the payment provider fan-out the reconciler talks to.
// *payments.Manager satisfies it.
type ChargeGateway interface {
	CreateCharge(ctx context.Context, provider string, req payments.ChargeRequest) (payments.Charge, error)
	LookupCharge(ctx context.Context, provider string, providerPaymentID string) (payments.Charge, error)
}

// ExpirationScheduler enqueues a durable reminder to settle a QR charge once
// its window elapses. Scheduling is best effort; the periodic sweep over due
// payments is the backstop.
type ExpirationScheduler interface {
	ScheduleExpiration(ctx context.Context, paymentID string, at time.Time) error
}

// OrderEventPublisher emits order status changes for downstream consumers.
// Publish failures never fail the transition that triggered them.
type OrderEventPublisher interface {
	PublishOrderStatusChanged(ctx context.Context, order domain.Order, previous domain.OrderStatus) error
}

// ProviderNotification is the normalised webhook payload handed to the reconciler.
type ProviderNotification struct {
	Provider          string
	ProviderPaymentID string
	Status            payments.Status
}

// OrderService reconciles order and payment state against the provider.
type OrderService interface {
	PaymentInitiator

	GetOrder(ctx context.Context, orderCode string) (domain.Order, error)
	ListOrders(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListOrderHistory(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error)
	ApplyProviderNotification(ctx context.Context, notice ProviderNotification) (domain.Order, error)
	CancelOrder(ctx context.Context, orderCode string, actor string, reason string) (domain.Order, error)
	ExpirePayment(ctx context.Context, paymentID string) error
	RunExpirationChecks(ctx context.Context, limit int) (int, error)
}

// OrderServiceDeps wires the collaborators required by NewOrderService.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments repositories.PaymentRepository
	Carts    repositories.CartRepository
	Audit    repositories.OrderAuditRepository
	Cache    CartCache
	Charges  ChargeGateway
	// Scheduler enqueues QR expiration reminders; nil disables scheduling
	// and leaves expiration to the periodic sweep.
	Scheduler ExpirationScheduler
	// Events receives status change notifications; nil disables publishing.
	Events OrderEventPublisher
	// Provider names the charge gateway provider; empty uses the gateway default.
	Provider string
	// Currency is the ISO currency code charges are denominated in.
	Currency string
	// PaymentExpiry bounds QR charges; zero applies the default window.
	PaymentExpiry time.Duration
	IDGenerator   func() string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	payments  repositories.PaymentRepository
	carts     repositories.CartRepository
	audit     repositories.OrderAuditRepository
	cache     CartCache
	charges   ChargeGateway
	scheduler ExpirationScheduler
	events    OrderEventPublisher
	provider  string
	currency  string
	expiry    time.Duration
	newID     func() string
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService validates dependencies and constructs the reconciler.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Charges == nil {
		return nil, errors.New("order service: charge gateway is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("order service: currency is required")
	}

	cache := deps.Cache
	if cache == nil {
		cache = noopCartCache{}
	}
	expiry := deps.PaymentExpiry
	if expiry <= 0 {
		expiry = defaultPaymentExpiry
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

	return &orderService{
		orders:    deps.Orders,
		payments:  deps.Payments,
		carts:     deps.Carts,
		audit:     deps.Audit,
		cache:     cache,
		charges:   deps.Charges,
		scheduler: deps.Scheduler,
		events:    deps.Events,
		provider:  strings.TrimSpace(deps.Provider),
		currency:  currency,
		expiry:    expiry,
		newID:     newID,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// InitiatePayment settles the payment leg of a freshly created order.
//
// Card charges confirm synchronously: an approved charge settles the order as
// PAID, a declined one as FAIL_PAID. Cash needs no provider and waits for the
// courier. QR charges wait for the webhook, with a scheduled expiration as the
// deadline.
func (s *orderService) InitiatePayment(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error) {
	if order.Status != domain.OrderStatusProcessing {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.OrderCode, order.Status)
	}

	switch instruction.Method {
	case domain.PaymentMethodCash:
		return s.initiateCash(ctx, order, instruction)
	case domain.PaymentMethodCard:
		return s.initiateCard(ctx, order, instruction)
	case domain.PaymentMethodPix:
		return s.initiatePix(ctx, order, instruction)
	default:
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, instruction.Method)
	}
}

func (s *orderService) initiateCash(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error) {
	if instruction.CashChange != nil && instruction.CashChange.LessThan(order.Total) {
		return domain.Order{}, fmt.Errorf("%w: cash change %s is below the order total %s",
			ErrOrderInvalidInput, instruction.CashChange.String(), order.Total.String())
	}

	now := s.clock()
	payment := domain.Payment{
		ID:                s.newID(),
		OrderCode:         order.OrderCode,
		Provider:          "cash",
		Method:            domain.PaymentMethodCash,
		TransactionAmount: order.Total,
		Description:       s.chargeDescription(order),
		Status:            domain.PaymentStatusAwaiting,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	saved, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	order.PaymentID = saved.ID
	order.CashChange = instruction.CashChange
	updated, err := s.settleOrder(ctx, order, domain.OrderStatusAwaitingPayment, "reconciler", "cash on delivery")
	if err != nil {
		return domain.Order{}, err
	}
	s.finishCart(ctx, updated.CartCode)
	return updated, nil
}

func (s *orderService) initiateCard(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error) {
	if strings.TrimSpace(instruction.CardToken) == "" {
		return domain.Order{}, fmt.Errorf("%w: card token is required", ErrOrderInvalidInput)
	}

	charge, err := s.charges.CreateCharge(ctx, s.provider, payments.ChargeRequest{
		Method:         payments.MethodCard,
		Amount:         minorUnits(order.Total),
		Currency:       s.currency,
		CardToken:      instruction.CardToken,
		Description:    s.chargeDescription(order),
		IdempotencyKey: order.OrderCode,
		Metadata: map[string]string{
			"orderCode":    order.OrderCode,
			"merchantCode": order.MerchantCode,
		},
	})
	if err != nil {
		// Nothing was persisted; checkout can retry the payment leg.
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	now := s.clock()
	payment := domain.Payment{
		ID:                s.newID(),
		OrderCode:         order.OrderCode,
		Provider:          charge.Provider,
		ProviderPaymentID: charge.ProviderPaymentID,
		Method:            domain.PaymentMethodCard,
		TransactionAmount: order.Total,
		Description:       s.chargeDescription(order),
		Status:            paymentStatusFromCharge(charge.Status),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	saved, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	order.PaymentID = saved.ID

	if charge.Status == payments.StatusSucceeded {
		updated, err := s.settleOrder(ctx, order, domain.OrderStatusPaid, "reconciler", "card charge approved")
		if err != nil {
			return domain.Order{}, err
		}
		s.finishCart(ctx, updated.CartCode)
		return updated, nil
	}
	return s.settleOrder(ctx, order, domain.OrderStatusFailPaid, "reconciler", "card charge declined")
}

func (s *orderService) initiatePix(ctx context.Context, order domain.Order, instruction PaymentInstruction) (domain.Order, error) {
	payerEmail := strings.TrimSpace(instruction.PayerEmail)
	if payerEmail == "" {
		return domain.Order{}, fmt.Errorf("%w: payer email is required for pix", ErrOrderInvalidInput)
	}

	charge, err := s.charges.CreateCharge(ctx, s.provider, payments.ChargeRequest{
		Method:         payments.MethodQR,
		Amount:         minorUnits(order.Total),
		Currency:       s.currency,
		PayerEmail:     payerEmail,
		ExpiresIn:      s.expiry,
		Description:    s.chargeDescription(order),
		IdempotencyKey: order.OrderCode,
		Metadata: map[string]string{
			"orderCode":    order.OrderCode,
			"merchantCode": order.MerchantCode,
		},
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	now := s.clock()
	expiresAt := charge.ExpiresAt
	if expiresAt == nil {
		deadline := now.Add(s.expiry)
		expiresAt = &deadline
	}
	payment := domain.Payment{
		ID:                s.newID(),
		OrderCode:         order.OrderCode,
		Provider:          charge.Provider,
		ProviderPaymentID: charge.ProviderPaymentID,
		Method:            domain.PaymentMethodPix,
		TransactionAmount: order.Total,
		Description:       s.chargeDescription(order),
		Status:            domain.PaymentStatusAwaiting,
		PayerEmail:        payerEmail,
		QRCodeURL:         charge.QRCodeURL,
		QRCodeBase64:      charge.QRCodeBase64,
		ExpiresAt:         expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	saved, err := s.payments.Create(ctx, payment)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	order.PaymentID = saved.ID
	updated, err := s.settleOrder(ctx, order, domain.OrderStatusAwaitingPayment, "reconciler", "qr code issued")
	if err != nil {
		return domain.Order{}, err
	}
	s.finishCart(ctx, updated.CartCode)

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleExpiration(ctx, saved.ID, *expiresAt); err != nil {
			// The due-payment sweep settles it even without the reminder.
			s.logger(ctx, "order.expiration.schedule_failed", map[string]any{
				"paymentId": saved.ID,
				"orderCode": order.OrderCode,
				"error":     err.Error(),
			})
		}
	}
	return updated, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderCode string) (domain.Order, error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return domain.Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	merchant := strings.TrimSpace(merchantCode)
	if merchant == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: merchant code is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByMerchant(ctx, merchant, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *orderService) ListOrderHistory(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return domain.CursorPage[domain.OrderStatusChange]{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}
	if s.audit == nil {
		return domain.CursorPage[domain.OrderStatusChange]{}, nil
	}
	page, err := s.audit.ListByOrder(ctx, code, pager)
	if err != nil {
		return domain.CursorPage[domain.OrderStatusChange]{}, s.translateRepoError(err)
	}
	return page, nil
}

// ApplyProviderNotification folds a webhook into local state. Notifications
// for orders already in a terminal state are acknowledged without effect, so
// provider retries and out-of-order deliveries are safe.
func (s *orderService) ApplyProviderNotification(ctx context.Context, notice ProviderNotification) (domain.Order, error) {
	providerID := strings.TrimSpace(notice.ProviderPaymentID)
	if providerID == "" {
		return domain.Order{}, fmt.Errorf("%w: provider payment id is required", ErrOrderInvalidInput)
	}

	payment, err := s.payments.FindByProviderID(ctx, strings.TrimSpace(notice.Provider), providerID)
	if err != nil {
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsNotFound() {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, providerID)
		}
		return domain.Order{}, s.translateRepoError(err)
	}
	order, err := s.orders.FindByCode(ctx, payment.OrderCode)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	if isTerminalOrderStatus(order.Status) {
		s.logger(ctx, "order.notification.ignored", map[string]any{
			"orderCode": order.OrderCode,
			"status":    string(order.Status),
		})
		return order, nil
	}

	switch notice.Status {
	case payments.StatusSucceeded:
		if err := s.updatePaymentStatus(ctx, payment, domain.PaymentStatusConfirmed); err != nil {
			return domain.Order{}, err
		}
		updated, err := s.settleOrder(ctx, order, domain.OrderStatusPaid, "provider", "charge approved")
		if err != nil {
			return domain.Order{}, err
		}
		s.finishCart(ctx, updated.CartCode)
		return updated, nil
	case payments.StatusFailed:
		if err := s.updatePaymentStatus(ctx, payment, domain.PaymentStatusRejected); err != nil {
			return domain.Order{}, err
		}
		return s.settleOrder(ctx, order, domain.OrderStatusRejected, "provider", "charge rejected")
	default:
		// Still pending on the provider side; nothing to reconcile yet.
		return order, nil
	}
}

// CancelOrder cancels an order that has not begun settling and reopens its
// cart so the shopper can check out again. The reopened cart remembers the
// cancelled order's code.
func (s *orderService) CancelOrder(ctx context.Context, orderCode string, actor string, reason string) (domain.Order, error) {
	code := strings.TrimSpace(orderCode)
	if code == "" {
		return domain.Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	if order.Status != domain.OrderStatusProcessing {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s, only processing orders can be cancelled",
			ErrOrderInvalidState, code, order.Status)
	}

	if actor = strings.TrimSpace(actor); actor == "" {
		actor = "merchant"
	}
	updated, err := s.settleOrder(ctx, order, domain.OrderStatusCancelled, actor, strings.TrimSpace(reason))
	if err != nil {
		return domain.Order{}, err
	}

	if order.PaymentID != "" {
		if payment, err := s.payments.FindByID(ctx, order.PaymentID); err == nil {
			if err := s.updatePaymentStatus(ctx, payment, domain.PaymentStatusCancelled); err != nil {
				s.logger(ctx, "order.payment.cancel_failed", map[string]any{
					"paymentId": order.PaymentID,
					"error":     err.Error(),
				})
			}
		}
	}

	s.reopenCart(ctx, updated)
	return updated, nil
}

// ExpirePayment settles one QR payment whose window elapsed. It is the target
// of the scheduled reminder and re-checks the provider before deciding, so a
// payment approved moments before expiry still lands as paid.
func (s *orderService) ExpirePayment(ctx context.Context, paymentID string) error {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return fmt.Errorf("%w: payment id is required", ErrOrderInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsNotFound() {
			return fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
		}
		return s.translateRepoError(err)
	}
	return s.expirePayment(ctx, payment)
}

// RunExpirationChecks sweeps unsettled QR payments past their deadline. It is
// the durable backstop for reminders that were lost or never scheduled.
func (s *orderService) RunExpirationChecks(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	due, err := s.payments.ListDueExpirations(ctx, s.clock(), limit)
	if err != nil {
		return 0, s.translateRepoError(err)
	}

	processed := 0
	for _, payment := range due {
		if err := s.expirePayment(ctx, payment); err != nil {
			s.logger(ctx, "order.expiration.failed", map[string]any{
				"paymentId": payment.ID,
				"orderCode": payment.OrderCode,
				"error":     err.Error(),
			})
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *orderService) expirePayment(ctx context.Context, payment domain.Payment) error {
	if payment.Status != domain.PaymentStatusAwaiting {
		return nil
	}

	order, err := s.orders.FindByCode(ctx, payment.OrderCode)
	if err != nil {
		return s.translateRepoError(err)
	}
	if isTerminalOrderStatus(order.Status) {
		return nil
	}

	// The provider has the last word: a charge settled right at the deadline
	// beats the expiration.
	if payment.ProviderPaymentID != "" {
		charge, err := s.charges.LookupCharge(ctx, payment.Provider, payment.ProviderPaymentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
		if charge.Status == payments.StatusSucceeded {
			if err := s.updatePaymentStatus(ctx, payment, domain.PaymentStatusConfirmed); err != nil {
				return err
			}
			updated, err := s.settleOrder(ctx, order, domain.OrderStatusPaid, "reconciler", "charge approved before expiry")
			if err != nil {
				return err
			}
			s.finishCart(ctx, updated.CartCode)
			return nil
		}
	}

	if err := s.updatePaymentStatus(ctx, payment, domain.PaymentStatusCancelled); err != nil {
		return err
	}
	_, err = s.settleOrder(ctx, order, domain.OrderStatusCancelled, "reconciler", "qr_code_expired")
	return err
}

// settleOrder applies one lifecycle transition, persists it under optimistic
// locking and records the audit trail entry.
func (s *orderService) settleOrder(ctx context.Context, order domain.Order, to domain.OrderStatus, actor string, reason string) (domain.Order, error) {
	previous := order.Status
	if err := transitionOrderStatus(&order, to); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
	}

	expected := order.UpdatedAt
	order.UpdatedAt = s.clock()
	updated, err := s.orders.Update(ctx, order, &expected)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.appendAudit(ctx, updated, previous, actor, reason)
	s.publishStatusChange(ctx, updated, previous)
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderCode": updated.OrderCode,
		"from":      string(previous),
		"to":        string(updated.Status),
		"actor":     actor,
	})
	return updated, nil
}

func (s *orderService) updatePaymentStatus(ctx context.Context, payment domain.Payment, to domain.PaymentStatus) error {
	expected := payment.UpdatedAt
	payment.Status = to
	payment.UpdatedAt = s.clock()
	if _, err := s.payments.Update(ctx, payment, &expected); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *orderService) appendAudit(ctx context.Context, order domain.Order, from domain.OrderStatus, actor string, reason string) {
	if s.audit == nil {
		return
	}
	change := domain.OrderStatusChange{
		ID:        s.newID(),
		OrderCode: order.OrderCode,
		From:      from,
		To:        order.Status,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: s.clock(),
	}
	if err := s.audit.Append(ctx, change); err != nil {
		s.logger(ctx, "order.audit.append_failed", map[string]any{
			"orderCode": order.OrderCode,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) publishStatusChange(ctx context.Context, order domain.Order, previous domain.OrderStatus) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderStatusChanged(ctx, order, previous); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderCode": order.OrderCode,
			"error":     err.Error(),
		})
	}
}

// finishCart marks the source cart as consumed. Failures are logged, not
// surfaced: the order already settled and the next cart read self-heals
// through the lifecycle guard.
func (s *orderService) finishCart(ctx context.Context, cartCode string) {
	for attempt := 0; attempt < cartMutationAttempts; attempt++ {
		cart, err := s.carts.FindByCode(ctx, cartCode)
		if err != nil {
			s.logger(ctx, "order.cart.finish_failed", map[string]any{
				"cartCode": cartCode,
				"error":    err.Error(),
			})
			return
		}
		if cart.Status == domain.CartStatusFinished {
			return
		}
		expected := cart.UpdatedAt
		if err := transitionCartStatus(&cart, domain.CartStatusFinished); err != nil {
			s.logger(ctx, "order.cart.finish_failed", map[string]any{
				"cartCode": cartCode,
				"error":    err.Error(),
			})
			return
		}
		cart.UpdatedAt = s.clock()
		updated, err := s.carts.Update(ctx, cart, &expected)
		if err == nil {
			s.writeCache(ctx, updated)
			return
		}
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsConflict() {
			continue
		}
		s.logger(ctx, "order.cart.finish_failed", map[string]any{
			"cartCode": cartCode,
			"error":    err.Error(),
		})
		return
	}
	s.logger(ctx, "order.cart.finish_failed", map[string]any{
		"cartCode": cartCode,
		"error":    "conflict retries exhausted",
	})
}

// reopenCart returns a cancelled order's cart to the shopper, tagged with the
// order code it came from.
func (s *orderService) reopenCart(ctx context.Context, order domain.Order) {
	for attempt := 0; attempt < cartMutationAttempts; attempt++ {
		cart, err := s.carts.FindByCode(ctx, order.CartCode)
		if err != nil {
			s.logger(ctx, "order.cart.reopen_failed", map[string]any{
				"cartCode": order.CartCode,
				"error":    err.Error(),
			})
			return
		}
		expected := cart.UpdatedAt
		if err := transitionCartStatus(&cart, domain.CartStatusActive); err != nil {
			s.logger(ctx, "order.cart.reopen_failed", map[string]any{
				"cartCode": order.CartCode,
				"error":    err.Error(),
			})
			return
		}
		cart.OrderCode = order.OrderCode
		cart.UpdatedAt = s.clock()
		updated, err := s.carts.Update(ctx, cart, &expected)
		if err == nil {
			s.writeCache(ctx, updated)
			return
		}
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsConflict() {
			continue
		}
		s.logger(ctx, "order.cart.reopen_failed", map[string]any{
			"cartCode": order.CartCode,
			"error":    err.Error(),
		})
		return
	}
	s.logger(ctx, "order.cart.reopen_failed", map[string]any{
		"cartCode": order.CartCode,
		"error":    "conflict retries exhausted",
	})
}

func (s *orderService) writeCache(ctx context.Context, cart domain.Cart) {
	if err := s.cache.Put(ctx, cart); err != nil {
		if invErr := s.cache.Invalidate(ctx, cart.CartCode); invErr != nil {
			s.logger(ctx, "order.cache.incoherent", map[string]any{
				"cartCode": cart.CartCode,
				"error":    invErr.Error(),
			})
		}
	}
}

func (s *orderService) chargeDescription(order domain.Order) string {
	return fmt.Sprintf("%s order %s", order.MerchantCode, order.OrderCode)
}

func (s *orderService) translateRepoError(err error) error {
	if repoErr := asRepositoryError(err); repoErr != nil {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("order service: %w", err)
}

func paymentStatusFromCharge(status payments.Status) domain.PaymentStatus {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusConfirmed
	case payments.StatusFailed:
		return domain.PaymentStatusRejected
	default:
		return domain.PaymentStatusPending
	}
}

// minorUnits converts a decimal amount to the currency's minor units.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
