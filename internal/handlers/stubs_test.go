package handlers

import (
	"context"
	"errors"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/repositories"
	"github.com/localeats/api/internal/services"
)

var errStubNotConfigured = errors.New("stub: not configured")

type stubCartService struct {
	createCartFunc        func(ctx context.Context, merchantCode string) (domain.Cart, error)
	getCartFunc           func(ctx context.Context, cartCode string) (domain.Cart, error)
	addItemFunc           func(ctx context.Context, cmd services.AddItemCommand) (domain.Cart, error)
	incrementItemFunc     func(ctx context.Context, cartCode, productCode string) (domain.Cart, error)
	decrementItemFunc     func(ctx context.Context, cartCode, productCode string) (domain.Cart, error)
	incrementOptionFunc   func(ctx context.Context, cmd services.OptionQuantityCommand) (domain.Cart, error)
	decrementOptionFunc   func(ctx context.Context, cmd services.OptionQuantityCommand) (domain.Cart, error)
	insertObservationFunc func(ctx context.Context, cartCode, productCode, observation string) (domain.Cart, error)
	removeItemFunc        func(ctx context.Context, cartCode, productCode string) (domain.Cart, error)
	clearCartFunc         func(ctx context.Context, cartCode string) (domain.Cart, error)
	deleteCartFunc        func(ctx context.Context, cartCode string) error
}

var _ services.CartService = (*stubCartService)(nil)

func (s *stubCartService) CreateCart(ctx context.Context, merchantCode string) (domain.Cart, error) {
	if s.createCartFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.createCartFunc(ctx, merchantCode)
}

func (s *stubCartService) GetCart(ctx context.Context, cartCode string) (domain.Cart, error) {
	if s.getCartFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.getCartFunc(ctx, cartCode)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddItemCommand) (domain.Cart, error) {
	if s.addItemFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.addItemFunc(ctx, cmd)
}

func (s *stubCartService) IncrementItem(ctx context.Context, cartCode, productCode string) (domain.Cart, error) {
	if s.incrementItemFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.incrementItemFunc(ctx, cartCode, productCode)
}

func (s *stubCartService) DecrementItem(ctx context.Context, cartCode, productCode string) (domain.Cart, error) {
	if s.decrementItemFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.decrementItemFunc(ctx, cartCode, productCode)
}

func (s *stubCartService) IncrementOptionQuantity(ctx context.Context, cmd services.OptionQuantityCommand) (domain.Cart, error) {
	if s.incrementOptionFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.incrementOptionFunc(ctx, cmd)
}

func (s *stubCartService) DecrementOptionQuantity(ctx context.Context, cmd services.OptionQuantityCommand) (domain.Cart, error) {
	if s.decrementOptionFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.decrementOptionFunc(ctx, cmd)
}

func (s *stubCartService) InsertObservation(ctx context.Context, cartCode, productCode, observation string) (domain.Cart, error) {
	if s.insertObservationFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.insertObservationFunc(ctx, cartCode, productCode, observation)
}

func (s *stubCartService) RemoveItem(ctx context.Context, cartCode, productCode string) (domain.Cart, error) {
	if s.removeItemFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.removeItemFunc(ctx, cartCode, productCode)
}

func (s *stubCartService) ClearCart(ctx context.Context, cartCode string) (domain.Cart, error) {
	if s.clearCartFunc == nil {
		return domain.Cart{}, errStubNotConfigured
	}
	return s.clearCartFunc(ctx, cartCode)
}

func (s *stubCartService) DeleteCart(ctx context.Context, cartCode string) error {
	if s.deleteCartFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteCartFunc(ctx, cartCode)
}

type stubCheckoutService struct {
	processCheckoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error)
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func (s *stubCheckoutService) ProcessCheckout(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
	if s.processCheckoutFunc == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.processCheckoutFunc(ctx, cmd)
}

type stubOrderService struct {
	initiatePaymentFunc     func(ctx context.Context, order domain.Order, instruction services.PaymentInstruction) (domain.Order, error)
	getOrderFunc            func(ctx context.Context, orderCode string) (domain.Order, error)
	listOrdersFunc          func(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listOrderHistoryFunc    func(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error)
	applyNotificationFunc   func(ctx context.Context, notice services.ProviderNotification) (domain.Order, error)
	cancelOrderFunc         func(ctx context.Context, orderCode, actor, reason string) (domain.Order, error)
	expirePaymentFunc       func(ctx context.Context, paymentID string) error
	runExpirationChecksFunc func(ctx context.Context, limit int) (int, error)
}

var _ services.OrderService = (*stubOrderService)(nil)

func (s *stubOrderService) InitiatePayment(ctx context.Context, order domain.Order, instruction services.PaymentInstruction) (domain.Order, error) {
	if s.initiatePaymentFunc == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.initiatePaymentFunc(ctx, order, instruction)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderCode string) (domain.Order, error) {
	if s.getOrderFunc == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.getOrderFunc(ctx, orderCode)
}

func (s *stubOrderService) ListOrders(ctx context.Context, merchantCode string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listOrdersFunc == nil {
		return domain.CursorPage[domain.Order]{}, errStubNotConfigured
	}
	return s.listOrdersFunc(ctx, merchantCode, filter)
}

func (s *stubOrderService) ListOrderHistory(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error) {
	if s.listOrderHistoryFunc == nil {
		return domain.CursorPage[domain.OrderStatusChange]{}, errStubNotConfigured
	}
	return s.listOrderHistoryFunc(ctx, orderCode, pager)
}

func (s *stubOrderService) ApplyProviderNotification(ctx context.Context, notice services.ProviderNotification) (domain.Order, error) {
	if s.applyNotificationFunc == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.applyNotificationFunc(ctx, notice)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderCode, actor, reason string) (domain.Order, error) {
	if s.cancelOrderFunc == nil {
		return domain.Order{}, errStubNotConfigured
	}
	return s.cancelOrderFunc(ctx, orderCode, actor, reason)
}

func (s *stubOrderService) ExpirePayment(ctx context.Context, paymentID string) error {
	if s.expirePaymentFunc == nil {
		return errStubNotConfigured
	}
	return s.expirePaymentFunc(ctx, paymentID)
}

func (s *stubOrderService) RunExpirationChecks(ctx context.Context, limit int) (int, error) {
	if s.runExpirationChecksFunc == nil {
		return 0, errStubNotConfigured
	}
	return s.runExpirationChecksFunc(ctx, limit)
}

type stubBestSellerService struct {
	getBestSellersFunc func(ctx context.Context, merchantCode string) ([]domain.BestSeller, error)
}

var _ services.BestSellerService = (*stubBestSellerService)(nil)

func (s *stubBestSellerService) GetBestSellers(ctx context.Context, merchantCode string) ([]domain.BestSeller, error) {
	if s.getBestSellersFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.getBestSellersFunc(ctx, merchantCode)
}

type stubSystemService struct {
	healthReportFunc func(ctx context.Context) (services.SystemReport, error)
}

var _ services.SystemService = (*stubSystemService)(nil)

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemReport, error) {
	if s.healthReportFunc == nil {
		return services.SystemReport{}, errStubNotConfigured
	}
	return s.healthReportFunc(ctx)
}
