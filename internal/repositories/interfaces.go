package repositories

import (
	"context"
	"time"

	domain "github.com/localeats/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Users() UserRepository
	Catalog() CatalogRepository
	OrderAudit() OrderAuditRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart aggregate persistence with optimistic locking.
//
// Update takes the expected last-commit timestamp; a mismatch surfaces as a
// conflict so callers can re-read and retry. This is how concurrent mutation
// of the same cart code is serialized.
type CartRepository interface {
	Create(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	FindByCode(ctx context.Context, cartCode string) (domain.Cart, error)
	FindLatestForMerchant(ctx context.Context, merchantCode string) (domain.Cart, error)
	Update(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error)
	Delete(ctx context.Context, cartCode string) error
}

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByCode(ctx context.Context, orderCode string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order, expectedUpdatedAt *time.Time) (domain.Order, error)
	ListByMerchant(ctx context.Context, merchantCode string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ScanOrders streams every order (optionally scoped to a merchant) to fn.
	// Batch read side only; not a hot path.
	ScanOrders(ctx context.Context, merchantCode string, fn func(domain.Order) error) error
}

// OrderListFilter restricts and paginates merchant order listings.
type OrderListFilter struct {
	Status      *domain.OrderStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Pagination  domain.Pagination
	Sort        domain.SortOrder
}

// PaymentRepository persists the local payment shadows.
type PaymentRepository interface {
	Create(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByProviderID(ctx context.Context, provider string, providerPaymentID string) (domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment, expectedUpdatedAt *time.Time) (domain.Payment, error)
	// ListDueExpirations returns unsettled QR payments whose expiration
	// window elapsed before the given instant.
	ListDueExpirations(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
}

// UserRepository persists customer identities resolved during checkout.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByPhone(ctx context.Context, phone string) (domain.User, error)
	Update(ctx context.Context, user domain.User) (domain.User, error)
}

// CatalogRepository is the read-only product lookup this engine consumes.
// Catalog administration lives outside this service.
type CatalogRepository interface {
	FindProductByCode(ctx context.Context, merchantCode string, productCode string) (domain.Product, error)
}

// OrderAuditRepository appends order status transitions for alerting and reconciliation.
type OrderAuditRepository interface {
	Append(ctx context.Context, change domain.OrderStatusChange) error
	ListByOrder(ctx context.Context, orderCode string, pager domain.Pagination) (domain.CursorPage[domain.OrderStatusChange], error)
}

// HealthRepository aggregates dependency probes for the readiness endpoint.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
