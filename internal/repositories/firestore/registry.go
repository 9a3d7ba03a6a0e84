package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	carts    *CartRepository
	orders   *OrderRepository
	payments *PaymentRepository
	users    *UserRepository
	catalog  *CatalogRepository
	audit    *OrderAuditRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryDeps configures NewRegistry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	// ExtraChecks adds dependency probes beyond the Firestore ping, such as
	// the Redis cache or the payment provider reachability.
	ExtraChecks []repositories.DependencyCheck
}

// NewRegistry constructs all Firestore repositories over a shared provider.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	audit, err := NewOrderAuditRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	checks := append([]repositories.DependencyCheck{{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			_, err := deps.Provider.Client(ctx)
			return err
		},
	}}, deps.ExtraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: deps.Provider,
		carts:    carts,
		orders:   orders,
		payments: payments,
		users:    users,
		catalog:  catalog,
		audit:    audit,
		health:   health,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository            { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository          { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository      { return r.payments }
func (r *Registry) Users() repositories.UserRepository            { return r.users }
func (r *Registry) Catalog() repositories.CatalogRepository       { return r.catalog }
func (r *Registry) OrderAudit() repositories.OrderAuditRepository { return r.audit }
func (r *Registry) Health() repositories.HealthRepository         { return r.health }

// RunInTx executes fn as a single logical unit. Firestore's client-side
// transactions cannot span the typed repository helpers, so atomicity rests
// on the per-document preconditions each write carries: the cart update uses
// a last-commit-time guard and the order create is create-if-absent. A
// failure between the two leaves the cart in CHECKOUT, which a later checkout
// attempt legally re-enters.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return fn(ctx)
}
