package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localeats/api/internal/platform/config"
	"github.com/localeats/api/internal/repositories"
	"github.com/localeats/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart        services.CartService
	Checkout    services.CheckoutService
	Orders      services.OrderService
	BestSellers services.BestSellerService
	System      services.SystemService
}

// Ports carries the external adapters the services depend on. Production
// wiring supplies Redis, Stripe, and Pub/Sub implementations; tests can
// substitute stubs. Cache, Scheduler, Events, and Verifier are optional and
// degrade gracefully when nil.
type Ports struct {
	Cache     services.CartCache
	Charges   services.ChargeGateway
	Scheduler services.ExpirationScheduler
	Events    services.OrderEventPublisher
	Verifier  services.IdentityTokenVerifier
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Build     services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies over the supplied registry
// and adapter ports.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, ports Ports) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, ports)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, ports Ports) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:   reg.Carts(),
		Catalog: reg.Catalog(),
		Cache:   ports.Cache,
		Clock:   time.Now,
		Logger:  ports.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Payments:      reg.Payments(),
		Carts:         reg.Carts(),
		Audit:         reg.OrderAudit(),
		Cache:         ports.Cache,
		Charges:       ports.Charges,
		Scheduler:     ports.Scheduler,
		Events:        ports.Events,
		Provider:      cfg.PSP.DefaultProvider,
		Currency:      cfg.PSP.Currency,
		PaymentExpiry: cfg.PSP.PaymentExpiry,
		Clock:         time.Now,
		Logger:        ports.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      reg.Carts(),
		Orders:     reg.Orders(),
		Users:      reg.Users(),
		Cache:      ports.Cache,
		Verifier:   ports.Verifier,
		Payments:   orderSvc,
		UnitOfWork: reg,
		Clock:      time.Now,
		Logger:     ports.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	bestSellerSvc, err := services.NewBestSellerService(services.BestSellerServiceDeps{
		Orders: reg.Orders(),
		Clock:  time.Now,
		Logger: ports.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build best seller service: %w", err)
	}
	svc.BestSellers = bestSellerSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            ports.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
