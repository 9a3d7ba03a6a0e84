package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/repositories"
)

// ErrBestSellerUnavailable indicates the order scan could not complete.
var ErrBestSellerUnavailable = errors.New("best sellers: temporarily unavailable")

// bestSellerLimit caps the report length.
const bestSellerLimit = 10

// BestSellerService computes the best-seller report over historical orders.
type BestSellerService interface {
	GetBestSellers(ctx context.Context, merchantCode string) ([]domain.BestSeller, error)
}

// BestSellerServiceDeps wires the collaborators required by NewBestSellerService.
type BestSellerServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type bestSellerService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

var _ BestSellerService = (*bestSellerService)(nil)

// NewBestSellerService validates dependencies and constructs the aggregator.
func NewBestSellerService(deps BestSellerServiceDeps) (BestSellerService, error) {
	if deps.Orders == nil {
		return nil, errors.New("best seller service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &bestSellerService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetBestSellers scans every order of the merchant, sums item quantities per
// product and returns the top sellers by volume. Products with equal volume
// keep the order in which the scan first encountered them. A merchant with no
// orders yet gets an empty report, not an error.
//
// Full scan of the order history; report path only, never called per request.
func (s *bestSellerService) GetBestSellers(ctx context.Context, merchantCode string) ([]domain.BestSeller, error) {
	merchant := strings.TrimSpace(merchantCode)
	started := s.clock()

	totals := make(map[string]*domain.BestSeller)
	encounter := make([]string, 0)

	err := s.orders.ScanOrders(ctx, merchant, func(order domain.Order) error {
		for _, item := range order.Items {
			entry, ok := totals[item.ProductCode]
			if !ok {
				entry = &domain.BestSeller{
					ProductCode: item.ProductCode,
					ProductName: item.ProductName,
				}
				totals[item.ProductCode] = entry
				encounter = append(encounter, item.ProductCode)
			}
			entry.Quantity += item.Quantity
		}
		return nil
	})
	if err != nil {
		if repoErr := asRepositoryError(err); repoErr != nil && repoErr.IsUnavailable() {
			return nil, fmt.Errorf("%w: %v", ErrBestSellerUnavailable, err)
		}
		return nil, fmt.Errorf("best seller service: %w", err)
	}

	ranked := make([]domain.BestSeller, 0, len(encounter))
	for _, code := range encounter {
		ranked = append(ranked, *totals[code])
	}
	// Stable sort preserves encounter order among equal volumes.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quantity > ranked[j].Quantity
	})
	if len(ranked) > bestSellerLimit {
		ranked = ranked[:bestSellerLimit]
	}

	s.logger(ctx, "bestsellers.computed", map[string]any{
		"merchantCode": merchant,
		"products":     len(encounter),
		"elapsed":      s.clock().Sub(started).String(),
	})
	return ranked, nil
}
