package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/localeats/api/internal/domain"
)

func TestMemoryCartCacheRoundTrip(t *testing.T) {
	c := NewMemoryCartCache()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "CARTCODE"); err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}

	cart := domain.Cart{
		CartCode: "CARTCODE",
		Status:   domain.CartStatusActive,
		Total:    decimal.RequireFromString("27.50"),
	}
	if err := c.Put(ctx, cart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Get(ctx, "CARTCODE")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if got.Status != domain.CartStatusActive || !got.Total.Equal(cart.Total) {
		t.Fatalf("unexpected cached cart: %+v", got)
	}

	if err := c.Invalidate(ctx, "CARTCODE"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "CARTCODE"); ok {
		t.Fatal("expected the entry invalidated")
	}
}

func TestMemoryCartCachePutIgnoresOlderSnapshot(t *testing.T) {
	c := NewMemoryCartCache()
	ctx := context.Background()

	newer := domain.Cart{
		CartCode:  "CARTCODE",
		Total:     decimal.RequireFromString("40.00"),
		UpdatedAt: time.Date(2026, 3, 14, 11, 0, 2, 0, time.UTC),
	}
	older := domain.Cart{
		CartCode:  "CARTCODE",
		Total:     decimal.RequireFromString("30.00"),
		UpdatedAt: time.Date(2026, 3, 14, 11, 0, 1, 0, time.UTC),
	}

	if err := c.Put(ctx, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Put(ctx, older); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Get(ctx, "CARTCODE")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if !got.Total.Equal(newer.Total) {
		t.Fatalf("expected the later commit to stay cached, got total %s", got.Total)
	}

	// A write carrying the same version still refreshes the entry.
	refreshed := newer
	refreshed.Total = decimal.RequireFromString("41.00")
	if err := c.Put(ctx, refreshed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _, _ = c.Get(ctx, "CARTCODE")
	if !got.Total.Equal(refreshed.Total) {
		t.Fatalf("expected the refreshed snapshot, got total %s", got.Total)
	}
}
