package cache

import (
	"context"
	"sync"

	domain "github.com/localeats/api/internal/domain"
)

// MemoryCartCache is a process-local cart cache for development and tests.
// Entries never expire; a deployment with more than one replica needs the
// Redis cache for coherence.
type MemoryCartCache struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewMemoryCartCache constructs an empty in-process cache.
func NewMemoryCartCache() *MemoryCartCache {
	return &MemoryCartCache{carts: make(map[string]domain.Cart)}
}

func (c *MemoryCartCache) Get(_ context.Context, cartCode string) (domain.Cart, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cart, ok := c.carts[cartCode]
	return cart, ok, nil
}

// Put stores the snapshot unless a newer one is already cached. Write-backs
// race with each other; a delayed writer must not shadow a later commit.
func (c *MemoryCartCache) Put(_ context.Context, cart domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.carts[cart.CartCode]; ok && existing.UpdatedAt.After(cart.UpdatedAt) {
		return nil
	}
	c.carts[cart.CartCode] = cart
	return nil
}

func (c *MemoryCartCache) Invalidate(_ context.Context, cartCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, cartCode)
	return nil
}
