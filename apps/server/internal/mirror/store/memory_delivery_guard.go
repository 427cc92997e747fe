package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *MemoryDeliveryGuard implements mirror.DeliveryGuard.
var _ mirror.DeliveryGuard = (*MemoryDeliveryGuard)(nil)

// MemoryDeliveryGuard remembers delivery IDs in process memory for ttl.
type MemoryDeliveryGuard struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewMemoryDeliveryGuard creates a guard that remembers up to size IDs for ttl each.
func NewMemoryDeliveryGuard(size int, ttl time.Duration) *MemoryDeliveryGuard {
	return &MemoryDeliveryGuard{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// FirstDelivery records id and reports whether it was unseen.
func (g *MemoryDeliveryGuard) FirstDelivery(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen.Get(id); ok {
		return false, nil
	}
	g.seen.Add(id, struct{}{})
	return true, nil
}

// Release forgets id so its next delivery counts as the first.
func (g *MemoryDeliveryGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen.Remove(id)
	return nil
}
