package storage

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pinstack/pinstack/pkg/registry"
)

// CachedStore wraps a registry.Store with an in-process expiring LRU over
// PinsForPackage, the query every resolution performs. Writes that can
// change a package's pin set evict its entry before delegating, so a
// reader after a successful write sees the new state no later than the
// write's return.
type CachedStore struct {
	registry.Store

	pins   *lru.LRU[string, []*registry.VersionPin]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedStore wraps inner with an LRU of maxEntries pin sets expiring
// after ttl.
func NewCachedStore(inner registry.Store, maxEntries int, ttl time.Duration) *CachedStore {
	if maxEntries < 16 {
		maxEntries = 16
	}
	return &CachedStore{
		Store: inner,
		pins:  lru.NewLRU[string, []*registry.VersionPin](maxEntries, nil, ttl),
	}
}

// PinsForPackage serves from the LRU when possible. Cached slices are
// shared between readers; the snapshot contract of registry.Store already
// forbids mutating them.
func (c *CachedStore) PinsForPackage(ctx context.Context, pkg string) ([]*registry.VersionPin, error) {
	if pins, ok := c.pins.Get(pkg); ok {
		c.hits.Add(1)
		return pins, nil
	}
	c.misses.Add(1)

	pins, err := c.Store.PinsForPackage(ctx, pkg)
	if err != nil {
		return nil, err
	}
	c.pins.Add(pkg, pins)
	return pins, nil
}

func (c *CachedStore) CreatePin(ctx context.Context, pin *registry.VersionPin) error {
	if err := c.Store.CreatePin(ctx, pin); err != nil {
		return err
	}
	c.pins.Remove(pin.Coordinate.Package)
	return nil
}

func (c *CachedStore) UpdatePinDistribution(ctx context.Context, pinID int64, dist registry.Distribution) error {
	if err := c.Store.UpdatePinDistribution(ctx, pinID, dist); err != nil {
		return err
	}
	c.pins.Remove(dist.Package)
	return nil
}

func (c *CachedStore) SetWiths(ctx context.Context, pinID int64, names []string) error {
	pin, err := c.Store.GetPin(ctx, pinID)
	if err != nil {
		return err
	}
	if err := c.Store.SetWiths(ctx, pinID, names); err != nil {
		return err
	}
	c.pins.Remove(pin.Coordinate.Package)
	return nil
}

// Stats reports hit and miss counts since construction.
func (c *CachedStore) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
