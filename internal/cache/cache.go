// Package cache holds the last known server state of one entity type,
// mirrored to durable local storage so it survives a restart.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// DefaultFlushDelay coalesces bursts of writes into one persistence write.
const DefaultFlushDelay = 50 * time.Millisecond

// Cache is a keyed in-process store for entities of type T.
//
// Reads never touch storage. Every Set and Delete schedules a persistence
// write without blocking on it, so a crash loses at most the latest batch.
type Cache[T domain.Record[T]] struct {
	entity     domain.EntityType
	store      ports.KVStore
	logger     ports.Logger
	flushDelay time.Duration

	mu    sync.RWMutex
	items map[string]T

	// persistMu serializes snapshot writes so an older snapshot never
	// overwrites a newer one.
	persistMu sync.Mutex

	timerMu sync.Mutex
	timer   *time.Timer
	closed  bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	flushDelay time.Duration
}

// WithFlushDelay sets how long writes are coalesced before persisting.
// Zero persists on the next scheduler tick.
func WithFlushDelay(d time.Duration) Option {
	return func(o *options) { o.flushDelay = d }
}

// New creates an empty cache for entity backed by store.
func New[T domain.Record[T]](entity domain.EntityType, store ports.KVStore, logger ports.Logger, opts ...Option) *Cache[T] {
	o := options{flushDelay: DefaultFlushDelay}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		entity:     entity,
		store:      store,
		logger:     logger,
		flushDelay: o.flushDelay,
		items:      make(map[string]T),
	}
}

// Entity returns the entity type this cache holds.
func (c *Cache[T]) Entity() domain.EntityType { return c.entity }

// Get returns the entry for id.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// Set stores value under id.
func (c *Cache[T]) Set(id string, value T) {
	c.mu.Lock()
	c.items[id] = value
	c.mu.Unlock()
	c.schedule()
}

// Delete removes id.
func (c *Cache[T]) Delete(id string) {
	c.mu.Lock()
	_, ok := c.items[id]
	delete(c.items, id)
	c.mu.Unlock()
	if ok {
		c.schedule()
	}
}

// Values returns a snapshot of every entry, ordered by id.
func (c *Cache[T]) Values() []T {
	c.mu.RLock()
	out := make([]T, 0, len(c.items))
	for _, v := range c.items {
		out = append(out, v)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

// Len returns the number of entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Find returns every entry matching pred.
func (c *Cache[T]) Find(pred func(T) bool) []T {
	var out []T
	for _, v := range c.Values() {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// Replace swaps the contents for fresh, keeping existing entries for which
// keep returns true (typically rows the server has not confirmed yet).
func (c *Cache[T]) Replace(fresh []T, keep func(T) bool) {
	next := make(map[string]T, len(fresh))
	for _, v := range fresh {
		next[v.RecordID()] = v
	}
	c.mu.Lock()
	for id, v := range c.items {
		if keep != nil && keep(v) {
			if _, ok := next[id]; !ok {
				next[id] = v
			}
		}
	}
	c.items = next
	c.mu.Unlock()
	c.schedule()
}

// RemapID rewrites every entry referencing oldID, re-keying the entry whose
// own id was oldID. It returns how many entries changed.
func (c *Cache[T]) RemapID(oldID, newID string) int {
	c.mu.Lock()
	n := 0
	for id, v := range c.items {
		nv, changed := v.Remap(oldID, newID)
		if !changed {
			continue
		}
		n++
		if id != nv.RecordID() {
			delete(c.items, id)
		}
		c.items[nv.RecordID()] = nv
	}
	c.mu.Unlock()
	if n > 0 {
		c.schedule()
	}
	return n
}

// Load replaces the contents with the persisted snapshot. A missing or
// unreadable snapshot leaves the cache empty: the remote store is
// authoritative, so the cache fails open.
func (c *Cache[T]) Load(ctx context.Context) {
	items := make(map[string]T)
	defer func() {
		c.mu.Lock()
		c.items = items
		c.mu.Unlock()
	}()

	data, err := c.store.Get(ctx, c.key())
	if err != nil {
		c.logger.Error("cache load failed",
			ports.String("entity", string(c.entity)),
			ports.Err(err))
		return
	}
	if len(data) == 0 {
		return
	}

	var snapshot []T
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Warn("cache snapshot corrupted, starting empty",
			ports.String("entity", string(c.entity)),
			ports.Err(err))
		return
	}
	for _, v := range snapshot {
		items[v.RecordID()] = v
	}
	c.logger.Debug("cache loaded",
		ports.String("entity", string(c.entity)),
		ports.Int("entries", len(items)))
}

// Persist writes the current snapshot synchronously.
func (c *Cache[T]) Persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	data, err := json.Marshal(c.Values())
	if err != nil {
		return err
	}
	return c.store.Put(ctx, c.key(), data)
}

// Flush cancels any scheduled write and persists immediately.
func (c *Cache[T]) Flush(ctx context.Context) error {
	c.timerMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerMu.Unlock()
	return c.Persist(ctx)
}

// Close flushes pending writes and stops scheduling new ones.
func (c *Cache[T]) Close(ctx context.Context) error {
	err := c.Flush(ctx)
	c.timerMu.Lock()
	c.closed = true
	c.timerMu.Unlock()
	return err
}

func (c *Cache[T]) key() string { return ports.CacheKey(string(c.entity)) }

// schedule arranges a background persist unless one is already pending.
func (c *Cache[T]) schedule() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.closed || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.flushDelay, func() {
		c.timerMu.Lock()
		c.timer = nil
		c.timerMu.Unlock()

		if err := c.Persist(context.Background()); err != nil {
			c.logger.Error("cache persist failed",
				ports.String("entity", string(c.entity)),
				ports.Err(err))
		}
	})
}
