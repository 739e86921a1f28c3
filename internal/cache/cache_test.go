package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/washline/internal/adapters/memory"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
	"github.com/bft-labs/washline/pkg/log"
)

func newPackageCache(store ports.KVStore, opts ...Option) *Cache[domain.Package] {
	return New[domain.Package](domain.EntityPackage, store, log.NewNoopLogger(), opts...)
}

func TestCache_SetGetDelete(t *testing.T) {
	c := newPackageCache(memory.NewKVStore())

	c.Set("p1", domain.Package{ID: "p1", Barcode: "B1"})
	got, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "B1", got.Barcode)

	c.Delete("p1")
	_, ok = c.Get("p1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()

	c := newPackageCache(store)
	c.Set("p1", domain.Package{ID: "p1", Barcode: "B1"})
	c.Set("p2", domain.Package{ID: "p2", Barcode: "B2"})
	require.NoError(t, c.Flush(ctx))

	restored := newPackageCache(store)
	restored.Load(ctx)

	assert.Equal(t, 2, restored.Len())
	p2, ok := restored.Get("p2")
	require.True(t, ok)
	assert.Equal(t, "B2", p2.Barcode)
}

func TestCache_ScheduledPersist(t *testing.T) {
	store := memory.NewKVStore()
	c := newPackageCache(store, WithFlushDelay(5*time.Millisecond))

	c.Set("p1", domain.Package{ID: "p1"})

	assert.Eventually(t, func() bool {
		data, _ := store.Get(context.Background(), ports.CacheKey(string(domain.EntityPackage)))
		return len(data) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestCache_CorruptedSnapshotFailsOpen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	require.NoError(t, store.Put(ctx, ports.CacheKey(string(domain.EntityPackage)), []byte("{not json")))

	c := newPackageCache(store)
	c.Set("stale", domain.Package{ID: "stale"})
	c.Load(ctx)

	assert.Equal(t, 0, c.Len())
}

func TestCache_RemapID(t *testing.T) {
	c := newPackageCache(memory.NewKVStore())
	c.Set("temp_p", domain.Package{ID: "temp_p", CustomerID: "temp_a"})
	c.Set("p2", domain.Package{ID: "p2", CustomerID: "temp_a"})
	c.Set("p3", domain.Package{ID: "p3", CustomerID: "other"})

	n := c.RemapID("temp_a", "srv-a")
	assert.Equal(t, 2, n)

	for _, p := range c.Values() {
		assert.NotEqual(t, "temp_a", p.CustomerID)
	}

	n = c.RemapID("temp_p", "srv-p")
	assert.Equal(t, 1, n)
	_, ok := c.Get("temp_p")
	assert.False(t, ok, "old key must be gone")
	got, ok := c.Get("srv-p")
	require.True(t, ok)
	assert.Equal(t, "srv-a", got.CustomerID)
}

func TestCache_ReplaceKeepsUnconfirmed(t *testing.T) {
	c := newPackageCache(memory.NewKVStore())
	c.Set("temp_x", domain.Package{ID: "temp_x"})
	c.Set("gone", domain.Package{ID: "gone"})

	c.Replace([]domain.Package{{ID: "p1"}}, func(p domain.Package) bool {
		return domain.IsTempID(p.ID)
	})

	ids := make([]string, 0)
	for _, p := range c.Values() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p1", "temp_x"}, ids)
}

func TestCache_ValuesIsSnapshot(t *testing.T) {
	c := newPackageCache(memory.NewKVStore())
	c.Set("p1", domain.Package{ID: "p1", Quantity: 1})

	vals := c.Values()
	vals[0].Quantity = 99

	got, _ := c.Get("p1")
	assert.Equal(t, 1, got.Quantity)
}
