package ports

import "context"

// Storage namespaces.
const (
	CacheKeyPrefix = "cache:"
	QueueKey       = "queue:offlineMutations"
)

// CacheKey returns the namespace holding the snapshot of one entity type.
func CacheKey(entity string) string { return CacheKeyPrefix + entity }

// KVStore is process-local durable storage. Values are JSON documents.
type KVStore interface {
	// Get returns the stored value, or nil and no error when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value durably before returning.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
