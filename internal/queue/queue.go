// Package queue implements the durable, strictly FIFO log of mutations
// recorded while the remote store was unreachable.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// Queue is an ordered log of pending mutations.
//
// Mutations are never reordered, even across entity types, because later
// entries may reference rows created by earlier ones. Every change is
// written to storage before the call returns; if the write fails the
// in-memory log is rolled back and the error returned.
type Queue struct {
	store  ports.KVStore
	logger ports.Logger
	now    func() time.Time

	mu    sync.Mutex
	items []domain.Mutation
}

// Open loads the persisted log from store. A corrupted log is reset and
// logged rather than failing startup.
func Open(ctx context.Context, store ports.KVStore, logger ports.Logger) (*Queue, error) {
	q := &Queue{store: store, logger: logger, now: time.Now}

	data, err := store.Get(ctx, ports.QueueKey)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if len(data) == 0 {
		return q, nil
	}

	if err := json.Unmarshal(data, &q.items); err != nil {
		logger.Error("offline queue corrupted, resetting",
			ports.String("key", ports.QueueKey),
			ports.Err(fmt.Errorf("%w: %v", domain.ErrQueueCorrupted, err)))
		q.items = nil
		if err := store.Delete(ctx, ports.QueueKey); err != nil {
			return nil, fmt.Errorf("reset queue: %w", err)
		}
		return q, nil
	}

	if len(q.items) > 0 {
		logger.Info("offline queue restored", ports.Int("pending", len(q.items)))
	}
	return q, nil
}

// Enqueue appends m and returns its correlation id. Missing correlation ids,
// idempotency keys and timestamps are filled in.
func (q *Queue) Enqueue(ctx context.Context, m domain.Mutation) (string, error) {
	if m.CorrelationID == "" {
		m.CorrelationID = domain.NewCorrelationID()
	}
	if m.IdempotencyKey == "" {
		m.IdempotencyKey = domain.NewIdempotencyKey()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.CorrelationID == m.CorrelationID {
			return "", fmt.Errorf("%w: duplicate correlation id %s", domain.ErrValidation, m.CorrelationID)
		}
	}

	prev := q.items
	q.items = append(clone(prev), m)
	if err := q.persistLocked(ctx); err != nil {
		q.items = prev
		return "", err
	}
	return m.CorrelationID, nil
}

// PeekNext returns a copy of the oldest mutation.
func (q *Queue) PeekNext() (domain.Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domain.Mutation{}, false
	}
	return cloneMutation(q.items[0]), true
}

// RemoveByCorrelationID drops the entry with id. Removing an unknown id is
// a no-op.
func (q *Queue) RemoveByCorrelationID(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return nil
	}
	prev := q.items
	next := make([]domain.Mutation, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	q.items = next
	if err := q.persistLocked(ctx); err != nil {
		q.items = prev
		return err
	}
	return nil
}

// RemapReferences rewrites oldID to newID in every queued target and
// payload. It returns how many entries changed.
func (q *Queue) RemapReferences(ctx context.Context, oldID, newID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.items
	next := clone(prev)
	n := 0
	for i := range next {
		if next[i].Remap(oldID, newID) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	q.items = next
	if err := q.persistLocked(ctx); err != nil {
		q.items = prev
		return 0, err
	}
	return n, nil
}

// RecordAttempt increments the attempt counter of id and returns the new value.
func (q *Queue) RecordAttempt(ctx context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return 0, fmt.Errorf("%w: queued mutation %s", domain.ErrNotFound, id)
	}
	prev := q.items
	next := clone(prev)
	next[idx].Attempts++
	q.items = next
	if err := q.persistLocked(ctx); err != nil {
		q.items = prev
		return 0, err
	}
	return next[idx].Attempts, nil
}

// Len returns the number of pending mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending mutations in order.
func (q *Queue) Snapshot() []domain.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return clone(q.items)
}

func (q *Queue) indexLocked(id string) int {
	for i, it := range q.items {
		if it.CorrelationID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context) error {
	if len(q.items) == 0 {
		if err := q.store.Delete(ctx, ports.QueueKey); err != nil {
			return fmt.Errorf("persist queue: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(q.items)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := q.store.Put(ctx, ports.QueueKey, data); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func clone(items []domain.Mutation) []domain.Mutation {
	out := make([]domain.Mutation, len(items))
	for i, m := range items {
		out[i] = cloneMutation(m)
	}
	return out
}

// cloneMutation deep-copies the payload so callers cannot alias queue state.
func cloneMutation(m domain.Mutation) domain.Mutation {
	m.Payload = deepCopyRow(m.Payload)
	return m
}

func deepCopyRow(r domain.Row) domain.Row {
	if r == nil {
		return nil
	}
	out := make(domain.Row, len(r))
	for k, v := range r {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyRow(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
