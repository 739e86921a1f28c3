package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/washline/internal/cache"
	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

// Outbox accepts mutations that could not be applied remotely. The
// Coordinator implements it; managers only ever append.
type Outbox interface {
	Submit(ctx context.Context, m domain.Mutation) (string, error)

	// Deferred reports whether writes must be queued instead of sent.
	Deferred() bool

	// Online reports the last connectivity signal.
	Online() bool

	// Resolve maps a temporary id already confirmed by the remote store to
	// its server id.
	Resolve(id string) string
}

// Manager implements the optimistic write path shared by every entity
// type: try the remote store, fall back to the cache plus the outbox when
// the store is unreachable.
//
// gate serializes writes to one entity type from validation to enqueue,
// and also covers reconciliation from the drain loop. Reads never take it.
type Manager[T domain.Record[T]] struct {
	app    *Context
	entity domain.EntityType
	cache  *cache.Cache[T]
	outbox Outbox

	gate sync.Mutex
}

func newManager[T domain.Record[T]](app *Context, c *cache.Cache[T], outbox Outbox) *Manager[T] {
	return &Manager[T]{app: app, entity: c.Entity(), cache: c, outbox: outbox}
}

// Entity returns the managed entity type.
func (m *Manager[T]) Entity() domain.EntityType { return m.entity }

// Get returns the cached entity with id.
func (m *Manager[T]) Get(id string) (T, bool) { return m.cache.Get(id) }

// List returns every cached entity ordered by id.
func (m *Manager[T]) List() []T { return m.cache.Values() }

// Pending reports whether id is an unconfirmed local row.
func (m *Manager[T]) Pending(id string) bool { return domain.IsTempID(id) }

func (m *Manager[T]) action(op string) string { return string(m.entity) + "." + op }

// key returns the cache key for id. A temporary id the caller still holds
// is followed to its server id once the cache has been remapped. Write
// paths call it under the gate.
func (m *Manager[T]) key(id string) string {
	if _, ok := m.cache.Get(id); ok {
		return id
	}
	return m.outbox.Resolve(id)
}

// insert applies a create for v, whose id is ignored.
func (m *Manager[T]) insert(ctx context.Context, v T) (T, error) {
	var zero T
	row, err := payload(v)
	if err != nil {
		return zero, err
	}
	key := domain.NewIdempotencyKey()

	if !m.outbox.Deferred() {
		res, err := m.app.query(ctx, ports.Query{
			Entity:         m.entity,
			Op:             ports.OpInsert,
			Data:           []domain.Row{row},
			IdempotencyKey: key,
		})
		if err == nil {
			created, err := m.decode(res)
			if err != nil {
				return zero, err
			}
			m.cache.Set(created.RecordID(), created)
			return created, nil
		}
		if !domain.Retryable(err) {
			return zero, err
		}
		m.app.Logger.Info("remote unreachable, applying create locally",
			ports.String("entity", string(m.entity)), ports.Err(err))
	}

	tempID := domain.NewTempID()
	v = v.WithID(tempID)
	m.cache.Set(tempID, v)
	_, err = m.outbox.Submit(ctx, domain.Mutation{
		CorrelationID:  tempID,
		IdempotencyKey: key,
		Op:             domain.OpCreate,
		Entity:         m.entity,
		Payload:        row,
	})
	if err != nil {
		m.cache.Delete(tempID)
		return zero, err
	}
	return v, nil
}

// update replaces the entity identified by next.RecordID().
func (m *Manager[T]) update(ctx context.Context, next T) (T, error) {
	var zero T
	id := next.RecordID()
	prev, hadPrev := m.cache.Get(id)

	row, err := payload(next)
	if err != nil {
		return zero, err
	}
	key := domain.NewIdempotencyKey()

	if !m.outbox.Deferred() && !domain.IsTempID(id) {
		res, err := m.app.query(ctx, ports.Query{
			Entity:         m.entity,
			Op:             ports.OpUpdate,
			Filter:         map[string]any{"id": id},
			Data:           []domain.Row{row},
			IdempotencyKey: key,
		})
		if err == nil {
			updated, derr := m.decode(res)
			if derr != nil {
				m.app.Logger.Warn("cannot decode updated row, keeping local value",
					ports.String("entity", string(m.entity)), ports.String("id", id), ports.Err(derr))
				updated = next
			}
			m.cache.Set(id, updated)
			return updated, nil
		}
		if domain.KindOf(err) == domain.KindNotFound {
			m.cache.Delete(id)
			return zero, err
		}
		if !domain.Retryable(err) {
			return zero, err
		}
		m.app.Logger.Info("remote unreachable, applying update locally",
			ports.String("entity", string(m.entity)), ports.String("id", id), ports.Err(err))
	}

	m.cache.Set(id, next)
	_, err = m.outbox.Submit(ctx, domain.Mutation{
		CorrelationID:  domain.NewCorrelationID(),
		IdempotencyKey: key,
		Op:             domain.OpUpdate,
		Entity:         m.entity,
		TargetID:       id,
		Payload:        row,
	})
	if err != nil {
		if hadPrev {
			m.cache.Set(id, prev)
		} else {
			m.cache.Delete(id)
		}
		return zero, err
	}
	return next, nil
}

// remove deletes id. A row already gone remotely counts as deleted.
func (m *Manager[T]) remove(ctx context.Context, id string) error {
	prev, hadPrev := m.cache.Get(id)
	key := domain.NewIdempotencyKey()

	if !m.outbox.Deferred() && !domain.IsTempID(id) {
		_, err := m.app.query(ctx, ports.Query{
			Entity:         m.entity,
			Op:             ports.OpDelete,
			Filter:         map[string]any{"id": id},
			IdempotencyKey: key,
		})
		if err == nil || domain.KindOf(err) == domain.KindNotFound {
			m.cache.Delete(id)
			return nil
		}
		if !domain.Retryable(err) {
			return err
		}
		m.app.Logger.Info("remote unreachable, applying delete locally",
			ports.String("entity", string(m.entity)), ports.String("id", id), ports.Err(err))
	}

	m.cache.Delete(id)
	_, err := m.outbox.Submit(ctx, domain.Mutation{
		CorrelationID:  domain.NewCorrelationID(),
		IdempotencyKey: key,
		Op:             domain.OpDelete,
		Entity:         m.entity,
		TargetID:       id,
	})
	if err != nil {
		if hadPrev {
			m.cache.Set(id, prev)
		}
		return err
	}
	return nil
}

// Refresh replaces the cache with a remote snapshot. It is skipped while
// mutations are pending, since the snapshot would not reflect them yet.
// Unconfirmed local rows are kept.
func (m *Manager[T]) Refresh(ctx context.Context) error {
	if m.outbox.Deferred() {
		return nil
	}
	m.gate.Lock()
	defer m.gate.Unlock()
	if m.outbox.Deferred() {
		return nil
	}

	res, err := m.app.query(ctx, ports.Query{
		Entity: m.entity,
		Op:     ports.OpSelect,
		Order:  &ports.Order{Column: "id", Ascending: true},
	})
	if err != nil {
		return err
	}
	// A write to another entity may have been queued during the select.
	if m.outbox.Deferred() {
		return nil
	}
	fresh := make([]T, 0, len(res.Rows))
	for _, row := range res.Rows {
		v, err := domain.FromRow[T](row)
		if err != nil {
			m.app.Logger.Warn("skipping undecodable row",
				ports.String("entity", string(m.entity)), ports.Err(err))
			continue
		}
		fresh = append(fresh, v)
	}
	m.cache.Replace(fresh, func(v T) bool { return domain.IsTempID(v.RecordID()) })
	m.app.Logger.Debug("cache refreshed",
		ports.String("entity", string(m.entity)), ports.Int("rows", len(fresh)))
	return nil
}

// Confirm implements Reconciler. Only rows still present locally are
// refreshed so a row deleted behind a queued update is not resurrected.
func (m *Manager[T]) Confirm(mut domain.Mutation, row domain.Row, hasRow bool) {
	m.gate.Lock()
	defer m.gate.Unlock()

	if mut.Op == domain.OpDelete {
		m.cache.Delete(mut.TargetID)
		return
	}
	if !hasRow {
		return
	}
	v, err := domain.FromRow[T](row)
	if err != nil {
		m.app.Logger.Warn("cannot decode confirmed row",
			ports.String("entity", string(m.entity)), ports.Err(err))
		return
	}
	if _, ok := m.cache.Get(v.RecordID()); ok {
		m.cache.Set(v.RecordID(), v)
	}
}

// RemapID implements Reconciler.
func (m *Manager[T]) RemapID(oldID, newID string) int {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.cache.RemapID(oldID, newID)
}

// Reject implements Reconciler. A create that can never succeed takes its
// unconfirmed row with it; an update against a row the server no longer
// has removes the row locally.
func (m *Manager[T]) Reject(mut domain.Mutation, err error) {
	m.gate.Lock()
	defer m.gate.Unlock()

	switch {
	case mut.Op == domain.OpCreate:
		m.cache.Delete(mut.CorrelationID)
	case mut.Op == domain.OpUpdate && domain.KindOf(err) == domain.KindNotFound:
		m.cache.Delete(mut.TargetID)
	}
}

func (m *Manager[T]) decode(res ports.Result) (T, error) {
	var zero T
	row, ok := res.First()
	if !ok {
		return zero, fmt.Errorf("%w: %s write returned no row", domain.ErrRemoteValidation, m.entity)
	}
	return domain.FromRow[T](row)
}

// payload converts v to the row sent to the remote store, without its id.
func payload(v any) (domain.Row, error) {
	row, err := domain.ToRow(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	delete(row, "id")
	return row, nil
}
