package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
	"github.com/bft-labs/washline/internal/queue"
)

// DefaultRetryInterval is how often Run retries a non-empty queue while
// connectivity is reported as present.
const DefaultRetryInterval = 30 * time.Second

// ErrDrainInProgress is returned by Drain when another drain is running.
var ErrDrainInProgress = errors.New("washline: drain already in progress")

// errLocalPersist stops a drain when the queue itself could not be written.
// The mutation stays queued and its idempotency key makes the replay safe.
var errLocalPersist = errors.New("washline: local persistence failed")

// Reconciler applies replay outcomes to the cache of one entity type.
// Managers implement it; the coordinator never touches caches directly.
type Reconciler interface {
	Entity() domain.EntityType

	// Confirm applies the authoritative row returned for a replayed mutation.
	Confirm(m domain.Mutation, row domain.Row, hasRow bool)

	// RemapID rewrites cached references to oldID.
	RemapID(oldID, newID string) int

	// Reject rolls back local state for a mutation that was dropped.
	Reject(m domain.Mutation, err error)
}

// EventHandler receives coordinator events. Calls are synchronous.
type EventHandler interface {
	StateEmitter
	OnReplayed(m domain.Mutation)
	OnDropped(m domain.Mutation, err error)
	OnDrainComplete(report DrainReport)
}

// DrainReport summarizes one drain cycle.
type DrainReport struct {
	Replayed    int
	Dropped     int
	Remapped    int
	Remaining   int
	Interrupted bool
}

// CoordinatorConfig configures the sync coordinator.
type CoordinatorConfig struct {
	// CallTimeout bounds each replayed remote call.
	CallTimeout time.Duration

	// MaxAttempts drops a mutation after this many network failures.
	// Zero retries forever.
	MaxAttempts int

	// RetryInterval re-attempts a non-empty queue while online.
	RetryInterval time.Duration
}

// Coordinator owns the offline queue and drains it against the remote
// store whenever connectivity is present. Only one drain runs at a time.
type Coordinator struct {
	config CoordinatorConfig
	queue  *queue.Queue
	remote ports.RemoteStore
	logger ports.Logger
	events EventHandler
	state  *stateMachine

	online  atomic.Bool
	drainMu sync.Mutex
	wake    chan struct{}

	recMu       sync.RWMutex
	reconcilers map[domain.EntityType]Reconciler
	order       []Reconciler

	// remapMu orders Submit against queue remaps: a mutation is either
	// enqueued before a temp id is confirmed and rewritten with the rest of
	// the queue, or rewritten through confirmed on the way in.
	remapMu   sync.Mutex
	confirmed map[string]string
}

// NewCoordinator creates a coordinator in the Idle state, assuming offline
// until told otherwise.
func NewCoordinator(cfg CoordinatorConfig, q *queue.Queue, remote ports.RemoteStore, logger ports.Logger, events EventHandler) *Coordinator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	var emitter StateEmitter
	if events != nil {
		emitter = events
	}
	return &Coordinator{
		config:      cfg,
		queue:       q,
		remote:      remote,
		logger:      logger,
		events:      events,
		state:       newStateMachine(logger, emitter),
		wake:        make(chan struct{}, 1),
		reconcilers: make(map[domain.EntityType]Reconciler),
		confirmed:   make(map[string]string),
	}
}

// Register attaches the reconciler for its entity type.
func (c *Coordinator) Register(r Reconciler) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if _, ok := c.reconcilers[r.Entity()]; !ok {
		c.order = append(c.order, r)
	}
	c.reconcilers[r.Entity()] = r
}

// State returns the current sync state.
func (c *Coordinator) State() SyncState { return c.state.State() }

// Online reports the last connectivity signal.
func (c *Coordinator) Online() bool { return c.online.Load() }

// Pending returns the number of queued mutations.
func (c *Coordinator) Pending() int { return c.queue.Len() }

// PendingMutations returns a copy of the queued mutations in replay order.
func (c *Coordinator) PendingMutations() []domain.Mutation { return c.queue.Snapshot() }

// Deferred reports whether new writes must go through the queue: either
// the remote store is unreachable or earlier mutations are still waiting,
// and a direct write would overtake them.
func (c *Coordinator) Deferred() bool {
	return !c.online.Load() || c.queue.Len() > 0
}

// Resolve returns the server id a confirmed temporary id was replaced
// with, or id itself.
func (c *Coordinator) Resolve(id string) string {
	if !domain.IsTempID(id) {
		return id
	}
	c.remapMu.Lock()
	defer c.remapMu.Unlock()
	if serverID, ok := c.confirmed[id]; ok {
		return serverID
	}
	return id
}

// Submit appends m to the queue and nudges the drain loop. References to
// temporary ids confirmed earlier are rewritten first.
func (c *Coordinator) Submit(ctx context.Context, m domain.Mutation) (string, error) {
	c.remapMu.Lock()
	for tempID, serverID := range c.confirmed {
		m.Remap(tempID, serverID)
	}
	id, err := c.queue.Enqueue(ctx, m)
	c.remapMu.Unlock()
	if err != nil {
		return "", err
	}
	c.logger.Info("mutation queued",
		ports.String("correlation_id", id),
		ports.String("entity", string(m.Entity)),
		ports.String("op", string(m.Op)),
		ports.Int("pending", c.queue.Len()),
	)
	if c.online.Load() {
		c.kick()
	}
	return id, nil
}

// SetOnline records a connectivity signal. Going online wakes the drain
// loop; going offline lets an in-flight drain stop after its current call.
func (c *Coordinator) SetOnline(online bool) {
	prev := c.online.Swap(online)
	if prev != online {
		c.logger.Info("connectivity changed", ports.Bool("online", online))
	}
	if online {
		c.kick()
	}
}

func (c *Coordinator) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run subscribes to conn and drains on every connectivity-restored signal
// until ctx is cancelled. A queue restored from storage is drained right
// away when conn is already online.
func (c *Coordinator) Run(ctx context.Context, conn ports.Connectivity) error {
	unsubscribe := conn.Subscribe(c.SetOnline)
	defer unsubscribe()

	c.SetOnline(conn.Online())

	ticker := time.NewTicker(c.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		case <-ticker.C:
			if c.queue.Len() == 0 {
				continue
			}
		}
		if !c.online.Load() {
			continue
		}
		if _, err := c.Drain(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("drain failed", ports.Err(err))
		}
	}
}

// Drain replays queued mutations in FIFO order until the queue is empty,
// connectivity is lost or a network failure interrupts it.
func (c *Coordinator) Drain(ctx context.Context) (DrainReport, error) {
	if !c.drainMu.TryLock() {
		return DrainReport{}, ErrDrainInProgress
	}
	defer c.drainMu.Unlock()

	var report DrainReport
	if !c.online.Load() || c.queue.Len() == 0 {
		report.Remaining = c.queue.Len()
		return report, nil
	}

	if err := c.state.TransitionTo(SyncDraining, "connectivity present"); err != nil {
		return report, err
	}
	reason := "queue drained"
	defer func() {
		_ = c.state.TransitionTo(SyncIdle, reason)
	}()

	start := time.Now()
	var drainErr error
	for {
		if err := ctx.Err(); err != nil {
			reason, drainErr = "context cancelled", err
			report.Interrupted = true
			break
		}
		if !c.online.Load() {
			reason = "connectivity lost"
			report.Interrupted = true
			break
		}
		m, ok := c.queue.PeekNext()
		if !ok {
			break
		}

		remapped, err := c.replay(ctx, m)
		report.Remapped += remapped
		if err == nil {
			report.Replayed++
			if c.events != nil {
				c.events.OnReplayed(m)
			}
			continue
		}

		if errors.Is(err, errLocalPersist) {
			reason, drainErr = "local persistence failed", err
			report.Interrupted = true
			break
		}

		if domain.Retryable(err) {
			attempts, aerr := c.queue.RecordAttempt(ctx, m.CorrelationID)
			if aerr != nil {
				c.logger.Error("failed to record attempt", ports.Err(aerr))
			}
			if c.config.MaxAttempts > 0 && attempts >= c.config.MaxAttempts {
				if derr := c.drop(ctx, m, fmt.Errorf("gave up after %d attempts: %w", attempts, err)); derr != nil {
					reason, drainErr = "local persistence failed", derr
					report.Interrupted = true
					break
				}
				report.Dropped++
				continue
			}
			c.logger.Warn("remote unreachable, pausing drain",
				ports.String("correlation_id", m.CorrelationID),
				ports.Int("attempts", attempts),
				ports.Err(err))
			reason = "network unavailable"
			report.Interrupted = true
			break
		}

		// Retrying cannot help; blocking here would starve everything behind it.
		if derr := c.drop(ctx, m, err); derr != nil {
			reason, drainErr = "local persistence failed", derr
			report.Interrupted = true
			break
		}
		report.Dropped++
	}

	report.Remaining = c.queue.Len()
	c.logger.Info("drain finished",
		ports.Int("replayed", report.Replayed),
		ports.Int("dropped", report.Dropped),
		ports.Int("remaining", report.Remaining),
		ports.Bool("interrupted", report.Interrupted),
		ports.Duration("duration", time.Since(start)),
	)
	if c.events != nil {
		c.events.OnDrainComplete(report)
	}
	return report, drainErr
}

// replay submits m with its current payload and applies the outcome.
func (c *Coordinator) replay(ctx context.Context, m domain.Mutation) (int, error) {
	q := queryFor(m)

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	res, err := c.remote.Query(callCtx, q)
	timedOut := callCtx.Err() != nil
	cancel()

	if err != nil {
		switch {
		case m.Op == domain.OpDelete && domain.KindOf(err) == domain.KindNotFound:
			// Already gone remotely: resolved.
		case timedOut && domain.KindOf(err) == domain.KindUnknown:
			return 0, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
		default:
			return 0, err
		}
	}

	row, hasRow := res.First()
	remapped := 0
	if m.Op == domain.OpCreate && hasRow {
		serverID, _ := row["id"].(string)
		if serverID != "" && serverID != m.CorrelationID {
			n, err := c.remap(ctx, m.CorrelationID, serverID)
			if err != nil {
				return 0, err
			}
			remapped = n
		}
	}

	if rec := c.reconciler(m.Entity); rec != nil {
		rec.Confirm(m, row, hasRow)
	}

	if err := c.queue.RemoveByCorrelationID(ctx, m.CorrelationID); err != nil {
		return remapped, fmt.Errorf("%w: %v", errLocalPersist, err)
	}
	return remapped, nil
}

// remap rewrites oldID to newID in the remaining queue and every cache.
func (c *Coordinator) remap(ctx context.Context, oldID, newID string) (int, error) {
	c.remapMu.Lock()
	c.confirmed[oldID] = newID
	n, err := c.queue.RemapReferences(ctx, oldID, newID)
	c.remapMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errLocalPersist, err)
	}

	c.recMu.RLock()
	recs := append([]Reconciler(nil), c.order...)
	c.recMu.RUnlock()
	for _, r := range recs {
		n += r.RemapID(oldID, newID)
	}

	c.logger.Info("temporary id confirmed",
		ports.String("temp_id", oldID),
		ports.String("server_id", newID),
		ports.Int("references", n),
	)
	return n, nil
}

// drop removes a mutation that can never succeed and leaves a
// reconciliation note in the log.
func (c *Coordinator) drop(ctx context.Context, m domain.Mutation, cause error) error {
	c.logger.Warn("reconciliation: dropping queued mutation",
		ports.String("correlation_id", m.CorrelationID),
		ports.String("entity", string(m.Entity)),
		ports.String("op", string(m.Op)),
		ports.String("target_id", m.TargetID),
		ports.String("kind", domain.KindOf(cause).String()),
		ports.Err(cause),
	)
	if rec := c.reconciler(m.Entity); rec != nil {
		rec.Reject(m, cause)
	}
	if err := c.queue.RemoveByCorrelationID(ctx, m.CorrelationID); err != nil {
		return fmt.Errorf("%w: %v", errLocalPersist, err)
	}
	if c.events != nil {
		c.events.OnDropped(m, cause)
	}
	return nil
}

func (c *Coordinator) reconciler(entity domain.EntityType) Reconciler {
	c.recMu.RLock()
	defer c.recMu.RUnlock()
	return c.reconcilers[entity]
}

// queryFor translates a queued mutation into a remote query.
func queryFor(m domain.Mutation) ports.Query {
	data := make(domain.Row, len(m.Payload))
	for k, v := range m.Payload {
		if k == "id" {
			continue
		}
		data[k] = v
	}

	q := ports.Query{Entity: m.Entity, IdempotencyKey: m.IdempotencyKey}
	switch m.Op {
	case domain.OpCreate:
		q.Op = ports.OpInsert
		q.Data = []domain.Row{data}
	case domain.OpUpdate:
		q.Op = ports.OpUpdate
		q.Filter = map[string]any{"id": m.TargetID}
		q.Data = []domain.Row{data}
	case domain.OpDelete:
		q.Op = ports.OpDelete
		q.Filter = map[string]any{"id": m.TargetID}
	}
	return q
}
