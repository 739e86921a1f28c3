package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of write a queued mutation replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Mutation is a durable write intent recorded while the remote store was
// unreachable. For creates CorrelationID is the temporary id of the row.
type Mutation struct {
	CorrelationID  string     `json:"correlation_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Op             Operation  `json:"op"`
	Entity         EntityType `json:"entity"`
	TargetID       string     `json:"target_id,omitempty"`
	Payload        Row        `json:"payload,omitempty"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	Attempts       int        `json:"attempts"`
}

// NewCorrelationID returns an id for update and delete mutations.
func NewCorrelationID() string {
	return "mut_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewIdempotencyKey returns a token the remote store deduplicates on.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Remap rewrites every reference to oldID in the target and payload.
// CorrelationID is left alone: it identifies the queue entry itself.
func (m *Mutation) Remap(oldID, newID string) bool {
	changed := false
	if m.TargetID == oldID {
		m.TargetID = newID
		changed = true
	}
	if remapValue(m.Payload, oldID, newID) {
		changed = true
	}
	return changed
}

// remapValue walks decoded JSON and replaces string values equal to oldID.
func remapValue(v any, oldID, newID string) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok {
				if s == oldID {
					t[k] = newID
					changed = true
				}
				continue
			}
			if remapValue(val, oldID, newID) {
				changed = true
			}
		}
	case []any:
		for i, val := range t {
			if s, ok := val.(string); ok {
				if s == oldID {
					t[i] = newID
					changed = true
				}
				continue
			}
			if remapValue(val, oldID, newID) {
				changed = true
			}
		}
	}
	return changed
}
