package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers synthesized locally for rows the remote
// store has not confirmed yet.
const TempIDPrefix = "temp_"

// NewTempID returns a fresh temporary identifier.
func NewTempID() string {
	return TempIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsTempID reports whether id was synthesized locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// EntityType names a remote collection and its local cache namespace.
type EntityType string

const (
	EntityCustomer  EntityType = "customers"
	EntityPackage   EntityType = "packages"
	EntityContainer EntityType = "containers"
	EntityStock     EntityType = "stock"
)

// EntityTypes lists every entity type in dependency order.
var EntityTypes = []EntityType{EntityCustomer, EntityContainer, EntityPackage, EntityStock}

// Record is implemented by every cached entity. T is the entity's own value
// type so implementations can return modified copies.
type Record[T any] interface {
	// RecordID returns the row identifier.
	RecordID() string

	// WithID returns a copy carrying id.
	WithID(id string) T

	// Remap returns a copy with every reference to oldID replaced by newID,
	// and whether anything changed.
	Remap(oldID, newID string) (T, bool)
}

// Row is the loosely typed representation exchanged with the remote store.
type Row = map[string]any

// ToRow converts an entity to its row representation.
func ToRow(v any) (Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return row, nil
}

// FromRow decodes a row returned by the remote store into T.
func FromRow[T any](row Row) (T, error) {
	var v T
	b, err := json.Marshal(row)
	if err != nil {
		return v, fmt.Errorf("marshal row: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode row: %w", err)
	}
	return v, nil
}

func remapPtr(p *string, oldID, newID string) (*string, bool) {
	if p == nil || *p != oldID {
		return p, false
	}
	s := newID
	return &s, true
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
