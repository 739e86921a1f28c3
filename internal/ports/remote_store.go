package ports

import (
	"context"

	"github.com/bft-labs/washline/internal/domain"
)

// QueryOp is the remote operation a Query performs.
type QueryOp string

const (
	OpSelect QueryOp = "select"
	OpInsert QueryOp = "insert"
	OpUpdate QueryOp = "update"
	OpDelete QueryOp = "delete"
)

// Order sorts select results by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Query is a single request against a remote collection.
type Query struct {
	Entity domain.EntityType
	Op     QueryOp

	// Columns is a comma separated projection; empty means all columns.
	Columns string

	// Filter holds equality constraints, keyed by column.
	Filter map[string]any

	Order *Order
	Limit int

	// Data is the row (or rows) to insert, or the patch to apply on update.
	Data []domain.Row

	// IdempotencyKey lets the store deduplicate a replayed write.
	IdempotencyKey string
}

// Result carries the rows a query returned or affected.
type Result struct {
	Rows []domain.Row
}

// First returns the first row, if any.
func (r Result) First() (domain.Row, bool) {
	if len(r.Rows) == 0 {
		return nil, false
	}
	return r.Rows[0], true
}

// RemoteStore is the authoritative relational store.
//
// Failures wrap one of domain.ErrNetworkUnavailable, domain.ErrPermissionDenied,
// domain.ErrRemoteValidation or domain.ErrNotFound. Update and delete return
// ErrNotFound when no row matched the filter.
type RemoteStore interface {
	Query(ctx context.Context, q Query) (Result, error)
}

// Pinger checks whether the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
