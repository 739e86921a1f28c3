package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

var (
	_ ports.RemoteStore = (*RemoteStore)(nil)
	_ ports.Pinger      = (*RemoteStore)(nil)
)

// RemoteStore is an in-memory stand-in for the relational store. It assigns
// server ids, enforces optional unique columns, deduplicates writes on their
// idempotency key and can be switched offline.
type RemoteStore struct {
	mu       sync.Mutex
	tables   map[domain.EntityType][]domain.Row
	unique   map[domain.EntityType][]string
	seen     map[string]ports.Result
	applied  []ports.Query
	failNext []error
	offline  bool
	newID    func() string
}

// NewRemoteStore creates an empty, online store.
func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		tables: make(map[domain.EntityType][]domain.Row),
		unique: make(map[domain.EntityType][]string),
		seen:   make(map[string]ports.Result),
		newID:  uuid.NewString,
	}
}

// SetOnline toggles reachability.
func (s *RemoteStore) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = !online
}

// SetIDGenerator replaces the server id generator.
func (s *RemoteStore) SetIDGenerator(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = fn
}

// Unique declares columns whose values must be unique within entity.
func (s *RemoteStore) Unique(entity domain.EntityType, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[entity] = append(s.unique[entity], columns...)
}

// FailNext makes the next queries fail with the given errors, in order.
func (s *RemoteStore) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, errs...)
}

// Seed inserts rows as-is.
func (s *RemoteStore) Seed(entity domain.EntityType, rows ...domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[entity] = append(s.tables[entity], copyRow(r))
	}
}

// Rows returns a copy of every row in entity.
func (s *RemoteStore) Rows(entity domain.EntityType) []domain.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRows(s.tables[entity])
}

// Applied returns every write that changed state, in the order applied.
func (s *RemoteStore) Applied() []ports.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Query(nil), s.applied...)
}

// Ping fails while the store is offline.
func (s *RemoteStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return fmt.Errorf("%w: memory store offline", domain.ErrNetworkUnavailable)
	}
	return nil
}

// Query executes q.
func (s *RemoteStore) Query(ctx context.Context, q ports.Query) (ports.Result, error) {
	if err := ctx.Err(); err != nil {
		return ports.Result{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return ports.Result{}, fmt.Errorf("%w: memory store offline", domain.ErrNetworkUnavailable)
	}
	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return ports.Result{}, err
	}
	if q.IdempotencyKey != "" && q.Op != ports.OpSelect {
		if res, ok := s.seen[q.IdempotencyKey]; ok {
			return ports.Result{Rows: copyRows(res.Rows)}, nil
		}
	}

	var (
		res ports.Result
		err error
	)
	switch q.Op {
	case ports.OpSelect:
		return s.selectRows(q), nil
	case ports.OpInsert:
		res, err = s.insert(q)
	case ports.OpUpdate:
		res, err = s.update(q)
	case ports.OpDelete:
		res, err = s.delete(q)
	default:
		return ports.Result{}, fmt.Errorf("%w: unknown op %q", domain.ErrRemoteValidation, q.Op)
	}
	if err != nil {
		return ports.Result{}, err
	}

	s.applied = append(s.applied, q)
	if q.IdempotencyKey != "" {
		s.seen[q.IdempotencyKey] = ports.Result{Rows: copyRows(res.Rows)}
	}
	return ports.Result{Rows: copyRows(res.Rows)}, nil
}

func (s *RemoteStore) selectRows(q ports.Query) ports.Result {
	var out []domain.Row
	for _, r := range s.tables[q.Entity] {
		if matches(r, q.Filter) {
			out = append(out, project(r, q.Columns))
		}
	}
	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][col]), fmt.Sprint(out[j][col])
			if asc {
				return a < b
			}
			return a > b
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return ports.Result{Rows: out}
}

func (s *RemoteStore) insert(q ports.Query) (ports.Result, error) {
	if len(q.Data) == 0 {
		return ports.Result{}, fmt.Errorf("%w: insert without data", domain.ErrRemoteValidation)
	}
	var out []domain.Row
	for _, d := range q.Data {
		r := copyRow(d)
		if id, _ := r["id"].(string); id == "" {
			r["id"] = s.newID()
		}
		if err := s.checkUnique(q.Entity, r, ""); err != nil {
			return ports.Result{}, err
		}
		s.tables[q.Entity] = append(s.tables[q.Entity], r)
		out = append(out, copyRow(r))
	}
	return ports.Result{Rows: out}, nil
}

func (s *RemoteStore) update(q ports.Query) (ports.Result, error) {
	if len(q.Data) == 0 {
		return ports.Result{}, fmt.Errorf("%w: update without data", domain.ErrRemoteValidation)
	}
	patch := q.Data[0]
	var out []domain.Row
	for i, r := range s.tables[q.Entity] {
		if !matches(r, q.Filter) {
			continue
		}
		next := copyRow(r)
		for k, v := range patch {
			if k == "id" {
				continue
			}
			next[k] = v
		}
		if err := s.checkUnique(q.Entity, next, fmt.Sprint(r["id"])); err != nil {
			return ports.Result{}, err
		}
		s.tables[q.Entity][i] = next
		out = append(out, copyRow(next))
	}
	if len(out) == 0 {
		return ports.Result{}, fmt.Errorf("%w: %s %v", domain.ErrNotFound, q.Entity, q.Filter)
	}
	return ports.Result{Rows: out}, nil
}

func (s *RemoteStore) delete(q ports.Query) (ports.Result, error) {
	var kept, out []domain.Row
	for _, r := range s.tables[q.Entity] {
		if matches(r, q.Filter) {
			out = append(out, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(out) == 0 {
		return ports.Result{}, fmt.Errorf("%w: %s %v", domain.ErrNotFound, q.Entity, q.Filter)
	}
	s.tables[q.Entity] = kept
	return ports.Result{Rows: out}, nil
}

func (s *RemoteStore) checkUnique(entity domain.EntityType, r domain.Row, selfID string) error {
	for _, col := range s.unique[entity] {
		v, ok := r[col]
		if !ok || v == nil {
			continue
		}
		for _, other := range s.tables[entity] {
			if fmt.Sprint(other["id"]) == selfID || fmt.Sprint(other["id"]) == fmt.Sprint(r["id"]) {
				continue
			}
			if fmt.Sprint(other[col]) == fmt.Sprint(v) {
				return fmt.Errorf("%w: duplicate %s %v", domain.ErrRemoteValidation, col, v)
			}
		}
	}
	return nil
}

func matches(r domain.Row, filter map[string]any) bool {
	for k, want := range filter {
		if fmt.Sprint(r[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func project(r domain.Row, columns string) domain.Row {
	if columns == "" || columns == "*" {
		return copyRow(r)
	}
	out := make(domain.Row)
	for _, c := range strings.Split(columns, ",") {
		c = strings.TrimSpace(c)
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRow(r domain.Row) domain.Row {
	out := make(domain.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func copyRows(rows []domain.Row) []domain.Row {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}
