package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

var (
	_ ports.RemoteStore = (*RemoteStore)(nil)
	_ ports.Pinger      = (*RemoteStore)(nil)
)

// TokenColumn holds the client idempotency token on every table.
const TokenColumn = "client_token"

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteStore implements ports.RemoteStore with generated SQL.
type RemoteStore struct {
	q      Querier
	logger ports.Logger
}

// New creates a remote store running queries through q. Pass a pool.
func New(q Querier, logger ports.Logger) *RemoteStore {
	return &RemoteStore{q: q, logger: logger}
}

// Query executes q.
func (s *RemoteStore) Query(ctx context.Context, q ports.Query) (ports.Result, error) {
	sql, args, err := buildSQL(q)
	if err != nil {
		return ports.Result{}, err
	}

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return ports.Result{}, classify(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return ports.Result{}, classify(err)
	}

	out := make([]domain.Row, len(maps))
	for i, m := range maps {
		out[i] = normalize(m)
	}
	if (q.Op == ports.OpUpdate || q.Op == ports.OpDelete) && len(out) == 0 {
		return ports.Result{}, fmt.Errorf("%w: %s %v", domain.ErrNotFound, q.Entity, q.Filter)
	}
	return ports.Result{Rows: out}, nil
}

// Ping checks the connection when the querier supports it.
func (s *RemoteStore) Ping(ctx context.Context) error {
	p, ok := s.q.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// buildSQL renders q as a parameterized statement. Identifiers are quoted
// with pgx.Identifier; values are always bound.
func buildSQL(q ports.Query) (string, []any, error) {
	table := ident(string(q.Entity))
	var (
		b    strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	where := func() {
		keys := sortedKeys(q.Filter)
		for i, k := range keys {
			if i == 0 {
				b.WriteString(" WHERE ")
			} else {
				b.WriteString(" AND ")
			}
			v := q.Filter[k]
			if v == nil {
				b.WriteString(ident(k) + " IS NULL")
				continue
			}
			b.WriteString(ident(k) + " = " + bind(v))
		}
	}

	switch q.Op {
	case ports.OpSelect:
		b.WriteString("SELECT " + columns(q.Columns) + " FROM " + table)
		where()
		if q.Order != nil {
			dir := "DESC"
			if q.Order.Ascending {
				dir = "ASC"
			}
			b.WriteString(" ORDER BY " + ident(q.Order.Column) + " " + dir)
		}
		if q.Limit > 0 {
			b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
		}

	case ports.OpInsert:
		if len(q.Data) == 0 {
			return "", nil, fmt.Errorf("%w: insert without data", domain.ErrRemoteValidation)
		}
		rows := q.Data
		if q.IdempotencyKey != "" {
			rows = withToken(rows, q.IdempotencyKey)
		}
		cols := unionKeys(rows)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = ident(c)
		}
		b.WriteString("INSERT INTO " + table + " (" + strings.Join(quoted, ", ") + ") VALUES ")
		for i, r := range rows {
			if i > 0 {
				b.WriteString(", ")
			}
			vals := make([]string, len(cols))
			for j, c := range cols {
				v, ok := r[c]
				if !ok {
					vals[j] = "DEFAULT"
					continue
				}
				vals[j] = bind(v)
			}
			b.WriteString("(" + strings.Join(vals, ", ") + ")")
		}
		if q.IdempotencyKey != "" {
			// A no-op update makes RETURNING yield the row stored by the
			// first delivery.
			tok := ident(TokenColumn)
			b.WriteString(" ON CONFLICT (" + tok + ") DO UPDATE SET " + tok + " = EXCLUDED." + tok)
		}
		b.WriteString(" RETURNING *")

	case ports.OpUpdate:
		if len(q.Data) == 0 || len(q.Data[0]) == 0 {
			return "", nil, fmt.Errorf("%w: update without data", domain.ErrRemoteValidation)
		}
		if len(q.Filter) == 0 {
			return "", nil, fmt.Errorf("%w: update without filter", domain.ErrRemoteValidation)
		}
		b.WriteString("UPDATE " + table + " SET ")
		for i, k := range sortedKeys(q.Data[0]) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident(k) + " = " + bind(q.Data[0][k]))
		}
		where()
		b.WriteString(" RETURNING *")

	case ports.OpDelete:
		if len(q.Filter) == 0 {
			return "", nil, fmt.Errorf("%w: delete without filter", domain.ErrRemoteValidation)
		}
		b.WriteString("DELETE FROM " + table)
		where()
		b.WriteString(" RETURNING *")

	default:
		return "", nil, fmt.Errorf("%w: unknown op %q", domain.ErrRemoteValidation, q.Op)
	}
	return b.String(), args, nil
}

// classify maps a driver error to the error taxonomy.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501", strings.HasPrefix(pgErr.Code, "28"):
			return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
		case strings.HasPrefix(pgErr.Code, "22"),
			strings.HasPrefix(pgErr.Code, "23"),
			strings.HasPrefix(pgErr.Code, "42"):
			return fmt.Errorf("%w: %v", domain.ErrRemoteValidation, err)
		}
		return fmt.Errorf("postgres: %w", err)
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	case pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	case errors.As(err, &connectErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	return fmt.Errorf("postgres: %w", err)
}

// normalize converts driver values into JSON friendly ones.
func normalize(m map[string]any) domain.Row {
	out := make(domain.Row, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case [16]byte:
			out[k] = uuid.UUID(t).String()
		case pgtype.Numeric:
			f, err := t.Float64Value()
			if err != nil || !f.Valid {
				out[k] = nil
				continue
			}
			out[k] = f.Float64
		default:
			out[k] = v
		}
	}
	return out
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columns(cols string) string {
	if cols == "" || cols == "*" {
		return "*"
	}
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = ident(strings.TrimSpace(p))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionKeys(rows []domain.Row) []string {
	seen := make(map[string]any)
	for _, r := range rows {
		for k := range r {
			seen[k] = nil
		}
	}
	return sortedKeys(seen)
}

func withToken(rows []domain.Row, key string) []domain.Row {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		c := make(domain.Row, len(r)+1)
		for k, v := range r {
			c[k] = v
		}
		tok := key
		if len(rows) > 1 {
			tok = key + ":" + strconv.Itoa(i)
		}
		c[TokenColumn] = tok
		out[i] = c
	}
	return out
}
