// Package postgrest implements the remote store against a PostgREST
// endpoint such as the one Supabase exposes under /rest/v1.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bft-labs/washline/internal/domain"
	"github.com/bft-labs/washline/internal/ports"
)

var (
	_ ports.RemoteStore = (*RemoteStore)(nil)
	_ ports.Pinger      = (*RemoteStore)(nil)
)

const (
	restPath = "/rest/v1/"

	// TokenColumn holds the client idempotency token on every table.
	TokenColumn = "client_token"
)

// Config configures the PostgREST connection.
type Config struct {
	// URL is the project URL, e.g. https://xyz.supabase.co.
	URL string

	// APIKey is sent as the apikey header and, without an access token,
	// as the bearer token.
	APIKey string

	// AccessToken is the signed-in user's JWT.
	AccessToken string
}

// RemoteStore implements ports.RemoteStore over HTTP.
type RemoteStore struct {
	client  ports.HTTPClient
	baseURL string
	apiKey  string
	logger  ports.Logger

	mu    sync.RWMutex
	token string
}

// New creates a PostgREST remote store.
func New(client ports.HTTPClient, cfg Config, logger ports.Logger) *RemoteStore {
	return &RemoteStore{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/") + restPath,
		apiKey:  cfg.APIKey,
		token:   cfg.AccessToken,
		logger:  logger,
	}
}

// SetAccessToken replaces the bearer token, e.g. after a session refresh.
func (s *RemoteStore) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Query executes q.
func (s *RemoteStore) Query(ctx context.Context, q ports.Query) (ports.Result, error) {
	params := url.Values{}
	for k, v := range q.Filter {
		params.Set(k, filterValue(v))
	}

	var (
		method string
		body   any
		prefer = []string{"return=representation"}
	)
	switch q.Op {
	case ports.OpSelect:
		method = http.MethodGet
		cols := q.Columns
		if cols == "" {
			cols = "*"
		}
		params.Set("select", cols)
		if q.Order != nil {
			dir := "desc"
			if q.Order.Ascending {
				dir = "asc"
			}
			params.Set("order", q.Order.Column+"."+dir)
		}
		if q.Limit > 0 {
			params.Set("limit", strconv.Itoa(q.Limit))
		}
		prefer = nil
	case ports.OpInsert:
		if len(q.Data) == 0 {
			return ports.Result{}, fmt.Errorf("%w: insert without data", domain.ErrRemoteValidation)
		}
		method = http.MethodPost
		rows := q.Data
		if q.IdempotencyKey != "" {
			rows = withToken(q.Data, q.IdempotencyKey)
			params.Set("on_conflict", TokenColumn)
			prefer = append(prefer, "resolution=merge-duplicates")
		}
		body = rows
	case ports.OpUpdate:
		if len(q.Data) == 0 {
			return ports.Result{}, fmt.Errorf("%w: update without data", domain.ErrRemoteValidation)
		}
		if len(q.Filter) == 0 {
			return ports.Result{}, fmt.Errorf("%w: update without filter", domain.ErrRemoteValidation)
		}
		method = http.MethodPatch
		body = q.Data[0]
	case ports.OpDelete:
		if len(q.Filter) == 0 {
			return ports.Result{}, fmt.Errorf("%w: delete without filter", domain.ErrRemoteValidation)
		}
		method = http.MethodDelete
	default:
		return ports.Result{}, fmt.Errorf("%w: unknown op %q", domain.ErrRemoteValidation, q.Op)
	}

	rows, err := s.do(ctx, method, string(q.Entity), params, body, prefer, q.IdempotencyKey)
	if err != nil {
		return ports.Result{}, err
	}
	if (q.Op == ports.OpUpdate || q.Op == ports.OpDelete) && len(rows) == 0 {
		return ports.Result{}, fmt.Errorf("%w: %s %v", domain.ErrNotFound, q.Entity, q.Filter)
	}
	return ports.Result{Rows: rows}, nil
}

// Ping issues a minimal select to check reachability.
func (s *RemoteStore) Ping(ctx context.Context) error {
	params := url.Values{"select": {"id"}, "limit": {"1"}}
	_, err := s.do(ctx, http.MethodGet, string(domain.EntityCustomer), params, nil, nil, "")
	if err != nil && domain.KindOf(err) == domain.KindNetworkUnavailable {
		return err
	}
	// Any HTTP answer means the server is reachable.
	return nil
}

func (s *RemoteStore) do(ctx context.Context, method, entity string, params url.Values, body any, prefer []string, idempotencyKey string) ([]domain.Row, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", domain.ErrValidation, err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := s.baseURL + url.PathEscape(entity)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.bearer())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetworkUnavailable, method, entity, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode/100 != 2 {
		err := classify(resp.StatusCode, respBody)
		s.logger.Debug("postgrest request failed",
			ports.String("method", method),
			ports.String("entity", entity),
			ports.Int("status", resp.StatusCode),
			ports.Err(err))
		return nil, err
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	var rows []domain.Row
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func (s *RemoteStore) bearer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" {
		return s.token
	}
	return s.apiKey
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// classify maps an HTTP failure to the error taxonomy.
func classify(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, e.Code == "42501":
		kind = domain.ErrPermissionDenied
	case status == http.StatusNotFound, e.Code == "PGRST116":
		kind = domain.ErrNotFound
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		kind = domain.ErrNetworkUnavailable
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		kind = domain.ErrRemoteValidation
	default:
		return &StatusError{Status: status, Code: e.Code, Message: msg}
	}
	return fmt.Errorf("%w: %w", kind, &StatusError{Status: status, Code: e.Code, Message: msg})
}

// StatusError carries the raw HTTP failure.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, e.Message)
}

// AsStatusError extracts the HTTP failure from err.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	ok := errors.As(err, &se)
	return se, ok
}

func filterValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "is.null"
	case bool:
		return "is." + strconv.FormatBool(t)
	case []string:
		quoted := make([]string, len(t))
		for i, s := range t {
			quoted[i] = strconv.Quote(s)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	default:
		return "eq." + fmt.Sprint(v)
	}
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
