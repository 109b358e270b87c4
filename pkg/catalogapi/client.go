// Package catalogapi is the HTTP client for the movie-catalog REST API.
//
// Only the calls the back-office core depends on are exposed: record
// load/update/delete, paginated entity search, movie relation add/remove and
// login. Mutating calls carry the bearer credential of an explicit
// [TokenSource]; when none is available the call fails locally with an
// [apperror.PermissionError] and nothing is sent.
//
// Search pages are cached for a short TTL and the cache is flushed by any
// successful mutation.
package catalogapi

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
	"time"

	"moviecat-admin/internal/dto"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/apperror"
	"moviecat-admin/pkg/entity"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "CATALOGAPI"

// TokenSource supplies the bearer credential. *session.Session implements it.
type TokenSource interface {
	Token() (string, bool)
}

type noTokens struct{}

func (noTokens) Token() (string, bool) { return "", false }

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	cache      *cache.Cache
	logger     logger.ILogger
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSearchCacheTTL sets how long search pages are reused. Zero disables the cache.
func WithSearchCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}

// NewClient creates a client for baseURL, which includes the API prefix
// (e.g. "http://localhost:3000/api") and no trailing slash.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: noTokens{},
		cache:  cache.New(30*time.Second, time.Minute),
		logger: logger.NewNopLogger(),
		tracer: otel.Tracer("moviecat-admin/catalogapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRecord loads GET /{kind}/{id}. A 404 becomes an apperror.NotFoundError.
func (c *Client) GetRecord(ctx context.Context, kind entity.Kind, id string) (*entity.Record, error) {
	var raw json.RawMessage
	err := c.call(ctx, http.MethodGet, recordPath(kind, id), nil, nil, false, &raw)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &apperror.NotFoundError{Kind: kind.String(), ID: id}
		}
		return nil, err
	}
	return entity.DecodeRecord(kind, raw)
}

// MovieActors loads the role-bearing actor associations of a movie.
func (c *Client) MovieActors(ctx context.Context, movieId string) ([]entity.RelatedEntity, error) {
	var items []entity.RelatedEntity
	if err := c.call(ctx, http.MethodGet, relationPath(movieId, entity.RelationActors), nil, nil, false, &items); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, &apperror.NotFoundError{Kind: entity.KindMovie.String(), ID: movieId}
		}
		return nil, err
	}
	return items, nil
}

// UpdateFields sends a partial field map with PUT /{kind}/{id}.
func (c *Client) UpdateFields(ctx context.Context, kind entity.Kind, id string, fields map[string]any) (*entity.Record, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPut, recordPath(kind, id), nil, fields, true, &raw); err != nil {
		return nil, err
	}
	c.flushSearchCache()
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	rec, err := entity.DecodeRecord(kind, raw)
	if err != nil {
		// The update went through; a body we cannot read is not a failure.
		c.logger.Warn(module, "Unreadable update response", map[string]interface{}{"kind": kind, "id": id, "error": err.Error()})
		return nil, nil
	}
	return rec, nil
}

// Filter searches GET /{kind}/filter?name=&page=&per_page=.
func (c *Client) Filter(ctx context.Context, kind entity.Kind, term string, page, perPage int) (*dto.FilterResponse, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	if term = strings.TrimSpace(term); term != "" {
		query.Set("name", term)
	}
	query.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}

	cacheKey := fmt.Sprintf("%s:%s:%d:%d", kind, term, page, perPage)
	if c.cache != nil {
		if val, ok := c.cache.Get(cacheKey); ok {
			return copyPage(val.(*dto.FilterResponse)), nil
		}
	}

	var result dto.FilterResponse
	if err := c.call(ctx, http.MethodGet, "/"+kind.String()+"/filter", query, nil, false, &result); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, copyPage(&result), cache.DefaultExpiration)
	}
	return &result, nil
}

// AddRelation relates childId to the movie through rel. Role is only sent for actors.
func (c *Client) AddRelation(ctx context.Context, rel entity.RelationKind, movieId, childId, role string) error {
	body := dto.NewRelationRequest(rel, childId, role)
	if err := c.call(ctx, http.MethodPost, relationPath(movieId, rel), nil, body, true, nil); err != nil {
		return err
	}
	c.flushSearchCache()
	return nil
}

func (c *Client) RemoveRelation(ctx context.Context, rel entity.RelationKind, movieId, childId string) error {
	path := relationPath(movieId, rel) + "/" + url.PathEscape(childId)
	if err := c.call(ctx, http.MethodDelete, path, nil, nil, true, nil); err != nil {
		return err
	}
	c.flushSearchCache()
	return nil
}

func (c *Client) DeleteRecord(ctx context.Context, kind entity.Kind, id string) error {
	if err := c.call(ctx, http.MethodDelete, recordPath(kind, id), nil, nil, true, nil); err != nil {
		return err
	}
	c.flushSearchCache()
	return nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var res dto.LoginResponse
	req := dto.LoginRequest{Username: username, Password: password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, req, false, &res); err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", &apperror.NetworkError{Method: http.MethodPost, Path: "/auth/login", Status: http.StatusOK, Message: "login response carried no token"}
	}
	return res.AccessToken, nil
}

// call performs one traced request and decodes a 2xx body into target.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, auth bool, target any) error {
	ctx, span := c.tracer.Start(ctx, "catalogapi "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("catalog.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.doRequest(ctx, method, path, query, body, auth)
	if err == nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		err = decodeResponse(resp, method, path, target)
	}

	details := map[string]interface{}{
		"method":      method,
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		details["error"] = err.Error()
		c.logger.Warn(module, "Request failed", details)
		return err
	}
	c.logger.Debug(module, "Request completed", details)
	return nil
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, auth bool) (*http.Response, error) {
	token, hasToken := c.tokens.Token()
	if auth && !hasToken {
		return nil, &apperror.PermissionError{Action: method + " " + path}
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("catalogapi: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("catalogapi: failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hasToken {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperror.NetworkError{Method: method, Path: path, Err: err}
	}
	return resp, nil
}

// decodeResponse turns non-2xx into NetworkError and decodes the body into target.
func decodeResponse(resp *http.Response, method, path string, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var body dto.ErrorBody
		_ = json.Unmarshal(raw, &body)
		return &apperror.NetworkError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: body.Text(),
		}
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if raw, ok := target.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &apperror.NetworkError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
		}
		*raw = data
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("catalogapi: failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) flushSearchCache() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

func recordPath(kind entity.Kind, id string) string {
	return "/" + kind.String() + "/" + url.PathEscape(id)
}

func relationPath(movieId string, rel entity.RelationKind) string {
	return "/movie-relations/movies/" + url.PathEscape(movieId) + "/" + rel.String()
}

func isStatus(err error, status int) bool {
	var netErr *apperror.NetworkError
	return errors.As(err, &netErr) && netErr.Status == status
}

func copyPage(p *dto.FilterResponse) *dto.FilterResponse {
	out := *p
	out.Items = append([]entity.RelatedEntity(nil), p.Items...)
	return &out
}
