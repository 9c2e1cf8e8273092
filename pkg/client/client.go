// Package client provides the authenticated HTTP client for the store's
// catalog REST API: page reads, single-item reads, deletes and the batch
// mutation endpoint. It performs no retries; failures propagate to callers
// as TransportError or APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for catalog API operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog API requests by resource, method and status",
	}, []string{"resource", "method", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog API request duration in seconds by resource and method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"resource", "method"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})
)

// DefaultNamespace is the versioned API prefix appended to the base URL.
const DefaultNamespace = "/wp-json/wc/v3"

// Client is the catalog API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the store, e.g. "https://shop.example.com".
	BaseURL string

	// Namespace is the versioned API path (default DefaultNamespace).
	Namespace string

	// Credentials attached to every request as query parameters.
	ConsumerKey    string
	ConsumerSecret string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout is the per-call deadline.
	Timeout time.Duration
}

// DefaultConfig returns a configuration with the default namespace and a
// 30 second per-call timeout.
func DefaultConfig(baseURL, consumerKey, consumerSecret string) Config {
	return Config{
		BaseURL:        baseURL,
		Namespace:      DefaultNamespace,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		UserAgent:      "catalog-sync/0.1.0",
		Timeout:        30 * time.Second,
	}
}

// New creates a new catalog API client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, ErrMissingCredentials
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.Namespace, "/"),
		config:     cfg,
		logger:     log.With().Str("component", "catalog-client").Logger(),
	}, nil
}

// FetchPage returns one page of a collection. An empty slice marks the end
// of the collection.
func (c *Client) FetchPage(ctx context.Context, resource string, filters url.Values, page, perPage int) ([]json.RawMessage, error) {
	query := url.Values{}
	for k, vs := range filters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, resource, "", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetOne returns a single item by id.
func (c *Client) GetOne(ctx context.Context, resource string, id int) (json.RawMessage, error) {
	var item json.RawMessage
	if err := c.do(ctx, http.MethodGet, resource, strconv.Itoa(id), nil, nil, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes a single item by id.
func (c *Client) Delete(ctx context.Context, resource string, id int, force bool) error {
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	return c.do(ctx, http.MethodDelete, resource, strconv.Itoa(id), query, nil, nil)
}

// DispatchBatch posts a batch request to the resource's batch endpoint.
func (c *Client) DispatchBatch(ctx context.Context, resource string, req catalog.BatchRequest) (*catalog.BatchResponse, error) {
	var resp catalog.BatchResponse
	if err := c.do(ctx, http.MethodPost, resource, "batch", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes one request. The resource label (not the full path) is used
// for metrics so ids do not explode label cardinality.
func (c *Client) do(ctx context.Context, method, resource, sub string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(resource, method).Observe(time.Since(startTime).Seconds())
	}()

	req, err := c.newRequest(ctx, method, resource, sub, query, body)
	if err != nil {
		return err
	}

	c.logger.Debug().
		Str("resource", resource).
		Str("method", method).
		Str("path", req.URL.Path).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		catalogRequestsTotal.WithLabelValues(resource, method, "network_error").Inc()
		c.logger.Error().Err(err).Str("resource", resource).Str("method", method).Msg("HTTP request failed")
		return &TransportError{Method: method, Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &TransportError{Method: method, Resource: resource, Err: fmt.Errorf("read body: %w", err)}
	}

	catalogRequestsTotal.WithLabelValues(resource, method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(method, resource, resp.StatusCode, data)
		catalogErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		c.logger.Warn().
			Str("resource", resource).
			Str("method", method).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("Catalog request error")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &DecodeError{Resource: resource, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, resource, sub string, query url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.Trim(resource, "/"))
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	if sub != "" {
		u.Path += "/" + sub
	}

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("consumer_key", c.config.ConsumerKey)
	q.Set("consumer_secret", c.config.ConsumerSecret)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

// newAPIError builds an APIError, lifting the store's {"code","message"}
// error body when present.
func newAPIError(method, resource string, status int, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Resource:   resource,
		StatusCode: status,
		ErrorClass: classifyStatus(status),
		Body:       body,
	}
	var wpErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wpErr) == nil {
		apiErr.Code = wpErr.Code
		apiErr.Message = wpErr.Message
	}
	return apiErr
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Decode unmarshals raw items into T.
func Decode[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetOneOf fetches a single item and decodes it into T.
func GetOneOf[T any](ctx context.Context, c *Client, resource string, id int) (T, error) {
	var v T
	raw, err := c.GetOne(ctx, resource, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &DecodeError{Resource: resource, Err: err}
	}
	return v, nil
}
