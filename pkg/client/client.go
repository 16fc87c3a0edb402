// Package client provides the core Buildkite HTTP client with bearer token
// authentication, opaque JSON decoding and rate limit detection.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/buildsight/buildkite-client/pkg/config"
	"github.com/buildsight/buildkite-client/pkg/ratelimit"
)

const (
	// DefaultBaseURL is the Buildkite REST API v2 endpoint.
	// Resource paths are relative to it.
	DefaultBaseURL = "https://api.buildkite.com/v2"

	// StatusRateLimited is the status code Buildkite uses to signal throttling.
	StatusRateLimited = http.StatusTooManyRequests
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildkite_requests_total",
		Help: "Total Buildkite API requests by path and status",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildkite_request_duration_seconds",
		Help:    "Buildkite API request duration in seconds by path",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"path"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "buildkite_rate_limited_total",
		Help: "Total requests rejected by Buildkite with status 429",
	})
)

// Client is the single-page Buildkite API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     config.Provider
	tracker    *ratelimit.Tracker
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API prefix. Defaults to DefaultBaseURL.
	BaseURL string

	// Tokens supplies the bearer token variables. Defaults to the process
	// environment (BUILDKITE_CI_API_KEY, then BUILDKITE_TOKEN).
	Tokens config.Provider

	// HTTPClient is the underlying transport. Any timeout policy lives
	// there, not in this client.
	HTTPClient *http.Client

	// Tracker records RateLimit-* response headers for observability.
	// Optional; never affects request flow.
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Tokens:  config.Env{},
	}
}

// New creates a new Buildkite API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = config.Env{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	logger := log.With().Str("component", "buildkite-client").Logger()

	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		tracker:    cfg.Tracker,
		logger:     logger,
	}, nil
}

// Get performs one authenticated GET against a resource path with the given
// query parameters and decodes the response body as opaque JSON. The decoded
// shape (list, object or scalar) is up to the endpoint; callers inspect it.
//
// A 429 response fails with *RateLimitedError and no payload. Network
// failures and invalid JSON propagate as-is; there are no retries at this
// layer.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (gjson.Result, error) {
	if path == "" {
		return gjson.Result{}, fmt.Errorf("resource path is required")
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	requestURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// Token is resolved once per fetch; its absence downgrades the request
	// to unauthenticated rather than failing it.
	if token := config.ResolveToken(c.tokens); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		c.logger.Warn().
			Str("path", path).
			Msg("Authentication token is not specified or empty")
	}

	c.logger.Debug().
		Str("path", path).
		Str("page", params["page"]).
		Msg("Executing Buildkite request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	if c.tracker != nil {
		if err := c.tracker.RecordFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
		}
	}

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == StatusRateLimited {
		rateLimitedTotal.Inc()
		c.logger.Warn().
			Str("path", path).
			Msg("Request rejected by Buildkite rate limit")
		return gjson.Result{}, &RateLimitedError{}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response body: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("decode response for %s: invalid JSON", path)
	}

	return gjson.ParseBytes(body), nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
