// Package metrics provides the centralized Prometheus registry reference for
// the Buildkite client. All metrics are defined in their respective packages
// (client, pagination, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the Buildkite client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - buildkite_requests_total{path, status} (Counter): Total requests by resource path and HTTP status
//   - buildkite_request_duration_seconds{path} (Histogram): Request duration by resource path
//   - buildkite_rate_limited_total (Counter): Requests rejected with status 429
//
// Pagination Metrics (pkg/pagination):
//   - buildkite_pages_fetched_total{path} (Counter): Pages fetched by resource path
//   - buildkite_entries_fetched_total{path} (Counter): Entries accumulated by resource path
//
// Quota Metrics (pkg/ratelimit):
//   - buildkite_quota_remaining (Gauge): Requests remaining in the current rate limit window
//   - buildkite_quota_limit (Gauge): Total requests allowed per rate limit window
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   sum(rate(buildkite_requests_total{status=~"5.."}[5m])) / sum(rate(buildkite_requests_total[5m]))
//
//   # Quota Pressure
//   buildkite_quota_remaining / buildkite_quota_limit < 0.2
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(buildkite_request_duration_seconds_bucket[5m]))
//
//   # Entries Fetched Per Page
//   rate(buildkite_entries_fetched_total[5m]) / rate(buildkite_pages_fetched_total[5m])
