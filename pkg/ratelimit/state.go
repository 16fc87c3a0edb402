// Package ratelimit tracks the Buildkite API request quota advertised via the
// RateLimit-Limit, RateLimit-Remaining and RateLimit-Reset response headers.
// Tracking is purely observational: the quota state feeds logs, metrics and
// shared Redis state, but never gates or delays requests. A 429 response is
// surfaced to the caller by the client instead of being handled here.
package ratelimit

import (
	"time"
)

// Redis keys for shared quota state storage.
const (
	RedisKeyRemaining  = "buildkite:rate_limit:remaining"
	RedisKeyLimit      = "buildkite:rate_limit:limit"
	RedisKeyReset      = "buildkite:rate_limit:reset_timestamp"
	RedisKeyLastUpdate = "buildkite:rate_limit:last_update"
)

// Thresholds for quota health classification. These drive log levels only.
const (
	// QuotaThresholdLow marks the remaining-request count below which
	// updates are logged as warnings.
	QuotaThresholdLow = 20

	// QuotaThresholdHealthy indicates normal operation. At or above this
	// value no special logging applies.
	QuotaThresholdHealthy = 50
)

// QuotaState is the last observed Buildkite request quota.
// The state is shared across client instances via Redis.
type QuotaState struct {
	// Remaining is the number of requests left in the current window,
	// from the RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// Limit is the total requests allowed per window, from the
	// RateLimit-Limit header. Zero when the header was absent.
	Limit int `json:"limit"`

	// ResetAt is when the current window ends, calculated from the
	// RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than the given duration.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExhausted returns true when no requests remain in the current window.
// Further requests will be rejected with status 429 until the window resets.
func (s *QuotaState) IsExhausted() bool {
	return s.Remaining <= 0
}

// IsLow returns true when the remaining quota is below the warning threshold
// but not yet exhausted.
func (s *QuotaState) IsLow() bool {
	return s.Remaining < QuotaThresholdLow && !s.IsExhausted()
}

// TimeUntilReset returns the duration until the quota window resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field from the current Remaining value.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}
