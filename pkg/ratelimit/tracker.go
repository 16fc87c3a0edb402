package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "buildkite_quota_remaining",
		Help: "Requests remaining in the current Buildkite rate limit window",
	})

	quotaLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "buildkite_quota_limit",
		Help: "Total requests allowed per Buildkite rate limit window",
	})
)

// Tracker records Buildkite request quota observations.
// The Redis client is optional; without it the tracker only updates metrics
// and logs, with it the state is shared across processes.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// RecordFromHeaders parses Buildkite quota headers and records the state.
// Responses without a RateLimit-Remaining header are ignored.
func (t *Tracker) RecordFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("RateLimit-Remaining")
	if remainStr == "" {
		// Header not present - not every response carries quota information
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse RateLimit-Remaining header: %w", err)
	}

	limit := 0
	if limitStr := headers.Get("RateLimit-Limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("parse RateLimit-Limit header: %w", err)
		}
	}

	resetSeconds := 0
	if resetStr := headers.Get("RateLimit-Reset"); resetStr != "" {
		resetSeconds, err = strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse RateLimit-Reset header: %w", err)
		}
	}

	now := time.Now()
	state := &QuotaState{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	quotaRemaining.Set(float64(remaining))
	if limit > 0 {
		quotaLimit.Set(float64(limit))
	}

	if t.redis != nil {
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, remaining, 0)
		pipe.Set(ctx, RedisKeyLimit, limit, 0)
		pipe.Set(ctx, RedisKeyReset, state.ResetAt.Unix(), 0)

		lastUpdateJSON, err := json.Marshal(state.LastUpdate)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store quota state in redis: %w", err)
		}
	}

	// Health drives the log level only, never control flow.
	switch {
	case state.IsExhausted():
		t.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Buildkite request quota exhausted - further requests will be rejected")
	case state.IsLow():
		t.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", state.ResetAt).
			Msg("Buildkite request quota running low")
	default:
		t.logger.Debug().
			Int("remaining", remaining).
			Int("limit", limit).
			Time("reset_at", state.ResetAt).
			Msg("Buildkite request quota updated")
	}

	return nil
}

// GetState retrieves the last recorded quota state.
// Returns a default healthy state when nothing has been recorded yet or no
// Redis backend is configured.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	if t.redis == nil {
		return defaultState(), nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		t.logger.Debug().Msg("No quota state in Redis, returning default healthy state")
		return defaultState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota limit: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyReset).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &QuotaState{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// defaultState assumes a healthy quota until real headers arrive.
func defaultState() *QuotaState {
	return &QuotaState{
		Remaining:  100,
		Limit:      100,
		ResetAt:    time.Now().Add(60 * time.Second),
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}
