package pagination

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/buildsight/buildkite-client/pkg/client"
)

// Prometheus metrics for paginated fetches.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildkite_pages_fetched_total",
		Help: "Total pages fetched by resource path",
	}, []string{"path"})

	entriesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildkite_entries_fetched_total",
		Help: "Total entries accumulated by resource path",
	}, []string{"path"})
)

// PageGetter is the single-page fetch capability the fetcher drives.
// *client.Client implements it.
type PageGetter interface {
	Get(ctx context.Context, path string, params map[string]string) (gjson.Result, error)
}

// Options controls a FetchAll run.
type Options struct {
	// MaxFetches bounds the number of page requests. Zero means unlimited.
	MaxFetches int

	// FirstPage is the page parameter of the first request. Zero means page 1.
	FirstPage int
}

// ServerError reports an application-level failure: the API returned an
// object with a message where a page of entries was expected.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("buildkite API error: %s", e.Message)
}

// Fetcher accumulates entries across sequential page fetches.
type Fetcher struct {
	client PageGetter
	logger zerolog.Logger
}

// NewFetcher creates a fetcher on top of a single-page client.
func NewFetcher(pageClient PageGetter) *Fetcher {
	return &Fetcher{
		client: pageClient,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll fetches pages sequentially starting at Options.FirstPage,
// incrementing the "page" parameter by one after each non-failing fetch and
// appending every entry in page order. It terminates on an empty page, on the
// MaxFetches budget, or on a rate limit response.
//
// On rate limiting the returned error is a *client.RateLimitedError carrying
// exactly the entries accumulated before the failing page. A page shaped as a
// single object with a non-empty "message" field fails with *ServerError;
// entries gathered before it are discarded. Transport and decode failures
// propagate unmodified.
//
// Each call owns its results accumulator; the params map is mutated to track
// the page cursor and must not be shared across concurrent calls.
func (f *Fetcher) FetchAll(ctx context.Context, path string, params map[string]string, opts Options) ([]gjson.Result, error) {
	firstPage := opts.FirstPage
	if firstPage <= 0 {
		firstPage = 1
	}
	if params == nil {
		params = make(map[string]string)
	}

	f.logger.Info().
		Str("path", path).
		Int("first_page", firstPage).
		Msg("Starting paginated fetch")

	params["page"] = strconv.Itoa(firstPage)

	var results []gjson.Result
	fetchCount := 0

	for {
		page, err := f.client.Get(ctx, path, params)
		if err != nil {
			var rateLimited *client.RateLimitedError
			if errors.As(err, &rateLimited) {
				f.logger.Warn().
					Str("path", path).
					Int("entries", len(results)).
					Msg("Rate limit hit, surfacing partial result")
				return nil, &client.RateLimitedError{Partial: results}
			}
			return nil, err
		}

		fetchCount++

		if pageIsEmpty(page) {
			f.logger.Info().
				Str("path", path).
				Msg("No further results")
			break
		}

		if page.IsObject() {
			if message := page.Get("message"); message.String() != "" {
				return nil, &ServerError{Message: message.String()}
			}
		}

		currentPage, err := strconv.Atoi(params["page"])
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter %q: %w", params["page"], err)
		}
		params["page"] = strconv.Itoa(currentPage + 1)

		entries := page.Array()

		logEvent := f.logger.Info().
			Str("path", path).
			Int("page", currentPage).
			Int("entries", len(entries))
		if n := len(entries); n > 0 {
			// Diagnostic only; entries without the field skip it
			if createdAt := entries[n-1].Get("created_at"); createdAt.Exists() {
				logEvent = logEvent.Str("last_created_at", createdAt.String())
			}
		}
		logEvent.Msg("Fetched page")

		pagesFetchedTotal.WithLabelValues(path).Inc()
		entriesFetchedTotal.WithLabelValues(path).Add(float64(len(entries)))

		results = append(results, entries...)

		if opts.MaxFetches > 0 && fetchCount >= opts.MaxFetches {
			f.logger.Info().
				Str("path", path).
				Int("fetches", fetchCount).
				Int("entries", len(results)).
				Msg("Max fetches reached")
			break
		}
	}

	return results, nil
}

// pageIsEmpty reports whether a decoded page carries no entries. Buildkite
// signals exhaustion with an empty array; null, false, zero, empty objects
// and empty strings terminate the loop the same way.
func pageIsEmpty(page gjson.Result) bool {
	switch page.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.Number:
		return page.Num == 0
	case gjson.String:
		return page.Str == ""
	default:
		if page.IsArray() {
			return len(page.Array()) == 0
		}
		if page.IsObject() {
			return len(page.Map()) == 0
		}
		return false
	}
}
