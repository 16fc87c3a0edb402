package client

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrRateLimited is the sentinel matched by errors.Is for 429 responses.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitedError reports that Buildkite rejected a request with status 429.
// Partial holds the entries accumulated before the limit was hit: empty for a
// single-page fetch, populated by the paginated fetcher so callers can decide
// whether to use the partial data, back off and resume, or abort.
type RateLimitedError struct {
	Partial []gjson.Result
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%v (%d entries fetched before limit)", ErrRateLimited, len(e.Partial))
}

// Unwrap makes errors.Is(err, ErrRateLimited) work.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
