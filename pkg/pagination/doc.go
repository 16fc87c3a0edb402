// Package pagination drives sequential fetching of paginated Buildkite
// endpoints.
//
// Buildkite paginates list endpoints with an incrementing "page" query
// parameter and signals exhaustion with an empty page. The fetcher walks the
// pages one at a time, accumulating entries in order until exhaustion, a
// configured fetch budget, or a rate limit response from the server.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(bk)
//	builds, err := fetcher.FetchAll(ctx, "organizations/acme/builds",
//		map[string]string{"branch": "main"}, pagination.Options{})
//
// The three terminal conditions carry distinct outcomes so callers can tell
// "done" from "truncated by budget" from "truncated by throttling":
//   - an empty page returns the accumulated entries (natural exhaustion)
//   - Options.MaxFetches returns the entries fetched within the budget
//   - a 429 fails with *client.RateLimitedError carrying the partial result
package pagination
