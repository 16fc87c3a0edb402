package pagination

import (
	"context"
	"errors"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/buildsight/buildkite-client/pkg/client"
)

// scriptedGetter serves canned page bodies in fetch order and records the
// params of every call.
type scriptedGetter struct {
	pages []string
	errAt map[int]error // 1-based fetch index -> error
	calls []map[string]string
}

func (s *scriptedGetter) Get(ctx context.Context, path string, params map[string]string) (gjson.Result, error) {
	index := len(s.calls) + 1

	copied := make(map[string]string, len(params))
	for key, value := range params {
		copied[key] = value
	}
	s.calls = append(s.calls, copied)

	if err, ok := s.errAt[index]; ok {
		return gjson.Result{}, err
	}
	if index > len(s.pages) {
		return gjson.Parse(`[]`), nil
	}
	return gjson.Parse(s.pages[index-1]), nil
}

func entryIDs(entries []gjson.Result) []string {
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.Get("id").String()
	}
	return ids
}

func assertIDs(t *testing.T, entries []gjson.Result, want ...string) {
	t.Helper()
	got := entryIDs(entries)
	if len(got) != len(want) {
		t.Fatalf("Entry IDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Entry IDs = %v, want %v", got, want)
		}
	}
}

func TestFetchAll_AllPagesInOrder(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{
			`[{"id": "a"}, {"id": "b"}]`,
			`[{"id": "c"}]`,
			`[]`,
		},
	}
	fetcher := NewFetcher(getter)

	results, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	assertIDs(t, results, "a", "b", "c")
	if len(getter.calls) != 3 {
		t.Errorf("Fetch count = %d, want 3", len(getter.calls))
	}
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{
			`[{"id": "a"}, {"id": "b"}]`,
			`[]`,
		},
	}
	fetcher := NewFetcher(getter)

	results, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	assertIDs(t, results, "a", "b")
	if len(getter.calls) != 2 {
		t.Errorf("Fetch count = %d, want exactly 2", len(getter.calls))
	}
}

func TestFetchAll_MaxFetchesTruncates(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{
			`[{"id": "p1"}]`,
			`[{"id": "p2"}]`,
			`[{"id": "p3"}]`,
			`[{"id": "p4"}]`,
			`[{"id": "p5"}]`,
		},
	}
	fetcher := NewFetcher(getter)

	results, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{MaxFetches: 2})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	assertIDs(t, results, "p1", "p2")
	if len(getter.calls) != 2 {
		t.Errorf("Fetch count = %d, want exactly 2 with MaxFetches=2", len(getter.calls))
	}
}

func TestFetchAll_RateLimitCarriesPartial(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{
			`[{"id": "a"}]`,
			`[{"id": "b"}]`,
		},
		errAt: map[int]error{3: &client.RateLimitedError{}},
	}
	fetcher := NewFetcher(getter)

	_, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if err == nil {
		t.Fatal("FetchAll() error = nil, want rate limit error")
	}

	if !errors.Is(err, client.ErrRateLimited) {
		t.Errorf("errors.Is(err, ErrRateLimited) = false, got %v", err)
	}

	var rateLimited *client.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("errors.As() = false, got %T", err)
	}
	assertIDs(t, rateLimited.Partial, "a", "b")
}

func TestFetchAll_RateLimitOnFirstFetch(t *testing.T) {
	getter := &scriptedGetter{
		errAt: map[int]error{1: &client.RateLimitedError{}},
	}
	fetcher := NewFetcher(getter)

	_, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})

	var rateLimited *client.RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("errors.As() = false, got %v", err)
	}
	if len(rateLimited.Partial) != 0 {
		t.Errorf("Partial length = %d, want 0", len(rateLimited.Partial))
	}
}

func TestFetchAll_ServerError(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{`{"message": "oops"}`},
	}
	fetcher := NewFetcher(getter)

	results, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if err == nil {
		t.Fatal("FetchAll() error = nil, want server error")
	}
	if results != nil {
		t.Errorf("Results = %v, want nil on server error", entryIDs(results))
	}

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("errors.As() = false, got %T", err)
	}
	if serverErr.Message != "oops" {
		t.Errorf("Message = %q, want %q", serverErr.Message, "oops")
	}
}

func TestFetchAll_ObjectWithoutMessageIsAnEntry(t *testing.T) {
	// A lone object that carries no error message is data, not a failure
	getter := &scriptedGetter{
		pages: []string{
			`{"id": "solo", "message": ""}`,
			`[]`,
		},
	}
	fetcher := NewFetcher(getter)

	results, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	assertIDs(t, results, "solo")
}

func TestFetchAll_PageParamMonotonic(t *testing.T) {
	getter := &scriptedGetter{
		pages: []string{
			`[{"id": "a"}]`,
			`[{"id": "b"}]`,
			`[{"id": "c"}]`,
			`[]`,
		},
	}
	fetcher := NewFetcher(getter)

	_, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{FirstPage: 5})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	// After N successful fetches starting at page k, fetch N+1 carries k+N
	wantPages := []string{"5", "6", "7", "8"}
	if len(getter.calls) != len(wantPages) {
		t.Fatalf("Fetch count = %d, want %d", len(getter.calls), len(wantPages))
	}
	for i, want := range wantPages {
		if got := getter.calls[i]["page"]; got != want {
			t.Errorf("Fetch %d page param = %q, want %q", i+1, got, want)
		}
	}
}

func TestFetchAll_DefaultFirstPage(t *testing.T) {
	getter := &scriptedGetter{pages: []string{`[]`}}
	fetcher := NewFetcher(getter)

	if _, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{}); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if got := getter.calls[0]["page"]; got != "1" {
		t.Errorf("First page param = %q, want %q", got, "1")
	}
}

func TestFetchAll_PreservesCallerParams(t *testing.T) {
	getter := &scriptedGetter{pages: []string{`[{"id": "a"}]`, `[]`}}
	fetcher := NewFetcher(getter)

	params := map[string]string{"branch": "main"}
	if _, err := fetcher.FetchAll(context.Background(), "builds", params, Options{}); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	for i, call := range getter.calls {
		if call["branch"] != "main" {
			t.Errorf("Fetch %d lost branch param: %v", i+1, call)
		}
	}
}

func TestFetchAll_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	getter := &scriptedGetter{
		errAt: map[int]error{1: boom},
	}
	fetcher := NewFetcher(getter)

	_, err := fetcher.FetchAll(context.Background(), "builds", nil, Options{})
	if !errors.Is(err, boom) {
		t.Errorf("FetchAll() error = %v, want transport error passed through", err)
	}
}

func TestPageIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		empty bool
	}{
		{"empty array", `[]`, true},
		{"empty object", `{}`, true},
		{"null", `null`, true},
		{"false", `false`, true},
		{"zero", `0`, true},
		{"empty string", `""`, true},
		{"array with entries", `[{"id": 1}]`, false},
		{"object with fields", `{"message": "oops"}`, false},
		{"non-zero number", `7`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageIsEmpty(gjson.Parse(tt.body)); got != tt.empty {
				t.Errorf("pageIsEmpty(%s) = %v, want %v", tt.body, got, tt.empty)
			}
		})
	}
}
