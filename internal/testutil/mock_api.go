// Package testutil provides testing utilities for the Buildkite API client.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Buildkite endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBuildkite is a configurable mock Buildkite API server for testing.
type MockBuildkite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount   int
	LastAuthHeader string
	LastQuery      url.Values
}

// NewMockBuildkite creates a new mock Buildkite server.
func NewMockBuildkite() *MockBuildkite {
	mock := &MockBuildkite{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBuildkite) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBuildkite) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockBuildkite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastAuthHeader = ""
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBuildkite) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBuildkite) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPagedResponse serves one JSON array per "page" query value and an empty
// array for pages beyond the configured ones, mimicking Buildkite pagination.
func (m *MockBuildkite) SetPagedResponse(path string, pages []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		setQuotaHeaders(w, "98")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 || page > len(pages) {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(pages[page-1]))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBuildkite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastAuthHeader returns the Authorization header of the last request.
func (m *MockBuildkite) GetLastAuthHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastAuthHeader
}

// defaultHandler provides a default empty-page response.
func (m *MockBuildkite) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w, "100")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`[]`))
}

func setQuotaHeaders(w http.ResponseWriter, remaining string) {
	w.Header().Set("RateLimit-Remaining", remaining)
	w.Header().Set("RateLimit-Limit", "100")
	w.Header().Set("RateLimit-Reset", "60")
}

// NewHealthyResponse creates a standard 200 OK response with quota headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"RateLimit-Remaining": "98",
			"RateLimit-Limit":     "100",
			"RateLimit-Reset":     "60",
			"Content-Type":        "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "You have exceeded the rate limit"}`,
		Headers: map[string]string{
			"RateLimit-Remaining": "0",
			"RateLimit-Limit":     "100",
			"RateLimit-Reset":     "30",
			"Content-Type":        "application/json; charset=utf-8",
		},
	}
}

// NewServerMessageResponse creates a 200 response whose body is an error
// message object instead of a data page.
func NewServerMessageResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"message": "` + message + `"}`,
		Headers: map[string]string{
			"RateLimit-Remaining": "97",
			"RateLimit-Limit":     "100",
			"RateLimit-Reset":     "60",
			"Content-Type":        "application/json; charset=utf-8",
		},
	}
}
