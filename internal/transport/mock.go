package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	slogcontext "github.com/veqryn/slog-context"
)

// MockRequest describes which calls a fixture answers
type MockRequest struct {
	Method string
	// Path is a glob pattern matched against the request path with surrounding
	// slashes removed, e.g. "policy" or "policy/*".
	Path string
	// QueryStringParameters must all be present in the request with the same
	// values. Extra request parameters are allowed.
	QueryStringParameters url.Values
}

// MockResponse is replayed for every matching call
type MockResponse struct {
	StatusCode int
	Body       any
}

// Expectation pairs a request matcher with the response to replay.
// Times limits how often it answers; 0 means unlimited.
type Expectation struct {
	Request  MockRequest
	Response MockResponse
	Times    int

	path glob.Glob
	body []byte
	hits int
}

// RecordedRequest is a call received by the mock transport
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// MockTransport replays registered fixtures without any network I/O.
// Calls with no matching fixture receive the default response (404 with "{}").
type MockTransport struct {
	mu           sync.Mutex
	baseURL      string
	apiVersion   string
	expectations []*Expectation
	requests     []RecordedRequest
	fallback     MockResponse
}

// NewMockTransport creates a mock for the given base URL and API version, which are only
// used to render response URLs.
func NewMockTransport(baseURL, apiVersion string) *MockTransport {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &MockTransport{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		fallback:   MockResponse{StatusCode: http.StatusNotFound, Body: map[string]any{}},
	}
}

// SetDefault replaces the response used when no fixture matches
func (m *MockTransport) SetDefault(statusCode int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = MockResponse{StatusCode: statusCode, Body: body}
}

// Register adds a fixture for method and uri. uri is a path glob with an optional
// query string, e.g. "policy?page=1". Fixtures are evaluated in registration order.
func (m *MockTransport) Register(method, uri string, statusCode int, body any) error {
	path, rawQuery, _ := strings.Cut(uri, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("invalid query in fixture %q: %w", uri, err)
	}
	return m.Expect(&Expectation{
		Request: MockRequest{
			Method:                method,
			Path:                  path,
			QueryStringParameters: query,
		},
		Response: MockResponse{StatusCode: statusCode, Body: body},
	})
}

// Expect adds a fully described expectation
func (m *MockTransport) Expect(e *Expectation) error {
	g, err := glob.Compile(strings.Trim(e.Request.Path, "/"))
	if err != nil {
		return fmt.Errorf("invalid path pattern %q: %w", e.Request.Path, err)
	}
	b, err := marshalBody(e.Response.Body)
	if err != nil {
		return fmt.Errorf("invalid body for %s %s: %w", e.Request.Method, e.Request.Path, err)
	}
	if e.Response.StatusCode == 0 {
		e.Response.StatusCode = http.StatusOK
	}
	e.path = g
	e.body = b

	m.mu.Lock()
	defer m.mu.Unlock()
	m.expectations = append(m.expectations, e)
	return nil
}

// APIVersion returns the API level the fixtures are served under
func (m *MockTransport) APIVersion() string {
	return m.apiVersion
}

// Requests returns a copy of every call received so far
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// CallCount returns the number of calls received
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset forgets recorded calls and fixture hit counters
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	for _, e := range m.expectations {
		e.hits = 0
	}
}

func (m *MockTransport) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return m.reply(ctx, http.MethodGet, path, query, nil)
}

func (m *MockTransport) Post(ctx context.Context, path string, body any) (*Response, error) {
	return m.reply(ctx, http.MethodPost, path, nil, body)
}

func (m *MockTransport) Put(ctx context.Context, path string, body any) (*Response, error) {
	return m.reply(ctx, http.MethodPut, path, nil, body)
}

func (m *MockTransport) reply(ctx context.Context, method, path string, query url.Values, payload any) (*Response, error) {
	b, err := marshalBody(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s payload: %w", method, path, err)
	}
	path = strings.Trim(path, "/")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, RecordedRequest{Method: method, Path: path, Query: query, Body: b})

	target := JoinURL(m.baseURL, m.apiVersion, path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for _, e := range m.expectations {
		if !e.matches(method, path, query) {
			continue
		}
		e.hits++
		slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "mock transport replaying fixture",
			slog.String("realm", "transport"),
			slog.String("method", method),
			slog.String("url", target),
			slog.Int("status", e.Response.StatusCode),
		)
		return &Response{StatusCode: e.Response.StatusCode, URL: target, Body: e.body}, nil
	}

	body, err := marshalBody(m.fallback.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: m.fallback.StatusCode, URL: target, Body: body}, nil
}

func (e *Expectation) matches(method, path string, query url.Values) bool {
	if e.Times > 0 && e.hits >= e.Times {
		return false
	}
	if !strings.EqualFold(e.Request.Method, method) {
		return false
	}
	if !e.path.Match(path) {
		return false
	}
	for k, want := range e.Request.QueryStringParameters {
		got := query[k]
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
	}
	return true
}
