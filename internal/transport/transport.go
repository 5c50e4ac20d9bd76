// Package transport performs StArMap API requests against a base URL. Two implementations
// exist: HTTPTransport for real network access and MockTransport which replays registered fixtures.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

const (
	DefaultAPIVersion    = "v1"
	DefaultRetries       = 5
	DefaultBackoffFactor = 500 * time.Millisecond
	DefaultTimeout       = 60 * time.Second
)

// Transport sends requests relative to <url>/api/<version>/
type Transport interface {
	// APIVersion is the <version> segment of every request URL, e.g. "v1"
	APIVersion() string
	Get(ctx context.Context, path string, query url.Values) (*Response, error)
	Post(ctx context.Context, path string, body any) (*Response, error)
	Put(ctx context.Context, path string, body any) (*Response, error)
}

// Response is a fully read HTTP response. Non 2xx statuses are returned as responses,
// not errors, so callers can decide how to interpret them.
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NotFound reports a 404 status
func (r *Response) NotFound() bool {
	return r.StatusCode == 404
}

// Decode unmarshals the JSON body into out
func (r *Response) Decode(context string, out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &models.DecodeError{Context: context, Content: string(r.Body), Cause: err}
	}
	return nil
}

// Err converts a non 2xx response into a TransportError
func (r *Response) Err(method string) error {
	if r.OK() {
		return nil
	}
	return &models.TransportError{
		Method:     method,
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Attempts:   1,
		Cause:      errStatus(r.StatusCode, r.Body),
	}
}

// JoinURL builds <base>/api/<version>/<path>, trimming redundant slashes on every element
func JoinURL(base, apiVersion, path string) string {
	elems := []string{base, "api/" + strings.Trim(apiVersion, "/"), path}
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		if t := strings.Trim(e, "/"); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "/")
}

// marshalBody encodes a request payload. Raw bytes and strings are sent unchanged.
func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(body)
	}
}
