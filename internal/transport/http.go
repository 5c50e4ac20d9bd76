package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// maxBodySize bounds how much of a response body is kept in memory
const maxBodySize = 64 << 20

// HTTPTransport talks to a StArMap server over HTTP(S), retrying failed
// requests with an exponential backoff.
type HTTPTransport struct {
	baseURL    string
	apiVersion string
	client     *retryablehttp.Client
}

// HTTPOption is a functional option for HTTPTransport configuration
type HTTPOption func(*httpOptions)

type httpOptions struct {
	retries    int
	backoff    time.Duration
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// WithRetries sets how many times a failed request is retried
func WithRetries(n int) HTTPOption {
	return func(o *httpOptions) { o.retries = n }
}

// WithBackoffFactor sets the base of the exponential backoff between retries
func WithBackoffFactor(d time.Duration) HTTPOption {
	return func(o *httpOptions) { o.backoff = d }
}

// WithTimeout sets the per request timeout
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) { o.timeout = d }
}

// WithHTTPClient replaces the underlying *http.Client. Its own Timeout is kept.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpOptions) { o.httpClient = c }
}

// WithLogger sets the logger used for retry diagnostics
func WithLogger(l *slog.Logger) HTTPOption {
	return func(o *httpOptions) { o.logger = l }
}

// NewHTTPTransport creates a transport for the StArMap instance at baseURL
func NewHTTPTransport(baseURL, apiVersion string, options ...HTTPOption) (*HTTPTransport, error) {
	opts := &httpOptions{
		retries: DefaultRetries,
		backoff: DefaultBackoffFactor,
		timeout: DefaultTimeout,
	}
	for _, opt := range options {
		opt(opts)
	}

	if baseURL == "" {
		return nil, &models.ConfigurationError{Field: "url", Message: "the StArMap URL is required"}
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &models.ConfigurationError{Field: "url", Message: err.Error()}
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if opts.retries < 0 {
		return nil, &models.ConfigurationError{Field: "retries", Message: "must not be negative"}
	}
	if opts.backoff < 0 {
		return nil, &models.ConfigurationError{Field: "backoff_factor", Message: "must not be negative"}
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.retries
	rc.Backoff = ExponentialBackoff(opts.backoff)
	rc.ErrorHandler = giveUp
	if opts.httpClient != nil {
		rc.HTTPClient = opts.httpClient
	} else {
		rc.HTTPClient.Timeout = opts.timeout
	}
	rc.Logger = nil
	if opts.logger != nil {
		rc.Logger = opts.logger
	}

	return &HTTPTransport{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		client:     rc,
	}, nil
}

// ExponentialBackoff waits factor * 2^(attempt-1) before retry number attempt
func ExponentialBackoff(factor time.Duration) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		// attemptNum counts from 0 for the first retry
		return time.Duration(float64(factor) * math.Pow(2, float64(attemptNum)))
	}
}

// giveUp turns an exhausted retry loop into a TransportError carrying the last status
func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	terr := &models.TransportError{Attempts: numTries, Cause: err}
	if resp != nil {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		terr.StatusCode = resp.StatusCode
		if terr.Cause == nil {
			terr.Cause = errStatus(resp.StatusCode, body)
		}
	}
	if terr.Cause == nil {
		terr.Cause = errors.New("giving up")
	}
	return nil, terr
}

func errStatus(code int, body []byte) error {
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Errorf("%d %s: %s", code, http.StatusText(code), string(body))
}

// APIVersion returns the API level requests are sent to
func (t *HTTPTransport) APIVersion() string {
	return t.apiVersion
}

// URL returns the absolute URL for path
func (t *HTTPTransport) URL(path string) string {
	return JoinURL(t.baseURL, t.apiVersion, path)
}

func (t *HTTPTransport) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, query, nil)
}

func (t *HTTPTransport) Post(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, nil, body)
}

func (t *HTTPTransport) Put(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPut, path, nil, body)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, query url.Values, payload any) (*Response, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "transport"))

	target := t.URL(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	b, err := marshalBody(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s payload: %w", method, target, err)
	}
	var body any
	if b != nil {
		body = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if b != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Log(ctx, slog.LevelDebug, "sending request",
		slog.String("method", method),
		slog.String("url", target),
	)
	resp, err := t.client.Do(req)
	if err != nil {
		var terr *models.TransportError
		if errors.As(err, &terr) {
			terr.Method = method
			terr.URL = target
			return nil, terr
		}
		return nil, &models.TransportError{Method: method, URL: target, Attempts: 1, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &models.TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Attempts: 1, Cause: err}
	}
	logger.Log(ctx, slog.LevelDebug, "received response",
		slog.String("method", method),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
	)
	return &Response{StatusCode: resp.StatusCode, URL: target, Body: data}, nil
}
