package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/release-engineering/starmap-client-go/internal/provider"
	"github.com/release-engineering/starmap-client-go/internal/transport"
)

// DefaultPageSize is the number of policies requested per page
const DefaultPageSize = 100

// Option is a functional option for Client configuration
type Option func(*options)

type options struct {
	url           string
	apiVersion    string
	transport     transport.Transport
	provider      provider.Provider
	pageSize      int
	retries       int
	backoffFactor time.Duration
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
	observer      provider.PageObserver
}

func defaultOptions() *options {
	return &options{
		apiVersion:    transport.DefaultAPIVersion,
		pageSize:      DefaultPageSize,
		retries:       transport.DefaultRetries,
		backoffFactor: transport.DefaultBackoffFactor,
		timeout:       transport.DefaultTimeout,
	}
}

// WithURL sets the StArMap endpoint. It cannot be combined with WithTransport or WithProvider.
func WithURL(u string) Option {
	return func(o *options) { o.url = u }
}

// WithAPIVersion sets the API version, "v1" by default. It must match the API of the
// provider or transport the client is built on.
func WithAPIVersion(v string) Option {
	return func(o *options) { o.apiVersion = v }
}

// WithTransport uses a pre-built transport, such as a MockTransport, instead of dialing a URL
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithProvider uses p directly, e.g. an InMemoryProvider for offline resolution
func WithProvider(p provider.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithPageSize sets how many policies are requested per page
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithRetries sets the retry count of the HTTP transport built from WithURL
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithBackoffFactor sets the backoff factor of the HTTP transport built from WithURL
func WithBackoffFactor(d time.Duration) Option {
	return func(o *options) { o.backoffFactor = d }
}

// WithTimeout sets the request timeout of the HTTP transport built from WithURL
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient sets the *http.Client used by the HTTP transport built from WithURL
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger attached to the context of every client call
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPageObserver registers a callback invoked after each fetched policy page
func WithPageObserver(fn provider.PageObserver) Option {
	return func(o *options) { o.observer = fn }
}
