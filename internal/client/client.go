// Package client implements the StArMap resolver: a paginated and cached view of the policies
// visible to a provider, plus query operations layered over the provider.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"

	"github.com/release-engineering/starmap-client-go/internal/models"
	"github.com/release-engineering/starmap-client-go/internal/provider"
	"github.com/release-engineering/starmap-client-go/internal/transport"
)

const policiesKey = "policies"

// Client resolves artifacts to marketplace destinations through a Provider.
// The unfiltered policy listing is fetched at most once per Client and kept for its lifetime.
type Client struct {
	provider   provider.Provider
	apiVersion string
	pageSize   int
	observer provider.PageObserver
	logger   *slog.Logger

	sf        singleflight.Group
	mu        sync.RWMutex
	populated bool
	policies  []models.Policy
}

// New creates a Client. Exactly one source must be configured: a URL, a transport or a provider.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.apiVersion == "" {
		o.apiVersion = transport.DefaultAPIVersion
	}
	if o.pageSize < 1 {
		return nil, &models.ConfigurationError{Field: "page_size", Message: fmt.Sprintf("must be positive, got %d", o.pageSize)}
	}

	sources := 0
	for _, set := range []bool{o.url != "", o.transport != nil, o.provider != nil} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, &models.ConfigurationError{Field: "url", Message: "either a URL, a transport or a provider is required"}
	case sources > 1:
		return nil, &models.ConfigurationError{Field: "url", Message: "a URL, a transport and a provider are mutually exclusive"}
	}

	p := o.provider
	if p == nil {
		t := o.transport
		if t == nil {
			httpOpts := []transport.HTTPOption{
				transport.WithRetries(o.retries),
				transport.WithBackoffFactor(o.backoffFactor),
				transport.WithTimeout(o.timeout),
			}
			if o.httpClient != nil {
				httpOpts = append(httpOpts, transport.WithHTTPClient(o.httpClient))
			}
			if o.logger != nil {
				httpOpts = append(httpOpts, transport.WithLogger(o.logger))
			}
			ht, err := transport.NewHTTPTransport(o.url, o.apiVersion, httpOpts...)
			if err != nil {
				return nil, err
			}
			t = ht
		}
		p = provider.NewNetworkProvider(t, o.pageSize)
	}
	if p.API() != o.apiVersion {
		return nil, &models.ConfigurationError{
			Field:   "api_version",
			Message: fmt.Sprintf("API mismatch: provider has API %s but the client expects %s", p.API(), o.apiVersion),
		}
	}

	return &Client{
		provider:   p,
		apiVersion: o.apiVersion,
		pageSize:   o.pageSize,
		observer:   o.observer,
		logger:     o.logger,
	}, nil
}

// APIVersion returns the API level the client and its provider speak
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// Provider returns the provider the client resolves through
func (c *Client) Provider() provider.Provider {
	return c.provider
}

func (c *Client) withLogger(ctx context.Context) (context.Context, *slog.Logger) {
	if c.logger != nil {
		ctx = slogcontext.NewCtx(ctx, c.logger)
	}
	return ctx, slogcontext.FromCtx(ctx).With(slog.String("realm", "client"))
}

// Policies returns every policy visible to the provider, in listing order. The first call walks
// the paginated listing; later calls return the cached snapshot without any request. Concurrent
// first calls share a single fetch. A failed fetch is not cached.
func (c *Client) Policies(ctx context.Context) ([]models.Policy, error) {
	if cached, ok := c.cached(); ok {
		return cached, nil
	}

	ctx, logger := c.withLogger(ctx)
	_, err, shared := c.sf.Do(policiesKey, func() (any, error) {
		if _, ok := c.cached(); ok {
			return nil, nil
		}
		policies, err := provider.Paginate(ctx, c.provider, c.pageSize, nil, c.observer)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.policies = policies
		c.populated = true
		c.mu.Unlock()
		logger.Log(ctx, slog.LevelDebug, "policy cache populated", slog.Int("policies", len(policies)))
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	if shared {
		logger.Log(ctx, slog.LevelDebug, "shared in-flight policy listing")
	}

	cached, _ := c.cached()
	return cached, nil
}

// cached returns a copy of the snapshot so callers can not alter it
func (c *Client) cached() ([]models.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.populated {
		return nil, false
	}
	return models.ClonePolicies(c.policies), true
}

// ListPolicies returns the cached policy listing. With filters, the listing is requested from the
// provider with the filters applied there; filtered results are not cached.
func (c *Client) ListPolicies(ctx context.Context, filters map[string]string) ([]models.Policy, error) {
	if len(filters) == 0 {
		return c.Policies(ctx)
	}
	ctx, _ = c.withLogger(ctx)
	policies, err := provider.Paginate(ctx, c.provider, c.pageSize, filters, c.observer)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// GetPolicy looks up one policy by ID without touching the policy cache
func (c *Client) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	ctx, _ = c.withLogger(ctx)
	return c.provider.GetPolicy(ctx, id)
}

// ListMappings returns the mappings of the policy with the given ID
func (c *Client) ListMappings(ctx context.Context, policyID string) ([]models.Mapping, error) {
	p, err := c.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	return p.Mappings, nil
}

// GetMapping looks up one mapping by ID
func (c *Client) GetMapping(ctx context.Context, id string) (*models.Mapping, error) {
	ctx, _ = c.withLogger(ctx)
	return c.provider.GetMapping(ctx, id)
}

// ListDestinations returns the destinations of the mapping with the given ID
func (c *Client) ListDestinations(ctx context.Context, mappingID string) ([]models.Destination, error) {
	m, err := c.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return m.Destinations, nil
}

// GetDestination looks up one destination by ID
func (c *Client) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	ctx, _ = c.withLogger(ctx)
	return c.provider.GetDestination(ctx, id)
}

// QueryImage resolves the destinations of name at version. An empty workflow means stratosphere.
// params are passed to the provider unchanged.
func (c *Client) QueryImage(ctx context.Context, name, version string, workflow models.Workflow, params map[string]string) (*models.QueryResponse, error) {
	return c.query(ctx, models.Query{
		Name:     name,
		Version:  version,
		Workflow: workflow,
		Params:   params,
	})
}

// QueryImageByName resolves name leaving the choice of version to the provider. The optional
// "version" and "workflow" params are lifted into the query, anything else is passed through.
func (c *Client) QueryImageByName(ctx context.Context, name string, params map[string]string) (*models.QueryResponse, error) {
	q := models.Query{Name: name}
	for k, v := range params {
		switch k {
		case "version":
			q.Version = v
		case "workflow":
			q.Workflow = models.Workflow(v)
		default:
			if q.Params == nil {
				q.Params = make(map[string]string, len(params))
			}
			q.Params[k] = v
		}
	}
	return c.query(ctx, q)
}

// QueryImageByNVR resolves a build identified by its NVR, e.g. "product-1.0-1.raw.xz"
func (c *Client) QueryImageByNVR(ctx context.Context, nvr string, workflow models.Workflow) (*models.QueryResponse, error) {
	if _, err := models.ParseNVR(nvr); err != nil {
		return nil, fmt.Errorf("invalid NVR %q: %w", nvr, err)
	}
	return c.query(ctx, models.Query{Image: nvr, Workflow: workflow})
}

func (c *Client) query(ctx context.Context, q models.Query) (*models.QueryResponse, error) {
	if c.apiVersion != models.APIv1 {
		return nil, &models.ConfigurationError{
			Field:   "api_version",
			Message: fmt.Sprintf("classic queries need API %s, the client uses %s", models.APIv1, c.apiVersion),
		}
	}
	if q.Workflow == "" {
		q.Workflow = models.WorkflowStratosphere
	}
	if !q.Workflow.Valid() {
		return nil, &models.ValidationError{Field: "workflow", Message: fmt.Sprintf("unknown workflow %q", q.Workflow)}
	}
	ctx, logger := c.withLogger(ctx)
	logger.Log(ctx, slog.LevelDebug, "querying destinations",
		slog.String("provider", c.provider.Kind()),
		slog.String("query", q.String()),
	)
	return c.provider.Query(ctx, q)
}

// QueryContainer resolves q against an APIv2 provider. Unlike the classic queries no workflow
// is assumed: an empty workflow returns the entities of every workflow.
func (c *Client) QueryContainer(ctx context.Context, q models.Query) (*models.QueryResponseContainer, error) {
	if c.apiVersion != models.APIv2 {
		return nil, &models.ConfigurationError{
			Field:   "api_version",
			Message: fmt.Sprintf("container queries need API %s, the client uses %s", models.APIv2, c.apiVersion),
		}
	}
	if q.Workflow != "" && !q.Workflow.Valid() {
		return nil, &models.ValidationError{Field: "workflow", Message: fmt.Sprintf("unknown workflow %q", q.Workflow)}
	}
	if q.Image != "" {
		if _, err := models.ParseNVR(q.Image); err != nil {
			return nil, fmt.Errorf("invalid NVR %q: %w", q.Image, err)
		}
	}
	ctx, logger := c.withLogger(ctx)
	logger.Log(ctx, slog.LevelDebug, "querying v2 destinations",
		slog.String("provider", c.provider.Kind()),
		slog.String("query", q.String()),
	)
	return c.provider.QueryContainer(ctx, q)
}
