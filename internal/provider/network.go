package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
	"github.com/release-engineering/starmap-client-go/internal/transport"
)

// NetworkProvider forwards every operation to a StArMap server through a Transport.
// It is read-only: Store always fails.
type NetworkProvider struct {
	transport transport.Transport
	perPage   int
}

// NewNetworkProvider creates a provider using t. perPage is used by ListContent.
func NewNetworkProvider(t transport.Transport, perPage int) *NetworkProvider {
	if perPage < 1 {
		perPage = 100
	}
	return &NetworkProvider{transport: t, perPage: perPage}
}

func (p *NetworkProvider) Kind() string { return KindNetwork }

func (p *NetworkProvider) sealed() {}

// API returns the API level of the server behind the transport
func (p *NetworkProvider) API() string {
	return p.transport.APIVersion()
}

func (p *NetworkProvider) logger(ctx context.Context) *slog.Logger {
	return slogcontext.FromCtx(ctx).With(slog.String("realm", "provider"))
}

// Query asks the server to resolve q; a 404 means no mapping is defined for it
func (p *NetworkProvider) Query(ctx context.Context, q models.Query) (*models.QueryResponse, error) {
	rsp, err := p.transport.Get(ctx, "query", q.Values())
	if err != nil {
		return nil, err
	}
	if rsp.NotFound() {
		p.logger(ctx).Log(ctx, slog.LevelError, fmt.Sprintf("Marketplace mappings not defined for %s", q))
		return nil, &models.NotFoundError{Resource: "query", Key: q.String()}
	}
	if err := rsp.Err(http.MethodGet); err != nil {
		return nil, err
	}

	var out models.QueryResponse
	if err := rsp.Decode("query response", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryContainer asks an APIv2 server to resolve q. The answer lists one entity per policy and
// cloud; a 404 means no mapping is defined for the artifact.
func (p *NetworkProvider) QueryContainer(ctx context.Context, q models.Query) (*models.QueryResponseContainer, error) {
	rsp, err := p.transport.Get(ctx, "query", q.Values())
	if err != nil {
		return nil, err
	}
	if rsp.NotFound() {
		p.logger(ctx).Log(ctx, slog.LevelError, fmt.Sprintf("Marketplace mappings not defined for %s", q))
		return nil, &models.NotFoundError{Resource: "query", Key: q.String()}
	}
	if err := rsp.Err(http.MethodGet); err != nil {
		return nil, err
	}
	return models.DecodeQueryResponseContainer(rsp.Body)
}

// Store is not supported by the remote catalog
func (p *NetworkProvider) Store(_ context.Context, _ []models.Policy) error {
	return &models.UnsupportedOperationError{Provider: KindNetwork, Operation: "store"}
}

// ListContent walks the whole paginated policy listing
func (p *NetworkProvider) ListContent(ctx context.Context) ([]models.Policy, error) {
	return Paginate(ctx, p, p.perPage, nil, nil)
}

// ListPolicies fetches one page of policies. Filters are sent as query parameters and
// evaluated by the server; a 400 answer to a filtered listing means a filter was rejected.
func (p *NetworkProvider) ListPolicies(ctx context.Context, req models.PageRequest) (*models.PolicyPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(req.Page))
	params.Set("per_page", strconv.Itoa(req.PerPage))
	filters := make([]string, 0, len(req.Filters))
	for k, v := range req.Filters {
		if k == "page" || k == "per_page" {
			return nil, &models.UnsupportedFilterError{Provider: KindNetwork, Filter: k}
		}
		params.Set(k, v)
		filters = append(filters, k)
	}
	sort.Strings(filters)

	rsp, err := p.transport.Get(ctx, "policy", params)
	if err != nil {
		return nil, err
	}
	switch {
	case rsp.NotFound() && req.Page == 1:
		p.logger(ctx).Log(ctx, slog.LevelError, "No policies registered in StArMap.")
		return nil, &models.NotFoundError{Resource: "policies", Key: params.Encode()}
	case rsp.StatusCode == http.StatusBadRequest && len(filters) > 0:
		return nil, &models.UnsupportedFilterError{Provider: KindNetwork, Filter: strings.Join(filters, ",")}
	}
	if err := rsp.Err(http.MethodGet); err != nil {
		return nil, err
	}

	var page models.PolicyPage
	if err := rsp.Decode("policy page", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (p *NetworkProvider) GetPolicy(ctx context.Context, id string) (*models.Policy, error) {
	var out models.Policy
	if err := p.get(ctx, "policy", "Policy", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *NetworkProvider) GetMapping(ctx context.Context, id string) (*models.Mapping, error) {
	var out models.Mapping
	if err := p.get(ctx, "mapping", "Marketplace Mapping", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *NetworkProvider) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	var out models.Destination
	if err := p.get(ctx, "destination", "Destination", id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a point lookup on <resource>/<id>
func (p *NetworkProvider) get(ctx context.Context, resource, label, id string, out any) error {
	rsp, err := p.transport.Get(ctx, resource+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if rsp.NotFound() {
		p.logger(ctx).Log(ctx, slog.LevelError, fmt.Sprintf("%s not found with ID = %q", label, id))
		return &models.NotFoundError{Resource: resource, Key: id}
	}
	if err := rsp.Err(http.MethodGet); err != nil {
		return err
	}
	return rsp.Decode(resource, out)
}
