package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// memoryFilters are the listing filters the in-memory provider can evaluate
var memoryFilters = map[string]func(models.Policy, string) bool{
	"name":     func(p models.Policy, v string) bool { return p.Name == v },
	"workflow": func(p models.Policy, v string) bool { return string(p.Workflow) == v },
}

// InMemoryProvider resolves queries locally against a content set held in memory.
// Store swaps the whole content set at once; readers never observe a partial update.
type InMemoryProvider struct {
	mu      sync.RWMutex
	content []compiledPolicy
	index   map[string]int // Policy.Key() -> position in content
	combine PatternCombination
}

// MemoryOption is a functional option for InMemoryProvider configuration
type MemoryOption func(*InMemoryProvider)

// WithPatternCombination selects how fnmatch and regex patterns combine on one mapping
func WithPatternCombination(mode PatternCombination) MemoryOption {
	return func(p *InMemoryProvider) { p.combine = mode }
}

// NewInMemoryProvider creates a provider holding content. content may be empty.
func NewInMemoryProvider(content []models.Policy, options ...MemoryOption) (*InMemoryProvider, error) {
	p := &InMemoryProvider{combine: CombineAll}
	for _, opt := range options {
		opt(p)
	}
	if err := p.Store(context.Background(), content); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *InMemoryProvider) Kind() string { return KindMemory }

func (p *InMemoryProvider) API() string { return models.APIv1 }

func (p *InMemoryProvider) sealed() {}

// QueryContainer is an APIv2 operation; use InMemoryProviderV2 for it
func (p *InMemoryProvider) QueryContainer(_ context.Context, _ models.Query) (*models.QueryResponseContainer, error) {
	return nil, &models.UnsupportedOperationError{Provider: KindMemory, Operation: "v2 query"}
}

// Store validates content and replaces the current content set with a private copy of it
func (p *InMemoryProvider) Store(ctx context.Context, content []models.Policy) error {
	if err := models.ValidateContent(content); err != nil {
		return fmt.Errorf("invalid content: %w", err)
	}

	compiled := make([]compiledPolicy, 0, len(content))
	index := make(map[string]int, len(content))
	for _, pol := range models.ClonePolicies(content) {
		cp, err := compilePolicy(pol)
		if err != nil {
			return fmt.Errorf("invalid content: policy %s: %w", pol.Name, err)
		}
		index[pol.Key()] = len(compiled)
		compiled = append(compiled, cp)
	}

	p.mu.Lock()
	p.content = compiled
	p.index = index
	p.mu.Unlock()

	slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "stored policy content",
		slog.String("realm", "provider"),
		slog.Int("policies", len(compiled)),
	)
	return nil
}

// ListContent returns a copy of the stored policies in the order they were stored
func (p *InMemoryProvider) ListContent(_ context.Context) ([]models.Policy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Policy, 0, len(p.content))
	for _, cp := range p.content {
		out = append(out, cp.policy.Clone())
	}
	return out, nil
}

// Query selects the policy by name and workflow, then the first mapping matching the version.
// When q.Image is set, name and version are taken from the NVR unless given explicitly.
func (p *InMemoryProvider) Query(ctx context.Context, q models.Query) (*models.QueryResponse, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "provider"))

	name, version := q.Name, q.Version
	if q.Image != "" {
		nvr, err := models.ParseNVR(q.Image)
		if err != nil {
			return nil, fmt.Errorf("invalid image %q: %w", q.Image, err)
		}
		if name == "" {
			name = nvr.Name
		}
		if version == "" {
			version = nvr.Version
		}
	}
	for k := range q.Params {
		logger.Log(ctx, slog.LevelDebug, "ignoring query parameter", slog.String("param", k))
	}

	key := models.Policy{Name: name, Workflow: q.Workflow}.Key()

	p.mu.RLock()
	defer p.mu.RUnlock()

	i, ok := p.index[key]
	if !ok {
		logger.Log(ctx, slog.LevelError, fmt.Sprintf("Marketplace mappings not defined for %s", q))
		return nil, &models.NotFoundError{Resource: "policy", Key: fmt.Sprintf("name=%s workflow=%s", name, q.Workflow)}
	}
	cp := p.content[i]

	idx := cp.selectMapping(version, p.combine)
	if idx < 0 {
		logger.Log(ctx, slog.LevelError, fmt.Sprintf("No mapping matches version %q of %s", version, name))
		return nil, &models.NotFoundError{
			Resource: "mapping",
			Key:      fmt.Sprintf("name=%s version=%s workflow=%s", name, version, q.Workflow),
		}
	}
	logger.Log(ctx, slog.LevelDebug, "matched mapping",
		slog.String("policy", name),
		slog.String("version", version),
		slog.Int("mapping", idx),
		slog.String("account", cp.policy.Mappings[idx].MarketplaceAccount),
	)
	return models.ResolveMapping(cp.policy, cp.policy.Mappings[idx]), nil
}

// ListPolicies slices the stored content into pages. Only name and workflow filters are supported.
func (p *InMemoryProvider) ListPolicies(_ context.Context, req models.PageRequest) (*models.PolicyPage, error) {
	for f := range req.Filters {
		if _, ok := memoryFilters[f]; !ok {
			return nil, &models.UnsupportedFilterError{Provider: KindMemory, Filter: f}
		}
	}
	if req.Page < 1 || req.PerPage < 1 {
		return nil, fmt.Errorf("invalid page request: page=%d per_page=%d", req.Page, req.PerPage)
	}

	p.mu.RLock()
	var matched []models.Policy
	for _, cp := range p.content {
		keep := true
		for f, v := range req.Filters {
			if !memoryFilters[f](cp.policy, v) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, cp.policy)
		}
	}
	p.mu.RUnlock()

	total := len(matched)
	totalPages := (total + req.PerPage - 1) / req.PerPage
	start := (req.Page - 1) * req.PerPage
	if start > total {
		start = total
	}
	end := start + req.PerPage
	if end > total {
		end = total
	}

	nav := &models.PaginationMetadata{
		First:      pageLink(1, req.PerPage),
		Last:       pageLink(max(totalPages, 1), req.PerPage),
		Page:       req.Page,
		PerPage:    req.PerPage,
		Total:      total,
		TotalPages: totalPages,
	}
	if req.Page < totalPages {
		next := pageLink(req.Page+1, req.PerPage)
		nav.Next = &next
	}
	if req.Page > 1 {
		prev := pageLink(req.Page-1, req.PerPage)
		nav.Previous = &prev
	}
	return &models.PolicyPage{Items: models.ClonePolicies(matched[start:end]), Nav: nav}, nil
}

func pageLink(page, perPage int) string {
	return fmt.Sprintf("memory://policy?page=%d&per_page=%d", page, perPage)
}

func (p *InMemoryProvider) GetPolicy(_ context.Context, id string) (*models.Policy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cp := range p.content {
		if id != "" && cp.policy.ID == id {
			out := cp.policy.Clone()
			return &out, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "policy", Key: id}
}

func (p *InMemoryProvider) GetMapping(_ context.Context, id string) (*models.Mapping, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cp := range p.content {
		for _, m := range cp.policy.Mappings {
			if id != "" && m.ID == id {
				out := m.Clone()
				return &out, nil
			}
		}
	}
	return nil, &models.NotFoundError{Resource: "mapping", Key: id}
}

func (p *InMemoryProvider) GetDestination(_ context.Context, id string) (*models.Destination, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cp := range p.content {
		for _, m := range cp.policy.Mappings {
			for _, d := range m.Destinations {
				if id != "" && d.ID == id {
					out := d.Clone()
					return &out, nil
				}
			}
		}
	}
	return nil, &models.NotFoundError{Resource: "destination", Key: id}
}
