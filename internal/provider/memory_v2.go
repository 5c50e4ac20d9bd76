package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// InMemoryProviderV2 answers APIv2 queries from query response entities held in memory.
// Entities are keyed by name, workflow and cloud; the v1 policy operations are not available.
type InMemoryProviderV2 struct {
	mu       sync.RWMutex
	entities []models.QueryResponseEntity
}

// NewInMemoryProviderV2 creates a provider holding entities. entities may be empty.
func NewInMemoryProviderV2(entities []models.QueryResponseEntity) (*InMemoryProviderV2, error) {
	p := &InMemoryProviderV2{}
	for _, e := range entities {
		if err := p.StoreEntity(context.Background(), e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *InMemoryProviderV2) Kind() string { return KindMemory }

func (p *InMemoryProviderV2) API() string { return models.APIv2 }

func (p *InMemoryProviderV2) sealed() {}

// StoreEntity validates e and stores a copy of it, replacing an entity with the same
// name, workflow and cloud.
func (p *InMemoryProviderV2) StoreEntity(ctx context.Context, e models.QueryResponseEntity) error {
	if err := models.ValidateEntity(e); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}
	e = e.Clone()
	e.Normalize()

	p.mu.Lock()
	replaced := false
	for i := range p.entities {
		if p.entities[i].Key() == e.Key() {
			p.entities[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		p.entities = append(p.entities, e)
	}
	p.mu.Unlock()

	slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "stored query response entity",
		slog.String("realm", "provider"),
		slog.String("entity", e.Key()),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// Entities returns a copy of the stored entities in the order they were first stored
func (p *InMemoryProviderV2) Entities() []models.QueryResponseEntity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.QueryResponseEntity, 0, len(p.entities))
	for _, e := range p.entities {
		out = append(out, e.Clone())
	}
	return out
}

// QueryContainer returns every entity of the queried name. The name comes from the NVR when
// q.Image is set. A workflow narrows the result, as does a "cloud" param.
func (p *InMemoryProviderV2) QueryContainer(ctx context.Context, q models.Query) (*models.QueryResponseContainer, error) {
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "provider"))

	name := q.Name
	if name == "" && q.Image != "" {
		nvr, err := models.ParseNVR(q.Image)
		if err != nil {
			return nil, fmt.Errorf("invalid image %q: %w", q.Image, err)
		}
		name = nvr.Name
	}
	filters := map[string]string{"name": name}
	if q.Workflow != "" {
		filters["workflow"] = string(q.Workflow)
	}
	if cloud := q.Params["cloud"]; cloud != "" {
		filters["cloud"] = cloud
	}

	p.mu.RLock()
	all := &models.QueryResponseContainer{Responses: p.entities}
	matched, err := all.FilterBy(filters)
	p.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		logger.Log(ctx, slog.LevelError, fmt.Sprintf("Marketplace mappings not defined for %s", q))
		return nil, &models.NotFoundError{Resource: "query", Key: q.String()}
	}
	logger.Log(ctx, slog.LevelDebug, "matched query response entities",
		slog.String("name", name),
		slog.Int("entities", len(matched)),
	)
	return &models.QueryResponseContainer{Responses: matched}, nil
}

func (p *InMemoryProviderV2) unsupported(op string) error {
	return &models.UnsupportedOperationError{Provider: KindMemory, Operation: op}
}

// Query is the APIv1 resolution; use QueryContainer
func (p *InMemoryProviderV2) Query(_ context.Context, _ models.Query) (*models.QueryResponse, error) {
	return nil, p.unsupported("v1 query")
}

// Store is the APIv1 policy replacement; use StoreEntity
func (p *InMemoryProviderV2) Store(_ context.Context, _ []models.Policy) error {
	return p.unsupported("store")
}

func (p *InMemoryProviderV2) ListContent(_ context.Context) ([]models.Policy, error) {
	return nil, p.unsupported("list content")
}

func (p *InMemoryProviderV2) ListPolicies(_ context.Context, _ models.PageRequest) (*models.PolicyPage, error) {
	return nil, p.unsupported("list policies")
}

func (p *InMemoryProviderV2) GetPolicy(_ context.Context, _ string) (*models.Policy, error) {
	return nil, p.unsupported("get policy")
}

func (p *InMemoryProviderV2) GetMapping(_ context.Context, _ string) (*models.Mapping, error) {
	return nil, p.unsupported("get mapping")
}

func (p *InMemoryProviderV2) GetDestination(_ context.Context, _ string) (*models.Destination, error) {
	return nil, p.unsupported("get destination")
}
