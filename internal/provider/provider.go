// Package provider abstracts where StArMap policy content comes from. A NetworkProvider asks a
// StArMap server; an InMemoryProvider resolves queries locally against a loaded content set and
// an InMemoryProviderV2 answers APIv2 queries from stored query response entities.
package provider

import (
	"context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

const (
	KindNetwork = "network"
	KindMemory  = "memory"
)

// Provider is a source of policy content. The set of implementations is closed:
// NetworkProvider, InMemoryProvider and InMemoryProviderV2.
type Provider interface {
	// Kind returns KindNetwork or KindMemory
	Kind() string
	// API returns the API level the provider answers, models.APIv1 or models.APIv2
	API() string

	// Query resolves the destinations of a single artifact
	Query(ctx context.Context, q models.Query) (*models.QueryResponse, error)
	// QueryContainer resolves a single artifact into APIv2 entities, one per policy and cloud
	QueryContainer(ctx context.Context, q models.Query) (*models.QueryResponseContainer, error)
	// Store replaces the whole backing content set
	Store(ctx context.Context, content []models.Policy) error
	// ListContent returns the complete backing content in listing order
	ListContent(ctx context.Context) ([]models.Policy, error)

	// ListPolicies returns one page of the policy listing
	ListPolicies(ctx context.Context, req models.PageRequest) (*models.PolicyPage, error)
	GetPolicy(ctx context.Context, id string) (*models.Policy, error)
	GetMapping(ctx context.Context, id string) (*models.Mapping, error)
	GetDestination(ctx context.Context, id string) (*models.Destination, error)

	sealed()
}

var (
	_ Provider = (*NetworkProvider)(nil)
	_ Provider = (*InMemoryProvider)(nil)
	_ Provider = (*InMemoryProviderV2)(nil)
)
