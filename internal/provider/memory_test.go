package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

func dest(provider, id string) models.Destination {
	return models.Destination{Destination: id, Defaults: models.Defaults{Provider: provider}}
}

func policy(name string, mappings ...models.Mapping) models.Policy {
	return models.Policy{Name: name, Workflow: models.WorkflowStratosphere, Mappings: mappings}
}

func newMemory(t *testing.T, content []models.Policy, opts ...MemoryOption) *InMemoryProvider {
	t.Helper()
	p, err := NewInMemoryProvider(content, opts...)
	require.NoError(t, err)
	return p
}

func query(name, version string) models.Query {
	return models.Query{Name: name, Version: version, Workflow: models.WorkflowStratosphere}
}

func TestInMemoryQueryEndToEnd(t *testing.T) {
	p := newMemory(t, []models.Policy{{
		Name:     "sample-product",
		Workflow: models.WorkflowStratosphere,
		Mappings: []models.Mapping{{
			MarketplaceAccount: "acct1",
			Destinations: []models.Destination{{
				Destination: "ami-1",
				Defaults:    models.Defaults{Provider: "aws", Overwrite: models.Bool(false)},
			}},
		}},
	}})

	rsp, err := p.Query(context.Background(), query("sample-product", "1.0"))
	require.NoError(t, err)
	assert.Equal(t, &models.QueryResponse{
		Name:     "sample-product",
		Workflow: models.WorkflowStratosphere,
		Clouds: map[string][]models.Destination{
			"aws": {{
				Destination:        "ami-1",
				MarketplaceAccount: "acct1",
				Defaults:           models.Defaults{Provider: "aws", Overwrite: models.Bool(false)},
			}},
		},
	}, rsp)
}

func TestInMemoryMatchingPrecedence(t *testing.T) {
	p := newMemory(t, []models.Policy{policy("product",
		models.Mapping{MarketplaceAccount: "first", VersionFnmatch: "1.*", Destinations: []models.Destination{dest("aws", "ami-1")}},
		models.Mapping{MarketplaceAccount: "wildcard", Destinations: []models.Destination{dest("aws", "ami-2")}},
		models.Mapping{MarketplaceAccount: "never", VersionFnmatch: "2.*", Destinations: []models.Destination{dest("aws", "ami-3")}},
	)})

	tests := []struct {
		version string
		account string
	}{
		{"1.5", "first"},
		{"1.0.1", "first"},
		{"2.0", "wildcard"},
		{"", "wildcard"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			rsp, err := p.Query(context.Background(), query("product", tt.version))
			require.NoError(t, err)
			require.Len(t, rsp.Clouds["aws"], 1)
			assert.Equal(t, tt.account, rsp.Clouds["aws"][0].MarketplaceAccount)
		})
	}
}

func TestInMemoryNoMatchIsError(t *testing.T) {
	p := newMemory(t, []models.Policy{policy("product",
		models.Mapping{MarketplaceAccount: "acct", VersionFnmatch: "1.*", Destinations: []models.Destination{dest("aws", "ami-1")}},
	)})

	rsp, err := p.Query(context.Background(), query("product", "2.0"))
	assert.Nil(t, rsp)
	var nerr *models.NotFoundError
	require.True(t, errors.As(err, &nerr), "got %v", err)
	assert.Equal(t, "mapping", nerr.Resource)

	_, err = p.Query(context.Background(), query("unknown", "1.0"))
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "policy", nerr.Resource)

	// the workflow is part of the policy identity
	_, err = p.Query(context.Background(), models.Query{Name: "product", Version: "1.0", Workflow: models.WorkflowCommunity})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInMemoryPatternCombination(t *testing.T) {
	content := []models.Policy{policy("product",
		models.Mapping{
			MarketplaceAccount: "both",
			VersionFnmatch:     "8.*",
			VersionRegexmatch:  `8\.[0-4]$`,
			Destinations:       []models.Destination{dest("aws", "ami-1")},
		},
		models.Mapping{MarketplaceAccount: "fallback", Destinations: []models.Destination{dest("aws", "ami-2")}},
	)}

	tests := []struct {
		version string
		all     string
		any     string
	}{
		{"8.2", "both", "both"},     // both patterns match
		{"8.9", "fallback", "both"}, // only the glob matches
		{"9.0", "fallback", "fallback"},
	}
	all := newMemory(t, content)
	anyOf := newMemory(t, content, WithPatternCombination(CombineAny))
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			rsp, err := all.Query(context.Background(), query("product", tt.version))
			require.NoError(t, err)
			assert.Equal(t, tt.all, rsp.Clouds["aws"][0].MarketplaceAccount)

			rsp, err = anyOf.Query(context.Background(), query("product", tt.version))
			require.NoError(t, err)
			assert.Equal(t, tt.any, rsp.Clouds["aws"][0].MarketplaceAccount)
		})
	}
}

func TestInMemoryRegexOnly(t *testing.T) {
	p := newMemory(t, []models.Policy{policy("product",
		models.Mapping{MarketplaceAccount: "rhel9", VersionRegexmatch: `9\.\d+`, Destinations: []models.Destination{dest("aws", "ami-9")}},
	)})

	_, err := p.Query(context.Background(), query("product", "9.4"))
	require.NoError(t, err)
	_, err = p.Query(context.Background(), query("product", "19.4"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInMemoryQueryByImage(t *testing.T) {
	p := newMemory(t, []models.Policy{policy("product",
		models.Mapping{MarketplaceAccount: "acct", VersionFnmatch: "8.*", Destinations: []models.Destination{dest("aws", "ami-1")}},
	)})

	rsp, err := p.Query(context.Background(), models.Query{Image: "product-8.6-20240101.raw.xz", Workflow: models.WorkflowStratosphere})
	require.NoError(t, err)
	assert.Equal(t, "product", rsp.Name)

	_, err = p.Query(context.Background(), models.Query{Image: "product", Workflow: models.WorkflowStratosphere})
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestInMemoryStoreReplacesContent(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, []models.Policy{policy("old",
		models.Mapping{MarketplaceAccount: "acct", Destinations: []models.Destination{dest("aws", "ami-1")}},
	)})

	content := []models.Policy{policy("new",
		models.Mapping{MarketplaceAccount: "acct", Destinations: []models.Destination{dest("aws", "ami-2")}},
	)}
	require.NoError(t, p.Store(ctx, content))

	_, err := p.Query(ctx, query("old", "1"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = p.Query(ctx, query("new", "1"))
	require.NoError(t, err)

	// the provider keeps its own copy
	content[0].Name = "mutated"
	listed, err := p.ListContent(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "new", listed[0].Name)

	listed[0].Mappings[0].MarketplaceAccount = "mutated"
	rsp, err := p.Query(ctx, query("new", "1"))
	require.NoError(t, err)
	assert.Equal(t, "acct", rsp.Clouds["aws"][0].MarketplaceAccount)
}

func TestInMemoryStoreRejectsInvalidContent(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, []models.Policy{policy("keep",
		models.Mapping{MarketplaceAccount: "acct", Destinations: []models.Destination{dest("aws", "ami-1")}},
	)})

	err := p.Store(ctx, []models.Policy{policy("bad",
		models.Mapping{MarketplaceAccount: "acct", VersionRegexmatch: "(", Destinations: []models.Destination{dest("aws", "ami-1")}},
	)})
	require.Error(t, err)

	// the previous content is still served
	_, err = p.Query(ctx, query("keep", "1"))
	require.NoError(t, err)
}

func TestInMemoryConcurrentStoreAndQuery(t *testing.T) {
	ctx := context.Background()
	gen := func(account string) []models.Policy {
		return []models.Policy{policy("product",
			models.Mapping{MarketplaceAccount: account, Destinations: []models.Destination{dest("aws", "ami-"+account)}},
		)}
	}
	p := newMemory(t, gen("a"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = p.Store(ctx, gen(fmt.Sprintf("%d-%d", i, j)))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rsp, err := p.Query(ctx, query("product", "1"))
				if err != nil {
					t.Error(err)
					return
				}
				d := rsp.Clouds["aws"][0]
				if d.Destination != "ami-"+d.MarketplaceAccount {
					t.Errorf("torn read: %s vs %s", d.Destination, d.MarketplaceAccount)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestInMemoryListPolicies(t *testing.T) {
	ctx := context.Background()
	var content []models.Policy
	for i := 0; i < 5; i++ {
		p := policy(fmt.Sprintf("p%d", i),
			models.Mapping{MarketplaceAccount: "acct", Destinations: []models.Destination{dest("aws", "ami")}},
		)
		if i%2 == 1 {
			p.Workflow = models.WorkflowCommunity
		}
		content = append(content, p)
	}
	p := newMemory(t, content)

	page, err := p.ListPolicies(ctx, models.PageRequest{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "p2", page.Items[0].Name)
	assert.Equal(t, "p3", page.Items[1].Name)
	assert.Equal(t, 5, page.Nav.Total)
	assert.Equal(t, 3, page.Nav.TotalPages)
	assert.True(t, page.HasNext())
	require.NotNil(t, page.Nav.Previous)

	page, err = p.ListPolicies(ctx, models.PageRequest{Page: 3, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasNext())

	page, err = p.ListPolicies(ctx, models.PageRequest{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = p.ListPolicies(ctx, models.PageRequest{Page: 1, PerPage: 10, Filters: map[string]string{"workflow": "community"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "p1", page.Items[0].Name)
	assert.Equal(t, "p3", page.Items[1].Name)

	_, err = p.ListPolicies(ctx, models.PageRequest{Page: 1, PerPage: 10, Filters: map[string]string{"arch": "x86_64"}})
	var ferr *models.UnsupportedFilterError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "arch", ferr.Filter)

	_, err = p.ListPolicies(ctx, models.PageRequest{Page: 0, PerPage: 10})
	require.Error(t, err)
}

func TestInMemoryPointLookups(t *testing.T) {
	ctx := context.Background()
	pol := policy("product", models.Mapping{
		ID:                 "m1",
		MarketplaceAccount: "acct",
		Destinations:       []models.Destination{{ID: "d1", Destination: "ami-1", Defaults: models.Defaults{Provider: "aws"}}},
	})
	pol.ID = "p1"
	p := newMemory(t, []models.Policy{pol})

	got, err := p.GetPolicy(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "product", got.Name)

	m, err := p.GetMapping(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "acct", m.MarketplaceAccount)

	d, err := p.GetDestination(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "ami-1", d.Destination)

	for _, lookup := range []func() error{
		func() error { _, err := p.GetPolicy(ctx, "missing"); return err },
		func() error { _, err := p.GetMapping(ctx, "missing"); return err },
		func() error { _, err := p.GetDestination(ctx, "missing"); return err },
		func() error { _, err := p.GetPolicy(ctx, ""); return err },
	} {
		assert.ErrorIs(t, lookup(), models.ErrNotFound)
	}
}
