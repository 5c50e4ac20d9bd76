package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDestinationInheritsPolicyDefaults(t *testing.T) {
	p := Policy{
		Name:     "sample-product",
		Workflow: WorkflowStratosphere,
		Defaults: Defaults{Architecture: "x86_64", Provider: "aws"},
	}
	m := Mapping{MarketplaceAccount: "acct1"}
	d := Destination{Destination: "ami-1", Defaults: Defaults{Overwrite: Bool(false)}}

	got := ResolveDestination(p, m, d)
	assert.Equal(t, "x86_64", got.Architecture)
	assert.Equal(t, "aws", got.Provider)
	assert.Equal(t, "acct1", got.MarketplaceAccount)
	require.NotNil(t, got.Overwrite)
	assert.False(t, *got.Overwrite)
}

func TestResolveDestinationNearestWins(t *testing.T) {
	p := Policy{Defaults: Defaults{
		Provider:        "aws",
		Architecture:    "x86_64",
		Overwrite:       Bool(true),
		RestrictVersion: Bool(true),
		RestrictMajor:   Int(3),
		Tags:            map[string]string{"team": "cloud", "env": "prod"},
	}}
	m := Mapping{MarketplaceAccount: "acct", Defaults: Defaults{
		Architecture:  "aarch64",
		RestrictMajor: Int(2),
		Tags:          map[string]string{"env": "stage"},
	}}
	d := Destination{Destination: "dest", Defaults: Defaults{
		Overwrite:     Bool(false),
		RestrictMinor: Int(1),
		Tags:          map[string]string{"extra": "1"},
	}}

	got := ResolveDestination(p, m, d)
	assert.Equal(t, "aws", got.Provider)
	assert.Equal(t, "aarch64", got.Architecture)
	assert.False(t, BoolValue(got.Overwrite))
	assert.True(t, BoolValue(got.RestrictVersion))
	assert.Equal(t, 2, *got.RestrictMajor)
	assert.Equal(t, 1, *got.RestrictMinor)
	assert.Equal(t, map[string]string{"team": "cloud", "env": "stage", "extra": "1"}, got.Tags)

	// the inputs are left untouched
	assert.Equal(t, map[string]string{"team": "cloud", "env": "prod"}, p.Tags)
	assert.Equal(t, 3, *p.RestrictMajor)
	assert.True(t, *p.Overwrite)

	// the result does not alias the inputs
	*got.RestrictMajor = 10
	assert.Equal(t, 2, *m.RestrictMajor)
}

func TestResolveDestinationMergesMeta(t *testing.T) {
	p := Policy{Defaults: Defaults{Provider: "azure", Meta: map[string]any{
		"billing": map[string]any{"plan": "a", "sku": "x"},
		"owner":   "policy",
	}}}
	m := Mapping{MarketplaceAccount: "acct", Defaults: Defaults{Meta: map[string]any{
		"billing": map[string]any{"sku": "y"},
	}}}
	d := Destination{Destination: "offer/plan", Defaults: Defaults{Meta: map[string]any{
		"owner": "destination",
	}}}

	got := ResolveDestination(p, m, d)
	assert.Equal(t, map[string]any{
		"billing": map[string]any{"plan": "a", "sku": "y"},
		"owner":   "destination",
	}, got.Meta)
	assert.Equal(t, "x", p.Meta["billing"].(map[string]any)["sku"])
}

func TestResolveMappingGroupsByProvider(t *testing.T) {
	p := Policy{Name: "rhel", Workflow: WorkflowCommunity, Defaults: Defaults{Provider: "aws"}}
	m := Mapping{
		MarketplaceAccount: "acct",
		Destinations: []Destination{
			{Destination: "ami-1"},
			{Destination: "offer-1", Defaults: Defaults{Provider: "azure"}},
			{Destination: "ami-2"},
		},
	}

	rsp := ResolveMapping(p, m)
	assert.Equal(t, "rhel", rsp.Name)
	assert.Equal(t, WorkflowCommunity, rsp.Workflow)
	assert.Equal(t, []string{"aws", "azure"}, rsp.Providers())
	require.Len(t, rsp.DestinationsFor("aws"), 2)
	assert.Equal(t, "ami-1", rsp.DestinationsFor("aws")[0].Destination)
	assert.Equal(t, "ami-2", rsp.DestinationsFor("aws")[1].Destination)
	assert.Equal(t, "offer-1", rsp.DestinationsFor("azure")[0].Destination)
	assert.Empty(t, rsp.DestinationsFor("gcp"))
}

func TestMergeMeta(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
		want map[string]any
	}{
		{name: "both nil", want: nil},
		{name: "left only", a: map[string]any{"k": "v"}, want: map[string]any{"k": "v"}},
		{name: "right wins on scalars", a: map[string]any{"k": "a"}, b: map[string]any{"k": "b"}, want: map[string]any{"k": "b"}},
		{
			name: "nested objects merge",
			a:    map[string]any{"n": map[string]any{"x": 1, "y": 2}},
			b:    map[string]any{"n": map[string]any{"y": 3}},
			want: map[string]any{"n": map[string]any{"x": 1, "y": 3}},
		},
		{
			name: "object replaced by scalar",
			a:    map[string]any{"n": map[string]any{"x": 1}},
			b:    map[string]any{"n": "flat"},
			want: map[string]any{"n": "flat"},
		},
		{
			name: "lists are replaced",
			a:    map[string]any{"l": []any{1, 2}},
			b:    map[string]any{"l": []any{3}},
			want: map[string]any{"l": []any{3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeMeta(tt.a, tt.b))
		})
	}
}

func TestClonePoliciesIsDeep(t *testing.T) {
	src := []Policy{{
		Name:     "p",
		Workflow: WorkflowStratosphere,
		Defaults: Defaults{Tags: map[string]string{"a": "1"}, Meta: map[string]any{"n": map[string]any{"x": 1}}},
		Mappings: []Mapping{{
			MarketplaceAccount: "acct",
			Destinations:       []Destination{{Destination: "d", Defaults: Defaults{Overwrite: Bool(true)}}},
		}},
	}}

	cp := ClonePolicies(src)
	require.Equal(t, src, cp)

	cp[0].Tags["a"] = "2"
	cp[0].Meta["n"].(map[string]any)["x"] = 2
	cp[0].Mappings[0].MarketplaceAccount = "other"
	*cp[0].Mappings[0].Destinations[0].Overwrite = false

	assert.Equal(t, "1", src[0].Tags["a"])
	assert.Equal(t, 1, src[0].Meta["n"].(map[string]any)["x"])
	assert.Equal(t, "acct", src[0].Mappings[0].MarketplaceAccount)
	assert.True(t, *src[0].Mappings[0].Destinations[0].Overwrite)

	assert.Nil(t, ClonePolicies(nil))
}
