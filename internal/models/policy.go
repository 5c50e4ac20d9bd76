// Package models provides the StArMap policy data model shared by providers, the client and the CLI
package models

import (
	"fmt"
	"sort"
)

// Workflow names a resolution context which scopes the policies that apply to a query
type Workflow string

const (
	WorkflowStratosphere Workflow = "stratosphere"
	WorkflowCommunity    Workflow = "community"
)

// Workflows lists the workflows accepted in policy content
var Workflows = []Workflow{WorkflowStratosphere, WorkflowCommunity}

func (w Workflow) String() string {
	return string(w)
}

// Valid reports whether w is a known workflow
func (w Workflow) Valid() bool {
	for _, known := range Workflows {
		if w == known {
			return true
		}
	}
	return false
}

// ParseWorkflow converts a user supplied string into a Workflow
func ParseWorkflow(s string) (Workflow, error) {
	w := Workflow(s)
	if !w.Valid() {
		return "", fmt.Errorf("unknown workflow %q (expected one of %v)", s, Workflows)
	}
	return w, nil
}

// Defaults holds the destination fields which may be declared on a Policy or Mapping
// and inherited by every Destination below it. Empty strings, nil pointers and nil maps
// mean "not declared at this level".
type Defaults struct {
	Provider            string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	Architecture        string            `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Overwrite           *bool             `json:"overwrite,omitempty" yaml:"overwrite,omitempty"`
	RestrictVersion     *bool             `json:"restrict_version,omitempty" yaml:"restrict_version,omitempty"`
	RestrictMajor       *int              `json:"restrict_major,omitempty" yaml:"restrict_major,omitempty"`
	RestrictMinor       *int              `json:"restrict_minor,omitempty" yaml:"restrict_minor,omitempty"`
	AMIVersionTemplate  string            `json:"ami_version_template,omitempty" yaml:"ami_version_template,omitempty"`
	VHDCheckBaseSASOnly *bool             `json:"vhd_check_base_sas_only,omitempty" yaml:"vhd_check_base_sas_only,omitempty"`
	Tags                map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Meta                map[string]any    `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Destination is a concrete publish target in one cloud marketplace
type Destination struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Destination string `json:"destination" yaml:"destination"`
	// MarketplaceAccount is only set on resolved destinations returned in a QueryResponse.
	MarketplaceAccount string `json:"marketplace_account,omitempty" yaml:"marketplace_account,omitempty"`

	Defaults `json:",inline" yaml:",inline"`
}

// Mapping is a version match rule together with the destinations it publishes to
type Mapping struct {
	ID                 string        `json:"id,omitempty" yaml:"id,omitempty"`
	MarketplaceAccount string        `json:"marketplace_account" yaml:"marketplace_account"`
	VersionFnmatch     string        `json:"version_fnmatch,omitempty" yaml:"version_fnmatch,omitempty"`
	VersionRegexmatch  string        `json:"version_regexmatch,omitempty" yaml:"version_regexmatch,omitempty"`
	Destinations       []Destination `json:"destinations" yaml:"destinations"`

	Defaults `json:",inline" yaml:",inline"`
}

// Unconstrained reports whether the mapping applies to every version
func (m Mapping) Unconstrained() bool {
	return m.VersionFnmatch == "" && m.VersionRegexmatch == ""
}

// Policy is a named, workflow scoped, ordered list of mappings
type Policy struct {
	ID       string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string    `json:"name" yaml:"name"`
	Workflow Workflow  `json:"workflow" yaml:"workflow"`
	Mappings []Mapping `json:"mappings" yaml:"mappings"`

	Defaults `json:",inline" yaml:",inline"`
}

// Key identifies the policy inside a content set
func (p Policy) Key() string {
	return p.Name + "+" + string(p.Workflow)
}

// QueryResponse is the resolved output of matching an artifact against the loaded policies
type QueryResponse struct {
	Name     string                   `json:"name" yaml:"name"`
	Workflow Workflow                 `json:"workflow" yaml:"workflow"`
	Clouds   map[string][]Destination `json:"clouds" yaml:"clouds"`
}

// Providers returns the sorted cloud provider kinds present in the response
func (r *QueryResponse) Providers() []string {
	out := make([]string, 0, len(r.Clouds))
	for k := range r.Clouds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DestinationsFor returns the destinations resolved for one provider kind
func (r *QueryResponse) DestinationsFor(provider string) []Destination {
	return r.Clouds[provider]
}
