package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// API levels of the StArMap server
const (
	APIv1 = "v1"
	APIv2 = "v2"
)

// BillingImageType is the kind of image a BillingCodeRule applies to
type BillingImageType string

const (
	BillingImageAccess      BillingImageType = "access"
	BillingImageHourly      BillingImageType = "hourly"
	BillingImageMarketplace BillingImageType = "marketplace"
)

// Valid reports whether t is a known image type
func (t BillingImageType) Valid() bool {
	switch t {
	case BillingImageAccess, BillingImageHourly, BillingImageMarketplace:
		return true
	}
	return false
}

// BillingCodeRule inserts Codes into images named ImageName of the listed ImageTypes
type BillingCodeRule struct {
	Name       string             `json:"name,omitempty" yaml:"name,omitempty"`
	Codes      []string           `json:"codes" yaml:"codes"`
	ImageName  string             `json:"image_name" yaml:"image_name"`
	ImageTypes []BillingImageType `json:"image_types" yaml:"image_types"`
}

// MappingResponseObject holds the destinations of one marketplace account in an APIv2 answer
type MappingResponseObject struct {
	Destinations []Destination  `json:"destinations" yaml:"destinations"`
	Provider     string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Meta         map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// normalize pushes the mapping meta and provider down to every destination.
// Destination meta keys win over the mapping ones.
func (m *MappingResponseObject) normalize() {
	for i := range m.Destinations {
		d := &m.Destinations[i]
		d.Meta = MergeMeta(m.Meta, d.Meta)
		if m.Provider != "" {
			d.Provider = m.Provider
		}
	}
}

// Clone returns a deep copy of the mapping response
func (m MappingResponseObject) Clone() MappingResponseObject {
	out := m
	out.Meta = MergeMeta(m.Meta, nil)
	if m.Destinations != nil {
		out.Destinations = make([]Destination, len(m.Destinations))
		for i := range m.Destinations {
			out.Destinations[i] = m.Destinations[i].Clone()
		}
	}
	return out
}

// QueryResponseEntity is the APIv2 resolution of one policy for one cloud.
// Mappings are keyed by marketplace account name.
type QueryResponseEntity struct {
	Name              string                           `json:"name" yaml:"name"`
	Workflow          Workflow                         `json:"workflow" yaml:"workflow"`
	Cloud             string                           `json:"cloud" yaml:"cloud"`
	BillingCodeConfig map[string]BillingCodeRule       `json:"billing-code-config,omitempty" yaml:"billing-code-config,omitempty"`
	Mappings          map[string]MappingResponseObject `json:"mappings" yaml:"mappings"`
	Meta              map[string]any                   `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// UnmarshalJSON decodes the entity and merges the meta of every level into the level below
func (e *QueryResponseEntity) UnmarshalJSON(data []byte) error {
	type plain QueryResponseEntity
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = QueryResponseEntity(raw)
	e.Normalize()
	return nil
}

// Normalize merges entity meta into each mapping and mapping meta into each destination,
// nearest level winning. Applying it again changes nothing.
func (e *QueryResponseEntity) Normalize() {
	for account, m := range e.Mappings {
		m.Meta = MergeMeta(e.Meta, m.Meta)
		m.normalize()
		e.Mappings[account] = m
	}
}

// AccountNames returns the sorted marketplace account names declared on the mappings
func (e *QueryResponseEntity) AccountNames() []string {
	out := make([]string, 0, len(e.Mappings))
	for k := range e.Mappings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AllMappings returns the mappings ordered by account name
func (e *QueryResponseEntity) AllMappings() []MappingResponseObject {
	out := make([]MappingResponseObject, 0, len(e.Mappings))
	for _, account := range e.AccountNames() {
		out = append(out, e.Mappings[account])
	}
	return out
}

// MappingForAccount returns the mapping of one marketplace account
func (e *QueryResponseEntity) MappingForAccount(account string) (*MappingResponseObject, error) {
	m, ok := e.Mappings[account]
	if !ok {
		return nil, &NotFoundError{Resource: "account mapping", Key: account}
	}
	out := m.Clone()
	return &out, nil
}

// Classic flattens the entity into a v1 QueryResponse with every destination listed under
// the entity cloud, tagged with its marketplace account.
func (e *QueryResponseEntity) Classic() *QueryResponse {
	var dests []Destination
	for _, account := range e.AccountNames() {
		for _, d := range e.Mappings[account].Destinations {
			d = d.Clone()
			d.MarketplaceAccount = account
			dests = append(dests, d)
		}
	}
	return &QueryResponse{
		Name:     e.Name,
		Workflow: e.Workflow,
		Clouds:   map[string][]Destination{e.Cloud: dests},
	}
}

// Clone returns a deep copy of the entity
func (e QueryResponseEntity) Clone() QueryResponseEntity {
	out := e
	out.Meta = MergeMeta(e.Meta, nil)
	if e.Mappings != nil {
		out.Mappings = make(map[string]MappingResponseObject, len(e.Mappings))
		for k, m := range e.Mappings {
			out.Mappings[k] = m.Clone()
		}
	}
	if e.BillingCodeConfig != nil {
		out.BillingCodeConfig = make(map[string]BillingCodeRule, len(e.BillingCodeConfig))
		for k, r := range e.BillingCodeConfig {
			r.Codes = append([]string(nil), r.Codes...)
			r.ImageTypes = append([]BillingImageType(nil), r.ImageTypes...)
			out.BillingCodeConfig[k] = r
		}
	}
	return out
}

// Key identifies the entity inside an in-memory content set
func (e QueryResponseEntity) Key() string {
	return e.Name + "+" + string(e.Workflow) + "+" + e.Cloud
}

// ValidateEntity checks the structural invariants of an APIv2 entity
func ValidateEntity(e QueryResponseEntity) error {
	if e.Name == "" {
		return &ValidationError{Field: "name", Message: "entity name is required"}
	}
	if !e.Workflow.Valid() {
		return &ValidationError{Field: "workflow", Message: fmt.Sprintf("unknown workflow %q", e.Workflow)}
	}
	if e.Cloud == "" {
		return &ValidationError{Field: "cloud", Message: "entity cloud is required"}
	}
	if e.Mappings == nil {
		return &ValidationError{Field: "mappings", Message: "entity mappings are required"}
	}
	for key, rule := range e.BillingCodeConfig {
		if rule.ImageName == "" {
			return &ValidationError{Field: "billing-code-config." + key, Message: "image_name is required"}
		}
		for _, t := range rule.ImageTypes {
			if !t.Valid() {
				return &ValidationError{Field: "billing-code-config." + key, Message: fmt.Sprintf("unknown image type %q", t)}
			}
		}
	}
	return nil
}

// QueryResponseContainer is a full APIv2 query answer: one entity per policy and cloud
type QueryResponseContainer struct {
	Responses []QueryResponseEntity
}

// DecodeQueryResponseContainer parses and validates an APIv2 query answer. The document root
// must be a list.
func DecodeQueryResponseContainer(data []byte) (*QueryResponseContainer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Context: "query response", Content: string(data), Cause: fmt.Errorf("expected root to be a list")}
	}
	var responses []QueryResponseEntity
	if err := json.Unmarshal(trimmed, &responses); err != nil {
		return nil, &DecodeError{Context: "query response", Content: string(data), Cause: err}
	}
	for i, e := range responses {
		if err := ValidateEntity(e); err != nil {
			return nil, &DecodeError{Context: fmt.Sprintf("query response entity %d", i), Content: string(data), Cause: err}
		}
	}
	return &QueryResponseContainer{Responses: responses}, nil
}

// MarshalJSON renders the container as the list the server sends
func (c *QueryResponseContainer) MarshalJSON() ([]byte, error) {
	if c.Responses == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Responses)
}

// containerFilters are the keys accepted by FilterBy
var containerFilters = map[string]func(QueryResponseEntity, string) bool{
	"name":     func(e QueryResponseEntity, v string) bool { return e.Name == v },
	"workflow": func(e QueryResponseEntity, v string) bool { return string(e.Workflow) == v },
	"cloud":    func(e QueryResponseEntity, v string) bool { return e.Cloud == v },
}

func filterEntities(in []QueryResponseEntity, keep func(QueryResponseEntity) bool) []QueryResponseEntity {
	var out []QueryResponseEntity
	for _, e := range in {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// FilterByName returns the entities of the policy name
func (c *QueryResponseContainer) FilterByName(name string) []QueryResponseEntity {
	return filterEntities(c.Responses, func(e QueryResponseEntity) bool { return e.Name == name })
}

// FilterByWorkflow returns the entities of workflow w
func (c *QueryResponseContainer) FilterByWorkflow(w Workflow) []QueryResponseEntity {
	return filterEntities(c.Responses, func(e QueryResponseEntity) bool { return e.Workflow == w })
}

// FilterByCloud returns the entities targeting cloud
func (c *QueryResponseContainer) FilterByCloud(cloud string) []QueryResponseEntity {
	return filterEntities(c.Responses, func(e QueryResponseEntity) bool { return e.Cloud == cloud })
}

// FilterBy returns the entities matching every filter. Keys are name, workflow and cloud.
func (c *QueryResponseContainer) FilterBy(filters map[string]string) ([]QueryResponseEntity, error) {
	for k := range filters {
		if _, ok := containerFilters[k]; !ok {
			return nil, &UnsupportedFilterError{Provider: "query response", Filter: k}
		}
	}
	return filterEntities(c.Responses, func(e QueryResponseEntity) bool {
		for k, v := range filters {
			if !containerFilters[k](e, v) {
				return false
			}
		}
		return true
	}), nil
}
