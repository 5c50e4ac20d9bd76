package models

import (
	"net/url"
	"sort"
)

// PaginationMetadata is the "nav" block of a paginated listing
type PaginationMetadata struct {
	First      string  `json:"first,omitempty"`
	Last       string  `json:"last,omitempty"`
	Next       *string `json:"next"`
	Previous   *string `json:"previous"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}

// PolicyPage is one page of the policy listing
type PolicyPage struct {
	Items []Policy            `json:"items"`
	Nav   *PaginationMetadata `json:"nav,omitempty"`
}

// HasNext reports whether the server announced another page
func (p *PolicyPage) HasNext() bool {
	return p.Nav != nil && p.Nav.Next != nil && *p.Nav.Next != ""
}

// PageRequest selects one page of the policy listing
type PageRequest struct {
	Page    int               // 1-based
	PerPage int               // page size
	Filters map[string]string // server side filters, e.g. name or workflow
}

// Query holds the parameters of a single artifact resolution
type Query struct {
	Name     string
	Version  string
	Image    string // NVR, used instead of Name/Version when set
	Workflow Workflow
	// Params are passed through to the provider unchanged
	Params map[string]string
}

// Values renders the query the way the StArMap API expects it
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Image != "" {
		v.Set("image", q.Image)
	} else {
		v.Set("name", q.Name)
		if q.Version != "" {
			v.Set("version", q.Version)
		}
	}
	if q.Workflow != "" {
		v.Set("workflow", string(q.Workflow))
	}
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v.Has(k) {
			continue
		}
		v.Set(k, q.Params[k])
	}
	return v
}

func (q Query) String() string {
	return q.Values().Encode()
}
