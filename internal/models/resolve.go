package models

// Override returns a copy of d with every field declared on o taking precedence.
// Tags are merged key by key and Meta is merged recursively, o winning on conflicts.
func (d Defaults) Override(o Defaults) Defaults {
	out := d
	if o.Provider != "" {
		out.Provider = o.Provider
	}
	if o.Architecture != "" {
		out.Architecture = o.Architecture
	}
	if o.Overwrite != nil {
		out.Overwrite = o.Overwrite
	}
	if o.RestrictVersion != nil {
		out.RestrictVersion = o.RestrictVersion
	}
	if o.RestrictMajor != nil {
		out.RestrictMajor = o.RestrictMajor
	}
	if o.RestrictMinor != nil {
		out.RestrictMinor = o.RestrictMinor
	}
	if o.AMIVersionTemplate != "" {
		out.AMIVersionTemplate = o.AMIVersionTemplate
	}
	if o.VHDCheckBaseSASOnly != nil {
		out.VHDCheckBaseSASOnly = o.VHDCheckBaseSASOnly
	}
	out.Tags = mergeTags(d.Tags, o.Tags)
	out.Meta = MergeMeta(d.Meta, o.Meta)
	return out
}

// ResolveDestination flattens the Policy -> Mapping -> Destination chain into a
// self-contained destination. The inputs are not modified.
func ResolveDestination(p Policy, m Mapping, d Destination) Destination {
	out := Destination{
		ID:                 d.ID,
		Destination:        d.Destination,
		MarketplaceAccount: m.MarketplaceAccount,
		Defaults:           p.Defaults.Override(m.Defaults).Override(d.Defaults),
	}
	out.Overwrite = cloneBool(out.Overwrite)
	out.RestrictVersion = cloneBool(out.RestrictVersion)
	out.VHDCheckBaseSASOnly = cloneBool(out.VHDCheckBaseSASOnly)
	out.RestrictMajor = cloneInt(out.RestrictMajor)
	out.RestrictMinor = cloneInt(out.RestrictMinor)
	return out
}

// ResolveMapping builds the QueryResponse for a matched mapping, grouping the
// resolved destinations by provider kind in listing order.
func ResolveMapping(p Policy, m Mapping) *QueryResponse {
	rsp := &QueryResponse{
		Name:     p.Name,
		Workflow: p.Workflow,
		Clouds:   make(map[string][]Destination),
	}
	for _, d := range m.Destinations {
		rd := ResolveDestination(p, m, d)
		rsp.Clouds[rd.Provider] = append(rsp.Clouds[rd.Provider], rd)
	}
	return rsp
}

// BoolValue dereferences an optional flag, treating nil as false
func BoolValue(b *bool) bool {
	return b != nil && *b
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i
func Int(i int) *int {
	return &i
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func mergeTags(a, b map[string]string) map[string]string {
	if a == nil && b == nil {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
