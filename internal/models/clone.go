package models

// ClonePolicies returns a deep copy of content so callers never alias provider state
func ClonePolicies(content []Policy) []Policy {
	if content == nil {
		return nil
	}
	out := make([]Policy, len(content))
	for i := range content {
		out[i] = content[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the policy
func (p Policy) Clone() Policy {
	out := p
	out.Defaults = p.Defaults.Clone()
	if p.Mappings != nil {
		out.Mappings = make([]Mapping, len(p.Mappings))
		for i := range p.Mappings {
			out.Mappings[i] = p.Mappings[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the mapping
func (m Mapping) Clone() Mapping {
	out := m
	out.Defaults = m.Defaults.Clone()
	if m.Destinations != nil {
		out.Destinations = make([]Destination, len(m.Destinations))
		for i := range m.Destinations {
			out.Destinations[i] = m.Destinations[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the destination
func (d Destination) Clone() Destination {
	out := d
	out.Defaults = d.Defaults.Clone()
	return out
}

// Clone returns a deep copy of the defaults
func (d Defaults) Clone() Defaults {
	out := d
	out.Overwrite = cloneBool(d.Overwrite)
	out.RestrictVersion = cloneBool(d.RestrictVersion)
	out.VHDCheckBaseSASOnly = cloneBool(d.VHDCheckBaseSASOnly)
	out.RestrictMajor = cloneInt(d.RestrictMajor)
	out.RestrictMinor = cloneInt(d.RestrictMinor)
	if d.Tags != nil {
		out.Tags = make(map[string]string, len(d.Tags))
		for k, v := range d.Tags {
			out.Tags[k] = v
		}
	}
	out.Meta = MergeMeta(d.Meta, nil)
	return out
}
