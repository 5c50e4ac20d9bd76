package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// fnmatchEscaper quotes the glob syntax that fnmatch treats as literal text
var fnmatchEscaper = strings.NewReplacer(`\`, `\\`, "{", `\{`, "}", `\}`)

// CompileVersionGlob compiles a version_fnmatch pattern. The whole version must match.
// Only *, ? and [...] are special; braces and backslashes match themselves.
func CompileVersionGlob(pattern string) (glob.Glob, error) {
	g, err := glob.Compile(fnmatchEscaper.Replace(pattern))
	if err != nil {
		return nil, &PatternValidationError{Pattern: pattern, Kind: "fnmatch", Cause: err}
	}
	return g, nil
}

// CompileVersionRegex compiles a version_regexmatch pattern anchored at the start of
// the version, so "8\.1" matches "8.1" and "8.10" but not "18.1".
func CompileVersionRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, &PatternValidationError{Pattern: pattern, Kind: "regex", Cause: err}
	}
	return re, nil
}

// ValidatePolicy checks the structural invariants of a policy record
func ValidatePolicy(p Policy) error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "policy name is required"}
	}
	if !p.Workflow.Valid() {
		return &ValidationError{
			Field:   fmt.Sprintf("%s.workflow", p.Name),
			Message: fmt.Sprintf("unknown workflow %q", p.Workflow),
		}
	}
	if len(p.Mappings) == 0 {
		return &ValidationError{Field: fmt.Sprintf("%s.mappings", p.Name), Message: "at least one mapping is required"}
	}

	for i, m := range p.Mappings {
		field := fmt.Sprintf("%s.mappings[%d]", p.Name, i)
		if m.MarketplaceAccount == "" {
			return &ValidationError{Field: field + ".marketplace_account", Message: "marketplace account is required"}
		}
		if len(m.Destinations) == 0 {
			return &ValidationError{Field: field + ".destinations", Message: "at least one destination is required"}
		}
		if m.VersionFnmatch != "" {
			if _, err := CompileVersionGlob(m.VersionFnmatch); err != nil {
				return fmt.Errorf("%s.version_fnmatch: %w", field, err)
			}
		}
		if m.VersionRegexmatch != "" {
			if _, err := CompileVersionRegex(m.VersionRegexmatch); err != nil {
				return fmt.Errorf("%s.version_regexmatch: %w", field, err)
			}
		}
		for j, d := range m.Destinations {
			if d.Destination == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("%s.destinations[%d].destination", field, j),
					Message: "destination identifier is required",
				}
			}
			if ResolveDestination(p, m, d).Provider == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("%s.destinations[%d].provider", field, j),
					Message: "provider must be declared on the destination, its mapping or its policy",
				}
			}
		}
	}
	return nil
}

// ValidateContent validates every policy and rejects duplicated name/workflow pairs
func ValidateContent(content []Policy) error {
	seen := make(map[string]bool, len(content))
	for i, p := range content {
		if err := ValidatePolicy(p); err != nil {
			return fmt.Errorf("policy[%d]: %w", i, err)
		}
		if seen[p.Key()] {
			return &ValidationError{
				Field:   fmt.Sprintf("policy[%d]", i),
				Message: fmt.Sprintf("duplicated policy %s for workflow %s", p.Name, p.Workflow),
			}
		}
		seen[p.Key()] = true
	}
	return nil
}
