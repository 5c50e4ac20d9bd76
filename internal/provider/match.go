package provider

import (
	"regexp"

	"github.com/gobwas/glob"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// PatternCombination decides how version_fnmatch and version_regexmatch combine when
// a mapping declares both.
type PatternCombination int

const (
	// CombineAll requires both patterns to match
	CombineAll PatternCombination = iota
	// CombineAny requires at least one pattern to match
	CombineAny
)

// versionMatcher is the compiled form of a mapping's version constraints
type versionMatcher struct {
	fnmatch glob.Glob
	regex   *regexp.Regexp
}

func compileMatcher(m models.Mapping) (versionMatcher, error) {
	var vm versionMatcher
	var err error
	if m.VersionFnmatch != "" {
		if vm.fnmatch, err = models.CompileVersionGlob(m.VersionFnmatch); err != nil {
			return vm, err
		}
	}
	if m.VersionRegexmatch != "" {
		if vm.regex, err = models.CompileVersionRegex(m.VersionRegexmatch); err != nil {
			return vm, err
		}
	}
	return vm, nil
}

// Match reports whether version satisfies the mapping. A mapping without any pattern matches every version.
func (vm versionMatcher) Match(version string, mode PatternCombination) bool {
	switch {
	case vm.fnmatch == nil && vm.regex == nil:
		return true
	case vm.fnmatch == nil:
		return vm.regex.MatchString(version)
	case vm.regex == nil:
		return vm.fnmatch.Match(version)
	}

	fn := vm.fnmatch.Match(version)
	re := vm.regex.MatchString(version)
	if mode == CombineAny {
		return fn || re
	}
	return fn && re
}

// compiledPolicy keeps a policy together with the matchers of its mappings, index aligned
type compiledPolicy struct {
	policy   models.Policy
	matchers []versionMatcher
}

func compilePolicy(p models.Policy) (compiledPolicy, error) {
	cp := compiledPolicy{policy: p, matchers: make([]versionMatcher, len(p.Mappings))}
	for i, m := range p.Mappings {
		vm, err := compileMatcher(m)
		if err != nil {
			return cp, err
		}
		cp.matchers[i] = vm
	}
	return cp, nil
}

// selectMapping returns the index of the first mapping matching version, or -1.
// Later mappings are never evaluated once one matched.
func (cp compiledPolicy) selectMapping(version string, mode PatternCombination) int {
	for i, vm := range cp.matchers {
		if vm.Match(version, mode) {
			return i
		}
	}
	return -1
}
