// Package filter narrows a set of discovered tests by trait, method, class and namespace.
//
// Values within one kind are OR-combined, kinds are AND-combined, and excluded
// traits always win.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Filters is the set of predicates applied to discovered tests.
type Filters struct {
	IncludedTraits     map[string][]string
	ExcludedTraits     map[string][]string
	IncludedMethods    []string
	IncludedClasses    []string
	IncludedNamespaces []string

	methodPatterns []*regexp.Regexp
}

// New returns an empty filter set, which matches every test.
func New() *Filters {
	return &Filters{
		IncludedTraits: make(map[string][]string),
		ExcludedTraits: make(map[string][]string),
	}
}

// ParseTrait splits a "name=value" trait expression.
func ParseTrait(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	if !ok || name == "" || value == "" {
		return "", "", fmt.Errorf("invalid trait %q: expected name=value", s)
	}
	return name, value, nil
}

// AddTrait includes tests carrying the trait expression "name=value".
func (f *Filters) AddTrait(expr string) error {
	name, value, err := ParseTrait(expr)
	if err != nil {
		return err
	}
	if f.IncludedTraits == nil {
		f.IncludedTraits = make(map[string][]string)
	}
	f.IncludedTraits[name] = append(f.IncludedTraits[name], value)
	return nil
}

// AddNoTrait excludes tests carrying the trait expression "name=value".
func (f *Filters) AddNoTrait(expr string) error {
	name, value, err := ParseTrait(expr)
	if err != nil {
		return err
	}
	if f.ExcludedTraits == nil {
		f.ExcludedTraits = make(map[string][]string)
	}
	f.ExcludedTraits[name] = append(f.ExcludedTraits[name], value)
	return nil
}

// AddMethod includes tests whose method or fully qualified name matches name.
// A '*' in name matches any run of characters.
func (f *Filters) AddMethod(name string) error {
	re, err := wildcard(name)
	if err != nil {
		return err
	}
	f.IncludedMethods = append(f.IncludedMethods, name)
	f.methodPatterns = append(f.methodPatterns, re)
	return nil
}

// AddClass includes tests of the named class.
func (f *Filters) AddClass(name string) {
	f.IncludedClasses = append(f.IncludedClasses, name)
}

// AddNamespace includes tests in the named package or any package below it.
func (f *Filters) AddNamespace(name string) {
	f.IncludedNamespaces = append(f.IncludedNamespaces, strings.TrimSuffix(name, "/"))
}

// Empty reports whether no predicate is set.
func (f *Filters) Empty() bool {
	return f == nil || (len(f.IncludedTraits) == 0 && len(f.ExcludedTraits) == 0 &&
		len(f.IncludedMethods) == 0 && len(f.IncludedClasses) == 0 && len(f.IncludedNamespaces) == 0)
}

// Filter returns the tests matching every predicate kind, preserving order.
// The result is always a subset of tests.
func (f *Filters) Filter(tests []*types.Test) []*types.Test {
	if f.Empty() {
		return tests
	}
	methods := f.compiledMethods()
	filtered := make([]*types.Test, 0, len(tests))
	for _, t := range tests {
		if f.match(t, methods) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Match reports whether a single test passes the filters.
func (f *Filters) Match(t *types.Test) bool {
	if f.Empty() {
		return true
	}
	return f.match(t, f.compiledMethods())
}

func (f *Filters) match(t *types.Test, methods []*regexp.Regexp) bool {
	return !f.excludedByTrait(t) &&
		f.includedByTrait(t) &&
		includedByMethod(t, methods) &&
		f.includedByClass(t) &&
		f.includedByNamespace(t)
}

// compiledMethods returns the method patterns, compiling them when the
// filters were built as a struct literal instead of through AddMethod.
func (f *Filters) compiledMethods() []*regexp.Regexp {
	if len(f.methodPatterns) == len(f.IncludedMethods) {
		return f.methodPatterns
	}
	patterns := make([]*regexp.Regexp, 0, len(f.IncludedMethods))
	for _, m := range f.IncludedMethods {
		re, err := wildcard(m)
		if err != nil {
			continue
		}
		patterns = append(patterns, re)
	}
	return patterns
}

func (f *Filters) excludedByTrait(t *types.Test) bool {
	for name, values := range f.ExcludedTraits {
		for _, v := range values {
			if t.HasTrait(name, v) {
				return true
			}
		}
	}
	return false
}

func (f *Filters) includedByTrait(t *types.Test) bool {
	if len(f.IncludedTraits) == 0 {
		return true
	}
	for name, values := range f.IncludedTraits {
		for _, v := range values {
			if t.HasTrait(name, v) {
				return true
			}
		}
	}
	return false
}

func includedByMethod(t *types.Test, patterns []*regexp.Regexp) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, re := range patterns {
		if re.MatchString(t.Method) || re.MatchString(t.FullyQualifiedName) {
			return true
		}
	}
	return false
}

func (f *Filters) includedByClass(t *types.Test) bool {
	if len(f.IncludedClasses) == 0 {
		return true
	}
	for _, c := range f.IncludedClasses {
		if strings.EqualFold(c, t.Class) {
			return true
		}
	}
	return false
}

func (f *Filters) includedByNamespace(t *types.Test) bool {
	if len(f.IncludedNamespaces) == 0 {
		return true
	}
	for _, ns := range f.IncludedNamespaces {
		if t.Namespace == ns || strings.HasPrefix(t.Namespace, ns+"/") {
			return true
		}
	}
	return false
}

func wildcard(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty method filter")
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
