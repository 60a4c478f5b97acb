package gotest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

type traitRule struct {
	pattern *regexp.Regexp
	name    string
	value   string
}

type traitRules []traitRule

// compileTraits turns the configured pattern → "name=value" list into rules.
// Patterns are regular expressions matched against the test name, the same
// way -test.run matches.
func compileTraits(config map[string][]string) (traitRules, error) {
	patterns := make([]string, 0, len(config))
	for p := range config {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	var rules traitRules
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trait pattern %q: %w", p, err)
		}
		for _, expr := range config[p] {
			name, value, ok := strings.Cut(expr, "=")
			name, value = strings.TrimSpace(name), strings.TrimSpace(value)
			if !ok || name == "" || value == "" {
				return nil, fmt.Errorf("invalid trait %q for pattern %q: expected name=value", expr, p)
			}
			rules = append(rules, traitRule{pattern: re, name: name, value: value})
		}
	}
	return rules, nil
}

func (r traitRules) apply(t *types.Test) {
	for _, rule := range r {
		if !rule.pattern.MatchString(t.Method) || t.HasTrait(rule.name, rule.value) {
			continue
		}
		t.Traits[rule.name] = append(t.Traits[rule.name], rule.value)
	}
}
