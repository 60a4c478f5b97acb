package templates

import (
	"fmt"
	"html/template"
	"time"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// GetTemplateFunc returns the template functions shared by the HTML result files
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			if d < time.Second {
				return fmt.Sprintf("%dms", d.Milliseconds())
			}
			return d.Truncate(time.Millisecond).String()
		},
		"getOutcomeClass": func(o types.TestOutcome) string {
			return getOutcomeString(o)
		},
		"getOutcomeText": func(o types.TestOutcome) string {
			switch o {
			case types.TestOutcomePassed:
				return "PASS"
			case types.TestOutcomeFailed:
				return "FAIL"
			case types.TestOutcomeSkipped:
				return "SKIP"
			default:
				return "UNKNOWN"
			}
		},
		"getSummaryClass": func(s types.ExecutionSummary) string {
			switch {
			case s.Failed > 0 || s.Errors > 0:
				return "fail"
			case s.Total > 0 && s.Skipped == s.Total:
				return "skip"
			case s.Total > 0:
				return "pass"
			default:
				return "unknown"
			}
		},
		"passed": func(s types.ExecutionSummary) int {
			return s.Passed()
		},
	}
}

// getOutcomeString returns a consistent lowercase outcome string
func getOutcomeString(o types.TestOutcome) string {
	switch o {
	case types.TestOutcomePassed:
		return "pass"
	case types.TestOutcomeFailed:
		return "fail"
	case types.TestOutcomeSkipped:
		return "skip"
	default:
		return "unknown"
	}
}
