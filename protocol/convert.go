package protocol

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Outcome is the wire form of a test outcome.
type Outcome string

const (
	OutcomeNone    Outcome = "None"
	OutcomePassed  Outcome = "Passed"
	OutcomeFailed  Outcome = "Failed"
	OutcomeSkipped Outcome = "Skipped"
)

var testIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ethereum-optimism/infra/op-testhost"))

// Test is the wire form of a discovered test.
type Test struct {
	Id                 uuid.UUID           `json:"Id"`
	FullyQualifiedName string              `json:"FullyQualifiedName"`
	DisplayName        string              `json:"DisplayName"`
	CodeFilePath       string              `json:"CodeFilePath,omitempty"`
	LineNumber         int                 `json:"LineNumber,omitempty"`
	Properties         map[string][]string `json:"Properties,omitempty"`
}

// TestResult is the wire form of a finished test.
type TestResult struct {
	Test            *Test     `json:"Test"`
	Outcome         Outcome   `json:"Outcome"`
	ErrorMessage    string    `json:"ErrorMessage,omitempty"`
	ErrorStackTrace string    `json:"ErrorStackTrace,omitempty"`
	DisplayName     string    `json:"DisplayName"`
	Messages        []string  `json:"Messages,omitempty"`
	ComputerName    string    `json:"ComputerName,omitempty"`
	Duration        string    `json:"Duration"`
	StartTime       time.Time `json:"StartTime"`
	EndTime         time.Time `json:"EndTime"`
}

// TestID returns the deterministic wire identity of a fully qualified name.
func TestID(fullyQualifiedName string) uuid.UUID {
	return uuid.NewSHA1(testIDNamespace, []byte(fullyQualifiedName))
}

// ConvertTest converts a discovered test into its wire form. When
// fullyQualifiedNames is set the display name is the fully qualified name.
func ConvertTest(t *types.Test, fullyQualifiedNames bool) *Test {
	display := t.DisplayName
	if fullyQualifiedNames || display == "" {
		display = t.FullyQualifiedName
	}
	var props map[string][]string
	if len(t.Traits) > 0 {
		props = make(map[string][]string, len(t.Traits))
		for k, v := range t.Traits {
			props[k] = append([]string(nil), v...)
		}
	}
	return &Test{
		Id:                 TestID(t.FullyQualifiedName),
		FullyQualifiedName: t.FullyQualifiedName,
		DisplayName:        display,
		CodeFilePath:       t.CodeFilePath,
		LineNumber:         t.LineNumber,
		Properties:         props,
	}
}

// ConvertTests converts tests into their wire form keyed by engine identity,
// so execution events can be translated back to the tests the client saw.
func ConvertTests(tests []*types.Test, fullyQualifiedNames bool) map[string]*Test {
	converted := make(map[string]*Test, len(tests))
	for _, t := range tests {
		converted[t.ID] = ConvertTest(t, fullyQualifiedNames)
	}
	return converted
}

// ConvertResult converts a result into its wire form. wire may be nil, in
// which case the test is converted on the fly.
func ConvertResult(r *types.TestResult, wire *Test) *TestResult {
	if wire == nil {
		wire = ConvertTest(r.Test, false)
	}
	return &TestResult{
		Test:            wire,
		Outcome:         ConvertOutcome(r.Outcome),
		ErrorMessage:    r.ErrorMessage,
		ErrorStackTrace: r.ErrorStackTrace,
		DisplayName:     wire.DisplayName,
		Messages:        append([]string(nil), r.Messages...),
		ComputerName:    computerName(),
		Duration:        FormatTimeSpan(r.Duration),
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
	}
}

// ConvertOutcome maps an outcome onto the wire enumeration.
func ConvertOutcome(o types.TestOutcome) Outcome {
	switch o {
	case types.TestOutcomePassed:
		return OutcomePassed
	case types.TestOutcomeFailed:
		return OutcomeFailed
	case types.TestOutcomeSkipped:
		return OutcomeSkipped
	default:
		return OutcomeNone
	}
}

// FormatTimeSpan renders d as [d.]hh:mm:ss.fffffff with 100ns precision.
func FormatTimeSpan(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	ticks := int64(d / 100)
	fraction := ticks % 10_000_000
	secs := ticks / 10_000_000
	days := secs / 86400
	secs %= 86400
	span := fmt.Sprintf("%02d:%02d:%02d.%07d", secs/3600, (secs/60)%60, secs%60, fraction)
	if days > 0 {
		span = fmt.Sprintf("%d.%s", days, span)
	}
	return sign + span
}

func computerName() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}
