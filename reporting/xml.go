package reporting

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

type xmlAssemblies struct {
	XMLName    xml.Name      `xml:"assemblies"`
	RunID      string        `xml:"run-id,attr,omitempty"`
	Timestamp  string        `xml:"timestamp,attr"`
	Assemblies []xmlAssembly `xml:"assembly"`
}

type xmlAssembly struct {
	Name       string     `xml:"name,attr"`
	ConfigFile string     `xml:"config-file,attr,omitempty"`
	RunDate    string     `xml:"run-date,attr"`
	RunTime    string     `xml:"run-time,attr"`
	Total      int        `xml:"total,attr"`
	Passed     int        `xml:"passed,attr"`
	Failed     int        `xml:"failed,attr"`
	Skipped    int        `xml:"skipped,attr"`
	Time       string     `xml:"time,attr"`
	Errors     int        `xml:"errors,attr"`
	ErrorList  []xmlError `xml:"errors>error,omitempty"`
	Tests      []xmlTest  `xml:"collection>test"`
}

type xmlError struct {
	Message string `xml:"failure>message"`
}

type xmlTest struct {
	Name       string      `xml:"name,attr"`
	Type       string      `xml:"type,attr"`
	Method     string      `xml:"method,attr"`
	Time       string      `xml:"time,attr"`
	Result     string      `xml:"result,attr"`
	SourceFile string      `xml:"source-file,attr,omitempty"`
	SourceLine int         `xml:"source-line,attr,omitempty"`
	Traits     []xmlTrait  `xml:"traits>trait,omitempty"`
	Failure    *xmlFailure `xml:"failure,omitempty"`
	Reason     string      `xml:"reason,omitempty"`
	Output     string      `xml:"output,omitempty"`
}

type xmlTrait struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlFailure struct {
	Message    string `xml:"message"`
	StackTrace string `xml:"stack-trace,omitempty"`
}

func xmlResult(o types.TestOutcome) string {
	switch o {
	case types.TestOutcomePassed:
		return "Pass"
	case types.TestOutcomeFailed:
		return "Fail"
	case types.TestOutcomeSkipped:
		return "Skip"
	default:
		return "NotRun"
	}
}

func xmlSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}

func newXMLTest(r *types.TestResult) xmlTest {
	t := xmlTest{
		Name:       r.Test.DisplayName,
		Type:       r.Test.Class,
		Method:     r.Test.Method,
		Time:       xmlSeconds(r.Duration.Seconds()),
		Result:     xmlResult(r.Outcome),
		SourceFile: r.Test.CodeFilePath,
		SourceLine: r.Test.LineNumber,
	}

	names := make([]string, 0, len(r.Test.Traits))
	for name := range r.Test.Traits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range r.Test.Traits[name] {
			t.Traits = append(t.Traits, xmlTrait{Name: name, Value: value})
		}
	}

	switch r.Outcome {
	case types.TestOutcomeFailed:
		t.Failure = &xmlFailure{
			Message:    stripansi.Strip(r.ErrorMessage),
			StackTrace: stripansi.Strip(r.ErrorStackTrace),
		}
	case types.TestOutcomeSkipped:
		t.Reason = stripansi.Strip(r.ErrorMessage)
	}
	if len(r.Messages) > 0 {
		t.Output = stripansi.Strip(strings.Join(r.Messages, "\n"))
	}
	return t
}

// writeXML writes the report as an assemblies/assembly/collection/test document.
func writeXML(w io.Writer, report *Report) error {
	doc := xmlAssemblies{
		RunID:     report.RunID,
		Timestamp: report.Timestamp.Format("2006-01-02T15:04:05"),
	}
	for _, n := range report.Assemblies {
		asm := xmlAssembly{
			Name:       n.Path,
			ConfigFile: n.ConfigPath,
			RunDate:    n.StartTime.Format("2006-01-02"),
			RunTime:    n.StartTime.Format("15:04:05"),
			Total:      n.Summary.Total,
			Passed:     n.Summary.Passed(),
			Failed:     n.Summary.Failed,
			Skipped:    n.Summary.Skipped,
			Time:       xmlSeconds(n.Summary.Time.Seconds()),
			Errors:     n.Summary.Errors + len(n.Errors),
		}
		for _, e := range n.Errors {
			asm.ErrorList = append(asm.ErrorList, xmlError{Message: e})
		}
		for _, r := range n.Results {
			asm.Tests = append(asm.Tests, newXMLTest(r))
		}
		doc.Assemblies = append(doc.Assemblies, asm)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
