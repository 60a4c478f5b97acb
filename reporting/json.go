package reporting

import (
	"encoding/json"

	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// jsonEvent is one line of the json reporter's output.
type jsonEvent struct {
	Message    string   `json:"message"`
	Assembly   string   `json:"assembly,omitempty"`
	Name       string   `json:"name,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	Duration   float64  `json:"duration,omitempty"`
	Error      string   `json:"error,omitempty"`
	StackTrace string   `json:"stackTrace,omitempty"`
	Output     []string `json:"output,omitempty"`
	Discovered *int     `json:"discovered,omitempty"`
	ToRun      *int     `json:"toRun,omitempty"`
	Total      *int     `json:"total,omitempty"`
	Failed     *int     `json:"failed,omitempty"`
	Skipped    *int     `json:"skipped,omitempty"`
	Errors     *int     `json:"errors,omitempty"`
	Time       float64  `json:"time,omitempty"`
}

// jsonReporter writes one JSON object per event.
type jsonReporter struct {
	w *lockedWriter
}

var _ Reporter = (*jsonReporter)(nil)

func newJSONReporter(opts Options) Reporter {
	opts.NoColor = true
	return &jsonReporter{w: newLockedWriter(opts)}
}

func (j *jsonReporter) emit(ev jsonEvent) {
	// jsonEvent only holds marshalable fields.
	data, _ := json.Marshal(ev)
	j.w.write(string(data))
}

func summaryEvent(message, assembly string, s types.ExecutionSummary) jsonEvent {
	return jsonEvent{
		Message:  message,
		Assembly: assembly,
		Total:    &s.Total,
		Failed:   &s.Failed,
		Skipped:  &s.Skipped,
		Errors:   &s.Errors,
		Time:     s.Time.Seconds(),
	}
}

func (j *jsonReporter) AssemblyDiscoveryStarting(asm types.Assembly) {
	j.emit(jsonEvent{Message: "discoveryStarting", Assembly: asm.Key()})
}

func (j *jsonReporter) AssemblyDiscoveryFinished(asm types.Assembly, discovered, toRun int) {
	j.emit(jsonEvent{Message: "discoveryFinished", Assembly: asm.Key(), Discovered: &discovered, ToRun: &toRun})
}

func (j *jsonReporter) AssemblyExecutionStarting(asm types.Assembly) {
	j.emit(jsonEvent{Message: "executionStarting", Assembly: asm.Key()})
}

func (j *jsonReporter) AssemblyExecutionFinished(asm types.Assembly, summary types.ExecutionSummary) {
	j.emit(summaryEvent("executionFinished", asm.Key(), summary))
}

func (j *jsonReporter) DiagnosticMessage(asm types.Assembly, message string) {
	j.emit(jsonEvent{Message: "diagnostic", Assembly: asm.Key(), Output: []string{message}})
}

func (j *jsonReporter) AssemblyFaulted(asm types.Assembly, err error) {
	j.emit(jsonEvent{Message: "assemblyFaulted", Assembly: asm.Key(), Error: err.Error(), Output: runner.ErrorChain(err)})
}

func (j *jsonReporter) TestStarting(t *types.Test) {
	j.emit(jsonEvent{Message: "testStarting", Assembly: types.AssemblyKey(t.Assembly), Name: t.FullyQualifiedName})
}

func (j *jsonReporter) TestFinished(r *types.TestResult) {
	j.emit(jsonEvent{
		Message:    "testFinished",
		Assembly:   types.AssemblyKey(r.Test.Assembly),
		Name:       r.Test.FullyQualifiedName,
		Outcome:    string(r.Outcome),
		Duration:   r.Duration.Seconds(),
		Error:      r.ErrorMessage,
		StackTrace: r.ErrorStackTrace,
		Output:     r.Messages,
	})
}

func (j *jsonReporter) TestListed(t *types.Test, designTime bool) {
	name := t.DisplayName
	if designTime {
		name = t.FullyQualifiedName
	}
	j.emit(jsonEvent{Message: "testListed", Assembly: types.AssemblyKey(t.Assembly), Name: name})
}

func (j *jsonReporter) RunFinished(summary *types.RunSummary) {
	ev := summaryEvent("runFinished", "", summary.Total)
	ev.Time = summary.Elapsed.Seconds()
	j.emit(ev)
}
