package reporting

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func sampleReport() *Report {
	start := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	passing := types.NewTest("/bin/pkg.test", "example.com/pkg", "TestOK")
	passing.Traits["Category"] = []string{"fast"}
	passing.CodeFilePath = "pkg_test.go"
	passing.LineNumber = 12
	failing := types.NewTest("/bin/pkg.test", "example.com/pkg", "TestBroken_<b>")

	return &Report{
		RunID:     "run-1",
		Timestamp: start,
		Elapsed:   2 * time.Second,
		Assemblies: []*AssemblyNode{
			{
				Key:       "bad.test",
				Path:      "/bin/bad.test",
				StartTime: start,
				Errors:    []string{"exec format error"},
			},
			{
				Key:       "pkg.test",
				Path:      "/bin/pkg.test",
				StartTime: start,
				Executed:  true,
				Summary:   types.ExecutionSummary{Total: 2, Failed: 1, Time: 1500 * time.Millisecond},
				Results: []*types.TestResult{
					{Test: passing, Outcome: types.TestOutcomePassed, Duration: 250 * time.Millisecond},
					{
						Test:            failing,
						Outcome:         types.TestOutcomeFailed,
						ErrorMessage:    "\x1b[31mexpected 1, got 2\x1b[0m",
						ErrorStackTrace: "pkg_test.go:20",
						Messages:        []string{"line one", "line two"},
						Duration:        1250 * time.Millisecond,
					},
				},
			},
		},
		Total: types.ExecutionSummary{Total: 2, Failed: 1, Errors: 1, Time: 1500 * time.Millisecond},
	}
}

func TestWriteXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeXML(&buf, sampleReport()))
	assert.True(t, strings.HasPrefix(buf.String(), xml.Header))
	assert.NotContains(t, buf.String(), "\x1b[")

	var doc xmlAssemblies
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, "2024-03-01T12:30:45", doc.Timestamp)
	require.Len(t, doc.Assemblies, 2)

	bad := doc.Assemblies[0]
	assert.Equal(t, "/bin/bad.test", bad.Name)
	assert.Equal(t, 1, bad.Errors)
	require.Len(t, bad.ErrorList, 1)
	assert.Equal(t, "exec format error", bad.ErrorList[0].Message)
	assert.Empty(t, bad.Tests)

	asm := doc.Assemblies[1]
	assert.Equal(t, "2024-03-01", asm.RunDate)
	assert.Equal(t, "12:30:45", asm.RunTime)
	assert.Equal(t, 2, asm.Total)
	assert.Equal(t, 1, asm.Passed)
	assert.Equal(t, 1, asm.Failed)
	assert.Equal(t, "1.500", asm.Time)
	require.Len(t, asm.Tests, 2)

	ok := asm.Tests[0]
	assert.Equal(t, "TestOK", ok.Name)
	assert.Equal(t, "example.com/pkg.TestOK", ok.Type)
	assert.Equal(t, "Pass", ok.Result)
	assert.Equal(t, "0.250", ok.Time)
	assert.Equal(t, "pkg_test.go", ok.SourceFile)
	assert.Equal(t, 12, ok.SourceLine)
	assert.Equal(t, []xmlTrait{{Name: "Category", Value: "fast"}}, ok.Traits)
	assert.Nil(t, ok.Failure)

	broken := asm.Tests[1]
	assert.Equal(t, "Fail", broken.Result)
	require.NotNil(t, broken.Failure)
	assert.Equal(t, "expected 1, got 2", broken.Failure.Message)
	assert.Equal(t, "pkg_test.go:20", broken.Failure.StackTrace)
	assert.Equal(t, "line one\nline two", broken.Output)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHTML(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "<title>Test results run-1</title>")
	assert.Contains(t, out, `<a href="#pkg.test">pkg.test</a>`)
	assert.Contains(t, out, "TestOK")
	assert.Contains(t, out, "TestBroken_&lt;b&gt;")
	assert.NotContains(t, out, "TestBroken_<b>")
	assert.Contains(t, out, "<pre>expected 1, got 2</pre>")
	assert.Contains(t, out, `class="fail">FAIL`)
	assert.Contains(t, out, "exec format error")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteTransforms(t *testing.T) {
	dir := t.TempDir()
	targets := []TransformTarget{
		{Name: "xml", Path: filepath.Join(dir, "results.xml")},
		{Name: "html", Path: filepath.Join(dir, "results.html")},
	}
	require.NoError(t, WriteTransforms(sampleReport(), targets))

	for _, target := range targets {
		data, err := os.ReadFile(target.Path)
		require.NoError(t, err)
		assert.NotEmpty(t, data, target.Name)
	}
}

func TestWriteTransforms_Errors(t *testing.T) {
	dir := t.TempDir()

	err := WriteTransforms(sampleReport(), []TransformTarget{{Name: "csv", Path: filepath.Join(dir, "out.csv")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown result format "csv"`)

	err = WriteTransforms(sampleReport(), []TransformTarget{{Name: "xml", Path: filepath.Join(dir, "missing", "out.xml")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write xml results")
}

func TestTransformNames(t *testing.T) {
	assert.Equal(t, []string{"html", "xml"}, TransformNames())
}
