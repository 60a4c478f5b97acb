package testhost

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	assert.Contains(t, Header(), "op-testhost (")
	assert.Contains(t, Header(), runtime.GOOS+"/"+runtime.GOARCH)
}

func TestWantsUsage(t *testing.T) {
	assert.True(t, WantsUsage(nil))
	assert.True(t, WantsUsage([]string{"pkg.test", "-?"}))
	assert.False(t, WantsUsage([]string{"pkg.test"}))
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, Header()+"\n"))
	assert.Contains(t, out, "Reporters: (optional, choose only one)")
	assert.Contains(t, out, "  -verbose               : ")
	assert.Contains(t, out, "  -quiet                 : ")
	assert.Contains(t, out, "  -json                  : ")
	assert.Contains(t, out, "Result formats: (optional, choose one or more)")
	assert.Contains(t, out, "  -xml <filename>        : output results to XML file")
	assert.Contains(t, out, "  -html <filename>       : output results to HTML file")
}
