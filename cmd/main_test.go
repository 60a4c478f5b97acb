package main_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	passingPkg = "passing"
	failingPkg = "failing"
	panicPkg   = "panicking"
)

// TestExitCodeBehavior verifies the exit codes of batch runs:
// - 0 when all tests pass
// - the number of failed tests when any fail
// - 1 for usage errors
// - -1 (255) for host errors
func TestExitCodeBehavior(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI integration test in short mode")
	}

	projectRoot, err := os.Getwd()
	require.NoError(t, err, "Failed to get current directory")
	projectRoot = filepath.Dir(projectRoot)
	opTestHostBin := filepath.Join(projectRoot, "bin", "op-testhost")
	ensureBinaryExists(t, projectRoot, opTestHostBin)

	testCases := []struct {
		name           string
		args           func(t *testing.T, dir string) []string
		expectedStatus int
	}{
		{
			name: "Passing tests should exit with code 0",
			args: func(t *testing.T, dir string) []string {
				return []string{buildTestBinary(t, dir, passingPkg, passingTests)}
			},
			expectedStatus: 0,
		},
		{
			name: "Failing tests should exit with the failure count",
			args: func(t *testing.T, dir string) []string {
				return []string{buildTestBinary(t, dir, failingPkg, failingTests)}
			},
			expectedStatus: 2,
		},
		{
			// A panic aborts the binary, failing the test that panicked.
			name: "Test with panic should count as one failure",
			args: func(t *testing.T, dir string) []string {
				return []string{buildTestBinary(t, dir, panicPkg, panickingTests)}
			},
			expectedStatus: 1,
		},
		{
			name: "Filters apply before the exit code is computed",
			args: func(t *testing.T, dir string) []string {
				bin := buildTestBinary(t, dir, failingPkg, failingTests)
				return []string{bin, "-method", "failing.TestAlwaysFails"}
			},
			expectedStatus: 1,
		},
		{
			name: "Missing binary should exit with code 1",
			args: func(t *testing.T, dir string) []string {
				return []string{filepath.Join(dir, "missing.test")}
			},
			expectedStatus: 1,
		},
		{
			name: "Invalid port should exit with code 255",
			args: func(t *testing.T, dir string) []string {
				bin := buildTestBinary(t, dir, passingPkg, passingTests)
				return []string{bin, "-port", "not-a-port"}
			},
			expectedStatus: 255,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			args := append(tc.args(t, dir), "-nologo")
			exitCode, _ := runOpTestHost(t, opTestHostBin, args...)
			require.Equal(t, tc.expectedStatus, exitCode, "Unexpected exit code")
		})
	}
}

func TestUsage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI integration test in short mode")
	}

	projectRoot, err := os.Getwd()
	require.NoError(t, err)
	projectRoot = filepath.Dir(projectRoot)
	opTestHostBin := filepath.Join(projectRoot, "bin", "op-testhost")
	ensureBinaryExists(t, projectRoot, opTestHostBin)

	for _, args := range [][]string{nil, {"-?"}} {
		exitCode, stdout := runOpTestHost(t, opTestHostBin, args...)
		require.Equal(t, 1, exitCode)
		require.Contains(t, stdout, "usage: op-testhost")
		require.Contains(t, stdout, "Reporters: (optional, choose only one)")
	}
}

const passingTests = `package test

import "testing"

func TestAlwaysPasses(t *testing.T) {}

func TestAlsoPasses(t *testing.T) {}
`

const failingTests = `package test

import "testing"

func TestAlwaysFails(t *testing.T) {
	t.Fail()
}

func TestFailsToo(t *testing.T) {
	t.Error("nope")
}

func TestPasses(t *testing.T) {}
`

const panickingTests = `package test

import "testing"

func TestExplicitPanic(t *testing.T) {
	panic("This test explicitly panics")
}
`

// ensureBinaryExists builds the op-testhost binary if it doesn't exist
func ensureBinaryExists(t *testing.T, projectRoot, binaryPath string) {
	if !fileExists(binaryPath) {
		t.Logf("Building op-testhost binary...")
		require.NoError(t, os.MkdirAll(filepath.Dir(binaryPath), 0755), "Failed to create directory for binary")

		buildCmd := exec.Command("go", "build", "-o", binaryPath, filepath.Join(projectRoot, "cmd"))
		var buildOutput bytes.Buffer
		buildCmd.Stdout = &buildOutput
		buildCmd.Stderr = &buildOutput
		if err := buildCmd.Run(); err != nil {
			t.Logf("Build output:\n%s", buildOutput.String())
			t.Fatalf("Failed to build op-testhost binary: %v", err)
		}
		t.Logf("Successfully built binary at %s", binaryPath)
	}
	require.FileExists(t, binaryPath, "op-testhost binary not found")
}

// buildTestBinary compiles a throwaway module into a test binary and returns its path.
func buildTestBinary(t *testing.T, dir, name, source string) string {
	t.Helper()

	packageDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(packageDir, 0755))
	writeFile(t, filepath.Join(packageDir, "go.mod"), "module test\n\ngo 1.21\n")
	writeFile(t, filepath.Join(packageDir, name+"_test.go"), source)

	binary := filepath.Join(dir, name+".test")
	cmd := exec.Command("go", "test", "-c", "-o", binary, ".")
	cmd.Dir = packageDir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to compile test binary:\n%s", out)
	return binary
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0644),
		fmt.Sprintf("Failed to write file: %s", path))
}

// runOpTestHost runs the binary and returns its exit code and stdout.
func runOpTestHost(t *testing.T, binary string, args ...string) (int, string) {
	t.Logf("Running op-testhost %v", args)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	execCmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	if stdout.Len() > 0 {
		t.Logf("stdout:\n%s", stdout.String())
	}
	if stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("op-testhost timed out")
	}
	if err == nil {
		return 0, stdout.String()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), stdout.String()
	}
	t.Fatalf("failed to run op-testhost: %v", err)
	return 0, ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
