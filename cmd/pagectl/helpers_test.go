package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large reports cannot fill the pipe and block fn.
	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		if _, err := buf.ReadFrom(r); err != nil {
			t.Errorf("failed to read output: %v", err)
		}
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// resetFlags restores every package-level flag to its default.
func resetFlags() {
	verbose, quiet, jsonOut, logLevel = false, false, false, ""
	layoutFile, pages = "", 0
	kernBase, kernEnd, physTop = addrFlag{}, addrFlag{}, addrFlag{}
	stressWorkers, stressOps, stressSeed = 4, 2000, 1
}
