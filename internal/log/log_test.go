package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		SetOutput(&bytes.Buffer{}, &bytes.Buffer{})
		SetDebugMode(false)
	})
	return &out, &errOut
}

func TestInfoAndError(t *testing.T) {
	out, errOut := captureOutput(t)

	Info("hello %s", "world")
	Error("boom %d", 42)

	if !strings.Contains(out.String(), "[x] hello world") {
		t.Errorf("stdout = %q", out.String())
	}
	if !strings.Contains(errOut.String(), "[x] boom 42") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestDebugOnlyWhenEnabled(t *testing.T) {
	out, _ := captureOutput(t)

	Debug("hidden")
	if out.Len() != 0 {
		t.Fatalf("debug printed while disabled: %q", out.String())
	}

	SetDebugMode(true)
	Debug("shown")
	if !strings.Contains(out.String(), "[DEBUG] shown") {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestWriterStripsNewline(t *testing.T) {
	out, _ := captureOutput(t)

	w := Writer()
	if _, err := w.Write([]byte("  → step done\n")); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "  [x]   → step done\n" {
		t.Errorf("writer output = %q", got)
	}
}
