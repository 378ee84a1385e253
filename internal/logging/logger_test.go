package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}

	var buf bytes.Buffer
	logger = NewLogger(&Config{Level: LevelDebug, Output: &buf})
	logger.Debug("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q, want it to contain %q", buf.String(), "hello")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected no output below level, got %q", buf.String())
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("output = %q, want it to contain warn message", buf.String())
	}
}

func TestWithOpPrefixesMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelInfo, Output: &buf})
	scoped := logger.WithOp("write")

	scoped.Info("ok", "tag", 3)

	out := buf.String()
	if !strings.Contains(out, "write: ok") {
		t.Errorf("output = %q, want it to contain %q", out, "write: ok")
	}
	if !strings.Contains(out, "tag=3") {
		t.Errorf("output = %q, want it to contain tag=3", out)
	}
}

func TestDefaultAndSetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)

	Info("via package func")
	if !strings.Contains(buf.String(), "via package func") {
		t.Errorf("output = %q, want it to contain message", buf.String())
	}
}
