package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_ProductionJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("production", &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Int64("job_id", 7).Msg("job created")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug suppressed), got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("production output is not JSON: %v", err)
	}
	if entry["message"] != "job created" || entry["service"] != "easybooking" {
		t.Errorf("entry = %v", entry)
	}
	if entry["job_id"] != float64(7) {
		t.Errorf("job_id = %v, want 7", entry["job_id"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestNewWithWriter_DevelopmentConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("development", &buf)

	logger.Debug().Msg("visible in development")

	out := buf.String()
	if !strings.Contains(out, "visible in development") {
		t.Errorf("debug line missing: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("development output should be console formatted, got %q", out)
	}
}
