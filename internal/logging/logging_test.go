package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", FormatJSON)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("hidden")
	log.Info("deployed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "deployed" {
		t.Errorf("expected msg deployed, got %v", entry["msg"])
	}
	if entry["logger"] != "ammlab" {
		t.Errorf("expected logger ammlab, got %v", entry["logger"])
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "DEBUG", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", FormatJSON); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
