package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{" INFO ", INFO, true},
		{"", INFO, true},
		{"warning", WARN, true},
		{"error", ERROR, true},
		{"loud", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, "TEST")
	l.SetOutput(&buf)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("INFO message written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] TEST: shown 2") || !strings.Contains(out, "[ERROR] TEST: shown 3") {
		t.Fatalf("output = %q", out)
	}
	if l.Enabled(DEBUG) || !l.Enabled(ERROR) {
		t.Fatal("Enabled does not follow the level")
	}
}

func TestSetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l := New(INFO, "FILE")
	l.SetConsole(false)
	if err := l.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	l.Info("written to disk")
	if err := l.SetFile(""); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[INFO] FILE: written to disk") {
		t.Fatalf("log file = %q", data)
	}
}
