package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/johan-st/tsbrowse/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{" warn ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"loud", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LoggingConfig{Level: "info", Format: "json"})
	l.Info("connected", "host", "plant-a")
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, `"host":"plant-a"`) {
		t.Errorf("json output missing host field: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line logged at info level: %s", out)
	}
}

func TestInit_File(t *testing.T) {
	dir := t.TempDir()
	defer log.SetDefault(log.New(os.Stderr))

	closer, err := Init(config.LoggingConfig{Level: "info"}, dir, true)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	log.Info("hello from test")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, DefaultFile))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file content = %q", data)
	}
}
