// Package logging configures the process-wide charmbracelet logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/johan-st/tsbrowse/internal/config"
)

// DefaultFile is the log file name used under the data dir in TUI mode.
const DefaultFile = "tsbrowse.log"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init installs the default logger from cfg. When toFile is set (TUI mode)
// output goes to cfg.File, or <dataDir>/tsbrowse.log, and never to stderr.
// The returned closer releases the log file.
func Init(cfg config.LoggingConfig, dataDir string, toFile bool) (io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	path := cfg.File
	if path == "" && toFile {
		path = filepath.Join(dataDir, DefaultFile)
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	log.SetDefault(New(out, cfg))
	return closer, nil
}

// New builds a logger writing to w with cfg's level and format.
func New(w io.Writer, cfg config.LoggingConfig) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           ParseLevel(cfg.Level),
		Formatter:       parseFormatter(cfg.Format),
	})
	return l
}

// ParseLevel parses a level name, falling back to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Apply updates the level of the default logger, e.g. after a config reload.
func Apply(cfg config.LoggingConfig) {
	log.SetLevel(ParseLevel(cfg.Level))
}

func parseFormatter(s string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
