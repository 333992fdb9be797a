// Package logger wraps logrus with the process-wide settings used by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config defines logging configuration options
type Config struct {
	Level        string
	Format       string // "text" or "json"
	Output       io.Writer
	ReportCaller bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init reconfigures the shared logger. Entries handed out earlier by For
// pick up the new settings because they all point at the same logger.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	base.SetOutput(out)
	base.SetLevel(level)
	base.SetReportCaller(cfg.ReportCaller)
	return nil
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
