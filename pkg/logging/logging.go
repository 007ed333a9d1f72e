// Package logging builds the zerolog logger shared by the library and CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format.
type Config struct {
	// Level is a zerolog level name; empty means info.
	Level string `yaml:"level"`

	// Format is "console" or "json". Empty picks console in development
	// and json otherwise.
	Format string `yaml:"format"`

	// Env is the application environment (development, production, ...).
	Env string `yaml:"env"`
}

// New returns a logger writing to w (stderr when nil).
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.console() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("component", "sqlbridge").Logger()
}

func (c Config) console() bool {
	switch strings.ToLower(c.Format) {
	case "console", "pretty", "text":
		return true
	case "json":
		return false
	}
	return !IsProduction(c.Env)
}

// IsProduction reports whether env names a production environment.
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return true
	}
	return false
}
