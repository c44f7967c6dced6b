// Package logging provides a zerolog wrapper with opinionated defaults and
// per-component sub-loggers for the dosing engine.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Component tags used across the engine. Mirrored in every log line so a
// cycle's audit trail can be filtered per stage.
const (
	TagAPS         = "aps"
	TagSensitivity = "sensitivity"
	TagStore       = "store"
	TagReplay      = "replay"
)

// Options configures the root logger.
type Options struct {
	Level  string
	Format string // "console" or "json"
	Writer io.Writer
}

// FromEnv builds Options from LOOP_LOG_LEVEL / LOOP_LOG_FORMAT.
func FromEnv() Options {
	level := os.Getenv("LOOP_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("LOOP_LOG_FORMAT")
	if format == "" {
		format = "console"
	}
	return Options{Level: strings.ToLower(level), Format: strings.ToLower(format)}
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

// Get returns the process-wide root logger, initializing from env on first use.
func Get() *Logger {
	if !inited.Load() {
		Init(FromEnv())
	}
	return root.Load()
}

// Component returns a sub-logger tagged with the given component name.
func Component(tag string) Logger {
	return Get().With().Str("component", tag).Logger()
}

// Init configures zerolog and builds the root logger. Safe to call once;
// later calls are no-ops.
func Init(opt Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano

		var w io.Writer = os.Stderr
		if opt.Writer != nil {
			w = opt.Writer
		}
		if opt.Format == "console" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}

		log := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp().Logger()
		root.Store(&log)
		inited.Store(true)
	})
}

func parseLevel(s string) zerolog.Level {
	switch strings.TrimSpace(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
