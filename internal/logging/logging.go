// Package logging configures the zerolog loggers used across switchboard.
// Components obtain child loggers tagged with a component field so log
// output can be filtered per subsystem.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console" // Human-readable, colorized unless NoColor
	FormatJSON    = "json"    // One JSON object per line
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level to emit: trace, debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format selects console or json output.
	Format string `mapstructure:"format" yaml:"format"`

	// NoColor disables ANSI colors in console output.
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`

	// File, when set, appends JSON log lines to this path in addition to
	// the console output.
	File string `mapstructure:"file" yaml:"file"`
}

// DefaultConfig returns info-level console logging.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatConsole}
}

// New builds a logger from cfg writing to w. A nil w means stderr.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := w
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Open builds a logger from cfg for process use. Console output goes to
// stderr unless quiet is set; quiet mode keeps the terminal clean for the
// interactive UI while the log file, if configured, still receives every
// line. The returned closer owns the log file and may be nil.
func Open(cfg Config, quiet bool) (zerolog.Logger, io.Closer, error) {
	var writers []io.Writer
	if !quiet {
		if cfg.Format == FormatJSON {
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor, TimeFormat: time.Kitchen})
		}
	}

	var closer io.Closer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		writers = append(writers, f)
		closer = f
	}

	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}
	out := writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger(), closer, nil
}

// ParseLevel maps a config string to a zerolog level. Unknown strings
// fall back to info rather than erroring.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig(), os.Stderr)
)

// SetDefault replaces the process-wide default logger.
func SetDefault(l zerolog.Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide default logger.
func Default() zerolog.Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Component returns the default logger tagged with a component field.
func Component(name string) zerolog.Logger {
	return Default().With().Str("component", name).Logger()
}
