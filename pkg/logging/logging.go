// Package logging provides structured, leveled logging for swapkit components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Level represents a log level.
type Level = log.Level

// Log levels.
const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
	FatalLevel = log.FatalLevel
)

// Logger wraps charmbracelet/log and remembers its output so derived
// component loggers write to the same place.
type Logger struct {
	*log.Logger
	timeFormat string
	output     io.Writer
	prefix     string
}

// Config holds logger configuration.
type Config struct {
	Level      string    `yaml:"level"`
	TimeFormat string    `yaml:"time_format"`
	Prefix     string    `yaml:"prefix"`
	Output     io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
		Prefix:     "",
		Output:     os.Stderr,
	}
}

// New creates a new logger with the given configuration.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.TimeOnly
	}

	logger := log.NewWithOptions(output, log.Options{
		ReportCaller:    false,
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Prefix:          cfg.Prefix,
	})

	logger.SetLevel(ParseLevel(cfg.Level))

	return &Logger{Logger: logger, timeFormat: timeFormat, output: output, prefix: cfg.Prefix}
}

// Default returns a logger with the default configuration.
func Default() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(&Config{Level: "fatal", Output: io.Discard})
}

// ParseLevel parses a level name. Unknown names select info.
func ParseLevel(level string) Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// With returns a new logger with the given key-value pairs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...), timeFormat: l.timeFormat, output: l.output, prefix: l.prefix}
}

// WithPrefix returns a new logger with the given prefix, keeping the
// level and output of l.
func (l *Logger) WithPrefix(prefix string) *Logger {
	output := l.output
	if output == nil {
		output = os.Stderr
	}
	newLogger := log.NewWithOptions(output, log.Options{
		ReportTimestamp: true,
		TimeFormat:      l.timeFormat,
		Prefix:          prefix,
	})
	newLogger.SetLevel(l.GetLevel())
	return &Logger{Logger: newLogger, timeFormat: l.timeFormat, output: output, prefix: prefix}
}

// Component returns a logger for a named component. Components nest:
// Component("htlc").Component("utxo") logs with prefix "htlc/utxo".
func (l *Logger) Component(name string) *Logger {
	if l.prefix != "" {
		name = l.prefix + "/" + name
	}
	return l.WithPrefix(name)
}

var defaultLogger = Default()

// SetDefault sets the logger used by components constructed without one.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// GetDefault returns the default logger.
func GetDefault() *Logger {
	return defaultLogger
}
