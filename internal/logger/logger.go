// Package logger holds the process-wide structured logger.
//
// Components take a zerolog.Logger from Logger() and attach their own fields
// (network, checkpoint, step). The daemon replaces the global logger with
// New once the configuration is known; the same logger is handed to gnark so
// circuit compilation and proving logs end up in the same sinks.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	global = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
)

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Set replaces the global logger, for this package and for gnark.
func Set(l zerolog.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
	gnarklogger.Set(l)
}

// Disable silences every log output. Tests call this.
func Disable() {
	Set(zerolog.Nop())
	gnarklogger.Disable()
}

// Options configures New.
type Options struct {
	Level     string
	File      string
	AuditFile string
	JSON      bool
}

// Closer owns the files opened by New.
type Closer struct {
	files []*os.File
}

// Close closes the log files.
func (c *Closer) Close() error {
	var first error
	for _, f := range c.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to the console, an optional log file and an
// optional audit file receiving warn and above.
func New(opts Options) (zerolog.Logger, *Closer, error) {
	closer := &Closer{}
	var console io.Writer = os.Stdout
	if !opts.JSON {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closer.files = append(closer.files, f)
		writers = append(writers, f)
	}
	if opts.AuditFile != "" {
		f, err := os.OpenFile(opts.AuditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			closer.Close()
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		closer.files = append(closer.files, f)
		writers = append(writers, &minLevelWriter{w: f, min: zerolog.WarnLevel})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger()
	return l, closer, nil
}

// minLevelWriter drops events below min.
type minLevelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (m *minLevelWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (m *minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < m.min {
		return len(p), nil
	}
	return m.w.Write(p)
}
