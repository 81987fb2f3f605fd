// Package logging configures the process-wide zerolog logger and exposes
// a small Logger interface that hides zerolog behind a narrow contract.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. If logPath is non-empty, logs
// are additionally written to that file (append mode); on open failure it
// falls back to stdout only and prints a warning to stderr. Any extra
// writers (e.g. a telemetry.OTelWriter) receive every log line as well.
func Init(logPath string, level string, extra ...io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	writers := []io.Writer{os.Stdout}
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			writers = append(writers, f)
		} else {
			fmt.Fprintf(os.Stderr, "logging: failed to open log file %q: %v\n", logPath, err)
		}
	}
	writers = append(writers, extra...)
	var w io.Writer = io.MultiWriter(writers...)
	log.Logger = log.Output(w).With().Timestamp().Caller().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
}

// Logger is a minimal structured-logging contract. Zerolog below is the
// production implementation; tests may supply their own fake.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// Zerolog adapts the global zerolog logger to the Logger interface.
type Zerolog struct{}

func (Zerolog) Info(msg string, fields map[string]any) { emit(log.Info(), msg, fields) }

func (Zerolog) Error(msg string, fields map[string]any) { emit(log.Error(), msg, fields) }

func (Zerolog) Debug(msg string, fields map[string]any) { emit(log.Debug(), msg, fields) }

func emit(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// Noop discards every log line; useful for tests that don't care about output.
type Noop struct{}

func (Noop) Info(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
func (Noop) Debug(string, map[string]any) {}
