// Package logging provides the worker's structured logger.
package logging

import (
	"os"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

// discardWriter implements writers.IWriter and discards all output; used
// by Silent to keep test output quiet without falling through to
// globally-registered writers.
type discardWriter struct{}

func (w *discardWriter) Write(p []byte) (int, error)          { return len(p), nil }
func (w *discardWriter) WithLevel(_ log.Level) writers.IWriter { return w }
func (w *discardWriter) GetFilePath() string                   { return "" }
func (w *discardWriter) Close() error                          { return nil }

// Logger wraps arbor.ILogger to give every component a consistent,
// explicitly-passed logging handle (no package-level singleton).
type Logger struct {
	arbor.ILogger
}

// New creates a logger at the given level (trace|debug|info|warn|error),
// writing to stderr with a console writer and keeping an in-memory ring
// buffer for diagnostics.
func New(level string) *Logger {
	l := arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			Writer:     os.Stderr,
			TimeFormat: "2006-01-02T15:04:05Z07:00",
		}).
		WithMemoryWriter(models.WriterConfiguration{
			Type: models.LogWriterTypeMemory,
		}).
		WithLevelFromString(level)

	return &Logger{ILogger: l}
}

// Default returns an info-level logger that needs no configuration; the
// tests use it.
func Default() *Logger {
	return New("info")
}

// Silent returns a logger that discards all output, for tests that don't
// want stage/scheduler log lines on stderr.
func Silent() *Logger {
	return &Logger{ILogger: arbor.NewLogger().WithWriters([]writers.IWriter{&discardWriter{}})}
}

// WithWorker returns a derived logger carrying the worker id on every line.
func (l *Logger) WithWorker(workerID string) *Logger {
	return &Logger{ILogger: l.ILogger.WithCorrelationId(workerID)}
}
