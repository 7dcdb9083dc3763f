package sentry

import (
	"io"
	"strings"
	"sync"

	gosentry "github.com/getsentry/sentry-go"
)

// Level represents the severity level for the sentry writer.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Writer wraps an io.Writer and forwards log messages to Sentry.
// Errors become Sentry events; warnings and info become breadcrumbs.
//
// A session's pty read loop can emit the same failure on every read, so
// consecutive duplicates are reported once.
type Writer struct {
	inner io.Writer
	level Level

	mu   sync.Mutex
	last string
}

// NewWriter creates a Writer that tees to inner and forwards to Sentry.
func NewWriter(inner io.Writer, level Level) *Writer {
	return &Writer{inner: inner, level: level}
}

func (w *Writer) Write(p []byte) (int, error) {
	// Always write to the original destination first.
	n, err := w.inner.Write(p)

	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return n, err
	}

	// Track duplicates regardless of telemetry state so toggling it on
	// mid-run doesn't re-report a message already seen.
	w.mu.Lock()
	dup := msg == w.last
	w.last = msg
	w.mu.Unlock()

	if !enabled || dup {
		return n, err
	}

	switch w.level {
	case LevelError:
		gosentry.CaptureMessage(msg)
	case LevelWarning:
		gosentry.AddBreadcrumb(&gosentry.Breadcrumb{
			Level:    gosentry.LevelWarning,
			Category: "log",
			Message:  msg,
		})
	case LevelInfo:
		gosentry.AddBreadcrumb(&gosentry.Breadcrumb{
			Level:    gosentry.LevelInfo,
			Category: "log",
			Message:  msg,
		})
	}

	return n, err
}
