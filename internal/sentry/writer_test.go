package sentry

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PassthroughToInner(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, LevelError)

	msg := []byte("test error message\n")
	n, err := w.Write(msg)

	assert.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, string(msg), buf.String())
}

func TestWriter_DisabledPassthrough(t *testing.T) {
	enabled = false
	var buf bytes.Buffer
	w := NewWriter(&buf, LevelError)

	msg := []byte("test message\n")
	n, err := w.Write(msg)

	assert.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, string(msg), buf.String())
}

func TestWriter_DuplicatesStillReachInner(t *testing.T) {
	// Dedupe only suppresses the Sentry report; the log file keeps every
	// line.
	var buf bytes.Buffer
	w := NewWriter(&buf, LevelError)

	msg := []byte("pty read failed\n")
	_, err := w.Write(msg)
	assert.NoError(t, err)
	_, err = w.Write(msg)
	assert.NoError(t, err)

	assert.Equal(t, string(msg)+string(msg), buf.String())
	assert.Equal(t, "pty read failed", w.last)
}
