package sentry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_Disabled(t *testing.T) {
	err := Init("0.1.0", false)
	assert.NoError(t, err)
	// Flush, SetContext, and RecoverPanic should be safe no-ops
	SetContext("/bin/zsh", "demo")
	Flush()
}

func TestInit_EmptyDSN(t *testing.T) {
	origDSN := dsn
	dsn = ""
	defer func() { dsn = origDSN }()

	err := Init("0.1.0", true)
	assert.NoError(t, err)
	Flush()
}

func TestDefaultDSNEmpty(t *testing.T) {
	// Dev builds must not ship a DSN; releases inject one via -ldflags.
	assert.Empty(t, dsn)
}

func TestIsEnabled(t *testing.T) {
	enabled = false
	assert.False(t, IsEnabled())
	enabled = true
	assert.True(t, IsEnabled())
	enabled = false // reset
}
