package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryMappedKeyHasABinding(t *testing.T) {
	for str, name := range GlobalKeyStringsMap {
		binding, ok := GlobalkeyBindings[name]
		require.True(t, ok, "key %q maps to %d with no binding", str, name)
		assert.NotEmpty(t, binding.Keys(), "binding for %q has no keys", str)
	}
}

func TestBindingsCarryHelp(t *testing.T) {
	for name, binding := range GlobalkeyBindings {
		assert.NotEmpty(t, binding.Help().Desc, "binding %d has no help text", name)
	}
}
