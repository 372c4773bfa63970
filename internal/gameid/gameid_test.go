package gameid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidUniqueIDs(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		require.NoError(t, Validate(id))
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
	}
}

func TestValidateRejectsMalformedIDs(t *testing.T) {
	t.Parallel()

	assert.Error(t, Validate("short"))
	assert.Error(t, Validate("zzzzzzzzzzzzzzzzzzzzzzzzzz"), "first character out of range")
	assert.Error(t, Validate("0123456789abcdefghjkmnpqrU"), "uppercase not in alphabet")
	assert.NoError(t, Validate("0123456789abcdefghjkmnpqrs"))
}
