package keygen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		key, err := Generate()
		require.NoError(t, err)
		assert.Len(t, key, 35)
		assert.True(t, Valid(key), key)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("AB12CD34-EF56GH78-IJ90KL12-MN34OP56"))
	assert.False(t, Valid("ab12cd34-EF56GH78-IJ90KL12-MN34OP56"))
	assert.False(t, Valid("AB12CD34-EF56GH78-IJ90KL12"))
	assert.False(t, Valid("AB12CD34EF56GH78IJ90KL12MN34OP56"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "AB12CD34-EF56GH78-IJ90KL12-MN34OP56", Canonical(" ab12cd34-ef56gh78-ij90kl12-mn34op56 "))
}

func TestAcceptable(t *testing.T) {
	assert.True(t, Acceptable("AB12CD34-EF56GH78-IJ90KL12-MN34OP56"))
	assert.True(t, Acceptable("LEGACY-0001"))
	assert.False(t, Acceptable("SHORT"))
	assert.False(t, Acceptable("-LEADING-HYPHEN"))
	assert.False(t, Acceptable("lower-case-key"))
}
