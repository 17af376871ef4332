package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "gq_"))
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
}

func TestHashAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("gq_secret-value-for-test")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	v := NewBcryptVerifier()
	assert.NoError(t, v.Compare(hash, "gq_secret-value-for-test"))
	assert.Error(t, v.Compare(hash, "gq_other"))
}
