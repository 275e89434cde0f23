package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/auth"
)

func TestHashAndVerifyToken(t *testing.T) {
	hash, err := auth.HashToken("debug-admin-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	ok, err := auth.VerifyTokenHash("debug-admin-123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = auth.VerifyTokenHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTokenHashMalformed(t *testing.T) {
	_, err := auth.VerifyTokenHash("x", "not-a-hash")
	assert.Error(t, err)

	_, err = auth.VerifyTokenHash("x", "!!!$also-bad")
	assert.Error(t, err)
}

func TestTokenVerifierPlainMode(t *testing.T) {
	v := auth.NewTokenVerifier("secret-token", "")
	assert.True(t, v.Configured())
	assert.True(t, v.Verify("secret-token"))
	assert.False(t, v.Verify("other"))
	assert.False(t, v.Verify(""))
}

func TestTokenVerifierHashModeWins(t *testing.T) {
	hash, err := auth.HashToken("hashed-token")
	require.NoError(t, err)

	// With both configured, only the hash credential is consulted.
	v := auth.NewTokenVerifier("plain-token", hash)
	assert.True(t, v.Verify("hashed-token"))
	assert.False(t, v.Verify("plain-token"))
}

func TestTokenVerifierUnconfigured(t *testing.T) {
	v := auth.NewTokenVerifier("", "")
	assert.False(t, v.Configured())
	assert.False(t, v.Verify("anything"))
}
