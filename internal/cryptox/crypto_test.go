package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("correct horse"), hash)

	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	a, err := HashPassword("pw")
	require.NoError(t, err)
	b, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_NilHashAlwaysFails(t *testing.T) {
	assert.False(t, VerifyPassword(nil, "taskauth-dummy-password"))
	assert.False(t, VerifyPassword(nil, ""))
}

func TestVerifyPassword_GarbageHash(t *testing.T) {
	assert.False(t, VerifyPassword([]byte("not-a-bcrypt-hash"), "pw"))
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 73))
	require.Error(t, err)
	assert.True(t, IsPasswordTooLong(err))
}
