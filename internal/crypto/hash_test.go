package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_CheckPassword(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	t.Cleanup(func() { PasswordCost = bcrypt.DefaultCost })

	hash, err := HashPassword("password1")
	require.NoError(t, err)
	assert.NotEqual(t, "password1", hash)

	require.NoError(t, CheckPassword(hash, "password1"))
	assert.ErrorIs(t, CheckPassword(hash, "password2"), ErrPasswordMismatch)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestCheckPassword_InvalidHash(t *testing.T) {
	err := CheckPassword("not-a-bcrypt-hash", "password1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, a, 43) // 32 байта в base64url без паддинга
	assert.NotEqual(t, a, b)
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("token")
	h2 := HashToken("token")

	assert.Equal(t, h1, h2, "хеш должен быть детерминированным")
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashToken("other"))
}
