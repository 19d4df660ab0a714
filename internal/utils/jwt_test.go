package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWTUtil("secret", time.Hour)

	token, err := j.GenerateToken("u-1", "STUDENT")
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "STUDENT", claims.Role)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestJWTRejectsForeignSecret(t *testing.T) {
	token, err := NewJWTUtil("one", time.Hour).GenerateToken("u-1", "ADMIN")
	require.NoError(t, err)

	_, err = NewJWTUtil("two", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpired(t *testing.T) {
	j := NewJWTUtil("secret", -time.Minute)
	token, err := j.GenerateToken("u-1", "ADMIN")
	require.NoError(t, err)

	_, err = j.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateCode(t *testing.T) {
	a, b := GenerateCode(10), GenerateCode(10)
	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
}
