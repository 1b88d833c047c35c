package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour, "sideline")
	require.NoError(t, err)

	token, exp, err := m.GenerateToken("u1", "u1@example.com", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Greater(t, exp, time.Now().Unix())

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1@example.com", claims.Email)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "sideline", claims.Issuer)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour, "sideline")
	require.NoError(t, err)

	_, err = m.ValidateToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m1, err := NewManager("secret-one", time.Hour, "sideline")
	require.NoError(t, err)
	m2, err := NewManager("secret-two", time.Hour, "sideline")
	require.NoError(t, err)

	token, _, err := m1.GenerateToken("u1", "u1@example.com", "alice")
	require.NoError(t, err)

	_, err = m2.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m, err := NewManager("test-secret", time.Millisecond, "sideline")
	require.NoError(t, err)

	token, _, err := m.GenerateToken("u1", "u1@example.com", "alice")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = m.ValidateToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour, "sideline")
	require.Error(t, err)
}
