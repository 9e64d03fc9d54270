package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough!")

	token, err := svc.GenerateToken("ops-dashboard", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "ops-dashboard", subject)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewAuthService("secret-one-that-is-long-enough-aa").GenerateToken("ops", time.Hour)
	require.NoError(t, err)

	_, err = NewAuthService("secret-two-that-is-long-enough-bb").ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewAuthService("test-secret-key-that-is-long-enough!")
	token, err := svc.GenerateToken("ops", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := NewAuthService("test-secret-key-that-is-long-enough!").ValidateToken("not.a.jwt")
	require.Error(t, err)
}
