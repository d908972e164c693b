package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name          string
		accessSecret  string
		accessMinutes int
	}{
		{
			name:          "valid parameters",
			accessSecret:  "access-secret-key",
			accessMinutes: 15,
		},
		{
			name:          "empty secret",
			accessSecret:  "",
			accessMinutes: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTokenService(tt.accessSecret, tt.accessMinutes)
			assert.Equal(t, tt.accessSecret, ts.AccessTokenSecret)
			assert.Equal(t, time.Duration(tt.accessMinutes)*time.Minute, ts.AccessTokenExpiry)
		})
	}
}

func TestTokenService_GenerateAndVerify(t *testing.T) {
	ts := NewTokenService("access-secret", 15)

	token, expiresAt, err := ts.GenerateAccess("account-id", "test@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "account-id", claims.AccountID)
	assert.Equal(t, "test@example.com", claims.Email)
}

func TestTokenService_VerifyRejectsWrongSecret(t *testing.T) {
	ts := NewTokenService("access-secret", 15)
	other := NewTokenService("different-secret", 15)

	token, _, err := ts.GenerateAccess("account-id", "test@example.com")
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestTokenService_VerifyRejectsWrongSigningMethod(t *testing.T) {
	ts := NewTokenService("access-secret", 15)

	// Token signed with "none" must be rejected regardless of claims.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, JWTCustomClaims{AccountID: "account-id"})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.VerifyAccessToken(tokenString)
	assert.Error(t, err)
}

func TestTokenService_VerifyRejectsExpired(t *testing.T) {
	ts := NewTokenService("access-secret", -1)

	token, _, err := ts.GenerateAccess("account-id", "test@example.com")
	require.NoError(t, err)

	_, err = ts.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestTokenService_Getters(t *testing.T) {
	ts := NewTokenService("access-secret", 42)
	assert.Equal(t, 42*time.Minute, ts.GetAccessTokenExpiry())
}
