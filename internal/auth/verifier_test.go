package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, issuer, subject string, extra map[string]any) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseTokenValid(t *testing.T) {
	v := NewVerifier("privy.io", []byte(testSecret))
	token := signToken(t, testSecret, "privy.io", "did:privy:abc", map[string]any{
		"wallet_address": "0xabc",
		"email":          "a@b.c",
		"login_method":   "wallet",
	})

	id, err := v.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "did:privy:abc", id.PrivyUserID)
	assert.Equal(t, "0xabc", id.WalletAddress)
	assert.Equal(t, "a@b.c", id.Email)
	assert.Equal(t, "wallet", string(id.LoginMethod))
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("privy.io", []byte(testSecret))
	token := signToken(t, "other-secret", "privy.io", "did:privy:abc", nil)
	_, err := v.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	v := NewVerifier("privy.io", []byte(testSecret))
	token := signToken(t, testSecret, "someone-else", "did:privy:abc", nil)
	_, err := v.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("privy.io", []byte(testSecret))
	token := signToken(t, testSecret, "privy.io", "", nil)
	_, err := v.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	v := NewVerifier("privy.io", []byte(testSecret))
	claims := jwt.MapClaims{
		"iss": "privy.io",
		"sub": "did:privy:abc",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.ParseToken(signed)
	assert.Error(t, err)
}
