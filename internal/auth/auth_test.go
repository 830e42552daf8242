package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Issue(42, "alice", true, time.Hour)
	require.NoError(t, err)

	who, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", who.UserID)
	assert.Equal(t, "alice", who.Username)
	assert.True(t, who.IsAdmin)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := v.Issue(1, "bob", false, -time.Minute)
	require.NoError(t, err)

	foreign, err := NewVerifier("other").Issue(1, "bob", false, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: 1, Username: "bob"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		ID: 1, Username: "bob",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	anonymous, err := v.Issue(0, "", false, time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"expired":        expired,
		"wrong secret":   foreign,
		"no expiry":      noExpiry,
		"wrong alg":      wrongAlg,
		"missing claims": anonymous,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer "))
	assert.Equal(t, "", BearerToken(""))
}
