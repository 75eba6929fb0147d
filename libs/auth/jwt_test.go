package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewHS256Signer("test-secret", "homeaudit", time.Hour)

	token, exp, err := s.Issue("user-1", "admin")
	require.NoError(t, err)
	assert.True(t, LooksLikeJWT(token))
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyRejectsWrongSecretAndExpiry(t *testing.T) {
	s := NewHS256Signer("test-secret", "homeaudit", time.Hour)
	token, _, err := s.Issue("user-1", "admin")
	require.NoError(t, err)

	other := NewHS256Signer("other-secret", "homeaudit", time.Hour)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	s := NewHS256Signer("test-secret", "", time.Hour)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "admin",
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc123")
	require.True(t, ok)
	assert.Equal(t, "abc123", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
	assert.False(t, LooksLikeJWT("c0ffee"))
}
