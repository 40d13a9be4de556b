package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, exp, err := tm.GenerateToken("op-1", domain.OperatorRoleCX)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, domain.OperatorRoleCX, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestParseRejectsOtherSigningMethod(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{OperatorID: "op-1"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", 5).ParseToken(raw)
	assert.Error(t, err)
}

func TestParseRejectsForeignIssuerAndExpiry(t *testing.T) {
	secret := []byte("secret")
	tm := NewTokenManager("secret", 5)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		OperatorID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = tm.ParseToken(foreign)
	assert.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		OperatorID:       "op-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = tm.ParseToken(noExpiry)
	assert.Error(t, err)
}

func TestHasher(t *testing.T) {
	h, err := NewHasher(4)
	require.NoError(t, err)

	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NoError(t, h.Verify(hash, "hunter2"))
	assert.ErrorIs(t, h.Verify(hash, "wrong"), ErrPasswordMismatch)
	assert.ErrorIs(t, h.Verify("", "hunter2"), ErrPasswordMismatch)

	_, err = h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
