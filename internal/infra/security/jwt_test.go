package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "campustrade/internal/domain/auth"
)

func TestJWTCodec_RoundTrip(t *testing.T) {
	codec, err := NewJWTCodec("0123456789abcdef-secret")
	require.NoError(t, err)
	claims, err := domainauth.NewClaims(domainauth.IssueParams{UserID: "u1", Name: "Ada", TTL: time.Hour})
	require.NoError(t, err)

	token, err := codec.Sign(claims)
	require.NoError(t, err)
	got, err := codec.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "Ada", got.Name)
	assert.WithinDuration(t, claims.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestJWTCodec_Rejects(t *testing.T) {
	codec, err := NewJWTCodec("0123456789abcdef-secret")
	require.NoError(t, err)
	other, err := NewJWTCodec("another-secret-of-length")
	require.NoError(t, err)

	expired, err := domainauth.NewClaims(domainauth.IssueParams{UserID: "u1", TTL: time.Minute, Now: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	token, err := codec.Sign(expired)
	require.NoError(t, err)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, domainauth.ErrTokenExpired)

	fresh, err := domainauth.NewClaims(domainauth.IssueParams{UserID: "u1", TTL: time.Hour})
	require.NoError(t, err)
	token, err = other.Sign(fresh)
	require.NoError(t, err)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, domainauth.ErrTokenInvalid)

	_, err = codec.Verify("")
	assert.ErrorIs(t, err, domainauth.ErrTokenRequired)
	_, err = codec.Verify("not.a.jwt")
	assert.ErrorIs(t, err, domainauth.ErrTokenInvalid)

	_, err = NewJWTCodec("short")
	assert.Error(t, err)
}
