package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClaims(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	claims, err := NewClaims(IssueParams{UserID: " u1 ", Name: "Ada", TTL: time.Hour, Now: now})
	require.NoError(t, err)

	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt)
	assert.False(t, claims.Expired(now.Add(59*time.Minute)))
	assert.True(t, claims.Expired(now.Add(time.Hour)))
}

func TestNewClaims_Validation(t *testing.T) {
	_, err := NewClaims(IssueParams{TTL: time.Hour})
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = NewClaims(IssueParams{UserID: "u1"})
	assert.ErrorIs(t, err, ErrTTLInvalid)
}
