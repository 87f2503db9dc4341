package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenPair(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)

	p, err := tm.GeneratePair("u-1", "admin")
	require.NoError(t, err)

	c, err := tm.ParseAccess(p.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.Equal(t, "admin", c.Role)

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := tm.ParseAccess(p.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := tm.ParseRefresh(p.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("refresh issues a new pair", func(t *testing.T) {
		np, err := tm.Refresh(p.RefreshToken)
		require.NoError(t, err)
		c, err := tm.ParseAccess(np.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u-1", c.UserID)
	})
	t.Run("other secret", func(t *testing.T) {
		other := NewTokenManager("x", "y", time.Minute, time.Hour)
		_, err := other.ParseAccess(p.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("a", "r", time.Minute, time.Hour)
	base := time.Now()
	tm.now = func() time.Time { return base }
	p, err := tm.GeneratePair("u-1", "user")
	require.NoError(t, err)

	tm.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = tm.ParseAccess(p.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tm.ParseRefresh(p.RefreshToken)
	assert.NoError(t, err)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword("s3cret-pass", h))
	assert.Error(t, VerifyPassword("wrong", h))
}
