package auth

import (
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = domain.ChannelKey{Workspace: "acme", Name: "standup"}

func TestMinter_MintAndVerify(t *testing.T) {
	m, err := NewMinter("s3cret", time.Minute)
	require.NoError(t, err)

	token, exp, err := m.Mint(key, "user-1", domain.RolePublisher)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, key, claims.Key())
	assert.Equal(t, domain.UserID("user-1"), claims.UserID())
	assert.Equal(t, domain.RolePublisher, claims.Role)
	assert.Equal(t, Issuer, claims.Issuer)

	aud, err := claims.GetAudience()
	require.NoError(t, err)
	assert.Contains(t, aud, Audience)
}

func TestMinter_VerifyRejects(t *testing.T) {
	m, err := NewMinter("s3cret", time.Minute)
	require.NoError(t, err)
	token, _, err := m.Mint(key, "user-1", domain.RoleSubscriber)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewMinter("other", time.Minute)
		require.NoError(t, err)
		_, err = other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { m.now = time.Now }()
		_, err := m.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other channel", func(t *testing.T) {
		_, err := m.VerifyFor(token, domain.ChannelKey{Workspace: "acme", Name: "retro"}, "user-1")
		require.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("other workspace", func(t *testing.T) {
		_, err := m.VerifyFor(token, domain.ChannelKey{Workspace: "globex", Name: "standup"}, "user-1")
		require.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("other subject", func(t *testing.T) {
		_, err := m.VerifyFor(token, key, "user-2")
		require.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("matching", func(t *testing.T) {
		claims, err := m.VerifyFor(token, key, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleSubscriber, claims.Role)
	})
}

func TestNewMinter(t *testing.T) {
	_, err := NewMinter("", time.Minute)
	require.ErrorIs(t, err, ErrEmptySecret)

	m, err := NewMinter("x", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, m.ttl)
}
