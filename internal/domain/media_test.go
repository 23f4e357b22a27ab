package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaState_PauseResume(t *testing.T) {
	t.Run("resume restores prior flags", func(t *testing.T) {
		m := NewMediaState()
		m.SetEnabled(TrackVideo, false)

		require.True(t, m.Pause())
		assert.False(t, m.Enabled(TrackAudio))
		assert.False(t, m.Enabled(TrackVideo))

		require.True(t, m.Resume())
		assert.True(t, m.Enabled(TrackAudio))
		assert.False(t, m.Enabled(TrackVideo))
	})

	t.Run("double pause keeps first remembered state", func(t *testing.T) {
		m := NewMediaState()
		require.True(t, m.Pause())
		require.False(t, m.Pause())

		require.True(t, m.Resume())
		assert.True(t, m.Enabled(TrackAudio))
		assert.True(t, m.Enabled(TrackVideo))
	})

	t.Run("resume without pause is a no-op", func(t *testing.T) {
		m := NewMediaState()
		m.SetEnabled(TrackAudio, false)
		assert.False(t, m.Resume())
		assert.False(t, m.Enabled(TrackAudio))
	})

	t.Run("toggle while paused only moves remembered value", func(t *testing.T) {
		m := NewMediaState()
		require.True(t, m.Pause())

		assert.False(t, m.SetEnabled(TrackAudio, false))
		assert.False(t, m.Enabled(TrackAudio))

		require.True(t, m.Resume())
		assert.False(t, m.Enabled(TrackAudio))
		assert.True(t, m.Enabled(TrackVideo))
	})
}

func TestMediaState_Snapshot(t *testing.T) {
	m := NewMediaState()
	m.SetEnabled(TrackAudio, false)
	assert.Equal(t, map[TrackKind]bool{TrackAudio: false, TrackVideo: true}, m.Snapshot())
}

func TestMember_Pause(t *testing.T) {
	u, err := NewUser("alice")
	require.NoError(t, err)
	m := NewMember(u, RolePublisher)

	assert.True(t, m.Pause())
	assert.True(t, m.Paused())
	assert.False(t, m.TrackEnabled(TrackAudio))
	assert.True(t, m.Resume())
	assert.True(t, m.TrackEnabled(TrackAudio))
}
