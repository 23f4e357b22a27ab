package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelManager(t *testing.T) {
	m := NewChannelManager()
	a := domain.ChannelKey{Workspace: "acme", Name: "standup"}
	b := domain.ChannelKey{Workspace: "acme", Name: "all-hands"}
	c := domain.ChannelKey{Workspace: "globex", Name: "standup"}

	_, ok := m.Get(a)
	assert.False(t, ok)

	chA := m.GetOrCreate(a)
	assert.Same(t, chA, m.GetOrCreate(a))
	m.GetOrCreate(b)
	m.GetOrCreate(c)

	got, ok := m.Get(a)
	require.True(t, ok)
	assert.Same(t, chA, got)

	list := m.List("acme")
	require.Len(t, list, 2)
	assert.Equal(t, domain.ChannelName("all-hands"), list[0].Name)
	assert.Equal(t, domain.ChannelName("standup"), list[1].Name)

	m.Stop(a)
	_, ok = m.Get(a)
	assert.False(t, ok)
	assert.Len(t, m.List("globex"), 1)
}
