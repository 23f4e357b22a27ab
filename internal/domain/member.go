package domain

import "sync"

// Member represents user's participation meta for a channel.
// No transport or lifecycle logic here.
type Member struct {
	User *User
	Role Role

	mu        sync.Mutex
	media     *MediaState
	published map[TrackKind]bool
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, role Role) *Member {
	return &Member{User: user, Role: role, media: NewMediaState(), published: make(map[TrackKind]bool)}
}

// SetPublished records whether kind is currently forwarded from this member.
func (m *Member) SetPublished(kind TrackKind, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.published == nil {
		m.published = make(map[TrackKind]bool)
	}
	if on {
		m.published[kind] = true
		return
	}
	delete(m.published, kind)
}

// Published lists the published kinds in TrackKinds order.
func (m *Member) Published() []TrackKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrackKind
	for _, k := range TrackKinds {
		if m.published[k] {
			out = append(out, k)
		}
	}
	return out
}

func (m *Member) TrackEnabled(kind TrackKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.Enabled(kind)
}

func (m *Member) SetTrackEnabled(kind TrackKind, on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.SetEnabled(kind, on)
}

func (m *Member) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.Pause()
}

func (m *Member) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.Resume()
}

func (m *Member) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.Paused()
}

func (m *Member) MediaSnapshot() map[TrackKind]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.media.Snapshot()
}
