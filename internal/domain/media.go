package domain

// MediaState tracks per-kind enabled flags and the pause toggle.
// Pause remembers the flags it overrides so Resume can put them back.
// Not safe for concurrent use; owners hold their own lock.
type MediaState struct {
	enabled map[TrackKind]bool
	prior   map[TrackKind]bool
	paused  bool
}

func NewMediaState() *MediaState {
	return &MediaState{
		enabled: make(map[TrackKind]bool, len(TrackKinds)),
		prior:   make(map[TrackKind]bool, len(TrackKinds)),
	}
}

// Enabled reports the effective flag. Kinds never touched are enabled.
func (m *MediaState) Enabled(kind TrackKind) bool {
	on, ok := m.enabled[kind]
	return !ok || on
}

func (m *MediaState) Paused() bool { return m.paused }

// SetEnabled changes one kind. While paused only the remembered value moves,
// the effective flag stays off until Resume. Returns the effective flag.
func (m *MediaState) SetEnabled(kind TrackKind, on bool) bool {
	if m.paused {
		m.prior[kind] = on
		return false
	}
	m.enabled[kind] = on
	return on
}

// Pause disables every kind. It returns false when already paused, in which
// case the first remembered state is kept.
func (m *MediaState) Pause() bool {
	if m.paused {
		return false
	}
	for _, k := range TrackKinds {
		m.prior[k] = m.Enabled(k)
		m.enabled[k] = false
	}
	m.paused = true
	return true
}

// Resume restores the flags remembered by Pause. It returns false when not paused.
func (m *MediaState) Resume() bool {
	if !m.paused {
		return false
	}
	for _, k := range TrackKinds {
		m.enabled[k] = m.prior[k]
	}
	clear(m.prior)
	m.paused = false
	return true
}

// Snapshot returns the effective flags of all kinds.
func (m *MediaState) Snapshot() map[TrackKind]bool {
	out := make(map[TrackKind]bool, len(TrackKinds))
	for _, k := range TrackKinds {
		out[k] = m.Enabled(k)
	}
	return out
}
