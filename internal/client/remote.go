package client

import (
	"maps"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

// RemoteUser is another member of the joined channel as last reported by the server.
type RemoteUser struct {
	domain.User
	Role      domain.Role
	Published map[domain.TrackKind]bool
	Enabled   map[domain.TrackKind]bool
	Paused    bool
}

func newRemoteUser(u domain.User) *RemoteUser {
	return &RemoteUser{
		User:      u,
		Published: make(map[domain.TrackKind]bool),
		Enabled:   make(map[domain.TrackKind]bool),
	}
}

func remoteFromMember(m protocol.Member) *RemoteUser {
	ru := newRemoteUser(domain.User{ID: m.ID, Username: m.Username})
	ru.Role = m.Role
	ru.Enabled[domain.TrackAudio] = m.Audio
	ru.Enabled[domain.TrackVideo] = m.Video
	ru.Paused = m.Paused
	for _, k := range m.Published {
		ru.Published[k] = true
	}
	return ru
}

func (ru *RemoteUser) clone() RemoteUser {
	out := *ru
	out.Published = maps.Clone(ru.Published)
	out.Enabled = maps.Clone(ru.Enabled)
	return out
}

// applyEventLocked folds a server event into the member table. Callers hold mu.
func (s *Session) applyEventLocked(ev protocol.Event) {
	uid := ev.User.ID
	if uid == s.uid {
		return
	}
	ru, ok := s.remote[uid]
	if !ok && EventType(ev.Event) != EventUserLeft {
		ru = newRemoteUser(ev.User)
		s.remote[uid] = ru
	}

	switch EventType(ev.Event) {
	case EventUserJoined:
		ru.User = ev.User
	case EventUserLeft:
		delete(s.remote, uid)
	case EventUserPublished:
		ru.Published[ev.Kind] = true
		ru.Enabled[ev.Kind] = ev.Enabled
	case EventUserUnpublished:
		delete(ru.Published, ev.Kind)
	case EventUserPaused:
		ru.Paused = true
	case EventUserResumed:
		ru.Paused = false
	case EventTrackState:
		ru.Enabled[ev.Kind] = ev.Enabled
	}
}
