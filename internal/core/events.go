package core

import "github.com/dkeye/huddle/internal/domain"

type EventType string

const (
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventUserPublished   EventType = "user-published"
	EventUserUnpublished EventType = "user-unpublished"
	EventUserPaused      EventType = "user-paused"
	EventUserResumed     EventType = "user-resumed"
	EventTrackState      EventType = "track-state"
)

// Event describes a participant change inside one channel.
// From is excluded from delivery.
type Event struct {
	Type    EventType
	Channel domain.ChannelKey
	From    SessionID
	User    domain.User
	Kind    domain.TrackKind
	Enabled bool
}

type EventSink interface {
	Emit(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }
