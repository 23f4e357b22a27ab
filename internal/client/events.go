package client

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/domain"
)

type EventType string

const (
	EventConnectionStateChange EventType = "connection-state-change"
	EventUserJoined            EventType = "user-joined"
	EventUserLeft              EventType = "user-left"
	EventUserPublished         EventType = "user-published"
	EventUserUnpublished       EventType = "user-unpublished"
	EventUserPaused            EventType = "user-paused"
	EventUserResumed           EventType = "user-resumed"
	EventTrackState            EventType = "track-state"
	EventRemoteTrack           EventType = "remote-track"
	EventMessage               EventType = "message"
	EventEvicted               EventType = "evicted"
	EventError                 EventType = "error"
)

// Event is one notification on Session.Events. Which fields are set depends on Type.
type Event struct {
	Type EventType

	Prev  domain.ConnectionState
	State domain.ConnectionState

	User    domain.User
	Kind    domain.TrackKind
	Enabled bool
	Track   *RemoteTrack
	Data    json.RawMessage
	Err     error
}
