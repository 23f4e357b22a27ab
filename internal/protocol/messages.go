// Package protocol holds the JSON signalling messages exchanged over the
// WebSocket between the server and session clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/huddle/internal/domain"
)

// Message types.
const (
	TypeJoin       = "join"
	TypeJoined     = "joined"
	TypeLeave      = "leave"
	TypeLeft       = "left"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
	TypePause      = "pause"
	TypeResume     = "resume"
	TypeTrackState = "track_state"
	TypeMessage    = "message"
	TypeRename     = "rename"
	TypeWhoAmI     = "whoami"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeEvent      = "event"
	TypeError      = "error"
)

type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type      string `json:"type"`
	Workspace string `json:"workspace"`
	Channel   string `json:"channel"`
	Token     string `json:"token"`
	Name      string `json:"name,omitempty"`
}

type Member struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
	Audio    bool          `json:"audio"`
	Video    bool          `json:"video"`
	Paused   bool          `json:"paused"`

	Published []domain.TrackKind `json:"published,omitempty"`
}

type Joined struct {
	Type      string             `json:"type"`
	Workspace domain.WorkspaceID `json:"workspace"`
	Channel   domain.ChannelName `json:"channel"`
	UID       domain.UserID      `json:"uid"`
	Role      domain.Role        `json:"role"`
	Members   []Member           `json:"members"`
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type TrackState struct {
	Type    string           `json:"type"`
	Kind    domain.TrackKind `json:"kind"`
	Enabled bool             `json:"enabled"`
}

type Message struct {
	Type string          `json:"type"`
	From domain.UserID   `json:"from,omitempty"`
	Data json.RawMessage `json:"data"`
}

type Rename struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type WhoAmI struct {
	Type      string             `json:"type"`
	UID       domain.UserID      `json:"uid"`
	Username  string             `json:"username"`
	Workspace domain.WorkspaceID `json:"workspace,omitempty"`
	Channel   domain.ChannelName `json:"channel,omitempty"`
}

// Event carries a participant change; Event names match core.EventType values.
type Event struct {
	Type      string             `json:"type"`
	Event     string             `json:"event"`
	Workspace domain.WorkspaceID `json:"workspace"`
	Channel   domain.ChannelName `json:"channel"`
	User      domain.User        `json:"user"`
	Kind      domain.TrackKind   `json:"kind,omitempty"`
	Enabled   bool               `json:"enabled"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Error codes sent in Error.Error.
const (
	ErrBadPayload     = "bad_payload"
	ErrInvalidToken   = "invalid_token"
	ErrRateLimited    = "rate_limited"
	ErrJoinInProgress = "join_in_progress"
	ErrAlreadyJoined  = "already_joined"
	ErrNotInChannel   = "not_in_channel"
	ErrInvalidName    = "invalid_name"
	ErrMedia          = "media_error"
	ErrInternal       = "internal"
)

func NewError(code string) Error { return Error{Type: TypeError, Error: code} }

// PeekType returns the type field of a raw message.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("decode envelope: missing type")
	}
	return env.Type, nil
}
