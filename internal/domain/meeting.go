package domain

import "time"

type MeetingID string

// Meeting spans from the first member joining a channel until the last one leaves.
type Meeting struct {
	ID           MeetingID     `json:"id"`
	Workspace    WorkspaceID   `json:"workspace"`
	Channel      ChannelName   `json:"channel"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	UserID   UserID     `json:"user_id"`
	Username string     `json:"username"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}
