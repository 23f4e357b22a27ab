package domain

import "fmt"

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackKinds lists kinds in a stable order for iteration.
var TrackKinds = []TrackKind{TrackAudio, TrackVideo}

func ParseTrackKind(s string) (TrackKind, error) {
	switch TrackKind(s) {
	case TrackAudio, TrackVideo:
		return TrackKind(s), nil
	}
	return "", fmt.Errorf("unknown track kind %q", s)
}

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RolePublisher, nil
	case RolePublisher, RoleSubscriber:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) CanPublish() bool { return r == RolePublisher }
