// Package store persists meeting history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/huddle/internal/domain"
)

var (
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrMeetingClosed       = errors.New("meeting already closed")
	ErrParticipantNotFound = errors.New("participant not found")
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// MeetingStore records when channels were in use and who took part.
type MeetingStore interface {
	// Open starts a meeting for key at the given time.
	Open(ctx context.Context, key domain.ChannelKey, at time.Time) (domain.MeetingID, error)
	// Close stamps the end time. Closing twice returns ErrMeetingClosed.
	Close(ctx context.Context, id domain.MeetingID, at time.Time) error
	// AddParticipant appends a join record.
	AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error
	// MarkLeft stamps the latest open join record of uid.
	MarkLeft(ctx context.Context, id domain.MeetingID, uid domain.UserID, at time.Time) error
	Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
	// List returns meetings of a workspace, newest first.
	List(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.Meeting, error)
}
