package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/rs/zerolog/log"
)

// MeetingTracker maps live channels to their open meeting record.
type MeetingTracker struct {
	store store.MeetingStore
	now   func() time.Time

	mu   sync.Mutex
	open map[domain.ChannelKey]domain.MeetingID
}

func NewMeetingTracker(s store.MeetingStore) *MeetingTracker {
	return &MeetingTracker{
		store: s,
		now:   time.Now,
		open:  make(map[domain.ChannelKey]domain.MeetingID),
	}
}

// Joined opens a meeting for key if none is open and records the participant.
func (t *MeetingTracker) Joined(ctx context.Context, key domain.ChannelKey, user domain.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	id, ok := t.open[key]
	if !ok {
		var err error
		id, err = t.store.Open(ctx, key, now)
		if err != nil {
			return fmt.Errorf("open meeting %s: %w", key, err)
		}
		t.open[key] = id
		log.Info().Str("module", "app.meetings").Str("channel", key.String()).Str("meeting", string(id)).Msg("meeting opened")
	}
	if err := t.store.AddParticipant(ctx, id, domain.Participant{UserID: user.ID, Username: user.Username, JoinedAt: now}); err != nil {
		return fmt.Errorf("add participant to %s: %w", id, err)
	}
	return nil
}

// Left stamps the participant and closes the meeting once remaining drops to zero.
func (t *MeetingTracker) Left(ctx context.Context, key domain.ChannelKey, uid domain.UserID, remaining int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.open[key]
	if !ok {
		return nil
	}
	now := t.now()
	if err := t.store.MarkLeft(ctx, id, uid, now); err != nil {
		log.Warn().Err(err).Str("module", "app.meetings").Str("meeting", string(id)).Str("uid", string(uid)).Msg("mark left")
	}
	if remaining > 0 {
		return nil
	}
	delete(t.open, key)
	if err := t.store.Close(ctx, id, now); err != nil {
		return fmt.Errorf("close meeting %s: %w", id, err)
	}
	log.Info().Str("module", "app.meetings").Str("channel", key.String()).Str("meeting", string(id)).Msg("meeting closed")
	return nil
}

func (t *MeetingTracker) Current(key domain.ChannelKey) (domain.MeetingID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.open[key]
	return id, ok
}

func (t *MeetingTracker) History(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.Meeting, error) {
	return t.store.List(ctx, ws, limit)
}
