package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
)

// MemoryMeetingStore keeps meetings in process memory.
type MemoryMeetingStore struct {
	mu       sync.RWMutex
	meetings map[domain.MeetingID]*domain.Meeting
}

func NewMemoryMeetingStore() *MemoryMeetingStore {
	return &MemoryMeetingStore{meetings: make(map[domain.MeetingID]*domain.Meeting)}
}

func (s *MemoryMeetingStore) Open(_ context.Context, key domain.ChannelKey, at time.Time) (domain.MeetingID, error) {
	id := domain.MeetingID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[id] = &domain.Meeting{
		ID:        id,
		Workspace: key.Workspace,
		Channel:   key.Name,
		StartedAt: at,
	}
	return id, nil
}

func (s *MemoryMeetingStore) Close(_ context.Context, id domain.MeetingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrMeetingNotFound
	}
	if m.EndedAt != nil {
		return ErrMeetingClosed
	}
	m.EndedAt = &at
	return nil
}

func (s *MemoryMeetingStore) AddParticipant(_ context.Context, id domain.MeetingID, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrMeetingNotFound
	}
	m.Participants = append(m.Participants, p)
	return nil
}

func (s *MemoryMeetingStore) MarkLeft(_ context.Context, id domain.MeetingID, uid domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrMeetingNotFound
	}
	for i := len(m.Participants) - 1; i >= 0; i-- {
		p := &m.Participants[i]
		if p.UserID == uid && p.LeftAt == nil {
			p.LeftAt = &at
			return nil
		}
	}
	return ErrParticipantNotFound
}

func (s *MemoryMeetingStore) Get(_ context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	cp := copyMeeting(m)
	return &cp, nil
}

func (s *MemoryMeetingStore) List(_ context.Context, ws domain.WorkspaceID, limit int) ([]domain.Meeting, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	out := make([]domain.Meeting, 0)
	for _, m := range s.meetings {
		if m.Workspace == ws {
			out = append(out, copyMeeting(m))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyMeeting(m *domain.Meeting) domain.Meeting {
	cp := *m
	cp.Participants = append([]domain.Participant(nil), m.Participants...)
	return cp
}
