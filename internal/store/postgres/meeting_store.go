package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// MeetingStore implements store.MeetingStore using PostgreSQL.
type MeetingStore struct {
	pool *pgxpool.Pool
}

var _ store.MeetingStore = (*MeetingStore)(nil)

func NewMeetingStore(pool *pgxpool.Pool) *MeetingStore {
	return &MeetingStore{pool: pool}
}

func (s *MeetingStore) Open(ctx context.Context, key domain.ChannelKey, at time.Time) (domain.MeetingID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (meeting_id, workspace, channel, started_at)
		VALUES ($1, $2, $3, $4)
	`, id, string(key.Workspace), string(key.Name), at)
	if err != nil {
		return "", fmt.Errorf("failed to open meeting: %w", mapPostgresError(err))
	}
	log.Debug().Str("module", "store.postgres").Str("meeting", id.String()).Str("channel", key.String()).Msg("opened meeting")
	return domain.MeetingID(id.String()), nil
}

func (s *MeetingStore) Close(ctx context.Context, id domain.MeetingID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meetings SET ended_at = $2
		WHERE meeting_id = $1 AND ended_at IS NULL
	`, string(id), at)
	if err != nil {
		return fmt.Errorf("failed to close meeting: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return store.ErrMeetingClosed
}

func (s *MeetingStore) AddParticipant(ctx context.Context, id domain.MeetingID, p domain.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_participants (meeting_id, user_id, username, joined_at)
		VALUES ($1, $2, $3, $4)
	`, string(id), string(p.UserID), p.Username, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", mapPostgresError(err))
	}
	return nil
}

func (s *MeetingStore) MarkLeft(ctx context.Context, id domain.MeetingID, uid domain.UserID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE meeting_participants SET left_at = $3
		WHERE id = (
			SELECT id FROM meeting_participants
			WHERE meeting_id = $1 AND user_id = $2 AND left_at IS NULL
			ORDER BY joined_at DESC
			LIMIT 1
		)
	`, string(id), string(uid), at)
	if err != nil {
		return fmt.Errorf("failed to mark participant left: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrParticipantNotFound
	}
	return nil
}

func (s *MeetingStore) Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	var m domain.Meeting
	var mid uuid.UUID
	var ws, ch string
	err := s.pool.QueryRow(ctx, `
		SELECT meeting_id, workspace, channel, started_at, ended_at
		FROM meetings WHERE meeting_id = $1
	`, string(id)).Scan(&mid, &ws, &ch, &m.StartedAt, &m.EndedAt)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	m.ID = domain.MeetingID(mid.String())
	m.Workspace = domain.WorkspaceID(ws)
	m.Channel = domain.ChannelName(ch)

	parts, err := s.participants(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Participants = parts
	return &m, nil
}

func (s *MeetingStore) List(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.Meeting, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT meeting_id, workspace, channel, started_at, ended_at
		FROM meetings WHERE workspace = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, string(ws), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", mapPostgresError(err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Meeting, error) {
		var m domain.Meeting
		var mid uuid.UUID
		var w, ch string
		if err := row.Scan(&mid, &w, &ch, &m.StartedAt, &m.EndedAt); err != nil {
			return m, err
		}
		m.ID = domain.MeetingID(mid.String())
		m.Workspace = domain.WorkspaceID(w)
		m.Channel = domain.ChannelName(ch)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan meetings: %w", err)
	}
	for i := range out {
		parts, err := s.participants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Participants = parts
	}
	return out, nil
}

func (s *MeetingStore) participants(ctx context.Context, id domain.MeetingID) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, username, joined_at, left_at
		FROM meeting_participants WHERE meeting_id = $1
		ORDER BY joined_at, id
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", mapPostgresError(err))
	}
	parts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Participant, error) {
		var p domain.Participant
		var uid string
		err := row.Scan(&uid, &p.Username, &p.JoinedAt, &p.LeftAt)
		p.UserID = domain.UserID(uid)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}
	return parts, nil
}
