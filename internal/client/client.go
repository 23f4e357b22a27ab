// Package client is the participant side of a huddle channel: it joins over
// the signalling WebSocket, publishes local tracks through a WebRTC peer,
// tracks the other members and reports everything on an events channel.
package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrJoinInProgress = errors.New("join already in progress")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrNotJoined      = errors.New("not joined")
	ErrJoinAborted    = errors.New("join aborted")
	ErrNoToken        = errors.New("no token and no token source")
	ErrSignalClosed   = errors.New("signalling connection closed")
	ErrServer         = errors.New("server error")
)

const (
	defaultEventBuffer = 64
	sendTimeout        = 5 * time.Second
)

// Config carries the transports a Session needs. Dialer and NewPeer are required.
type Config struct {
	Dialer  Dialer
	NewPeer PeerFactory
}

type Option func(*Session)

// WithTokenSource lets Join mint a token when none is supplied.
func WithTokenSource(ts TokenSource) Option {
	return func(s *Session) { s.tokens = ts }
}

func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// JoinOptions tune a single Join. An empty Role joins as publisher; nil Tracks
// publishes every kind a publisher may send.
type JoinOptions struct {
	Token  string
	Name   string
	Role   domain.Role
	Tracks []domain.TrackKind
}

type Session struct {
	cfg    Config
	tokens TokenSource
	events chan Event
	logger zerolog.Logger

	mu         sync.Mutex
	state      domain.ConnectionState
	joining    bool
	key        domain.ChannelKey
	uid        domain.UserID
	role       domain.Role
	sig        Signaling
	peer       Peer
	tracks     map[domain.TrackKind]LocalTrack
	media      *domain.MediaState
	remote     map[domain.UserID]*RemoteUser
	answered   bool
	pendingICE []webrtc.ICECandidateInit
}

// New builds an idle session. It performs no I/O.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		events: make(chan Event, defaultEventBuffer),
		logger: log.With().Str("module", "client").Logger(),
		state:  domain.StateDisconnected,
		tracks: make(map[domain.TrackKind]LocalTrack),
		media:  domain.NewMediaState(),
		remote: make(map[domain.UserID]*RemoteUser),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel reports the joined channel and the server-assigned user id.
func (s *Session) Channel() (domain.ChannelKey, domain.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateConnected && s.state != domain.StateReconnecting {
		return domain.ChannelKey{}, "", false
	}
	return s.key, s.uid, true
}

// Events delivers state changes and remote activity. Events are dropped when
// the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// RemoteUsers returns a copy of the member table sorted by id.
func (s *Session) RemoteUsers() []RemoteUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RemoteUser, 0, len(s.remote))
	for _, ru := range s.remote {
		out = append(out, ru.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) LocalTracks() []LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LocalTrack, 0, len(s.tracks))
	for _, k := range domain.TrackKinds {
		if t, ok := s.tracks[k]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Paused reports whether Pause is in effect.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media.Paused()
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn().Str("event", string(e.Type)).Msg("event buffer full, dropping")
	}
}

// setStateLocked moves the state machine and reports the change. Callers hold mu.
func (s *Session) setStateLocked(to domain.ConnectionState) error {
	if err := domain.CheckTransition(s.state, to); err != nil {
		return err
	}
	prev := s.state
	s.state = to
	s.logger.Info().Stringer("from", prev).Stringer("to", to).Msg("connection state")
	s.emit(Event{Type: EventConnectionStateChange, Prev: prev, State: to})
	return nil
}

func (s *Session) send(ctx context.Context, sig Signaling, v any) error {
	if sig == nil {
		return ErrSignalClosed
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return sig.Send(ctx, v)
}
