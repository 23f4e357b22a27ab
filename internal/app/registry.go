package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrJoinInProgress = errors.New("join already in progress")
	ErrNoSession      = errors.New("no session")
)

type sessionEntry struct {
	Channel   domain.ChannelKey
	InChannel bool
	Session   core.MemberSession
	Cancel    context.CancelFunc
	joining   bool
}

// SessionSnap is a point-in-time view of one registered session.
type SessionSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[core.SessionID]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[core.SessionID]*domain.User),
	}
}

// GetOrCreateUser returns the user bound to sid; created reports a fresh guest.
func (r *Registry) GetOrCreateUser(sid core.SessionID) (*domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sid]; ok {
		return u, false
	}
	u := &domain.User{ID: domain.UserID(sid), Username: "guest"}
	r.users[sid] = u
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("created new user")
	return u, true
}

func (r *Registry) UpdateUsername(sid core.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sid]
	if !ok {
		return ErrNoSession
	}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", name).Msg("updated username")
	return nil
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// BeginJoin marks sid as joining. A second call before EndJoin fails.
func (r *Registry) BeginJoin(sid core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return ErrNoSession
	}
	if e.joining {
		return ErrJoinInProgress
	}
	e.joining = true
	return nil
}

func (r *Registry) EndJoin(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.joining = false
	}
}

func (r *Registry) ChannelOf(sid core.SessionID) (domain.ChannelKey, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || !entry.InChannel {
		return domain.ChannelKey{}, nil, false
	}
	return entry.Channel, entry.Session, true
}

func (r *Registry) UpdateChannel(sid core.SessionID, key domain.ChannelKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.Channel = key
	entry.InChannel = true
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("channel", key.String()).Msg("updated channel")
	return true
}

func (r *Registry) RemoveChannel(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.Channel = domain.ChannelKey{}
		entry.InChannel = false
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed channel association")
}

func (r *Registry) MembersOfChannel(key domain.ChannelKey) []SessionSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.InChannel && e.Channel == key {
			out = append(out, SessionSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// ChannelMates lists the other sessions in sid's channel.
func (r *Registry) ChannelMates(sid core.SessionID) []SessionSnap {
	key, _, ok := r.ChannelOf(sid)
	if !ok {
		return nil
	}
	all := r.MembersOfChannel(key)
	out := all[:0]
	for _, s := range all {
		if s.SID != sid {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
