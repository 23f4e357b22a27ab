package orch

import (
	"context"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join adds sid to key with role. Concurrent joins of one session are rejected
// with app.ErrJoinInProgress; a session already in another channel leaves it first.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, key domain.ChannelKey, role domain.Role) error {
	if err := o.Registry.BeginJoin(sid); err != nil {
		return err
	}
	defer o.Registry.EndJoin(sid)

	if cur, _, ok := o.Registry.ChannelOf(sid); ok {
		if cur == key {
			return ErrAlreadyJoined
		}
		o.Leave(ctx, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from", cur.String()).Msg("left previous channel")
	}

	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return app.ErrNoSession
	}
	user, _ := o.Registry.GetOrCreateUser(sid)
	session.UpdateMeta(domain.NewMember(user, role))

	o.membership.Lock()
	ch := o.Channels.GetOrCreate(key)
	ch.AddMember(sid, session)
	o.Registry.UpdateChannel(sid, key)
	if o.Meetings != nil {
		if err := o.Meetings.Joined(ctx, key, *user); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("channel", key.String()).Msg("meeting record")
		}
	}
	o.membership.Unlock()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", key.String()).Str("role", string(role)).Msg("joined")

	o.emit(core.Event{Type: core.EventUserJoined, Channel: key, From: sid, User: *user})
	return nil
}

// Leave removes sid from its channel, tears down its media and reports whether it was a member.
func (o *Orchestrator) Leave(ctx context.Context, sid core.SessionID) bool {
	key, session, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return false
	}
	user := *session.Meta().User

	o.cleanupMedia(sid)
	o.closeMedia(session)

	o.membership.Lock()
	remaining := 0
	if ch, ok := o.Channels.Get(key); ok {
		ch.RemoveMember(sid)
		remaining = ch.MemberCount()
		if remaining == 0 {
			o.Channels.Stop(key)
		}
	}
	o.Registry.RemoveChannel(sid)
	if o.Meetings != nil {
		if err := o.Meetings.Left(ctx, key, user.ID, remaining); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("channel", key.String()).Msg("meeting record")
		}
	}
	o.membership.Unlock()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", key.String()).Int("remaining", remaining).Msg("left")

	o.emit(core.Event{Type: core.EventUserLeft, Channel: key, From: sid, User: user})
	return true
}

// EvictChannel removes every member of key and returns their sessions.
func (o *Orchestrator) EvictChannel(ctx context.Context, key domain.ChannelKey) []core.SessionID {
	members := o.Registry.MembersOfChannel(key)
	out := make([]core.SessionID, 0, len(members))
	for _, snap := range members {
		if o.Leave(ctx, snap.SID) {
			out = append(out, snap.SID)
		}
	}
	o.membership.Lock()
	if ch, ok := o.Channels.Get(key); ok && ch.MemberCount() == 0 {
		o.Channels.Stop(key)
	}
	o.membership.Unlock()
	log.Info().Str("module", "orch").Str("channel", key.String()).Int("evicted", len(out)).Msg("channel evicted")
	return out
}
