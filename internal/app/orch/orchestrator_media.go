package orch

import (
	"context"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	o.cleanupMedia(sid)
	if sess, ok := o.Registry.GetSession(sid); ok {
		o.closeMedia(sess)
	}
}

// cleanupMedia stops sid's relays, detaches sid from other publishers and
// reports the unpublished tracks to the channel.
func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	keys := o.Relays.StopRelays(sid)
	if sess, ok := o.Registry.GetSession(sid); ok {
		for _, k := range keys {
			sess.Meta().SetPublished(k.Kind, false)
		}
	}

	chKey, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return
	}
	mates := o.Registry.ChannelMates(sid)
	for _, snap := range mates {
		o.Relays.MarkSubscriberDelete(snap.SID, sid)
	}
	if len(keys) == 0 {
		return
	}
	user := *sess.Meta().User
	for _, k := range keys {
		o.emit(core.Event{Type: core.EventUserUnpublished, Channel: chKey, From: sid, User: user, Kind: k.Kind})
	}
	for _, snap := range mates {
		if snap.Session.Media() != nil {
			o.renegotiate(snap.SID)
		}
	}
}

// closeMedia detaches the connection first so the OnClosed callback finds nothing to close.
func (o *Orchestrator) closeMedia(sess core.MemberSession) {
	mc := sess.Media()
	if mc == nil {
		return
	}
	sess.UpdateMedia(nil)
	mc.Close()
}

// OnTrack is called when a new remote media track appears for a given session.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Logger()

	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return
	}
	chKey, _, ok := o.Registry.ChannelOf(sid)
	if !ok {
		logger.Info().Msg("OnTrack: no channel for sid")
		return
	}
	meta := sess.Meta()
	if !meta.Role.CanPublish() {
		logger.Warn().Err(ErrPublishNotAllowed).Msg("ignoring remote track")
		return
	}
	kind, err := domain.ParseTrackKind(track.Kind().String())
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring remote track")
		return
	}

	key := sfu.RelayKey{SID: sid, Kind: kind}
	relay := o.Relays.StartRelay(ctx, key, track)
	if !meta.TrackEnabled(kind) {
		relay.SetMuted(true)
	}
	meta.SetPublished(kind, true)

	// Subscribe all existing members in the channel to this publisher.
	for _, snap := range o.Registry.ChannelMates(sid) {
		pc := snap.Session.Media()
		if pc == nil {
			continue
		}
		if err := o.Relays.Subscribe(key, snap.SID, pc, sess.Media()); err != nil {
			logger.Error().Err(err).Str("dst_sid", string(snap.SID)).Msg("subscribe")
			continue
		}
		o.renegotiate(snap.SID)
	}
	o.emit(core.Event{Type: core.EventUserPublished, Channel: chKey, From: sid, User: *meta.User, Kind: kind, Enabled: meta.TrackEnabled(kind)})
}

// OnMediaReady is called when MediaConnection is attached to the session (offer/answer done).
// It subscribes this user to all existing relays in the same channel.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	if _, _, ok := o.Registry.ChannelOf(sid); !ok {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}

	added := 0
	for _, snap := range o.Registry.ChannelMates(sid) {
		for _, key := range o.Relays.KeysOf(snap.SID) {
			if err := o.Relays.Subscribe(key, sid, mc, snap.Session.Media()); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("src_sid", string(key.SID)).Msg("subscribe")
				continue
			}
			added++
		}
	}
	if added > 0 {
		o.renegotiate(sid)
	}
}

// SetTrackEnabled mutes or unmutes one published kind. While paused only the
// remembered flag changes.
func (o *Orchestrator) SetTrackEnabled(sid core.SessionID, kind domain.TrackKind, enabled bool) error {
	chKey, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return ErrNotInChannel
	}
	meta := sess.Meta()
	effective := meta.SetTrackEnabled(kind, enabled)
	if o.Relays != nil {
		o.Relays.SetMuted(sfu.RelayKey{SID: sid, Kind: kind}, !effective)
	}
	o.emit(core.Event{Type: core.EventTrackState, Channel: chKey, From: sid, User: *meta.User, Kind: kind, Enabled: effective})
	return nil
}

// Pause mutes every published kind and remembers the prior flags.
func (o *Orchestrator) Pause(sid core.SessionID) error {
	chKey, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return ErrNotInChannel
	}
	meta := sess.Meta()
	if !meta.Pause() {
		return nil
	}
	if o.Relays != nil {
		for _, k := range domain.TrackKinds {
			o.Relays.SetMuted(sfu.RelayKey{SID: sid, Kind: k}, true)
		}
	}
	o.emit(core.Event{Type: core.EventUserPaused, Channel: chKey, From: sid, User: *meta.User})
	return nil
}

// Resume restores the flags remembered by Pause.
func (o *Orchestrator) Resume(sid core.SessionID) error {
	chKey, sess, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return ErrNotInChannel
	}
	meta := sess.Meta()
	if !meta.Resume() {
		return nil
	}
	if o.Relays != nil {
		for _, k := range domain.TrackKinds {
			o.Relays.SetMuted(sfu.RelayKey{SID: sid, Kind: k}, !meta.TrackEnabled(k))
		}
	}
	o.emit(core.Event{Type: core.EventUserResumed, Channel: chKey, From: sid, User: *meta.User})
	return nil
}
