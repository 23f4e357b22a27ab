package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyJoined     = errors.New("already joined to this channel")
	ErrNotInChannel      = errors.New("not in a channel")
	ErrPublishNotAllowed = errors.New("role may not publish")
)

// Negotiator starts a server-side offer towards sid after its tracks changed.
type Negotiator interface {
	Renegotiate(sid core.SessionID)
}

type Orchestrator struct {
	Registry   *app.Registry
	Channels   core.ChannelManager
	Policy     app.Policy
	Relays     *sfu.RelayManager
	Meetings   *app.MeetingTracker
	Events     core.EventSink
	Negotiator Negotiator

	// membership serializes channel create/add against remove/stop together
	// with the meeting record, so a last leave never stops a channel someone
	// is entering.
	membership sync.Mutex
}

func (o *Orchestrator) emit(e core.Event) {
	if o.Events == nil {
		return
	}
	o.Events.Emit(e)
}

func (o *Orchestrator) renegotiate(sid core.SessionID) {
	if o.Negotiator == nil {
		return
	}
	o.Negotiator.Renegotiate(sid)
}

// Broadcast relays a data frame to channel mates and applies the back-pressure policy.
func (o *Orchestrator) Broadcast(sid core.SessionID, data core.Frame) (core.PublishResult, error) {
	key, _, ok := o.Registry.ChannelOf(sid)
	if !ok {
		return core.PublishResult{}, ErrNotInChannel
	}
	ch, ok := o.Channels.Get(key)
	if !ok {
		return core.PublishResult{}, ErrNotInChannel
	}

	res := ch.Broadcast(sid, data)
	if o.Policy == nil {
		return res, nil
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfChannel(key) {
				if snap.Session == slow {
					log.Warn().Str("module", "orch").Str("sid", string(snap.SID)).Msg("kicking slow member")
					o.KickBySID(snap.SID)
				}
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res, nil
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Leave(context.Background(), sid)
}

// OnDisconnect releases everything bound to sid once its signal transport is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(context.Background(), sid)
	if sess, ok := o.Registry.GetSession(sid); ok {
		o.closeMedia(sess)
	}
	o.Registry.Unbind(sid)
}
