package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrJoinInProgress):
		return protocol.ErrJoinInProgress
	case errors.Is(err, orch.ErrAlreadyJoined):
		return protocol.ErrAlreadyJoined
	case errors.Is(err, orch.ErrNotInChannel):
		return protocol.ErrNotInChannel
	case errors.Is(err, domain.ErrUsernameEmpty), errors.Is(err, domain.ErrUsernameTooLong):
		return protocol.ErrInvalidName
	default:
		return protocol.ErrInternal
	}
}

func toMembers(dtos []core.MemberDTO) []protocol.Member {
	out := make([]protocol.Member, 0, len(dtos))
	for _, m := range dtos {
		out = append(out, protocol.Member(m))
	}
	return out
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	key, err := domain.NewChannelKey(p.Workspace, p.Channel)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join: bad channel key")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}

	user, _ := ctl.Orch.Registry.GetOrCreateUser(sid)
	if !ctl.Limiter.Allow(user.ID) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, protocol.ErrRateLimited)
		return
	}

	claims, err := ctl.Minter.VerifyFor(p.Token, key, user.ID)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("channel", key.String()).Msg("join: token rejected")
		ctl.sendError(conn, protocol.ErrInvalidToken)
		return
	}
	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			ctl.sendError(conn, protocol.ErrInvalidName)
			return
		}
	}

	if err := ctl.Orch.Join(ctx, sid, key, claims.Role); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("channel", key.String()).Msg("join failed")
		ctl.sendError(conn, errorCode(err))
		return
	}

	resp := protocol.Joined{
		Type:      protocol.TypeJoined,
		Workspace: key.Workspace,
		Channel:   key.Name,
		UID:       user.ID,
		Role:      claims.Role,
	}
	if ch, ok := ctl.Orch.Channels.Get(key); ok {
		resp.Members = toMembers(ch.MembersSnapshot())
	}
	sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, sid core.SessionID, conn core.SignalConnection) {
	if !ctl.Orch.Leave(ctx, sid) {
		ctl.sendError(conn, protocol.ErrNotInChannel)
		return
	}
	sendJSON(conn, protocol.Envelope{Type: protocol.TypeLeft})
}

func (ctl *SignalWSController) handleMessage(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.Message
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	p.Type = protocol.TypeMessage
	p.From = domain.UserID(sid)
	frame, err := json.Marshal(p)
	if err != nil {
		ctl.sendError(conn, protocol.ErrInternal)
		return
	}
	res, err := ctl.Orch.Broadcast(sid, frame)
	if err != nil {
		ctl.sendError(conn, errorCode(err))
		return
	}
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Int("sent", res.SendTo).Int("dropped", len(res.Dropped)).Msg("message broadcast")
}
