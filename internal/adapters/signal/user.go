package signal

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.Rename
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
		ctl.sendError(conn, protocol.ErrInvalidName)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	ctl.handleWhoAmI(sid, conn)
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn core.SignalConnection) {
	user, _ := ctl.Orch.Registry.GetOrCreateUser(sid)
	resp := protocol.WhoAmI{
		Type:     protocol.TypeWhoAmI,
		UID:      user.ID,
		Username: user.Username,
	}
	if key, _, ok := ctl.Orch.Registry.ChannelOf(sid); ok {
		resp.Workspace = key.Workspace
		resp.Channel = key.Name
	}
	sendJSON(conn, resp)
}
