package signal

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
)

func (ctl *SignalWSController) handlePause(sid core.SessionID, conn core.SignalConnection) {
	if err := ctl.Orch.Pause(sid); err != nil {
		ctl.sendError(conn, errorCode(err))
	}
}

func (ctl *SignalWSController) handleResume(sid core.SessionID, conn core.SignalConnection) {
	if err := ctl.Orch.Resume(sid); err != nil {
		ctl.sendError(conn, errorCode(err))
	}
}

func (ctl *SignalWSController) handleTrackState(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.TrackState
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	kind, err := domain.ParseTrackKind(string(p.Kind))
	if err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	if err := ctl.Orch.SetTrackEnabled(sid, kind, p.Enabled); err != nil {
		ctl.sendError(conn, errorCode(err))
	}
}
