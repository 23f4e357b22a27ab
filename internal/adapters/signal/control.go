package signal

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/protocol"
)

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}
