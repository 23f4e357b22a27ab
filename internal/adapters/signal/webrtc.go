package signal

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func sendCandidate(c core.SignalConnection, ci webrtc.ICECandidateInit) {
	sendJSON(c, protocol.Candidate{
		Type:          protocol.TypeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// Renegotiate pushes a fresh server offer to sid after its subscriptions changed.
func (ctl *SignalWSController) Renegotiate(sid core.SessionID) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	mc := sess.Media()
	if mc == nil || mc.IsClosed() {
		return
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("renegotiate offer")
		return
	}
	sendJSON(sess.Signal(), protocol.SDP{Type: protocol.TypeOffer, SDP: offer.SDP})
}

func (ctl *SignalWSController) handleOffer(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	_, sess, ok := ctl.Orch.Registry.ChannelOf(sid)
	if !ok {
		ctl.sendError(conn, protocol.ErrNotInChannel)
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}

	// Client-initiated renegotiation on a live connection.
	if mc := sess.Media(); mc != nil && !mc.IsClosed() {
		answer, err := mc.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("webrtc reapply offer")
			ctl.sendError(conn, protocol.ErrMedia)
			return
		}
		sendJSON(conn, protocol.SDP{Type: protocol.TypeAnswer, SDP: answer.SDP})
		return
	}

	wc, err := rtc.NewWebRTCConnection(ctl.webrtcCfg, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(conn, protocol.ErrMedia)
		return
	}
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		sendCandidate(conn, ci)
	})
	ctl.Orch.BindMediaHandlers(wc, sid)

	if err = wc.Start(ctl.ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		ctl.sendError(conn, protocol.ErrMedia)
		return
	}
	sess.UpdateMedia(wc)

	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		sess.UpdateMedia(nil)
		wc.Close()
		ctl.sendError(conn, protocol.ErrMedia)
		return
	}
	sendJSON(conn, protocol.SDP{Type: protocol.TypeAnswer, SDP: answer.SDP})
	ctl.Orch.OnMediaReady(sid)
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("answer: no media connection")
		return
	}
	if err := sess.Media().ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("apply answer")
		ctl.sendError(conn, protocol.ErrMedia)
	}
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, conn core.SignalConnection, data []byte) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no session")
		return
	}
	mc := sess.Media()
	if mc == nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("candidate: no media connection")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
