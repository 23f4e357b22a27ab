package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// Join connects to workspace/channel and publishes the requested tracks. On
// failure everything created so far is released and the session is back to
// DISCONNECTED.
func (s *Session) Join(ctx context.Context, workspace, channel string, opts JoinOptions) error {
	key, err := domain.NewChannelKey(workspace, channel)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(string(opts.Role))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.joining {
		s.mu.Unlock()
		return ErrJoinInProgress
	}
	if s.state != domain.StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.joining = true
	err = s.setStateLocked(domain.StateConnecting)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
	}()
	if err != nil {
		return err
	}

	if err := s.join(ctx, key, role, opts); err != nil {
		s.logger.Error().Err(err).Str("channel", key.String()).Msg("join failed")
		s.teardown()
		return fmt.Errorf("join %s: %w", key, err)
	}
	return nil
}

func (s *Session) join(ctx context.Context, key domain.ChannelKey, role domain.Role, opts JoinOptions) error {
	token := opts.Token
	if token == "" {
		if s.tokens == nil {
			return ErrNoToken
		}
		t, err := s.tokens.Token(ctx, key, role, opts.Name)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		token = t
	}

	sig, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial signalling: %w", err)
	}
	if !s.attach(func() { s.sig = sig }) {
		_ = sig.Close()
		return ErrJoinAborted
	}

	if err := s.send(ctx, sig, protocol.Join{
		Type:      protocol.TypeJoin,
		Workspace: string(key.Workspace),
		Channel:   string(key.Name),
		Token:     token,
		Name:      opts.Name,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	raw, err := s.await(ctx, sig, protocol.TypeJoined)
	if err != nil {
		return err
	}
	var joined protocol.Joined
	if err := json.Unmarshal(raw, &joined); err != nil {
		return fmt.Errorf("decode joined: %w", err)
	}

	s.mu.Lock()
	s.key = key
	s.uid = joined.UID
	s.role = joined.Role
	for _, m := range joined.Members {
		if m.ID != joined.UID {
			s.remote[m.ID] = remoteFromMember(m)
		}
	}
	s.mu.Unlock()

	peer, err := s.cfg.NewPeer(joined.UID)
	if err != nil {
		return fmt.Errorf("create peer: %w", err)
	}
	if !s.attach(func() { s.peer = peer }) {
		_ = peer.Close()
		return ErrJoinAborted
	}
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := s.send(context.Background(), sig, protocol.Candidate{
			Type:          protocol.TypeCandidate,
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		}); err != nil {
			s.logger.Debug().Err(err).Msg("send candidate")
		}
	})
	peer.OnTrack(func(rt RemoteTrack) {
		s.emit(Event{Type: EventRemoteTrack, User: domain.User{ID: rt.UserID}, Kind: rt.Kind, Track: &rt})
	})
	peer.OnStateChange(s.onPeerState)

	if joined.Role.CanPublish() {
		kinds := opts.Tracks
		if kinds == nil {
			kinds = domain.TrackKinds
		}
		for _, kind := range kinds {
			t, err := peer.AddTrack(kind)
			if err != nil {
				return fmt.Errorf("create %s track: %w", kind, err)
			}
			ok := s.attach(func() {
				s.tracks[kind] = t
				t.SetEnabled(s.media.Enabled(kind))
			})
			if !ok {
				_ = t.Stop()
				return ErrJoinAborted
			}
		}
	}

	offer, err := peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.send(ctx, sig, protocol.SDP{Type: protocol.TypeOffer, SDP: offer}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	raw, err = s.await(ctx, sig, protocol.TypeAnswer)
	if err != nil {
		return err
	}
	var answer protocol.SDP
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := peer.ApplyAnswer(answer.SDP); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	s.flushCandidates(peer)

	s.mu.Lock()
	if s.state != domain.StateConnecting {
		s.mu.Unlock()
		return ErrJoinAborted
	}
	err = s.setStateLocked(domain.StateConnected)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.logger.Info().Str("channel", key.String()).Str("uid", string(joined.UID)).Msg("joined")

	go s.readLoop(sig)
	return nil
}

// attach runs fn under the lock while the join is still live.
func (s *Session) attach(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateConnecting {
		return false
	}
	fn()
	return true
}

// await reads until a message of type want arrives. Anything else is handled
// as it would be once connected.
func (s *Session) await(ctx context.Context, sig Signaling, want string) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case raw, ok := <-sig.Messages():
			if !ok {
				return nil, ErrSignalClosed
			}
			typ, err := protocol.PeekType(raw)
			if err != nil {
				s.logger.Warn().Err(err).Msg("bad server message")
				continue
			}
			if typ == want {
				return raw, nil
			}
			if typ == protocol.TypeError {
				return nil, decodeServerError(raw)
			}
			s.handleMessage(sig, raw)
		}
	}
}

func decodeServerError(raw []byte) error {
	var e protocol.Error
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("%w: undecodable", ErrServer)
	}
	return fmt.Errorf("%w: %s", ErrServer, e.Error)
}

// Leave tears the session down. It is safe to call at any time and always
// ends in DISCONNECTED.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.state == domain.StateDisconnected || s.state == domain.StateDisconnecting {
		s.mu.Unlock()
		return nil
	}
	sig := s.sig
	_ = s.setStateLocked(domain.StateDisconnecting)
	s.mu.Unlock()

	if sig != nil {
		if err := s.send(ctx, sig, protocol.Envelope{Type: protocol.TypeLeave}); err != nil {
			s.logger.Debug().Err(err).Msg("send leave")
		}
	}
	s.teardown()
	return nil
}

// teardown releases tracks, peer and signalling without holding the lock
// during I/O, then settles on DISCONNECTED.
func (s *Session) teardown() {
	s.mu.Lock()
	sig, peer, tracks := s.sig, s.peer, s.tracks
	s.sig, s.peer = nil, nil
	s.tracks = make(map[domain.TrackKind]LocalTrack)
	s.remote = make(map[domain.UserID]*RemoteUser)
	s.media = domain.NewMediaState()
	s.answered = false
	s.pendingICE = nil
	if s.state != domain.StateDisconnected && s.state != domain.StateDisconnecting {
		_ = s.setStateLocked(domain.StateDisconnecting)
	}
	s.mu.Unlock()

	for kind, t := range tracks {
		if err := t.Stop(); err != nil {
			s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("stop track")
		}
	}
	if peer != nil {
		if err := peer.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close peer")
		}
	}
	if sig != nil {
		if err := sig.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close signalling")
		}
	}

	s.mu.Lock()
	if s.state != domain.StateDisconnected {
		_ = s.setStateLocked(domain.StateDisconnected)
	}
	s.mu.Unlock()
}

// Pause disables every local track and remembers their flags. Pausing twice
// keeps the first remembered state.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != domain.StateConnected && s.state != domain.StateReconnecting {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if !s.media.Pause() {
		s.mu.Unlock()
		return nil
	}
	s.applyTracksLocked()
	sig := s.sig
	s.mu.Unlock()
	return s.send(context.Background(), sig, protocol.Envelope{Type: protocol.TypePause})
}

// Resume restores the flags remembered by Pause; it is a no-op when not paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != domain.StateConnected && s.state != domain.StateReconnecting {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if !s.media.Resume() {
		s.mu.Unlock()
		return nil
	}
	s.applyTracksLocked()
	sig := s.sig
	s.mu.Unlock()
	return s.send(context.Background(), sig, protocol.Envelope{Type: protocol.TypeResume})
}

// SetTrackEnabled mutes or unmutes one kind. While paused only the remembered
// flag changes.
func (s *Session) SetTrackEnabled(kind domain.TrackKind, enabled bool) error {
	if _, err := domain.ParseTrackKind(string(kind)); err != nil {
		return err
	}
	s.mu.Lock()
	if s.state != domain.StateConnected && s.state != domain.StateReconnecting {
		s.mu.Unlock()
		return ErrNotJoined
	}
	effective := s.media.SetEnabled(kind, enabled)
	if t, ok := s.tracks[kind]; ok {
		t.SetEnabled(effective)
	}
	sig := s.sig
	s.mu.Unlock()
	return s.send(context.Background(), sig, protocol.TrackState{Type: protocol.TypeTrackState, Kind: kind, Enabled: enabled})
}

// SendMessage relays data to every other member of the channel.
func (s *Session) SendMessage(ctx context.Context, data json.RawMessage) error {
	s.mu.Lock()
	if s.state != domain.StateConnected {
		s.mu.Unlock()
		return ErrNotJoined
	}
	sig := s.sig
	s.mu.Unlock()
	return s.send(ctx, sig, protocol.Message{Type: protocol.TypeMessage, Data: data})
}

func (s *Session) applyTracksLocked() {
	for kind, t := range s.tracks {
		t.SetEnabled(s.media.Enabled(kind))
	}
}

func (s *Session) readLoop(sig Signaling) {
	for raw := range sig.Messages() {
		s.handleMessage(sig, raw)
	}
	s.mu.Lock()
	stale := s.sig != sig
	s.mu.Unlock()
	if stale {
		return
	}
	s.logger.Warn().Msg("signalling lost")
	s.emit(Event{Type: EventError, Err: ErrSignalClosed})
	s.teardown()
}

func (s *Session) handleMessage(sig Signaling, raw []byte) {
	typ, err := protocol.PeekType(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("bad server message")
		return
	}

	switch typ {
	case protocol.TypeEvent:
		var ev protocol.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("bad event")
			return
		}
		s.mu.Lock()
		if ev.Workspace != s.key.Workspace || ev.Channel != s.key.Name {
			s.mu.Unlock()
			return
		}
		s.applyEventLocked(ev)
		s.mu.Unlock()
		s.emit(Event{Type: EventType(ev.Event), User: ev.User, Kind: ev.Kind, Enabled: ev.Enabled})

	case protocol.TypeOffer:
		var p protocol.SDP
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn().Err(err).Msg("bad offer")
			return
		}
		s.handleServerOffer(p.SDP)

	case protocol.TypeCandidate:
		var p protocol.Candidate
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn().Err(err).Msg("bad candidate")
			return
		}
		s.addCandidate(webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMid: p.SDPMid, SDPMLineIndex: p.SDPMLineIndex})

	case protocol.TypeMessage:
		var p protocol.Message
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn().Err(err).Msg("bad message")
			return
		}
		s.emit(Event{Type: EventMessage, User: domain.User{ID: p.From}, Data: p.Data})

	case protocol.TypeLeft:
		// a reply to our own leave, or to a connection already replaced
		s.mu.Lock()
		ours := s.sig == sig && s.state != domain.StateDisconnecting && s.state != domain.StateDisconnected
		s.mu.Unlock()
		if !ours {
			return
		}
		s.logger.Info().Msg("removed from channel by server")
		s.emit(Event{Type: EventEvicted})
		s.teardown()

	case protocol.TypeError:
		err := decodeServerError(raw)
		s.logger.Warn().Err(err).Msg("server error")
		s.emit(Event{Type: EventError, Err: err})

	default:
		s.logger.Debug().Str("type", typ).Msg("ignored server message")
	}
}

func (s *Session) handleServerOffer(sdp string) {
	s.mu.Lock()
	peer, sig := s.peer, s.sig
	s.mu.Unlock()
	if peer == nil {
		return
	}
	answer, err := peer.ApplyOffer(sdp)
	if err != nil {
		s.logger.Error().Err(err).Msg("apply server offer")
		s.emit(Event{Type: EventError, Err: err})
		return
	}
	s.flushCandidates(peer)
	if err := s.send(context.Background(), sig, protocol.SDP{Type: protocol.TypeAnswer, SDP: answer}); err != nil {
		s.logger.Warn().Err(err).Msg("send answer")
	}
}

// addCandidate queues candidates that arrive before the first remote description.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	peer := s.peer
	if peer == nil || !s.answered {
		s.pendingICE = append(s.pendingICE, c)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if err := peer.AddICECandidate(c); err != nil {
		s.logger.Warn().Err(err).Msg("add ice candidate")
	}
}

func (s *Session) flushCandidates(peer Peer) {
	s.mu.Lock()
	pending := s.pendingICE
	s.pendingICE = nil
	s.answered = true
	s.mu.Unlock()
	for _, c := range pending {
		if err := peer.AddICECandidate(c); err != nil {
			s.logger.Warn().Err(err).Msg("add ice candidate")
		}
	}
}

func (s *Session) onPeerState(ps webrtc.PeerConnectionState) {
	s.mu.Lock()
	switch ps {
	case webrtc.PeerConnectionStateDisconnected:
		if s.state == domain.StateConnected {
			_ = s.setStateLocked(domain.StateReconnecting)
		}
	case webrtc.PeerConnectionStateConnected:
		if s.state == domain.StateReconnecting {
			_ = s.setStateLocked(domain.StateConnected)
		}
	case webrtc.PeerConnectionStateFailed:
		if s.state == domain.StateConnected || s.state == domain.StateReconnecting {
			s.mu.Unlock()
			s.emit(Event{Type: EventError, Err: errors.New("peer connection failed")})
			go s.teardown()
			return
		}
	}
	s.mu.Unlock()
}
