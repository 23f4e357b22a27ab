package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoRelay = errors.New("no relay for track")

type RelayManager struct {
	mu     sync.RWMutex
	relays map[RelayKey]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[RelayKey]*Relay),
	}
}

func relayLogger(key RelayKey) zerolog.Logger {
	return log.With().
		Str("module", "relay").
		Str("sid", string(key.SID)).
		Str("kind", string(key.Kind)).
		Logger()
}

// StartRelay creates a new Relay for the given publisher track and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, key RelayKey, track *webrtc.TrackRemote) *Relay {
	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, cancel)
	m.start(relayCtx, key, relay)
	return relay
}

func (m *RelayManager) start(ctx context.Context, key RelayKey, relay *Relay) {
	logger := relayLogger(key)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(ctx, &logger)
}

// Subscribe creates a local track on dst's peer connection fed by the src relay.
// Keyframe requests from dst are forwarded to the publisher connection.
func (m *RelayManager) Subscribe(src RelayKey, dst core.SessionID, dstConn, publisher core.MediaConnection) error {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok || relay.Src == nil {
		return ErrNoRelay
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		relay.Src.Codec().RTPCodecCapability,
		fmt.Sprintf("%s-%s", src.SID, src.Kind),
		string(src.SID),
	)
	if err != nil {
		return fmt.Errorf("new local track: %w", err)
	}
	sender, err := dstConn.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}

	ot := NewOutTrack(local)
	ot.OnRemove(func() {
		if dstConn.IsClosed() {
			return
		}
		if err := dstConn.RemoveTrack(sender); err != nil {
			log.Debug().Err(err).Str("module", "relay").Str("dst_sid", string(dst)).Msg("remove track")
		}
	})
	// the relay may have stopped while the local track was being added
	if !m.AddSubscriber(src, dst, ot) {
		_ = dstConn.RemoveTrack(sender)
		return ErrNoRelay
	}

	go forwardRTCP(sender, publisher, relay.Src.SSRC(), src)
	log.Info().Str("module", "relay").Str("src_sid", string(src.SID)).Str("kind", string(src.Kind)).Str("dst_sid", string(dst)).Msg("subscribed")
	return nil
}

func forwardRTCP(sender *webrtc.RTPSender, publisher core.MediaConnection, ssrc webrtc.SSRC, src RelayKey) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		if publisher == nil || publisher.IsClosed() {
			continue
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}
				if err := publisher.WriteRTCP(pli); err != nil {
					log.Debug().Err(err).Str("module", "relay").Str("src_sid", string(src.SID)).Msg("forward PLI")
				}
			}
		}
	}
}

// AddSubscriber attaches a prepared OutTrack to the relay of src for dst.
func (m *RelayManager) AddSubscriber(src RelayKey, dst core.SessionID, ot *OutTrack) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, ot)
	return true
}

// MarkSubscriberDelete marks dst's OutTracks on every relay of srcSID as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID) {
	for _, relay := range m.relaysOf(srcSID) {
		if ot, ok := relay.outTrack(dstSID); ok {
			ot.MarkDelete()
		}
	}
}

// StopRelays stops every relay published by sid and returns their keys.
func (m *RelayManager) StopRelays(sid core.SessionID) []RelayKey {
	m.mu.Lock()
	stopped := make([]*Relay, 0, 2)
	keys := make([]RelayKey, 0, 2)
	for key, relay := range m.relays {
		if key.SID == sid {
			delete(m.relays, key)
			stopped = append(stopped, relay)
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	for _, relay := range stopped {
		relay.markAllDelete()
		if relay.cancel != nil {
			relay.cancel()
		}
	}
	return keys
}

// SetMuted toggles forwarding of one published track.
func (m *RelayManager) SetMuted(key RelayKey, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.SetMuted(muted)
	return true
}

// KeysOf lists the published tracks of sid.
func (m *RelayManager) KeysOf(sid core.SessionID) []RelayKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RelayKey, 0, 2)
	for key := range m.relays {
		if key.SID == sid {
			out = append(out, key)
		}
	}
	return out
}

func (m *RelayManager) relaysOf(sid core.SessionID) []*Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Relay, 0, 2)
	for key, relay := range m.relays {
		if key.SID == sid {
			out = append(out, relay)
		}
	}
	return out
}
