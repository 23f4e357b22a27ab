package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

var ErrTrackStopped = errors.New("track stopped")

// LocalTrack is one outgoing media track. Samples written while disabled are dropped.
type LocalTrack interface {
	Kind() domain.TrackKind
	Enabled() bool
	SetEnabled(on bool)
	WriteSample(s media.Sample) error
	Stop() error
}

// RemoteTrack is a track received from another member; UserID is the publisher.
type RemoteTrack struct {
	UserID domain.UserID
	Kind   domain.TrackKind
	Track  *webrtc.TrackRemote
}

// Peer is the client's single WebRTC connection to the server.
type Peer interface {
	AddTrack(kind domain.TrackKind) (LocalTrack, error)
	CreateOffer() (string, error)
	ApplyAnswer(sdp string) error
	ApplyOffer(sdp string) (string, error)
	AddICECandidate(c webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	OnStateChange(fn func(webrtc.PeerConnectionState))
	Close() error
}

// PeerFactory creates the peer once the server has assigned uid.
type PeerFactory func(uid domain.UserID) (Peer, error)

// NewPionPeerFactory returns a factory backed by the same pion connection
// wrapper the server uses.
func NewPionPeerFactory(iceServers []string) PeerFactory {
	cfg := rtc.WebRTCConfig(iceServers)
	return func(uid domain.UserID) (Peer, error) {
		conn, err := rtc.NewWebRTCConnection(cfg, core.SessionID(uid))
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		if err := conn.Start(context.Background()); err != nil {
			conn.Close()
			return nil, err
		}
		return &pionPeer{conn: conn, uid: uid}, nil
	}
}

type pionPeer struct {
	conn *rtc.WebRTCConnection
	uid  domain.UserID
}

func codecFor(kind domain.TrackKind) webrtc.RTPCodecCapability {
	if kind == domain.TrackVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (p *pionPeer) AddTrack(kind domain.TrackKind) (LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(codecFor(kind), string(kind), string(p.uid))
	if err != nil {
		return nil, err
	}
	sender, err := p.conn.AddLocalTrack(track)
	if err != nil {
		return nil, err
	}
	// Drain RTCP so interceptors keep running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	t := &sampleTrack{kind: kind, track: track, sender: sender, conn: p.conn}
	t.enabled.Store(true)
	return t, nil
}

func (p *pionPeer) CreateOffer() (string, error) {
	desc, err := p.conn.CreateAndSetOffer()
	if err != nil {
		return "", err
	}
	return desc.SDP, nil
}

func (p *pionPeer) ApplyAnswer(sdp string) error {
	return p.conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (p *pionPeer) ApplyOffer(sdp string) (string, error) {
	desc, err := p.conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		return "", err
	}
	return desc.SDP, nil
}

func (p *pionPeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.conn.AddICECandidate(c)
}

func (p *pionPeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) { p.conn.OnICECandidate(fn) }

func (p *pionPeer) OnStateChange(fn func(webrtc.PeerConnectionState)) { p.conn.OnStateChange(fn) }

func (p *pionPeer) OnTrack(fn func(RemoteTrack)) {
	p.conn.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind, err := domain.ParseTrackKind(track.Kind().String())
		if err != nil {
			log.Warn().Err(err).Str("module", "client.peer").Msg("ignoring remote track")
			return
		}
		fn(RemoteTrack{UserID: domain.UserID(track.StreamID()), Kind: kind, Track: track})
	})
}

func (p *pionPeer) Close() error {
	p.conn.Close()
	return nil
}

type sampleTrack struct {
	kind   domain.TrackKind
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
	conn   *rtc.WebRTCConnection

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

func (t *sampleTrack) Kind() domain.TrackKind { return t.kind }
func (t *sampleTrack) Enabled() bool          { return t.enabled.Load() }
func (t *sampleTrack) SetEnabled(on bool)     { t.enabled.Store(on) }

func (t *sampleTrack) WriteSample(s media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}

func (t *sampleTrack) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		if t.conn.IsClosed() {
			return
		}
		if rerr := t.conn.RemoveTrack(t.sender); rerr != nil && !errors.Is(rerr, rtc.ErrClosed) {
			err = rerr
		}
	})
	return err
}
