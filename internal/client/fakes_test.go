package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/require"
)

type fakeSignaling struct {
	mu      sync.Mutex
	sent    []any
	msgs    chan []byte
	respond func(v any) []any
	closed  bool
}

func newFakeSignaling(respond func(v any) []any) *fakeSignaling {
	return &fakeSignaling{msgs: make(chan []byte, 64), respond: respond}
}

func (f *fakeSignaling) Send(_ context.Context, v any) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrSignalClosed
	}
	f.sent = append(f.sent, v)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		for _, r := range respond(v) {
			f.push(r)
		}
	}
	return nil
}

// push delivers a server message.
func (f *fakeSignaling) push(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.msgs <- b
	}
}

func (f *fakeSignaling) Messages() <-chan []byte { return f.msgs }

func (f *fakeSignaling) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.msgs)
	}
	return nil
}

func (f *fakeSignaling) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSignaling) sentTypes(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, v := range f.sent {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		typ, err := protocol.PeekType(b)
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

func (f *fakeSignaling) sentJoin(t *testing.T) protocol.Join {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.sent {
		if j, ok := v.(protocol.Join); ok {
			return j
		}
	}
	t.Fatal("no join sent")
	return protocol.Join{}
}

type fakeDialer struct {
	sig     *fakeSignaling
	err     error
	calls   atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (Signaling, error) {
	d.calls.Add(1)
	if d.entered != nil {
		close(d.entered)
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.sig, nil
}

type fakeTrack struct {
	kind    domain.TrackKind
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }
func (t *fakeTrack) Enabled() bool          { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(on bool)     { t.enabled.Store(on) }
func (t *fakeTrack) WriteSample(media.Sample) error {
	if t.stopped.Load() {
		return ErrTrackStopped
	}
	return nil
}
func (t *fakeTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}

type fakePeer struct {
	mu         sync.Mutex
	tracks     []*fakeTrack
	failKind   domain.TrackKind
	answer     string
	offers     []string
	candidates []webrtc.ICECandidateInit
	closed     bool
	stateFn    func(webrtc.PeerConnectionState)
}

func (p *fakePeer) AddTrack(kind domain.TrackKind) (LocalTrack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == p.failKind {
		return nil, errors.New("device unavailable")
	}
	t := &fakeTrack{kind: kind}
	t.enabled.Store(true)
	p.tracks = append(p.tracks, t)
	return t, nil
}

func (p *fakePeer) CreateOffer() (string, error) { return "client-offer", nil }

func (p *fakePeer) ApplyAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answer = sdp
	return nil
}

func (p *fakePeer) ApplyOffer(sdp string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, sdp)
	return "client-answer", nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (p *fakePeer) OnTrack(func(RemoteTrack))                    {}

func (p *fakePeer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateFn = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeServer answers join and offer the way the real server does.
func fakeServer(uid domain.UserID, others ...protocol.Member) func(v any) []any {
	return func(v any) []any {
		switch m := v.(type) {
		case protocol.Join:
			members := append([]protocol.Member{{ID: uid, Username: "me", Role: domain.RolePublisher, Audio: true, Video: true}}, others...)
			return []any{protocol.Joined{
				Type:      protocol.TypeJoined,
				Workspace: domain.WorkspaceID(m.Workspace),
				Channel:   domain.ChannelName(m.Channel),
				UID:       uid,
				Role:      domain.RolePublisher,
				Members:   members,
			}}
		case protocol.SDP:
			if m.Type == protocol.TypeOffer {
				return []any{protocol.SDP{Type: protocol.TypeAnswer, SDP: "server-answer"}}
			}
		}
		return nil
	}
}
