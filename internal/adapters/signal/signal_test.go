package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSignal struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureSignal) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *captureSignal) Close() {}

func (c *captureSignal) last(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var m map[string]any
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &m))
	return m
}

func (c *captureSignal) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := protocol.PeekType(f)
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

func newController(t *testing.T) (*SignalWSController, *auth.Minter) {
	t.Helper()
	minter, err := auth.NewMinter("secret", time.Minute)
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
	}
	ctl := NewSignalWSController(context.Background(), o, minter, Options{JoinLimit: 2, JoinInterval: time.Minute})
	o.Events = ctl
	return ctl, minter
}

func bind(ctl *SignalWSController, sid core.SessionID) *captureSignal {
	sig := &captureSignal{}
	user, _ := ctl.Orch.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(user, domain.RolePublisher)).UpdateSignal(sig)
	ctl.Orch.Registry.BindSignal(sid, sess, func() {})
	return sig
}

func joinMsg(t *testing.T, minter *auth.Minter, sid core.SessionID, channel string) []byte {
	t.Helper()
	key := domain.ChannelKey{Workspace: "acme", Name: domain.ChannelName(channel)}
	tok, _, err := minter.Mint(key, domain.UserID(sid), domain.RolePublisher)
	require.NoError(t, err)
	b, err := json.Marshal(protocol.Join{Type: protocol.TypeJoin, Workspace: "acme", Channel: channel, Token: tok})
	require.NoError(t, err)
	return b
}

func TestHandleSignalBasics(t *testing.T) {
	ctl, _ := newController(t)
	sig := bind(ctl, "u1")
	ctx := context.Background()

	ctl.handleSignal(ctx, "u1", sig, []byte(`not json`))
	assert.Equal(t, protocol.ErrBadPayload, sig.last(t)["error"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"ping"}`))
	assert.Equal(t, protocol.TypePong, sig.last(t)["type"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"rename","name":"carol"}`))
	assert.Equal(t, "carol", sig.last(t)["username"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"rename","name":""}`))
	assert.Equal(t, protocol.ErrInvalidName, sig.last(t)["error"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"bogus"}`))
	assert.Equal(t, protocol.ErrBadPayload, sig.last(t)["error"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"pause"}`))
	assert.Equal(t, protocol.ErrNotInChannel, sig.last(t)["error"])

	ctl.handleSignal(ctx, "u1", sig, []byte(`{"type":"leave"}`))
	assert.Equal(t, protocol.ErrNotInChannel, sig.last(t)["error"])
}

func TestHandleJoin(t *testing.T) {
	ctl, minter := newController(t)
	ctx := context.Background()
	a := bind(ctl, "a")
	b := bind(ctl, "b")

	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "standup"))
	joined := a.last(t)
	require.Equal(t, protocol.TypeJoined, joined["type"])
	assert.Equal(t, "a", joined["uid"])

	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "standup"))
	assert.Equal(t, protocol.ErrAlreadyJoined, a.last(t)["error"])

	// a token minted for another session is refused
	ctl.handleSignal(ctx, "b", b, joinMsg(t, minter, "a", "standup"))
	assert.Equal(t, protocol.ErrInvalidToken, b.last(t)["error"])

	ctl.handleSignal(ctx, "b", b, joinMsg(t, minter, "b", "standup"))
	require.Equal(t, protocol.TypeJoined, b.last(t)["type"])
	members := b.last(t)["members"].([]any)
	assert.Len(t, members, 2)

	ev := a.last(t)
	assert.Equal(t, protocol.TypeEvent, ev["type"])
	assert.Equal(t, string(core.EventUserJoined), ev["event"])

	ctl.handleSignal(ctx, "b", b, []byte(`{"type":"message","data":{"text":"hi"}}`))
	msg := a.last(t)
	assert.Equal(t, protocol.TypeMessage, msg["type"])
	assert.Equal(t, "b", msg["from"])

	ctl.handleSignal(ctx, "b", b, []byte(`{"type":"track_state","kind":"video","enabled":false}`))
	ev = a.last(t)
	assert.Equal(t, string(core.EventTrackState), ev["event"])
	assert.Equal(t, false, ev["enabled"])

	ctl.handleSignal(ctx, "b", b, []byte(`{"type":"leave"}`))
	assert.Equal(t, protocol.TypeLeft, b.last(t)["type"])
	assert.Equal(t, string(core.EventUserLeft), a.last(t)["event"])
}

func TestHandleJoinRateLimited(t *testing.T) {
	ctl, minter := newController(t)
	ctx := context.Background()
	a := bind(ctl, "a")

	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "one"))
	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "two"))
	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "three"))

	assert.Equal(t, []string{protocol.TypeJoined, protocol.TypeJoined, protocol.TypeError}, a.types(t))
	assert.Equal(t, protocol.ErrRateLimited, a.last(t)["error"])
}

func TestWsSignalConnClosed(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}
	require.NoError(t, c.TrySend(core.Frame("a")))
	assert.ErrorIs(t, c.TrySend(core.Frame("b")), ErrBackpressure)
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.TrySend(core.Frame("c")), ErrConnectionClosed)
}

func TestHandleJoin_SnapshotCarriesPublishedTracks(t *testing.T) {
	ctl, minter := newController(t)
	ctx := context.Background()
	a := bind(ctl, "a")
	b := bind(ctl, "b")

	ctl.handleSignal(ctx, "a", a, joinMsg(t, minter, "a", "standup"))
	require.Equal(t, protocol.TypeJoined, a.last(t)["type"])
	sess, ok := ctl.Orch.Registry.GetSession("a")
	require.True(t, ok)
	sess.Meta().SetPublished(domain.TrackAudio, true)

	ctl.handleSignal(ctx, "b", b, joinMsg(t, minter, "b", "standup"))
	b.mu.Lock()
	raw := b.frames[len(b.frames)-1]
	b.mu.Unlock()
	var joined protocol.Joined
	require.NoError(t, json.Unmarshal(raw, &joined))

	byID := make(map[domain.UserID]protocol.Member)
	for _, m := range joined.Members {
		byID[m.ID] = m
	}
	require.Contains(t, byID, domain.UserID("a"))
	assert.Equal(t, []domain.TrackKind{domain.TrackAudio}, byID["a"].Published)
	assert.Empty(t, byID["b"].Published)
}
