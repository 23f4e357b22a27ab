package orch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Emit(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last() core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	orch   *Orchestrator
	events *recorder
	store  *store.MemoryMeetingStore
}

func newFixture() *fixture {
	rec := &recorder{}
	st := store.NewMemoryMeetingStore()
	return &fixture{
		orch: &Orchestrator{
			Registry: app.NewRegistry(),
			Channels: app.NewChannelManager(),
			Policy:   app.SimplePolicy{},
			Relays:   sfu.NewRelayManager(),
			Meetings: app.NewMeetingTracker(st),
			Events:   rec,
		},
		events: rec,
		store:  st,
	}
}

func (f *fixture) connect(sid core.SessionID, sig core.SignalConnection) {
	u, _ := f.orch.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(u, domain.RolePublisher)).UpdateSignal(sig)
	f.orch.Registry.BindSignal(sid, sess, nil)
}

var (
	standup = domain.ChannelKey{Workspace: "acme", Name: "standup"}
	retro   = domain.ChannelKey{Workspace: "acme", Name: "retro"}
)

func TestJoinLeave(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})
	f.connect("b", &fakeSignal{})

	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.NoError(t, f.orch.Join(ctx, "b", standup, domain.RoleSubscriber))

	ch, ok := f.orch.Channels.Get(standup)
	require.True(t, ok)
	assert.Equal(t, 2, ch.MemberCount())
	meeting, ok := f.orch.Meetings.Current(standup)
	require.True(t, ok)

	assert.True(t, f.orch.Leave(ctx, "a"))
	assert.False(t, f.orch.Leave(ctx, "a"))
	assert.Equal(t, core.EventUserLeft, f.events.last().Type)
	assert.Equal(t, domain.UserID("a"), f.events.last().User.ID)

	assert.True(t, f.orch.Leave(ctx, "b"))
	_, ok = f.orch.Channels.Get(standup)
	assert.False(t, ok, "empty channel is stopped")

	m, err := f.store.Get(ctx, meeting)
	require.NoError(t, err)
	assert.NotNil(t, m.EndedAt)
	assert.Len(t, m.Participants, 2)

	assert.Equal(t, []core.EventType{
		core.EventUserJoined, core.EventUserJoined, core.EventUserLeft, core.EventUserLeft,
	}, f.events.types())
}

func TestJoinRacingLastLeave(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		f := newFixture()
		f.connect("a", &fakeSignal{})
		f.connect("b", &fakeSignal{})
		require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.orch.Leave(ctx, "a")
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.orch.Join(ctx, "b", standup, domain.RolePublisher))
		}()
		wg.Wait()

		ch, ok := f.orch.Channels.Get(standup)
		require.True(t, ok, "joiner's channel must stay registered")
		assert.True(t, ch.HasMember("b"))
		assert.Equal(t, 1, ch.MemberCount())
		_, open := f.orch.Meetings.Current(standup)
		assert.True(t, open, "meeting stays open while b is present")
	}
}

func TestJoin_Guards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.orch.Join(ctx, "ghost", standup, domain.RolePublisher)
	require.ErrorIs(t, err, app.ErrNoSession)

	f.connect("a", &fakeSignal{})
	require.NoError(t, f.orch.Registry.BeginJoin("a"))
	err = f.orch.Join(ctx, "a", standup, domain.RolePublisher)
	require.ErrorIs(t, err, app.ErrJoinInProgress)
	f.orch.Registry.EndJoin("a")

	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.ErrorIs(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher), ErrAlreadyJoined)
}

func TestJoin_SwitchesChannel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})

	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.NoError(t, f.orch.Join(ctx, "a", retro, domain.RolePublisher))

	key, _, ok := f.orch.Registry.ChannelOf("a")
	require.True(t, ok)
	assert.Equal(t, retro, key)
	_, ok = f.orch.Channels.Get(standup)
	assert.False(t, ok)
}

func TestJoin_WorkspacesAreIsolated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})
	f.connect("b", &fakeSignal{})

	other := domain.ChannelKey{Workspace: "globex", Name: "standup"}
	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.NoError(t, f.orch.Join(ctx, "b", other, domain.RolePublisher))

	assert.Empty(t, f.orch.Registry.ChannelMates("a"))
	assert.Len(t, f.orch.Channels.List("acme"), 1)
	assert.Len(t, f.orch.Channels.List("globex"), 1)
}

func TestPauseResume(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})

	require.ErrorIs(t, f.orch.Pause("a"), ErrNotInChannel)
	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))

	require.NoError(t, f.orch.SetTrackEnabled("a", domain.TrackVideo, false))
	ev := f.events.last()
	assert.Equal(t, core.EventTrackState, ev.Type)
	assert.Equal(t, domain.TrackVideo, ev.Kind)
	assert.False(t, ev.Enabled)

	require.NoError(t, f.orch.Pause("a"))
	assert.Equal(t, core.EventUserPaused, f.events.last().Type)
	n := len(f.events.types())
	require.NoError(t, f.orch.Pause("a"))
	assert.Len(t, f.events.types(), n, "second pause emits nothing")

	_, sess, _ := f.orch.Registry.ChannelOf("a")
	assert.False(t, sess.Meta().TrackEnabled(domain.TrackAudio))

	require.NoError(t, f.orch.Resume("a"))
	assert.Equal(t, core.EventUserResumed, f.events.last().Type)
	assert.True(t, sess.Meta().TrackEnabled(domain.TrackAudio))
	assert.False(t, sess.Meta().TrackEnabled(domain.TrackVideo))
}

func TestBroadcast_KicksSlowMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	fast, slow := &fakeSignal{}, &fakeSignal{full: true}
	f.connect("a", &fakeSignal{})
	f.connect("b", fast)
	f.connect("c", slow)
	for _, sid := range []core.SessionID{"a", "b", "c"} {
		require.NoError(t, f.orch.Join(ctx, sid, standup, domain.RolePublisher))
	}

	res, err := f.orch.Broadcast("a", core.Frame(`{"type":"message"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)

	_, _, ok := f.orch.Registry.ChannelOf("c")
	assert.False(t, ok, "slow member kicked")
	_, _, ok = f.orch.Registry.ChannelOf("b")
	assert.True(t, ok)

	_, err = f.orch.Broadcast("c", core.Frame("x"))
	require.ErrorIs(t, err, ErrNotInChannel)
}

func TestBroadcast_DropPolicyKeepsSlowMember(t *testing.T) {
	f := newFixture()
	f.orch.Policy = app.PolicyFor("drop")
	ctx := context.Background()
	f.connect("a", &fakeSignal{})
	f.connect("c", &fakeSignal{full: true})
	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.NoError(t, f.orch.Join(ctx, "c", standup, domain.RolePublisher))

	res, err := f.orch.Broadcast("a", core.Frame("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.SendTo)
	require.Len(t, res.Dropped, 1)

	_, _, ok := f.orch.Registry.ChannelOf("c")
	assert.True(t, ok)
}

func TestEvictChannel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})
	f.connect("b", &fakeSignal{})
	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))
	require.NoError(t, f.orch.Join(ctx, "b", standup, domain.RolePublisher))

	evicted := f.orch.EvictChannel(ctx, standup)
	assert.ElementsMatch(t, []core.SessionID{"a", "b"}, evicted)
	_, ok := f.orch.Channels.Get(standup)
	assert.False(t, ok)
}

func TestOnDisconnect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.connect("a", &fakeSignal{})
	require.NoError(t, f.orch.Join(ctx, "a", standup, domain.RolePublisher))

	f.orch.OnDisconnect("a")
	_, ok := f.orch.Registry.GetSession("a")
	assert.False(t, ok)
	assert.Equal(t, core.EventUserLeft, f.events.last().Type)
}
