package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/dkeye/huddle/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	orch   *orch.Orchestrator
	minter *auth.Minter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	minter, err := auth.NewMinter("test-token-secret", time.Minute)
	require.NoError(t, err)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Relays:   sfu.NewRelayManager(),
		Meetings: app.NewMeetingTracker(store.NewMemoryMeetingStore()),
	}
	ctl := signal.NewSignalWSController(ctx, o, minter, signal.Options{PingPeriod: time.Second})
	o.Events = ctl
	o.Negotiator = ctl

	cfg := &config.Config{Mode: "test", Secret: "test-cookie-secret"}
	return &testServer{router: SetupRouter(cfg, o, minter, ctl), orch: o, minter: minter}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/workspaces/acme/channels/standup/token", tokenRequest{Name: "alice", Role: "subscriber"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, w.Result().Cookies())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.RoleSubscriber, resp.Role)

	claims, err := s.minter.VerifyFor(resp.Token, domain.ChannelKey{Workspace: "acme", Name: "standup"}, resp.UID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSubscriber, claims.Role)

	user, created := s.orch.Registry.GetOrCreateUser(core.SessionID(claims.UserID()))
	assert.False(t, created)
	assert.Equal(t, "alice", user.Username)
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		path    string
		body    any
		failTag string
	}{
		{"bad role", "/api/workspaces/acme/channels/standup/token", tokenRequest{Role: "admin"}, "oneof"},
		{"bad channel", "/api/workspaces/acme/channels/stand.up/token", nil, ""},
		{"bad workspace", "/api/workspaces/ac%20me/channels/standup/token", nil, ""},
		{"long name", "/api/workspaces/acme/channels/standup/token", tokenRequest{Name: strings.Repeat("x", domain.MaxUsernameLen+1)}, "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			if tt.failTag != "" {
				assert.Contains(t, w.Body.String(), "'"+tt.failTag+"' tag")
			}
		})
	}
}

func TestChannelEndpointsWhenEmpty(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/workspaces/acme/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/workspaces/acme/channels/standup", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/workspaces/acme/channels/standup", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/workspaces/acme/meetings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/workspaces/acme/meetings?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type wsClient struct {
	http *http.Client
	conn *websocket.Conn
	uid  domain.UserID
}

func dialMember(t *testing.T, srv *httptest.Server, name string) *wsClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}

	body, _ := json.Marshal(tokenRequest{Name: name})
	resp, err := hc.Post(srv.URL+"/api/workspaces/acme/channels/standup/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))

	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/signal", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(protocol.Join{
		Type:      protocol.TypeJoin,
		Workspace: "acme",
		Channel:   "standup",
		Token:     tok.Token,
	}))
	c := &wsClient{http: hc, conn: conn, uid: tok.UID}
	raw := c.readUntil(t, protocol.TypeJoined)
	var joined protocol.Joined
	require.NoError(t, json.Unmarshal(raw, &joined))
	assert.Equal(t, tok.UID, joined.UID)
	return c
}

// readUntil skips messages of other types until typ arrives.
func (c *wsClient) readUntil(t *testing.T, typ string) []byte {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(t, err)
		got, err := protocol.PeekType(data)
		require.NoError(t, err)
		require.NotEqual(t, protocol.TypeError, got, string(data))
		if got == typ {
			return data
		}
	}
}

func TestSignalJoinEventsAndEvict(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	alice := dialMember(t, srv, "alice")
	bob := dialMember(t, srv, "bob")

	var ev protocol.Event
	require.NoError(t, json.Unmarshal(alice.readUntil(t, protocol.TypeEvent), &ev))
	assert.Equal(t, "user-joined", ev.Event)
	assert.Equal(t, bob.uid, ev.User.ID)
	assert.Equal(t, "bob", ev.User.Username)

	resp, err := alice.http.Get(srv.URL + "/api/workspaces/acme/channels/standup")
	require.NoError(t, err)
	var ch channelResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ch))
	resp.Body.Close()
	assert.Equal(t, 2, ch.MemberCount)
	assert.NotEmpty(t, ch.Meeting)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/workspaces/acme/channels/standup", nil)
	resp, err = alice.http.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	alice.readUntil(t, protocol.TypeLeft)
	bob.readUntil(t, protocol.TypeLeft)

	_, ok := s.orch.Channels.Get(domain.ChannelKey{Workspace: "acme", Name: "standup"})
	assert.False(t, ok)

	resp, err = alice.http.Get(srv.URL + "/api/workspaces/acme/meetings")
	require.NoError(t, err)
	var meetings []domain.Meeting
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meetings))
	resp.Body.Close()
	require.Len(t, meetings, 1)
	assert.NotNil(t, meetings[0].EndedAt)
	assert.Len(t, meetings[0].Participants, 2)
}
