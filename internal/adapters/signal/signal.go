package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

const sendBuffer = 32

type Options struct {
	ICEServers   []string
	ReadLimit    int64
	PingPeriod   time.Duration
	JoinLimit    int
	JoinInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Minter  *auth.Minter
	Limiter *JoinRateLimiter

	ctx        context.Context
	webrtcCfg  webrtc.Configuration
	readLimit  int64
	pingPeriod time.Duration
}

// NewSignalWSController builds the controller; ctx bounds every media connection it creates.
func NewSignalWSController(ctx context.Context, o *orch.Orchestrator, minter *auth.Minter, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.JoinLimit <= 0 {
		opts.JoinLimit = 5
	}
	if opts.JoinInterval <= 0 {
		opts.JoinInterval = 10 * time.Second
	}
	return &SignalWSController{
		Orch:       o,
		Minter:     minter,
		Limiter:    NewJoinRateLimiter(opts.JoinLimit, opts.JoinInterval),
		ctx:        ctx,
		webrtcCfg:  rtc.WebRTCConfig(opts.ICEServers),
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func sendJSON(c core.SignalConnection, v any) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code string) {
	sendJSON(c, protocol.NewError(code))
}

// Emit delivers a participant event to everyone in the channel except its origin.
func (ctl *SignalWSController) Emit(e core.Event) {
	msg := protocol.Event{
		Type:      protocol.TypeEvent,
		Event:     string(e.Type),
		Workspace: e.Channel.Workspace,
		Channel:   e.Channel.Name,
		User:      e.User,
		Kind:      e.Kind,
		Enabled:   e.Enabled,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("event marshal")
		return
	}
	for _, snap := range ctl.Orch.Registry.MembersOfChannel(e.Channel) {
		if snap.SID == e.From {
			continue
		}
		if sig := snap.Session.Signal(); sig != nil {
			_ = sig.TrySend(b)
		}
	}
}

// NotifyLeft tells evicted sessions they are no longer in a channel.
func (ctl *SignalWSController) NotifyLeft(sids []core.SessionID) {
	for _, sid := range sids {
		if sess, ok := ctl.Orch.Registry.GetSession(sid); ok {
			sendJSON(sess.Signal(), protocol.Envelope{Type: protocol.TypeLeft})
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	if sid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.readLimit > 0 {
		ws.SetReadLimit(ctl.readLimit)
	}

	// A second tab with the same cookie replaces the first connection.
	if old, ok := ctl.Orch.Registry.GetSession(sid); ok {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("replacing existing connection")
		ctl.Orch.Registry.Cancel(sid)
		ctl.Orch.OnDisconnect(sid)
		if sig := old.Signal(); sig != nil {
			sig.Close()
		}
	}

	conn := newWsSignalConn(ws)
	user, _ := ctl.Orch.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(user, domain.RolePublisher)).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctl.ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
