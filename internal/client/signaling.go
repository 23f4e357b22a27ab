package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Signaling is one live signalling connection. Messages is closed when the
// connection ends.
type Signaling interface {
	Send(ctx context.Context, v any) error
	Messages() <-chan []byte
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Signaling, error)
}

const (
	defaultDialTries = 5
	writeWait        = 5 * time.Second
)

// WSDialer connects to the server's /api/ws/signal endpoint. Jar must hold
// the session cookie the token was minted for.
type WSDialer struct {
	URL              string
	Jar              http.CookieJar
	MaxTries         uint
	HandshakeTimeout time.Duration
}

func (d *WSDialer) Dial(ctx context.Context) (Signaling, error) {
	dialer := &websocket.Dialer{
		Jar:              d.Jar,
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	tries := d.MaxTries
	if tries == 0 {
		tries = defaultDialTries
	}

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		conn, resp, err := dialer.DialContext(ctx, d.URL, nil)
		if err == nil {
			return conn, nil
		}
		// The server refused us; retrying will not help.
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("handshake status %d: %w", resp.StatusCode, err))
		}
		log.Warn().Err(err).Str("module", "client.signal").Int("attempt", attempt).Msg("dial failed")
		return nil, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(tries))
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "client.signal").Str("url", d.URL).Msg("connected")
	return newWSSignaling(conn), nil
}

type wsSignaling struct {
	conn *websocket.Conn
	msgs chan []byte
	done chan struct{}

	wmu       sync.Mutex
	closeOnce sync.Once
}

func newWSSignaling(conn *websocket.Conn) *wsSignaling {
	s := &wsSignaling{
		conn: conn,
		msgs: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	go s.readPump()
	return s
}

func (s *wsSignaling) readPump() {
	defer close(s.msgs)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "client.signal").Msg("read error")
			}
			return
		}
		select {
		case s.msgs <- data:
		case <-s.done:
			return
		}
	}
}

func (s *wsSignaling) Messages() <-chan []byte { return s.msgs }

func (s *wsSignaling) Send(ctx context.Context, v any) error {
	select {
	case <-s.done:
		return ErrSignalClosed
	default:
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *wsSignaling) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		if cerr := s.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})
	return err
}
