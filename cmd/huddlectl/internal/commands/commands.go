package commands

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

func (g *Globals) setupLogging() error {
	level := "warn"
	if g.Debug {
		level = "debug"
	}
	return logger.Setup(level, "console")
}

// httpClient keeps the session cookie so the token and the signalling
// connection belong to the same server session.
func httpClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: 15 * time.Second}, nil
}

func signalURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/ws/signal"
	return u.String(), nil
}
