package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/client"
	"github.com/dkeye/huddle/internal/domain"
)

type JoinCmd struct {
	Server     string   `help:"Server URL" default:"http://localhost:8080"`
	Workspace  string   `help:"Workspace id" required:""`
	Channel    string   `help:"Channel name" required:""`
	Name       string   `help:"Display name" default:"huddlectl"`
	Role       string   `help:"publisher or subscriber" default:"subscriber" enum:"publisher,subscriber"`
	Tracks     []string `help:"Kinds to publish (audio, video)" default:""`
	ICEServers []string `help:"ICE server URLs" default:"stun:stun.l.google.com:19302"`
	Chat       bool     `help:"Send each stdin line as a channel message" default:"true" negatable:""`
}

func (j *JoinCmd) Run(ctx context.Context, globals *Globals) error {
	if err := globals.setupLogging(); err != nil {
		return err
	}
	hc, err := httpClient()
	if err != nil {
		return err
	}
	wsURL, err := signalURL(j.Server)
	if err != nil {
		return err
	}
	kinds, err := parseTracks(j.Tracks)
	if err != nil {
		return err
	}

	s := client.New(client.Config{
		Dialer:  &client.WSDialer{URL: wsURL, Jar: hc.Jar},
		NewPeer: client.NewPionPeerFactory(j.ICEServers),
	}, client.WithTokenSource(client.NewHTTPTokenSource(j.Server, hc)))

	joinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.Join(joinCtx, j.Workspace, j.Channel, client.JoinOptions{
		Name:   j.Name,
		Role:   domain.Role(j.Role),
		Tracks: kinds,
	}); err != nil {
		return err
	}
	key, uid, _ := s.Channel()
	fmt.Printf("joined %s as %s (press Ctrl+C to leave)\n", key, uid)
	for _, u := range s.RemoteUsers() {
		fmt.Printf("  member %s (%s) %s", u.Username, u.ID, u.Role)
		for _, k := range domain.TrackKinds {
			if u.Published[k] {
				fmt.Printf(" %s", k)
			}
		}
		fmt.Println()
	}
	if j.Chat {
		go func() {
			if err := sendLines(ctx, os.Stdin, s.SendMessage); err != nil {
				fmt.Printf("chat stopped: %v\n", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Leave(leaveCtx)
		case e := <-s.Events():
			printEvent(e)
			if e.Type == client.EventConnectionStateChange && e.State == domain.StateDisconnected {
				return nil
			}
		}
	}
}

// parseTracks returns nil when no kind is named so the session publishes every kind.
func parseTracks(names []string) ([]domain.TrackKind, error) {
	var kinds []domain.TrackKind
	for _, k := range names {
		if k == "" {
			continue
		}
		kind, err := domain.ParseTrackKind(k)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// sendLines sends every non-blank line of r as a JSON string message.
func sendLines(ctx context.Context, r io.Reader, send func(context.Context, json.RawMessage) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if err := send(ctx, data); err != nil {
			return err
		}
	}
	return sc.Err()
}

func printEvent(e client.Event) {
	ts := time.Now().Format("15:04:05")
	switch e.Type {
	case client.EventConnectionStateChange:
		fmt.Printf("%s state %s -> %s\n", ts, e.Prev, e.State)
	case client.EventMessage:
		fmt.Printf("%s message from %s: %s\n", ts, e.User.ID, string(e.Data))
	case client.EventError:
		fmt.Printf("%s error: %v\n", ts, e.Err)
	case client.EventRemoteTrack:
		fmt.Printf("%s receiving %s from %s\n", ts, e.Kind, e.User.ID)
	default:
		fmt.Printf("%s %s %s", ts, e.Type, e.User.Username)
		if e.Kind != "" {
			fmt.Printf(" %s enabled=%t", e.Kind, e.Enabled)
		}
		fmt.Println()
	}
}
