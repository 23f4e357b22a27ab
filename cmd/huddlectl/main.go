package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dkeye/huddle/cmd/huddlectl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Token    commands.TokenCmd    `cmd:"" help:"Mint a channel token offline"`
		Join     commands.JoinCmd     `cmd:"" help:"Join a channel and print events"`
		Channels commands.ChannelsCmd `cmd:"" help:"List live channels of a workspace"`
		Meetings commands.MeetingsCmd `cmd:"" help:"Show meeting history of a workspace"`
		Evict    commands.EvictCmd    `cmd:"" help:"Remove every member from a channel"`
		Debug    bool                 `help:"Enable debug logging."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
