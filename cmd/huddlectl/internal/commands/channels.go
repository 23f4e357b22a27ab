package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dkeye/huddle/internal/client"
	"github.com/dkeye/huddle/internal/domain"
)

type ChannelsCmd struct {
	Server    string `help:"Server URL" default:"http://localhost:8080"`
	Workspace string `help:"Workspace id" required:""`
}

func (c *ChannelsCmd) Run(ctx context.Context) error {
	channels, err := client.NewAPI(c.Server, nil).ListChannels(ctx, domain.WorkspaceID(c.Workspace))
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}
	if len(channels) == 0 {
		fmt.Println("No live channels")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tMEMBERS")
	for _, ch := range channels {
		fmt.Fprintf(w, "%s\t%d\n", ch.Name, ch.MemberCount)
	}
	return w.Flush()
}

type MeetingsCmd struct {
	Server    string `help:"Server URL" default:"http://localhost:8080"`
	Workspace string `help:"Workspace id" required:""`
	Limit     int    `help:"Number of meetings to show" default:"20"`
}

func (m *MeetingsCmd) Run(ctx context.Context) error {
	meetings, err := client.NewAPI(m.Server, nil).Meetings(ctx, domain.WorkspaceID(m.Workspace), m.Limit)
	if err != nil {
		return fmt.Errorf("failed to list meetings: %w", err)
	}
	if len(meetings) == 0 {
		fmt.Println("No meetings")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHANNEL\tSTARTED\tDURATION\tPARTICIPANTS")
	for _, mt := range meetings {
		duration := "ongoing"
		if mt.EndedAt != nil {
			duration = mt.EndedAt.Sub(mt.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", mt.ID, mt.Channel, mt.StartedAt.Format(time.RFC3339), duration, len(mt.Participants))
	}
	return w.Flush()
}

type EvictCmd struct {
	Server    string `help:"Server URL" default:"http://localhost:8080"`
	Workspace string `help:"Workspace id" required:""`
	Channel   string `help:"Channel name" required:""`
}

func (e *EvictCmd) Run(ctx context.Context) error {
	key, err := domain.NewChannelKey(e.Workspace, e.Channel)
	if err != nil {
		return err
	}
	n, err := client.NewAPI(e.Server, nil).Evict(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to evict: %w", err)
	}
	fmt.Printf("evicted %d member(s) from %s\n", n, key)
	return nil
}
