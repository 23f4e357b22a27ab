package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/domain"
)

type TokenCmd struct {
	Workspace  string        `help:"Workspace id" required:""`
	Channel    string        `help:"Channel name" required:""`
	UID        string        `help:"User id the token is bound to" required:""`
	Role       string        `help:"publisher or subscriber" default:"publisher" enum:"publisher,subscriber"`
	TTL        time.Duration `help:"Token lifetime" default:"1h"`
	SigningKey string        `help:"Token signing secret" required:"" env:"HUDDLE_TOKEN_SECRET"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	key, err := domain.NewChannelKey(t.Workspace, t.Channel)
	if err != nil {
		return err
	}
	minter, err := auth.NewMinter(t.SigningKey, t.TTL)
	if err != nil {
		return err
	}
	token, exp, err := minter.Mint(key, domain.UserID(t.UID), domain.Role(t.Role))
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Printf("expires %s\n", exp.Format(time.RFC3339))
	return nil
}
