package domain

import (
	"errors"
	"fmt"
)

const MaxNameLen = 64

var (
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
	ErrNameInvalid = errors.New("name contains invalid characters")
)

// WorkspaceID scopes every channel, member and meeting to one tenant.
type WorkspaceID string

// ChannelName identifies a media session inside a workspace.
type ChannelName string

// ChannelKey is the unique address of a channel.
type ChannelKey struct {
	Workspace WorkspaceID `json:"workspace"`
	Name      ChannelName `json:"channel"`
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%s/%s", k.Workspace, k.Name)
}

type Channel struct {
	Key ChannelKey
}

// NewChannelKey validates both parts of the address.
func NewChannelKey(workspace, channel string) (ChannelKey, error) {
	if err := ValidateName(workspace); err != nil {
		return ChannelKey{}, fmt.Errorf("workspace: %w", err)
	}
	if err := ValidateName(channel); err != nil {
		return ChannelKey{}, fmt.Errorf("channel: %w", err)
	}
	return ChannelKey{Workspace: WorkspaceID(workspace), Name: ChannelName(channel)}, nil
}

// ValidateName accepts [a-zA-Z0-9_-], 1 to MaxNameLen bytes.
func ValidateName(s string) error {
	if s == "" {
		return ErrNameEmpty
	}
	if len(s) > MaxNameLen {
		return ErrNameTooLong
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrNameInvalid
		}
	}
	return nil
}
