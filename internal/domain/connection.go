package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid connection state transition")

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateDisconnecting:
		return "DISCONNECTING"
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnected, StateDisconnected, StateDisconnecting},
	StateConnected:     {StateDisconnecting, StateReconnecting, StateDisconnected},
	StateReconnecting:  {StateConnected, StateDisconnected, StateDisconnecting},
	StateDisconnecting: {StateDisconnected},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition wraps ErrInvalidTransition with both states.
func CheckTransition(from, to ConnectionState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
