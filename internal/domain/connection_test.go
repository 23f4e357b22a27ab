package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateConnected, false},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnected, StateReconnecting, true},
		{StateConnected, StateConnecting, false},
		{StateReconnecting, StateConnected, true},
		{StateDisconnecting, StateDisconnected, true},
		{StateDisconnecting, StateConnected, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Contains(t, err.Error(), tt.from.String())
		})
	}
}

func TestConnectionState_MarshalText(t *testing.T) {
	b, err := StateReconnecting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "RECONNECTING", string(b))
	assert.Equal(t, "ConnectionState(42)", ConnectionState(42).String())
}
