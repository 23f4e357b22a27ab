package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebRTCConfig(t *testing.T) {
	cfg := WebRTCConfig([]string{"stun:a", "turn:b"})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:a", "turn:b"}, cfg.ICEServers[0].URLs)
	assert.Empty(t, WebRTCConfig(nil).ICEServers)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{}, "sid")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	calls := 0
	c.OnClosed(func() { calls++ })

	c.Close()
	c.Close()
	assert.True(t, c.IsClosed())
	assert.Equal(t, 1, calls)

	_, err = c.CreateAndSetOffer()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.AddICECandidate(webrtc.ICECandidateInit{Candidate: "x"}), ErrClosed)
}

func TestConnection_OfferAnswer(t *testing.T) {
	server, err := NewWebRTCConnection(webrtc.Configuration{}, "server")
	require.NoError(t, err)
	defer server.Close()
	require.NoError(t, server.Start(context.Background()))

	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer client.Close()
	_, err = client.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio)
	require.NoError(t, err)

	offer, err := client.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, client.SetLocalDescription(offer))

	answer, err := server.ApplyOfferAndCreateAnswer(offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	require.NoError(t, client.SetRemoteDescription(*answer))
}
