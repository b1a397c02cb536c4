package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windtalker/mqtt5engine/packets"
)

func authPacket(code uint8, method string, data []byte) *packets.AuthPacket {
	props := &packets.Properties{}
	props.Presence |= packets.PresAuthenticationMethod
	props.AuthenticationMethod = method
	if data != nil {
		props.Presence |= packets.PresAuthenticationData
		props.AuthenticationData = data
	}
	return &packets.AuthPacket{ReasonCode: code, Properties: props}
}

type scriptedAuthenticator struct {
	replies []*packets.AuthPacket
	calls   int
}

func (s *scriptedAuthenticator) Next(server *packets.AuthPacket) (*packets.AuthPacket, error) {
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

func TestAuthChallengeRoundTripToConnected(t *testing.T) {
	t.Parallel()
	e := New()
	auth := &scriptedAuthenticator{replies: []*packets.AuthPacket{
		authPacket(packets.AuthReasonContinue, "SCRAM-SHA-256", []byte("client-final")),
	}}
	e.SetAuthenticator(auth)

	_, err := e.HandleConnect(0, ConnectRequest{
		ClientID:             "c1",
		CleanStart:           true,
		AuthenticationMethod: "SCRAM-SHA-256",
		AuthenticationData:   []byte("client-first"),
	})
	require.NoError(t, err)

	actions, err := e.HandlePacket(1, authPacket(packets.AuthReasonContinue, "SCRAM-SHA-256", []byte("server-first")))
	require.NoError(t, err)
	require.Equal(t, StateAuthenticating, e.State())
	require.Len(t, actions, 1)
	send, ok := actions[0].(SendPacket)
	require.True(t, ok)
	reply, ok := send.Packet.(*packets.AuthPacket)
	require.True(t, ok)
	require.Equal(t, []byte("client-final"), reply.Properties.AuthenticationData)
	require.Equal(t, 1, auth.calls)

	// The server completes the exchange with CONNACK while the engine
	// is still Authenticating.
	_, err = e.HandlePacket(2, &packets.ConnackPacket{ReasonCode: 0})
	require.NoError(t, err)
	require.Equal(t, StateConnected, e.State())
}

func TestAuthWithoutAuthenticatorIsProtocolViolation(t *testing.T) {
	t.Parallel()
	e := New()
	_, err := e.HandleConnect(0, ConnectRequest{ClientID: "c1", CleanStart: true})
	require.NoError(t, err)

	_, err = e.HandlePacket(1, authPacket(packets.AuthReasonContinue, "X", nil))
	require.Error(t, err)
	require.IsType(t, &ProtocolViolationError{}, err)
	require.Equal(t, StateDisconnected, e.State())
}
