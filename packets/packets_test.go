package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// roundTrip encodes p, decodes its fixed header back off the wire, and
// returns the decoded remaining bytes alongside the header for the
// caller to pass to the type-specific Decode function.
func roundTrip(t *testing.T, p Packet) (*FixedHeader, []byte) {
	t.Helper()
	var buf bytes.Buffer
	_, err := p.WriteTo(&buf)
	require.NoError(t, err)

	header, err := DecodeFixedHeader(&buf)
	require.NoError(t, err)
	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		_, err = buf.Read(remaining)
		require.NoError(t, err)
	}
	return header, remaining
}

func TestConnectRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &ConnectPacket{
		CleanStart: true,
		ClientID:   "client-1",
		KeepAlive:  60,
		WillFlag:   true,
		WillQoS:    1,
		WillTopic:  "lwt/client-1",
		WillMessage: []byte("offline"),
		UsernameFlag: true,
		Username:     "alice",
		PasswordFlag: true,
		Password:     "s3cret",
		Properties:   &Properties{Presence: PresSessionExpiryInterval, SessionExpiryInterval: 30},
	}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeConnect(remaining)
	require.NoError(t, err)
	require.Equal(t, pkt.ClientID, decoded.ClientID)
	require.Equal(t, pkt.WillTopic, decoded.WillTopic)
	require.Equal(t, pkt.WillMessage, decoded.WillMessage)
	require.Equal(t, pkt.Username, decoded.Username)
	require.Equal(t, pkt.Password, decoded.Password)
	require.Equal(t, uint32(30), decoded.Properties.SessionExpiryInterval)
}

func TestConnectRejectsWrongProtocolName(t *testing.T) {
	t.Parallel()
	buf := appendString(nil, "MQIsdp")
	_, err := DecodeConnect(buf)
	require.Error(t, err)
}

func TestConnackRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &ConnackPacket{
		SessionPresent: true,
		ReasonCode:     0,
		Properties:     &Properties{Presence: PresAssignedClientIdentifier, AssignedClientIdentifier: "srv-1"},
	}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeConnack(remaining)
	require.NoError(t, err)
	require.True(t, decoded.SessionPresent)
	require.Equal(t, "srv-1", decoded.Properties.AssignedClientIdentifier)
}

func TestPublishRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &PublishPacket{
		QoS:        1,
		Topic:      "a/b",
		PacketID:   42,
		Payload:    []byte("hello"),
		Properties: &Properties{Presence: PresContentType, ContentType: "text/plain"},
	}
	header, remaining := roundTrip(t, pkt)
	decoded, err := DecodePublish(remaining, header.Flags)
	require.NoError(t, err)
	require.Equal(t, pkt.Topic, decoded.Topic)
	require.Equal(t, pkt.PacketID, decoded.PacketID)
	require.Equal(t, pkt.Payload, decoded.Payload)
	require.Equal(t, "text/plain", decoded.Properties.ContentType)
}

func TestPublishQoS0RejectsDup(t *testing.T) {
	t.Parallel()
	_, err := DecodePublish(appendString(nil, "t"), 0x08)
	require.Error(t, err)
}

func TestAckPacketsRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("puback", func(t *testing.T) {
		pkt := &PubackPacket{PacketID: 7, ReasonCode: 0x10}
		_, remaining := roundTrip(t, pkt)
		decoded, err := DecodePuback(remaining)
		require.NoError(t, err)
		require.Equal(t, pkt.PacketID, decoded.PacketID)
		require.Equal(t, pkt.ReasonCode, decoded.ReasonCode)
	})

	t.Run("puback omits reason code when success and no properties", func(t *testing.T) {
		pkt := &PubackPacket{PacketID: 7}
		encoded := pkt.Encode(nil)
		require.Equal(t, 2, int(encoded[1])) // remaining length == 2 (packet ID only)
	})

	t.Run("pubrec", func(t *testing.T) {
		pkt := &PubrecPacket{PacketID: 8}
		_, remaining := roundTrip(t, pkt)
		decoded, err := DecodePubrec(remaining)
		require.NoError(t, err)
		require.Equal(t, pkt.PacketID, decoded.PacketID)
	})

	t.Run("pubrel", func(t *testing.T) {
		pkt := &PubrelPacket{PacketID: 9}
		header, remaining := roundTrip(t, pkt)
		require.Equal(t, uint8(flagsPubrel), header.Flags)
		decoded, err := DecodePubrel(remaining)
		require.NoError(t, err)
		require.Equal(t, pkt.PacketID, decoded.PacketID)
	})

	t.Run("pubcomp", func(t *testing.T) {
		pkt := &PubcompPacket{PacketID: 10}
		_, remaining := roundTrip(t, pkt)
		decoded, err := DecodePubcomp(remaining)
		require.NoError(t, err)
		require.Equal(t, pkt.PacketID, decoded.PacketID)
	})
}

func TestSubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &SubscribePacket{
		PacketID: 5,
		Subscriptions: []SubscriptionRequest{
			{TopicFilter: "a/#", QoS: 1, NoLocal: true, RetainHandling: 2},
			{TopicFilter: "b/+", QoS: 2},
		},
	}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeSubscribe(remaining)
	require.NoError(t, err)
	require.Len(t, decoded.Subscriptions, 2)
	require.Equal(t, "a/#", decoded.Subscriptions[0].TopicFilter)
	require.True(t, decoded.Subscriptions[0].NoLocal)
	require.Equal(t, uint8(2), decoded.Subscriptions[0].RetainHandling)
	require.Equal(t, uint8(2), decoded.Subscriptions[1].QoS)
}

func TestSubscribeRejectsReservedOptionBits(t *testing.T) {
	t.Parallel()
	var buf []byte
	buf = append(buf, 0x00, 0x01) // packet ID
	buf = append(buf, 0x00)       // empty properties
	buf = appendString(buf, "a/b")
	buf = append(buf, 0xC0) // reserved bits set
	_, err := DecodeSubscribe(buf)
	require.Error(t, err)
}

func TestSubackRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &SubackPacket{PacketID: 5, ReasonCodes: []uint8{SubackQoS1, SubackFailure}}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeSuback(remaining)
	require.NoError(t, err)
	require.Equal(t, pkt.ReasonCodes, decoded.ReasonCodes)
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &UnsubscribePacket{PacketID: 6, Topics: []string{"a/b", "c/d"}}
	header, remaining := roundTrip(t, pkt)
	require.Equal(t, uint8(flagsUnsubscribe), header.Flags)
	decoded, err := DecodeUnsubscribe(remaining)
	require.NoError(t, err)
	require.Equal(t, pkt.Topics, decoded.Topics)
}

func TestUnsubackRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &UnsubackPacket{PacketID: 6, ReasonCodes: []uint8{0x00, 0x11}}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeUnsuback(remaining)
	require.NoError(t, err)
	require.Equal(t, pkt.ReasonCodes, decoded.ReasonCodes)
}

func TestPingRoundTrip(t *testing.T) {
	t.Parallel()
	_, remaining := roundTrip(t, &PingreqPacket{})
	_, err := DecodePingreq(remaining)
	require.NoError(t, err)

	_, remaining = roundTrip(t, &PingrespPacket{})
	_, err = DecodePingresp(remaining)
	require.NoError(t, err)
}

func TestDisconnectRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("normal disconnect has empty body", func(t *testing.T) {
		pkt := &DisconnectPacket{}
		encoded := pkt.Encode(nil)
		require.Equal(t, []byte{DISCONNECT << 4, 0x00}, encoded)
	})

	t.Run("with reason and properties", func(t *testing.T) {
		pkt := &DisconnectPacket{ReasonCode: 0x8E, Properties: &Properties{Presence: PresReasonString, ReasonString: "session taken over"}}
		_, remaining := roundTrip(t, pkt)
		decoded, err := DecodeDisconnect(remaining)
		require.NoError(t, err)
		require.Equal(t, pkt.ReasonCode, decoded.ReasonCode)
		require.Equal(t, "session taken over", decoded.Properties.ReasonString)
	})
}

func TestAuthRoundTrip(t *testing.T) {
	t.Parallel()
	pkt := &AuthPacket{
		ReasonCode: AuthReasonContinue,
		Properties: &Properties{Presence: PresAuthenticationMethod, AuthenticationMethod: "SCRAM-SHA-256"},
	}
	_, remaining := roundTrip(t, pkt)
	decoded, err := DecodeAuth(remaining)
	require.NoError(t, err)
	require.Equal(t, AuthReasonContinue, decoded.ReasonCode)
	require.Equal(t, "SCRAM-SHA-256", decoded.Properties.AuthenticationMethod)
}

func TestAuthRequiresMethodWhenNotSuccess(t *testing.T) {
	t.Parallel()
	_, err := DecodeAuth([]byte{AuthReasonContinue})
	require.Error(t, err)
}

func TestReadPacketEnforcesReservedFlags(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	header := FixedHeader{PacketType: PUBREL, Flags: 0x00, RemainingLength: 2}
	buf.Write(header.appendBytes(nil))
	buf.Write([]byte{0x00, 0x01})

	_, err := ReadPacket(&buf, 0)
	require.Error(t, err)
}

func TestReadPacketZeroLimitAcceptsPacket(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	header := FixedHeader{PacketType: PINGREQ, RemainingLength: 0}
	buf.Write(header.appendBytes(nil))

	pkt, err := ReadPacket(&buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(PINGREQ), pkt.Type())
}
