package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertiesRoundTrip(t *testing.T) {
	t.Parallel()

	p := &Properties{
		Presence:                 PresSessionExpiryInterval | PresAssignedClientIdentifier | PresReceiveMaximum | PresCorrelationData,
		SessionExpiryInterval:    3600,
		AssignedClientIdentifier: "server-assigned-1",
		ReceiveMaximum:           20,
		CorrelationData:          []byte{0x01, 0x02, 0x03},
		SubscriptionIdentifier:   []int{1, 42},
		UserProperties: []UserProperty{
			{Key: "a", Value: "1"},
			{Key: "a", Value: "2"}, // duplicate keys are legal and order matters
		},
	}

	encoded := appendProperties(nil, p)
	decoded, n, err := decodeProperties(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, p.SessionExpiryInterval, decoded.SessionExpiryInterval)
	require.Equal(t, p.AssignedClientIdentifier, decoded.AssignedClientIdentifier)
	require.Equal(t, p.ReceiveMaximum, decoded.ReceiveMaximum)
	require.Equal(t, p.CorrelationData, decoded.CorrelationData)
	require.Equal(t, p.SubscriptionIdentifier, decoded.SubscriptionIdentifier)
	require.Equal(t, p.UserProperties, decoded.UserProperties)
}

func TestPropertiesEmpty(t *testing.T) {
	t.Parallel()
	encoded := appendProperties(nil, nil)
	require.Equal(t, []byte{0x00}, encoded)

	decoded, n, err := decodeProperties(encoded)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, uint32(0), decoded.Presence)
}

func TestPropertiesRejectsDuplicateSingleValued(t *testing.T) {
	t.Parallel()
	var buf []byte
	buf = append(buf, PropSessionExpiryInterval, 0, 0, 0, 1)
	buf = append(buf, PropSessionExpiryInterval, 0, 0, 0, 2)
	lengthPrefixed := appendVarInt(nil, len(buf))
	lengthPrefixed = append(lengthPrefixed, buf...)

	_, _, err := decodeProperties(lengthPrefixed)
	var me *MalformedError
	require.ErrorAs(t, err, &me)
}

func TestPropertiesAllowsRepeatedUserPropertyAndSubscriptionIdentifier(t *testing.T) {
	t.Parallel()
	p := &Properties{
		SubscriptionIdentifier: []int{1, 2, 3},
		UserProperties: []UserProperty{
			{Key: "k", Value: "v1"},
			{Key: "k", Value: "v2"},
		},
	}
	encoded := appendProperties(nil, p)
	decoded, _, err := decodeProperties(encoded)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, decoded.SubscriptionIdentifier)
	require.Len(t, decoded.UserProperties, 2)
}

func TestPropertiesRejectsUnknownID(t *testing.T) {
	t.Parallel()
	buf := []byte{0x02, 0x7F, 0x00} // length 2, unknown property ID 0x7F
	_, _, err := decodeProperties(buf)
	require.Error(t, err)
}

func TestPropertiesSubscriptionIdentifierZeroRejected(t *testing.T) {
	t.Parallel()
	var body []byte
	body = append(body, PropSubscriptionIdentifier, 0x00)
	buf := append(appendVarInt(nil, len(body)), body...)
	_, _, err := decodeProperties(buf)
	require.Error(t, err)
}
