package embedded

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/packets"
)

// fakeTransport is a non-blocking Transport backed by plain byte
// slices: Read/Write never block, returning (0, nil) when there is
// nothing to move, exactly like a non-blocking socket would.
type fakeTransport struct {
	toClient   []byte
	fromClient []byte
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	if len(t.toClient) == 0 {
		return 0, nil
	}
	n := copy(p, t.toClient)
	t.toClient = t.toClient[n:]
	return n, nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.fromClient = append(t.fromClient, p...)
	return len(p), nil
}

func (t *fakeTransport) deliver(pkt packets.Packet) {
	t.toClient = append(t.toClient, pkt.Encode(nil)...)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{
		ClientID:     "embedded-1",
		KeepAlive:    30,
		RecvBufSize:  512,
		SendSlots:    4,
		SendSlotSize: 256,
		Subscriptions: []Subscription{
			{Topic: "sensors/+/temp", QoS: 1},
		},
	})
	require.NoError(t, err)
	return c
}

func TestGetNextActionSendsConnectOnFirstCall(t *testing.T) {
	c := newTestClient(t)
	tr := &fakeTransport{}

	action, ok, err := c.GetNextAction(engine.Instant(0), tr)
	require.NoError(t, err)
	require.True(t, ok)
	send, isSend := action.(engine.SendPacket)
	require.True(t, isSend)
	_, isConnect := send.Packet.(*packets.ConnectPacket)
	require.True(t, isConnect)
	require.NotEmpty(t, tr.fromClient)
	require.False(t, c.Connected())
}

func TestGetNextActionCompletesHandshakeAndSubscribes(t *testing.T) {
	c := newTestClient(t)
	tr := &fakeTransport{}

	_, _, err := c.GetNextAction(engine.Instant(0), tr)
	require.NoError(t, err)

	tr.deliver(&packets.ConnackPacket{SessionPresent: false, ReasonCode: 0})

	_, _, err = c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.True(t, c.Connected())

	action, ok, err := c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.True(t, ok)
	send, isSend := action.(engine.SendPacket)
	require.True(t, isSend)
	_, isSubscribe := send.Packet.(*packets.SubscribePacket)
	require.True(t, isSubscribe)
}

func TestAcquireSlotReturnsBuffersFullWhenExhausted(t *testing.T) {
	c, err := New(Config{
		ClientID:     "embedded-2",
		RecvBufSize:  256,
		SendSlots:    1,
		SendSlotSize: 256,
	})
	require.NoError(t, err)

	c.sendSlots[0].inUse = true

	_, err = c.acquireSlot(&packets.PingreqPacket{})
	require.ErrorIs(t, err, BuffersFullError{})
}

func TestReadAndDispatchBuffersIncompleteFrame(t *testing.T) {
	c := newTestClient(t)
	tr := &fakeTransport{}

	_, _, err := c.GetNextAction(engine.Instant(0), tr)
	require.NoError(t, err)

	full := (&packets.ConnackPacket{ReasonCode: 0}).Encode(nil)
	tr.toClient = full[:len(full)-1]

	action, ok, err := c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, action)
	require.False(t, c.Connected())

	tr.toClient = append(tr.toClient, full[len(full)-1])
	_, _, err = c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.True(t, c.Connected())
}

func connectedClient(t *testing.T, tr *fakeTransport) *Client {
	t.Helper()
	c, err := New(Config{
		ClientID:     "embedded-3",
		RecvBufSize:  512,
		SendSlots:    2,
		SendSlotSize: 256,
	})
	require.NoError(t, err)
	_, _, err = c.GetNextAction(engine.Instant(0), tr)
	require.NoError(t, err)
	tr.deliver(&packets.ConnackPacket{ReasonCode: 0})
	_, _, err = c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.True(t, c.Connected())
	return c
}

func TestPublishQueuesIntoSendSlot(t *testing.T) {
	tr := &fakeTransport{}
	c := connectedClient(t, tr)
	tr.fromClient = nil

	require.NoError(t, c.Publish("sensors/1/temp", []byte("21.5"), 1))

	// The slot drains on the next pump.
	_, _, err := c.GetNextAction(engine.Instant(2), tr)
	require.NoError(t, err)
	require.NotEmpty(t, tr.fromClient)
}

func TestPublishFailsWithBuffersFullWhenSlotsOccupied(t *testing.T) {
	tr := &fakeTransport{}
	c := connectedClient(t, tr)

	for i := range c.sendSlots {
		c.sendSlots[i].inUse = true
	}
	err := c.Publish("sensors/1/temp", []byte("x"), 1)
	require.ErrorIs(t, err, BuffersFullError{})

	// Nothing was handed to the engine: no identifier leaked into the
	// outstanding table for the failed attempt.
	for i := range c.sendSlots {
		c.sendSlots[i].inUse = false
	}
	require.NoError(t, c.Publish("sensors/1/temp", []byte("x"), 1))
}

func TestPublishRequiresConnection(t *testing.T) {
	c, err := New(Config{ClientID: "e", RecvBufSize: 64, SendSlots: 1, SendSlotSize: 64})
	require.NoError(t, err)
	require.Error(t, c.Publish("t", nil, 0))
}

func TestIdleTimeoutTearsDownConnection(t *testing.T) {
	c, err := New(Config{ClientID: "e", RecvBufSize: 256, SendSlots: 1, SendSlotSize: 256, IdleTimeout: 10})
	require.NoError(t, err)
	tr := &fakeTransport{}

	_, _, err = c.GetNextAction(engine.Instant(0), tr)
	require.NoError(t, err)
	tr.deliver(&packets.ConnackPacket{ReasonCode: 0})
	_, _, err = c.GetNextAction(engine.Instant(1), tr)
	require.NoError(t, err)
	require.True(t, c.Connected())

	_, _, err = c.GetNextAction(engine.Instant(5), tr)
	require.NoError(t, err)

	_, _, err = c.GetNextAction(engine.Instant(11), tr)
	require.ErrorIs(t, err, IdleTimeoutError{})
}
