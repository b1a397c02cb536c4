package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windtalker/mqtt5engine/packets"
)

// fakeBroker speaks just enough server-side MQTT v5.0 over a single
// net.Pipe connection to exercise the client: CONNACK on CONNECT,
// SUBACK on SUBSCRIBE, the QoS 1/2 ack handshakes, and (when echo is
// set) reflecting published messages back at QoS 0.
type fakeBroker struct {
	conn        net.Conn
	subackCodes []uint8 // nil grants the requested QoS
	echo        bool
}

func (b *fakeBroker) serve() {
	for {
		pkt, err := packets.ReadPacket(b.conn, 0)
		if err != nil {
			return
		}
		switch p := pkt.(type) {
		case *packets.ConnectPacket:
			(&packets.ConnackPacket{ReasonCode: 0}).WriteTo(b.conn)
		case *packets.SubscribePacket:
			codes := b.subackCodes
			if codes == nil {
				for _, s := range p.Subscriptions {
					codes = append(codes, s.QoS)
				}
			}
			(&packets.SubackPacket{PacketID: p.PacketID, ReasonCodes: codes}).WriteTo(b.conn)
		case *packets.UnsubscribePacket:
			(&packets.UnsubackPacket{PacketID: p.PacketID, ReasonCodes: make([]uint8, len(p.Topics))}).WriteTo(b.conn)
		case *packets.PublishPacket:
			switch p.QoS {
			case 1:
				(&packets.PubackPacket{PacketID: p.PacketID}).WriteTo(b.conn)
			case 2:
				(&packets.PubrecPacket{PacketID: p.PacketID}).WriteTo(b.conn)
			}
			if b.echo {
				out := *p
				out.QoS = 0
				out.PacketID = 0
				out.WriteTo(b.conn)
			}
		case *packets.PubrelPacket:
			(&packets.PubcompPacket{PacketID: p.PacketID}).WriteTo(b.conn)
		case *packets.PingreqPacket:
			(&packets.PingrespPacket{}).WriteTo(b.conn)
		case *packets.DisconnectPacket:
			b.conn.Close()
			return
		}
	}
}

func dialTestClient(t *testing.T, b *fakeBroker, opts ...Option) *Client {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	b.conn = serverEnd
	go b.serve()

	opts = append([]Option{
		WithAutoReconnect(false),
		WithClientID("test-client"),
		WithDialer(DialFunc(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return clientEnd, nil
		})),
	}, opts...)

	c, err := Dial("tcp://broker.test:1883", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialHandshakesThroughCustomDialer(t *testing.T) {
	dialTestClient(t, &fakeBroker{})
}

func TestPublishQoS0CompletesImmediately(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{})
	tk := c.Publish("a/b", []byte("x"), AtMostOnce)
	require.NoError(t, tk.Wait(waitCtx(t)))
}

func TestPublishQoS1CompletesOnPuback(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{})
	tk := c.Publish("a/b", []byte("x"), AtLeastOnce)
	require.NoError(t, tk.Wait(waitCtx(t)))
}

func TestPublishQoS2CompletesOnPubcomp(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{})
	tk := c.Publish("a/b", []byte("x"), ExactlyOnce)
	require.NoError(t, tk.Wait(waitCtx(t)))
}

func TestSubscribeDeliversMatchingPublish(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{echo: true})

	received := make(chan Message, 1)
	tk := c.Subscribe("t/#", AtMostOnce, func(_ *Client, msg Message) {
		received <- msg
	})
	require.NoError(t, tk.Wait(waitCtx(t)))

	require.NoError(t, c.Publish("t/x", []byte("hello"), AtMostOnce).Wait(waitCtx(t)))

	select {
	case msg := <-received:
		require.Equal(t, "t/x", msg.Topic)
		require.Equal(t, []byte("hello"), msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered to subscription handler")
	}
}

func TestSubackFailureCodeFailsToken(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{subackCodes: []uint8{0x87}})
	tk := c.Subscribe("t/#", AtLeastOnce, func(*Client, Message) {})
	require.Error(t, tk.Wait(waitCtx(t)))
}

func TestUnsubscribeCompletesOnUnsuback(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{})
	require.NoError(t, c.Subscribe("t/#", AtMostOnce, func(*Client, Message) {}).Wait(waitCtx(t)))
	require.NoError(t, c.Unsubscribe("t/#").Wait(waitCtx(t)))
}

func TestPublishRejectsWildcardTopic(t *testing.T) {
	c := dialTestClient(t, &fakeBroker{})
	tk := c.Publish("t/+/x", nil, AtMostOnce)
	require.Error(t, tk.Wait(waitCtx(t)))
}

func TestHandlerInterceptorWrapsDelivery(t *testing.T) {
	intercepted := make(chan string, 1)
	mw := func(next MessageHandler) MessageHandler {
		return func(c *Client, msg Message) {
			intercepted <- msg.Topic
			next(c, msg)
		}
	}

	c := dialTestClient(t, &fakeBroker{echo: true}, WithHandlerInterceptor(mw))
	handled := make(chan struct{}, 1)
	require.NoError(t, c.Subscribe("t/#", AtMostOnce, func(*Client, Message) {
		handled <- struct{}{}
	}).Wait(waitCtx(t)))
	require.NoError(t, c.Publish("t/y", []byte("z"), AtMostOnce).Wait(waitCtx(t)))

	select {
	case topic := <-intercepted:
		require.Equal(t, "t/y", topic)
	case <-time.After(5 * time.Second):
		t.Fatal("interceptor never ran")
	}
	<-handled
}
