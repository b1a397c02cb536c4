// Package embedded is a static-buffer binding of the protocol engine
// for environments without a heap to spare on a goroutine-per-socket
// client: one send slab and one receive buffer, both sized once at
// construction, and a cooperative GetNextAction poll loop instead of
// blocking reader/logic goroutines. Buffer capacities are ordinary
// constructor parameters; the slabs are allocated once in New and
// never resized afterward.
package embedded

import (
	"bytes"
	"fmt"
	"io"

	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/packets"
)

// Subscription is declared at construction and immutable for the
// lifetime of the Client, matching the embedded binding's "no dynamic
// subscription list" constraint.
type Subscription struct {
	Topic  string
	QoS    uint8
	Retain bool
}

// Transport is the non-blocking byte source/sink GetNextAction polls.
// Read and Write must return (0, nil) rather than blocking when no
// data can currently be moved, mirroring a non-blocking socket's
// EWOULDBLOCK; any other error tears down the connection.
type Transport interface {
	io.Reader
	io.Writer
}

// Config sizes a Client's static buffers and configures its CONNECT.
// RecvBufSize, SendSlots and SendSlotSize fix the receive buffer and
// send slots, which New allocates once and never resizes. Decoding
// inbound packets, the engine's own state and the queued-actions slice
// still allocate on the heap after New returns.
type Config struct {
	ClientID      string
	KeepAlive     uint16
	Subscriptions []Subscription

	// IdleTimeout tears the connection down when no bytes arrive for
	// this many seconds. 0 disables it; keep-alive (which guarantees
	// server traffic at least every KeepAlive seconds) is the usual
	// companion.
	IdleTimeout uint16

	// RecvBufSize bounds the largest single incoming packet.
	RecvBufSize int
	// SendSlots is the number of in-flight outbound packets the
	// client can hold awaiting transmission (SEND_BUF_SIZE).
	SendSlots int
	// SendSlotSize bounds the largest single outbound packet.
	SendSlotSize int
}

type connState uint8

const (
	stateIdle connState = iota
	stateConnecting
	stateConnected
)

type sendSlot struct {
	inUse    bool
	data     []byte // encoded packet, length <= cap(buf)
	written  int
	buf      []byte
}

// Client is a single-connection MQTT v5 client driven entirely by
// GetNextAction; its only I/O goes through the Transport passed to each
// call. See Config for what allocates after New.
type Client struct {
	cfg   Config
	eng   *engine.Engine
	state connState

	recvBuf []byte
	recvLen int

	sendSlots []sendSlot

	// queued holds actions produced by packet dispatch that have not
	// yet been handed to the caller; GetNextAction drains it one
	// action per call.
	queued []engine.Action

	lastRead   engine.Instant
	subscribed bool
}

// IdleTimeoutError reports that the per-socket idle timeout elapsed
// without any inbound bytes.
type IdleTimeoutError struct{}

func (IdleTimeoutError) Error() string { return "embedded: idle timeout, no bytes received" }

// New allocates a Client's static buffers. The returned Client is
// idle; the first GetNextAction call starts the CONNECT handshake.
func New(cfg Config) (*Client, error) {
	if cfg.RecvBufSize <= 0 {
		return nil, fmt.Errorf("embedded: RecvBufSize must be positive")
	}
	if cfg.SendSlots <= 0 {
		return nil, fmt.Errorf("embedded: SendSlots must be positive")
	}
	if cfg.SendSlotSize <= 0 {
		return nil, fmt.Errorf("embedded: SendSlotSize must be positive")
	}

	slots := make([]sendSlot, cfg.SendSlots)
	for i := range slots {
		slots[i].buf = make([]byte, 0, cfg.SendSlotSize)
	}

	return &Client{
		cfg:       cfg,
		eng:       engine.New(),
		recvBuf:   make([]byte, cfg.RecvBufSize),
		sendSlots: slots,
		queued:    make([]engine.Action, 0, 8),
	}, nil
}

// BuffersFullError reports that every static send slot is occupied.
// The caller should retry once a prior GetNextAction call has drained
// one.
type BuffersFullError struct{}

func (BuffersFullError) Error() string { return "embedded: all send buffers in use" }

// acquireSlot finds a free send slot, encodes pkt into it, and marks
// it in use. Returns BuffersFullError if none are free, and a plain
// error if the encoded packet would not fit the slot's fixed capacity.
func (c *Client) acquireSlot(pkt packets.Packet) (*sendSlot, error) {
	for i := range c.sendSlots {
		s := &c.sendSlots[i]
		if s.inUse {
			continue
		}
		encoded := pkt.Encode(s.buf[:0])
		if cap(encoded) > cap(s.buf) || len(encoded) > cap(s.buf) {
			return nil, fmt.Errorf("embedded: encoded packet (%d bytes) exceeds SendSlotSize", len(encoded))
		}
		s.buf = encoded
		s.data = s.buf
		s.written = 0
		s.inUse = true
		return s, nil
	}
	return nil, BuffersFullError{}
}

// GetNextAction drives one step of the client: it flushes any
// partially-written send slots, attempts the CONNECT handshake if not
// yet connected, reads and decodes at most one complete packet from
// transport, and feeds it to the engine. It returns (nil, false, nil)
// when there is nothing to report this call — the caller should poll
// again after its transport next becomes readable or after a timeout.
func (c *Client) GetNextAction(now engine.Instant, transport Transport) (engine.Action, bool, error) {
	if err := c.flushSendSlots(transport); err != nil {
		return nil, false, err
	}

	if len(c.queued) > 0 {
		next := c.queued[0]
		copy(c.queued, c.queued[1:])
		c.queued = c.queued[:len(c.queued)-1]
		return next, true, nil
	}

	if c.state == stateIdle {
		c.lastRead = now
		return c.startConnect(now, transport)
	}

	if c.cfg.IdleTimeout > 0 && now-c.lastRead >= engine.Instant(c.cfg.IdleTimeout) {
		return nil, false, IdleTimeoutError{}
	}

	action, ok, err := c.pollEngine(now)
	if err != nil || ok {
		return action, ok, err
	}

	return c.readAndDispatch(now, transport)
}

func (c *Client) startConnect(now engine.Instant, transport Transport) (engine.Action, bool, error) {
	action, err := c.eng.HandleConnect(now, engine.ConnectRequest{
		ClientID:   c.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  c.cfg.KeepAlive,
	})
	if err != nil {
		return nil, false, err
	}
	c.state = stateConnecting

	send := action.(engine.SendPacket)
	slot, err := c.acquireSlot(send.Packet)
	if err != nil {
		return nil, false, err
	}
	if err := c.writeSlot(transport, slot); err != nil {
		return nil, false, err
	}
	return send, true, nil
}

func (c *Client) pollEngine(now engine.Instant) (engine.Action, bool, error) {
	action, ok := c.eng.Poll(now)
	if !ok {
		return nil, false, nil
	}
	if send, isSend := action.(engine.SendPacket); isSend {
		if _, err := c.acquireSlot(send.Packet); err != nil {
			return nil, false, err
		}
	}
	return action, true, nil
}

// readAndDispatch pulls whatever bytes are currently available from
// transport (a non-blocking read) into recvBuf, then tries to decode
// one complete packet. An EOF/ErrUnexpectedEOF from the decoder means
// the frame is incomplete, not malformed: it is reported as "nothing
// yet" rather than an error, and the partial bytes stay buffered for
// the next call.
func (c *Client) readAndDispatch(now engine.Instant, transport Transport) (engine.Action, bool, error) {
	if c.recvLen < len(c.recvBuf) {
		n, err := transport.Read(c.recvBuf[c.recvLen:])
		if err != nil {
			return nil, false, err
		}
		if n > 0 {
			c.lastRead = now
		}
		c.recvLen += n
	}
	if c.recvLen == 0 {
		return nil, false, nil
	}

	r := bytes.NewReader(c.recvBuf[:c.recvLen])
	pkt, err := packets.ReadPacket(r, len(c.recvBuf))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		return nil, false, err
	}

	consumed := c.recvLen - r.Len()
	copy(c.recvBuf, c.recvBuf[consumed:c.recvLen])
	c.recvLen -= consumed

	if connack, isConnack := pkt.(*packets.ConnackPacket); isConnack && c.state == stateConnecting {
		if connack.ReasonCode == 0 {
			c.state = stateConnected
		}
	}

	actions, err := c.eng.HandlePacket(now, pkt)
	if err != nil {
		return nil, false, err
	}
	for _, a := range actions {
		if send, isSend := a.(engine.SendPacket); isSend {
			if _, err := c.acquireSlot(send.Packet); err != nil {
				return nil, false, err
			}
			continue
		}
		c.queued = append(c.queued, a)
	}

	if c.state == stateConnected && !c.subscribed {
		if err := c.subscribeAll(); err != nil {
			return nil, false, err
		}
		c.subscribed = true
	}
	return nil, false, nil
}

// Publish queues an outbound PUBLISH into a free send slot; the next
// GetNextAction call flushes it. It never blocks: when every slot is
// occupied it fails with BuffersFullError and the caller retries after
// pumping GetNextAction, and a QoS 1/2 publish that cannot get a
// packet identifier fails with the engine's exhaustion error.
func (c *Client) Publish(topic string, payload []byte, qos uint8) error {
	if c.state != stateConnected {
		return fmt.Errorf("embedded: not connected")
	}
	if c.freeSlots() == 0 {
		return BuffersFullError{}
	}
	actions, err := c.eng.Publish(engine.PublishRequest{Topic: topic, Payload: payload, QoS: qos})
	if err != nil {
		return err
	}
	for _, a := range actions {
		// StorePacket needs no separate action here: the engine's own
		// outstanding table is the only in-flight record an embedded
		// client keeps.
		if send, isSend := a.(engine.SendPacket); isSend {
			if _, err := c.acquireSlot(send.Packet); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) freeSlots() int {
	free := 0
	for i := range c.sendSlots {
		if !c.sendSlots[i].inUse {
			free++
		}
	}
	return free
}

// subscribeAll sends the construction-time subscription list as a
// single SUBSCRIBE once the handshake completes. Subscriptions are
// immutable for the client's lifetime, so this runs exactly once.
func (c *Client) subscribeAll() error {
	if len(c.cfg.Subscriptions) == 0 {
		return nil
	}
	subs := make([]packets.SubscriptionRequest, len(c.cfg.Subscriptions))
	for i, s := range c.cfg.Subscriptions {
		subs[i] = packets.SubscriptionRequest{TopicFilter: s.Topic, QoS: s.QoS, RetainAsPublished: s.Retain}
	}
	action, err := c.eng.Subscribe(engine.SubscribeRequest{Subscriptions: subs})
	if err != nil {
		return err
	}
	send := action.(engine.SendPacket)
	if _, err := c.acquireSlot(send.Packet); err != nil {
		return err
	}
	c.queued = append(c.queued, send)
	return nil
}

// flushSendSlots writes out whatever bytes remain in any in-use send
// slot, freeing slots that finish. A short, non-blocking write simply
// advances that slot's offset; it is retried on the next call.
func (c *Client) flushSendSlots(transport Transport) error {
	for i := range c.sendSlots {
		s := &c.sendSlots[i]
		if !s.inUse {
			continue
		}
		if err := c.writeSlot(transport, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeSlot(transport Transport, s *sendSlot) error {
	for s.written < len(s.data) {
		n, err := transport.Write(s.data[s.written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		s.written += n
	}
	s.inUse = false
	s.data = nil
	s.written = 0
	return nil
}

// Connected reports whether the CONNECT/CONNACK handshake completed.
func (c *Client) Connected() bool { return c.state == stateConnected }
