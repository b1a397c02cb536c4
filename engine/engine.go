// Package engine implements the sans-I/O MQTT v5.0 client protocol
// core: the connection handshake, keep-alive, QoS 0/1/2 publish and
// receive state machines, subscription bookkeeping, packet-identifier
// allocation and outstanding-packet replay.
//
// The Engine is a pure state machine: every method is a function of
// (current state, input, instant) -> (new state, actions). It never
// performs I/O and never reads the wall clock; callers supply an
// Instant with every call. Host bindings (the client and embedded
// packages) own the transport and the clock and translate Actions
// into real sends, timers and deliveries.
package engine

import (
	"fmt"

	"github.com/windtalker/mqtt5engine/packets"
)

// Instant is a caller-supplied, monotonically non-decreasing,
// second-resolution timestamp. The engine only ever compares and
// subtracts Instants; it never originates one.
type Instant int64

// State is one of the five connection states the engine can occupy.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthenticating:
		return "Authenticating"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// ConnectionState holds everything negotiated on a successful Connack,
// torn down on disconnect.
type ConnectionState struct {
	ReceiveMaximum    uint16
	MaximumQoS        uint8
	RetainAvailable   bool
	TopicAliasMaximum uint16
	MaximumPacketSize uint32
	KeepAlive         uint16
	SessionPresent    bool
}

// Engine is the protocol core for one MQTT v5.0 connection attempt. It
// is not safe for concurrent use; the host binding serializes access
// with a mutex.
type Engine struct {
	state State
	conn  ConnectionState

	clientID   string
	cleanStart bool
	keepAlive  uint16

	ids         idAllocator
	outstanding outstandingTable
	receivedQoS2 map[uint16]struct{}

	// keep-alive bookkeeping
	lastSend     Instant
	pingOutstanding bool
	pingSentAt   Instant

	senderAliases   map[string]uint16
	nextSenderAlias uint16
	receiverAliases map[uint16]string

	// ourReceiveMaximum is what this engine advertised in CONNECT; it
	// bounds how many QoS>0 PUBLISH packets the peer may have
	// unacknowledged towards us at once.
	ourReceiveMaximum uint16
	inboundUnacked    map[uint16]struct{}

	authenticator Authenticator

	// pendingAcks tracks identifiers allocated for SUBSCRIBE/UNSUBSCRIBE
	// exchanges, which are not publish/release traffic and so are not
	// recorded in the outstanding table, but still occupy the packet-id
	// namespace until acknowledged.
	pendingAcks map[uint16]struct{}

	pending []Action
}

// New returns an Engine ready to handle a HandleConnect call.
func New() *Engine {
	return &Engine{
		state:             StateIdle,
		receivedQoS2:      make(map[uint16]struct{}),
		senderAliases:     make(map[string]uint16),
		receiverAliases:   make(map[uint16]string),
		pendingAcks:       make(map[uint16]struct{}),
		inboundUnacked:    make(map[uint16]struct{}),
		ourReceiveMaximum: 65535,
	}
}

// Authenticator responds to AUTH challenges during the Authenticating
// state (SCRAM and similar exchanges). It is optional; an Engine with
// no Authenticator fails any AUTH challenge with a ProtocolViolationError.
type Authenticator interface {
	// Next receives the server's AUTH packet and returns the client's
	// reply, or an error to abort the exchange.
	Next(server *packets.AuthPacket) (*packets.AuthPacket, error)
}

// State reports the engine's current connection state.
func (e *Engine) State() State { return e.state }

// SetAuthenticator installs the challenge/response handler used during
// enhanced AUTH exchanges. Must be called before HandleConnect; an
// AUTH challenge with no authenticator installed is a protocol
// violation.
func (e *Engine) SetAuthenticator(a Authenticator) { e.authenticator = a }

// ConnectRequest configures HandleConnect.
type ConnectRequest struct {
	ClientID   string
	CleanStart bool
	KeepAlive  uint16

	Username string
	Password string
	HasAuth  bool // distinguishes an empty password from no password

	Will *Will

	AuthenticationMethod string
	AuthenticationData   []byte

	ReceiveMaximum    uint16
	TopicAliasMaximum uint16
	MaximumPacketSize uint32
	SessionExpiry     uint32
	UserProperties    []packets.UserProperty

	// Resume is the outstanding-table/received-set snapshot from a prior
	// session, supplied when attempting clean_start=false resumption.
	Resume *SessionSnapshot
}

// Will describes an MQTT Last Will and Testament.
type Will struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retain     bool
	Properties *packets.Properties
}

// SessionSnapshot is everything the engine needs to resume a session:
// the outstanding-packet table and the QoS-2 received-identifier set,
// normally loaded from a mqttstore.SessionStore by the host binding.
type SessionSnapshot struct {
	Outstanding  []OutstandingEntry
	ReceivedQoS2 []uint16
	NextID       uint16
}

// HandleConnect builds and emits the CONNECT packet, entering
// Connecting. It is the only way to leave Idle.
func (e *Engine) HandleConnect(now Instant, req ConnectRequest) (Action, error) {
	if e.state != StateIdle {
		return nil, fmt.Errorf("engine: HandleConnect called in state %s, want Idle", e.state)
	}

	e.clientID = req.ClientID
	e.cleanStart = req.CleanStart
	e.keepAlive = req.KeepAlive
	e.lastSend = now
	if req.ReceiveMaximum != 0 {
		e.ourReceiveMaximum = req.ReceiveMaximum
	}

	if req.Resume != nil {
		e.ids.cursor = req.Resume.NextID
		for _, entry := range req.Resume.Outstanding {
			e.outstanding.insert(entry.ID, entry.Packet)
		}
		for _, id := range req.Resume.ReceivedQoS2 {
			e.receivedQoS2[id] = struct{}{}
		}
	}

	props := &packets.Properties{}
	if req.ReceiveMaximum != 0 {
		props.Presence |= packets.PresReceiveMaximum
		props.ReceiveMaximum = req.ReceiveMaximum
	}
	if req.TopicAliasMaximum != 0 {
		props.Presence |= packets.PresTopicAliasMaximum
		props.TopicAliasMaximum = req.TopicAliasMaximum
	}
	if req.MaximumPacketSize != 0 {
		props.Presence |= packets.PresMaximumPacketSize
		props.MaximumPacketSize = req.MaximumPacketSize
	}
	if !req.CleanStart || req.SessionExpiry != 0 {
		props.Presence |= packets.PresSessionExpiryInterval
		props.SessionExpiryInterval = req.SessionExpiry
	}
	if req.AuthenticationMethod != "" {
		props.Presence |= packets.PresAuthenticationMethod
		props.AuthenticationMethod = req.AuthenticationMethod
	}
	if len(req.AuthenticationData) > 0 {
		props.Presence |= packets.PresAuthenticationData
		props.AuthenticationData = req.AuthenticationData
	}
	props.UserProperties = req.UserProperties

	pkt := &packets.ConnectPacket{
		CleanStart:   req.CleanStart,
		KeepAlive:    req.KeepAlive,
		ClientID:     req.ClientID,
		UsernameFlag: req.Username != "",
		Username:     req.Username,
		PasswordFlag: req.HasAuth,
		Password:     req.Password,
		Properties:   props,
	}
	if req.Will != nil {
		pkt.WillFlag = true
		pkt.WillQoS = req.Will.QoS
		pkt.WillRetain = req.Will.Retain
		pkt.WillTopic = req.Will.Topic
		pkt.WillMessage = req.Will.Payload
		pkt.WillProperties = req.Will.Properties
	}

	e.state = StateConnecting
	e.lastSend = now
	return SendPacket{Packet: pkt}, nil
}

// HandlePacket parses one already-decoded inbound packet and returns
// the actions it produces.
func (e *Engine) HandlePacket(now Instant, pkt packets.Packet) ([]Action, error) {
	switch p := pkt.(type) {
	case *packets.ConnackPacket:
		return e.handleConnack(now, p)
	case *packets.AuthPacket:
		return e.handleAuth(now, p)
	case *packets.PublishPacket:
		return e.handlePublish(now, p)
	case *packets.PubackPacket:
		return e.handlePuback(p)
	case *packets.PubrecPacket:
		return e.handlePubrec(p)
	case *packets.PubrelPacket:
		return e.handlePubrel(p)
	case *packets.PubcompPacket:
		return e.handlePubcomp(p)
	case *packets.SubackPacket:
		return e.handleSuback(p)
	case *packets.UnsubackPacket:
		return e.handleUnsuback(p)
	case *packets.PingrespPacket:
		e.pingOutstanding = false
		return nil, nil
	case *packets.DisconnectPacket:
		return e.handleDisconnect(p)
	default:
		return nil, e.protocolViolation(fmt.Sprintf("unexpected packet type %T in state %s", pkt, e.state))
	}
}

func (e *Engine) handleConnack(now Instant, p *packets.ConnackPacket) ([]Action, error) {
	if e.state != StateConnecting && e.state != StateAuthenticating {
		return nil, e.protocolViolation("CONNACK received outside Connecting")
	}

	if p.ReasonCode != 0 {
		e.state = StateDisconnected
		return []Action{DisconnectAction{Reason: DisconnectReason(p.ReasonCode)}}, nil
	}

	if p.SessionPresent && e.cleanStart {
		e.state = StateDisconnected
		return []Action{DisconnectAction{Reason: ReasonProtocolError}}, &ProtocolViolationError{
			Reason: "server reported session_present=true after clean_start request",
		}
	}

	e.applyServerProperties(p.Properties)
	e.conn.SessionPresent = p.SessionPresent
	e.state = StateConnected
	e.lastSend = now

	var actions []Action
	if !e.cleanStart && p.SessionPresent {
		actions = append(actions, e.replayOutstanding()...)
	}
	return actions, nil
}

func (e *Engine) applyServerProperties(props *packets.Properties) {
	if props == nil {
		return
	}
	if props.Presence&packets.PresReceiveMaximum != 0 {
		e.conn.ReceiveMaximum = props.ReceiveMaximum
	} else {
		e.conn.ReceiveMaximum = 65535
	}
	if props.Presence&packets.PresMaximumQoS != 0 {
		e.conn.MaximumQoS = props.MaximumQoS
	} else {
		e.conn.MaximumQoS = 2
	}
	e.conn.RetainAvailable = !(props.Presence&packets.PresRetainAvailable != 0) || props.RetainAvailable
	if props.Presence&packets.PresTopicAliasMaximum != 0 {
		e.conn.TopicAliasMaximum = props.TopicAliasMaximum
	}
	if props.Presence&packets.PresMaximumPacketSize != 0 {
		e.conn.MaximumPacketSize = props.MaximumPacketSize
	}
	if props.Presence&packets.PresServerKeepAlive != 0 {
		e.keepAlive = props.ServerKeepAlive
	}
	e.conn.KeepAlive = e.keepAlive
}

// replayOutstanding re-emits every stored entry in send order with
// duplicate=true for publishes.
func (e *Engine) replayOutstanding() []Action {
	actions := make([]Action, 0, len(e.outstanding.order))
	for _, entry := range e.outstanding.inSendOrder() {
		switch pkt := entry.(type) {
		case *packets.PublishPacket:
			dup := *pkt
			dup.Dup = true
			actions = append(actions, SendPacket{Packet: &dup})
		case *packets.PubrelPacket:
			actions = append(actions, SendPacket{Packet: pkt})
		}
	}
	return actions
}

func (e *Engine) handleDisconnect(p *packets.DisconnectPacket) ([]Action, error) {
	e.state = StateDisconnected
	return []Action{DisconnectAction{Reason: DisconnectReason(p.ReasonCode), FromPeer: true}}, nil
}

// protocolViolation transitions to Disconnected and returns the error
// the caller should surface.
func (e *Engine) protocolViolation(reason string) error {
	e.state = StateDisconnected
	return &ProtocolViolationError{Reason: reason}
}

// Poll drains the next deferred action (keep-alive ping, watchdog
// timeout) due at or before now. It never blocks; it is a pure query
// over state the engine already tracks.
func (e *Engine) Poll(now Instant) (Action, bool) {
	if len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]
		return next, true
	}

	if e.state != StateConnected || e.keepAlive == 0 {
		return nil, false
	}

	pingInterval := Instant(float64(e.keepAlive) * 0.8)
	timeoutWindow := Instant(float64(e.keepAlive) * 0.5)

	if e.pingOutstanding {
		if now-e.pingSentAt >= timeoutWindow {
			e.state = StateDisconnected
			return DisconnectAction{Reason: ReasonKeepAliveTimeout}, true
		}
		return nil, false
	}

	if now-e.lastSend >= pingInterval {
		e.pingOutstanding = true
		e.pingSentAt = now
		e.lastSend = now
		return SendPacket{Packet: &packets.PingreqPacket{}}, true
	}
	return nil, false
}

// NoteSend records that the host binding sent a packet, so the
// keep-alive idle timer resets (every outbound packet counts, not just
// PINGREQ).
func (e *Engine) NoteSend(now Instant) { e.lastSend = now }
