package engine

import (
	"fmt"

	"github.com/windtalker/mqtt5engine/packets"
)

// PublishRequest configures Publish.
type PublishRequest struct {
	Topic      string
	Payload    []byte
	QoS        uint8
	Retain     bool
	Properties *packets.Properties

	// UseAlias asks the engine to apply sender-side topic alias
	// optimization when the server has advertised a non-zero
	// TopicAliasMaximum.
	UseAlias bool
}

// Publish builds an outbound PUBLISH. QoS 0 messages are fire-and-
// forget and return only a SendPacket action; QoS 1/2 messages are
// also recorded in the outstanding table and return a StorePacket
// action alongside the send so the host can persist them before the
// socket write.
func (e *Engine) Publish(req PublishRequest) ([]Action, error) {
	if e.state != StateConnected {
		return nil, fmt.Errorf("engine: Publish called in state %s, want Connected", e.state)
	}

	pkt := &packets.PublishPacket{
		Topic:      req.Topic,
		QoS:        req.QoS,
		Retain:     req.Retain,
		Payload:    req.Payload,
		Properties: req.Properties,
	}

	if req.UseAlias {
		e.applySenderAlias(pkt)
	}

	if req.QoS == 0 {
		return []Action{SendPacket{Packet: pkt}}, nil
	}

	id, err := e.ids.allocate(func(id uint16) bool {
		if e.outstanding.exists(id) {
			return true
		}
		_, pending := e.pendingAcks[id]
		return pending
	})
	if err != nil {
		return nil, err
	}
	pkt.PacketID = id
	e.outstanding.insert(id, pkt)
	return []Action{StorePacket{ID: id, Packet: pkt}, SendPacket{Packet: pkt}}, nil
}

// applySenderAlias performs sender-side alias assignment: the first
// publish to a topic registers an alias and sends both topic and
// alias; subsequent publishes to the same topic send alias only. It
// is a no-op once the server's advertised alias budget is exhausted.
func (e *Engine) applySenderAlias(pkt *packets.PublishPacket) {
	maxAlias := e.conn.TopicAliasMaximum
	if maxAlias == 0 {
		return
	}

	if alias, exists := e.senderAliases[pkt.Topic]; exists {
		ensureProps(pkt)
		pkt.Properties.Presence |= packets.PresTopicAlias
		pkt.Properties.TopicAlias = alias
		pkt.Topic = ""
		return
	}

	if e.nextSenderAlias >= maxAlias {
		return
	}
	e.nextSenderAlias++
	alias := e.nextSenderAlias
	e.senderAliases[pkt.Topic] = alias

	ensureProps(pkt)
	pkt.Properties.Presence |= packets.PresTopicAlias
	pkt.Properties.TopicAlias = alias
}

func ensureProps(pkt *packets.PublishPacket) {
	if pkt.Properties == nil {
		pkt.Properties = &packets.Properties{}
	}
}

// handlePublish processes an inbound PUBLISH: resolves or records a
// topic alias, enforces the receive-maximum budget this engine
// advertised, deduplicates QoS 2 redelivery, and queues the matching
// ack.
func (e *Engine) handlePublish(now Instant, p *packets.PublishPacket) ([]Action, error) {
	if e.state != StateConnected {
		return nil, e.protocolViolation("PUBLISH received outside Connected")
	}

	if p.Properties != nil && p.Properties.Presence&packets.PresTopicAlias != 0 {
		alias := p.Properties.TopicAlias
		if p.Topic == "" {
			topic, known := e.receiverAliases[alias]
			if !known {
				e.state = StateDisconnected
				return []Action{DisconnectAction{Reason: ReasonTopicAliasInvalid}}, &ProtocolViolationError{
					Reason: "unknown topic alias referenced with empty topic",
				}
			}
			p.Topic = topic
		} else {
			e.receiverAliases[alias] = p.Topic
		}
	}

	var actions []Action

	if p.QoS > 0 {
		if _, tracked := e.inboundUnacked[p.PacketID]; !tracked {
			if len(e.inboundUnacked) >= int(e.ourReceiveMaximum) {
				e.state = StateDisconnected
				return []Action{DisconnectAction{Reason: ReasonReceiveMaximumExceed}}, &ProtocolViolationError{
					Reason: "peer exceeded advertised receive maximum",
				}
			}
			e.inboundUnacked[p.PacketID] = struct{}{}
		}
	}

	if p.QoS == 2 {
		if _, dup := e.receivedQoS2[p.PacketID]; dup {
			return append(actions, SendPacket{Packet: &packets.PubrecPacket{PacketID: p.PacketID}}), nil
		}
		e.receivedQoS2[p.PacketID] = struct{}{}
	}

	actions = append(actions, ReceivedPublish{Publish: p})

	switch p.QoS {
	case 1:
		delete(e.inboundUnacked, p.PacketID)
		actions = append(actions, SendPacket{Packet: &packets.PubackPacket{PacketID: p.PacketID}})
	case 2:
		actions = append(actions, SendPacket{Packet: &packets.PubrecPacket{PacketID: p.PacketID}})
	}
	return actions, nil
}

func (e *Engine) handlePuback(p *packets.PubackPacket) ([]Action, error) {
	if !e.outstanding.exists(p.PacketID) {
		// Duplicate PUBACK for an already-released id; dropped silently.
		return nil, nil
	}
	e.outstanding.remove(p.PacketID)
	rel := ReleasePacket{ID: p.PacketID}
	if isFailureCode(p.ReasonCode) {
		rel.Err = &ReasonCodeError{Reason: DisconnectReason(p.ReasonCode)}
	}
	return []Action{rel}, nil
}

// handlePubrec is the QoS 2 sender's second step: the stored PUBLISH
// is replaced with a PUBREL, which the engine must persist before
// sending (the exchange is not complete until PUBCOMP arrives).
func (e *Engine) handlePubrec(p *packets.PubrecPacket) ([]Action, error) {
	if !e.outstanding.exists(p.PacketID) {
		return nil, e.protocolViolation(fmt.Sprintf("PUBREC for unknown packet id %d", p.PacketID))
	}
	if isFailureCode(p.ReasonCode) {
		e.outstanding.remove(p.PacketID)
		return []Action{ReleasePacket{ID: p.PacketID, Err: &ReasonCodeError{Reason: DisconnectReason(p.ReasonCode)}}}, nil
	}
	rel := &packets.PubrelPacket{PacketID: p.PacketID}
	e.outstanding.update(p.PacketID, rel)
	return []Action{StorePacket{ID: p.PacketID, Packet: rel}, SendPacket{Packet: rel}}, nil
}

// handlePubrel is the QoS 2 receiver's second step: drop the
// duplicate-suppression record and acknowledge with PUBCOMP.
func (e *Engine) handlePubrel(p *packets.PubrelPacket) ([]Action, error) {
	delete(e.receivedQoS2, p.PacketID)
	delete(e.inboundUnacked, p.PacketID)
	return []Action{SendPacket{Packet: &packets.PubcompPacket{PacketID: p.PacketID}}}, nil
}

func (e *Engine) handlePubcomp(p *packets.PubcompPacket) ([]Action, error) {
	if !e.outstanding.exists(p.PacketID) {
		return nil, e.protocolViolation(fmt.Sprintf("PUBCOMP for unknown packet id %d", p.PacketID))
	}
	e.outstanding.remove(p.PacketID)
	return []Action{ReleasePacket{ID: p.PacketID}}, nil
}

// SubscribeRequest configures Subscribe.
type SubscribeRequest struct {
	Subscriptions []packets.SubscriptionRequest
	Properties    *packets.Properties
}

// Subscribe builds and sends a SUBSCRIBE, allocating a packet
// identifier from the same namespace as outstanding publishes.
func (e *Engine) Subscribe(req SubscribeRequest) (Action, error) {
	if e.state != StateConnected {
		return nil, fmt.Errorf("engine: Subscribe called in state %s, want Connected", e.state)
	}
	id, err := e.allocatePendingID()
	if err != nil {
		return nil, err
	}
	pkt := &packets.SubscribePacket{PacketID: id, Subscriptions: req.Subscriptions, Properties: req.Properties}
	return SendPacket{Packet: pkt}, nil
}

// UnsubscribeRequest configures Unsubscribe.
type UnsubscribeRequest struct {
	Topics     []string
	Properties *packets.Properties
}

func (e *Engine) Unsubscribe(req UnsubscribeRequest) (Action, error) {
	if e.state != StateConnected {
		return nil, fmt.Errorf("engine: Unsubscribe called in state %s, want Connected", e.state)
	}
	id, err := e.allocatePendingID()
	if err != nil {
		return nil, err
	}
	pkt := &packets.UnsubscribePacket{PacketID: id, Topics: req.Topics, Properties: req.Properties}
	return SendPacket{Packet: pkt}, nil
}

func (e *Engine) allocatePendingID() (uint16, error) {
	id, err := e.ids.allocate(func(id uint16) bool {
		if e.outstanding.exists(id) {
			return true
		}
		_, pending := e.pendingAcks[id]
		return pending
	})
	if err != nil {
		return 0, err
	}
	e.pendingAcks[id] = struct{}{}
	return id, nil
}

func (e *Engine) handleSuback(p *packets.SubackPacket) ([]Action, error) {
	if _, ok := e.pendingAcks[p.PacketID]; !ok {
		return nil, e.protocolViolation(fmt.Sprintf("SUBACK for unknown packet id %d", p.PacketID))
	}
	delete(e.pendingAcks, p.PacketID)
	return nil, nil
}

func (e *Engine) handleUnsuback(p *packets.UnsubackPacket) ([]Action, error) {
	if _, ok := e.pendingAcks[p.PacketID]; !ok {
		return nil, e.protocolViolation(fmt.Sprintf("UNSUBACK for unknown packet id %d", p.PacketID))
	}
	delete(e.pendingAcks, p.PacketID)
	return nil, nil
}

// handleAuth processes a server AUTH challenge during re-authentication
// or an extended CONNECT exchange, delegating the challenge/response
// content to the configured Authenticator.
func (e *Engine) handleAuth(now Instant, p *packets.AuthPacket) ([]Action, error) {
	if e.authenticator == nil {
		return nil, e.protocolViolation("AUTH received but no Authenticator configured")
	}

	switch p.ReasonCode {
	case packets.AuthReasonSuccess:
		if e.state == StateAuthenticating {
			e.state = StateConnected
		}
		return nil, nil
	case packets.AuthReasonContinue, packets.AuthReasonReauthenticate:
		e.state = StateAuthenticating
		reply, err := e.authenticator.Next(p)
		if err != nil {
			e.state = StateDisconnected
			return []Action{DisconnectAction{Reason: ReasonNotAuthorized}}, err
		}
		e.lastSend = now
		return []Action{SendPacket{Packet: reply}}, nil
	default:
		return nil, e.protocolViolation(fmt.Sprintf("AUTH with unexpected reason code 0x%02X", p.ReasonCode))
	}
}
