package engine

import "github.com/windtalker/mqtt5engine/packets"

// Action is one instruction the engine hands back to its host binding
// after HandleConnect, HandlePacket, Publish/Subscribe or Poll. The
// host performs exactly the described side effect; the engine itself
// never touches a socket or a clock.
type Action interface {
	isAction()
}

// SendPacket asks the host to write Packet to the wire.
type SendPacket struct {
	Packet packets.Packet
}

func (SendPacket) isAction() {}

// StorePacket asks the host to persist Packet, keyed by ID, in the
// outstanding-packet table — a QoS>=1 publish or the Pubrel that
// replaces it.
type StorePacket struct {
	ID     uint16
	Packet packets.Packet
}

func (StorePacket) isAction() {}

// ReleasePacket asks the host to drop the outstanding-table entry for
// ID: its delivery handshake is complete. Err is non-nil when the peer
// refused the publish with a failure reason code; the session itself
// stays intact either way.
type ReleasePacket struct {
	ID  uint16
	Err error
}

func (ReleasePacket) isAction() {}

// ReceivedPublish delivers an inbound PUBLISH (already deduplicated
// and alias-resolved) to the application.
type ReceivedPublish struct {
	Publish *packets.PublishPacket
}

func (ReceivedPublish) isAction() {}

// ScheduleWakeup asks the host to call Poll again no later than At.
type ScheduleWakeup struct {
	At Instant
}

func (ScheduleWakeup) isAction() {}

// DisconnectAction asks the host to tear down the transport. FromPeer
// is set when the server initiated the disconnect (a DISCONNECT
// packet was received) rather than the engine itself (keep-alive
// timeout, protocol violation).
type DisconnectAction struct {
	Reason   DisconnectReason
	FromPeer bool
}

func (DisconnectAction) isAction() {}

// OutstandingEntry is one row of the outstanding-packet table, as
// exposed for session snapshotting.
type OutstandingEntry struct {
	ID     uint16
	Packet packets.Packet
}
