// Package mqttstore persists session state across process restarts:
// the outstanding-packet table and the QoS 2 received-identifier set
// an engine.Engine needs to resume a session with clean_start=false.
//
// The host client loads this state on every connect with
// clean_start=false, automatic reconnects included, since each
// connection attempt starts from a fresh engine.
package mqttstore

import "github.com/windtalker/mqtt5engine/packets"

// SessionStore is the persistence plug-in point for a resumable
// session. Save/Delete calls are made from whichever goroutine performs
// the engine's actions (the client's logic goroutine, or an application
// goroutine inside Publish) and may be handled asynchronously by an
// implementation;
// Load calls must complete synchronously since they gate reconnection.
type SessionStore interface {
	// SaveOutstanding persists an in-flight publish or pubrel, keyed by
	// packet identifier. Called when the packet is sent.
	SaveOutstanding(id uint16, pkt packets.Packet) error
	// DeleteOutstanding removes a completed exchange. Called on
	// PUBACK (QoS 1) or PUBCOMP (QoS 2).
	DeleteOutstanding(id uint16) error
	// LoadOutstanding returns every still-pending entry, in the order
	// they were originally sent.
	LoadOutstanding() ([]OutstandingEntry, error)
	// ClearOutstanding drops all entries.
	ClearOutstanding() error

	// SaveReceivedQoS2 records a QoS 2 packet id as delivered, so a
	// retransmitted duplicate is suppressed after a restart.
	SaveReceivedQoS2(id uint16) error
	// DeleteReceivedQoS2 removes the record once PUBREL completes
	// the handshake.
	DeleteReceivedQoS2(id uint16) error
	// LoadReceivedQoS2 returns every recorded identifier.
	LoadReceivedQoS2() ([]uint16, error)
	// ClearReceivedQoS2 drops all entries.
	ClearReceivedQoS2() error

	// SaveNextID persists the packet-identifier cursor.
	SaveNextID(id uint16) error
	// LoadNextID returns the persisted cursor, or 0 if none is stored.
	LoadNextID() (uint16, error)

	// Clear removes all session state. The host client calls it when
	// the server reports session_present=false.
	Clear() error
}

// OutstandingEntry is one persisted row of the outstanding table.
type OutstandingEntry struct {
	ID     uint16
	Packet packets.Packet
}
