package engine

import "github.com/windtalker/mqtt5engine/packets"

// outstandingTable is the in-flight publish/release bookkeeping for
// QoS 1 and QoS 2 sends: every entry is either a stored PublishPacket
// awaiting its ack, or a PubrelPacket awaiting PUBCOMP once the
// matching PUBREC has arrived.
//
// order and byID are kept in lockstep: len(order) == len(byID), and
// every id in order is a key of byID. insert/update/remove are the
// only mutators and each preserves that invariant; checkCoherence
// re-verifies it and is exercised directly by tests rather than run on
// every call.
type outstandingTable struct {
	order []uint16
	byID  map[uint16]packets.Packet
}

func (t *outstandingTable) insert(id uint16, pkt packets.Packet) {
	if t.byID == nil {
		t.byID = make(map[uint16]packets.Packet)
	}
	if _, exists := t.byID[id]; !exists {
		t.order = append(t.order, id)
	}
	t.byID[id] = pkt
}

// update replaces the stored packet for id without disturbing its
// position in send order (the QoS 2 sender's Publish-to-Pubrel swap on
// PUBREC).
func (t *outstandingTable) update(id uint16, pkt packets.Packet) {
	if _, exists := t.byID[id]; exists {
		t.byID[id] = pkt
	}
}

func (t *outstandingTable) remove(id uint16) {
	if _, exists := t.byID[id]; !exists {
		return
	}
	delete(t.byID, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *outstandingTable) exists(id uint16) bool {
	_, ok := t.byID[id]
	return ok
}

func (t *outstandingTable) len() int { return len(t.order) }

// inSendOrder returns the stored packets in the order they were first
// inserted, for replay on reconnect.
func (t *outstandingTable) inSendOrder() []packets.Packet {
	out := make([]packets.Packet, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// checkCoherence reports whether order and byID still agree: same
// cardinality, and every id in order present as a byID key. It exists
// for tests to assert the invariant after a sequence of mutations, not
// for use on a hot path.
func (t *outstandingTable) checkCoherence() bool {
	if len(t.order) != len(t.byID) {
		return false
	}
	for _, id := range t.order {
		if _, ok := t.byID[id]; !ok {
			return false
		}
	}
	return true
}
