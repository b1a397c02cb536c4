package packets

import "io"

// Packet is the interface implemented by all sixteen MQTT v5.0
// control packets.
type Packet interface {
	// Type returns the MQTT control packet type (CONNECT, PUBLISH, ...).
	Type() uint8

	// Encode appends the packet's wire encoding to dst and returns the
	// extended slice.
	Encode(dst []byte) []byte

	// WriteTo writes the packet to w using a pooled buffer.
	WriteTo(w io.Writer) (int64, error)
}

// BinarySize returns the number of bytes Encode(nil) would produce,
// by encoding the packet into a fresh buffer. Used to assert the round-trip
// length guarantee in §4.1.
func BinarySize(p Packet) int {
	return len(p.Encode(nil))
}

func writeViaEncode(p Packet, w io.Writer) (int64, error) {
	bufPtr := GetBuffer(4096)
	defer PutBuffer(bufPtr)

	data := p.Encode((*bufPtr)[:0])
	debugCheckRoundTrip(p, data)
	n, err := w.Write(data)
	return int64(n), err
}
