//go:build mqttdebug

package packets

import (
	"bytes"
	"fmt"
)

// debugCheckRoundTrip re-parses every packet written through WriteTo
// and panics if the result does not serialize back to the identical
// bytes, or if the length disagrees with BinarySize. Compiled in only
// under the mqttdebug build tag; release builds get the no-op version.
func debugCheckRoundTrip(p Packet, encoded []byte) {
	if size := BinarySize(p); size != len(encoded) {
		panic(fmt.Sprintf("packets: BinarySize predicted %d bytes for %s, Encode produced %d", size, PacketNames[p.Type()], len(encoded)))
	}
	reparsed, err := ReadPacket(bytes.NewReader(encoded), 0)
	if err != nil {
		panic(fmt.Sprintf("packets: serialized %s failed to re-parse: %v", PacketNames[p.Type()], err))
	}
	if !bytes.Equal(reparsed.Encode(nil), encoded) {
		panic(fmt.Sprintf("packets: %s did not survive a serialize/parse round trip", PacketNames[p.Type()]))
	}
}
