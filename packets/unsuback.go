package packets

import (
	"encoding/binary"
	"io"
)

// UnsubackPacket represents an MQTT UNSUBACK control packet.
type UnsubackPacket struct {
	PacketID    uint16
	ReasonCodes []uint8
	Properties  *Properties
}

func (p *UnsubackPacket) Type() uint8 { return UNSUBACK }

func (p *UnsubackPacket) Encode(dst []byte) []byte {
	propsBuf := appendProperties(nil, p.Properties)

	header := FixedHeader{PacketType: UNSUBACK, RemainingLength: 2 + len(propsBuf) + len(p.ReasonCodes)}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	dst = append(dst, propsBuf...)
	dst = append(dst, p.ReasonCodes...)
	return dst
}

func (p *UnsubackPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeUnsuback decodes an UNSUBACK packet's variable header and
// payload from buf.
func DecodeUnsuback(buf []byte) (*UnsubackPacket, error) {
	if len(buf) < 2 {
		return nil, incomplete(2 - len(buf))
	}
	pkt := &UnsubackPacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	offset := 2

	props, n, err := decodeProperties(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset >= len(buf) {
		return nil, malformed("UNSUBACK payload must contain at least one reason code")
	}
	pkt.ReasonCodes = make([]uint8, len(buf)-offset)
	copy(pkt.ReasonCodes, buf[offset:])

	return pkt, nil
}
