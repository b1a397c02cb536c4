package packets

import (
	"encoding/binary"
	"io"
)

// UnsubscribePacket represents an MQTT UNSUBSCRIBE control packet.
// Its fixed header flags are always 0x02.
type UnsubscribePacket struct {
	PacketID   uint16
	Topics     []string
	Properties *Properties
}

func (p *UnsubscribePacket) Type() uint8 { return UNSUBSCRIBE }

func (p *UnsubscribePacket) Encode(dst []byte) []byte {
	propsBuf := appendProperties(nil, p.Properties)

	payloadLen := 0
	for _, t := range p.Topics {
		payloadLen += 2 + len(t)
	}

	header := FixedHeader{
		PacketType:      UNSUBSCRIBE,
		Flags:           flagsUnsubscribe,
		RemainingLength: 2 + len(propsBuf) + payloadLen,
	}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	dst = append(dst, propsBuf...)
	for _, t := range p.Topics {
		dst = appendString(dst, t)
	}
	return dst
}

func (p *UnsubscribePacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeUnsubscribe decodes an UNSUBSCRIBE packet's variable header and
// payload from buf.
func DecodeUnsubscribe(buf []byte) (*UnsubscribePacket, error) {
	if len(buf) < 2 {
		return nil, incomplete(2 - len(buf))
	}
	pkt := &UnsubscribePacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	offset := 2

	props, n, err := decodeProperties(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset >= len(buf) {
		return nil, malformed("UNSUBSCRIBE payload must contain at least one topic filter")
	}
	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		offset += n
		pkt.Topics = append(pkt.Topics, topic)
	}

	return pkt, nil
}
