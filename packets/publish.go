package packets

import (
	"encoding/binary"
	"io"
)

// PublishPacket represents an MQTT PUBLISH control packet.
type PublishPacket struct {
	Dup    bool
	QoS    uint8
	Retain bool

	Topic    string
	PacketID uint16 // present only if QoS > 0

	Payload []byte

	Properties *Properties
}

func (p *PublishPacket) Type() uint8 { return PUBLISH }

func (p *PublishPacket) Encode(dst []byte) []byte {
	propsBuf := appendProperties(nil, p.Properties)

	variableHeaderLen := 2 + len(p.Topic) + len(propsBuf)
	if p.QoS > 0 {
		variableHeaderLen += 2
	}
	remainingLength := variableHeaderLen + len(p.Payload)

	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	header := FixedHeader{PacketType: PUBLISH, Flags: flags, RemainingLength: remainingLength}
	dst = header.appendBytes(dst)
	dst = appendString(dst, p.Topic)
	if p.QoS > 0 {
		dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	}
	dst = append(dst, propsBuf...)
	dst = append(dst, p.Payload...)
	return dst
}

func (p *PublishPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodePublish decodes a PUBLISH packet's variable header and payload
// from buf, using the QoS/Dup/Retain bits already extracted from the
// fixed header's flags nibble.
func DecodePublish(buf []byte, flags uint8) (*PublishPacket, error) {
	pkt := &PublishPacket{
		Dup:    flags&0x08 != 0,
		QoS:    (flags >> 1) & 0x03,
		Retain: flags&0x01 != 0,
	}
	if pkt.QoS > 2 {
		return nil, malformed("invalid PUBLISH QoS %d", pkt.QoS)
	}
	if pkt.QoS == 0 && pkt.Dup {
		return nil, malformed("DUP set on QoS 0 PUBLISH")
	}

	topic, n, err := decodeString(buf)
	if err != nil {
		return nil, err
	}
	pkt.Topic = topic
	offset := n

	if pkt.QoS > 0 {
		if len(buf) < offset+2 {
			return nil, incomplete(offset + 2 - len(buf))
		}
		pkt.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
		offset += 2
	}

	props, nProps, err := decodeProperties(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += nProps

	payload := make([]byte, len(buf)-offset)
	copy(payload, buf[offset:])
	pkt.Payload = payload

	return pkt, nil
}
