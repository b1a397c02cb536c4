package packets

import "io"

// ConnackPacket represents an MQTT v5.0 CONNACK control packet.
type ConnackPacket struct {
	SessionPresent bool
	ReasonCode     uint8
	Properties     *Properties
}

func (p *ConnackPacket) Type() uint8 { return CONNACK }

func (p *ConnackPacket) Encode(dst []byte) []byte {
	var ackFlags uint8
	if p.SessionPresent {
		ackFlags = 0x01
	}

	propsBuf := appendProperties(nil, p.Properties)
	header := FixedHeader{PacketType: CONNACK, RemainingLength: 2 + len(propsBuf)}
	dst = header.appendBytes(dst)
	dst = append(dst, ackFlags, p.ReasonCode)
	dst = append(dst, propsBuf...)
	return dst
}

func (p *ConnackPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeConnack decodes a CONNACK packet's variable header from buf.
func DecodeConnack(buf []byte) (*ConnackPacket, error) {
	if len(buf) < 2 {
		return nil, incomplete(2 - len(buf))
	}
	ackFlags := buf[0]
	if ackFlags&0xFE != 0 {
		return nil, malformed("CONNACK reserved ack flag bits must be 0")
	}

	pkt := &ConnackPacket{
		SessionPresent: ackFlags&0x01 != 0,
		ReasonCode:     buf[1],
	}

	props, _, err := decodeProperties(buf[2:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	return pkt, nil
}
