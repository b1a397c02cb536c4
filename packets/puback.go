package packets

import "io"

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *PubackPacket) Type() uint8 { return PUBACK }

func (p *PubackPacket) Encode(dst []byte) []byte {
	a := simpleAck{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Properties: p.Properties}
	return a.encode(dst, PUBACK, 0)
}

func (p *PubackPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodePuback decodes a PUBACK packet's variable header from buf.
func DecodePuback(buf []byte) (*PubackPacket, error) {
	a, err := decodeSimpleAck(buf)
	if err != nil {
		return nil, err
	}
	return &PubackPacket{PacketID: a.PacketID, ReasonCode: a.ReasonCode, Properties: a.Properties}, nil
}
