package packets

import "io"

// PubrelPacket is the second step of the QoS 2 handshake. Its fixed
// header flags are always 0x02 (§3.6.1).
type PubrelPacket struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *PubrelPacket) Type() uint8 { return PUBREL }

func (p *PubrelPacket) Encode(dst []byte) []byte {
	a := simpleAck{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Properties: p.Properties}
	return a.encode(dst, PUBREL, flagsPubrel)
}

func (p *PubrelPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodePubrel decodes a PUBREL packet's variable header from buf.
// flags is checked by the caller against flagsPubrel.
func DecodePubrel(buf []byte) (*PubrelPacket, error) {
	a, err := decodeSimpleAck(buf)
	if err != nil {
		return nil, err
	}
	return &PubrelPacket{PacketID: a.PacketID, ReasonCode: a.ReasonCode, Properties: a.Properties}, nil
}
