package packets

import "io"

// PubrecPacket is the first step of the QoS 2 handshake, acknowledging
// receipt of a PUBLISH.
type PubrecPacket struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *PubrecPacket) Type() uint8 { return PUBREC }

func (p *PubrecPacket) Encode(dst []byte) []byte {
	a := simpleAck{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Properties: p.Properties}
	return a.encode(dst, PUBREC, 0)
}

func (p *PubrecPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodePubrec decodes a PUBREC packet's variable header from buf.
func DecodePubrec(buf []byte) (*PubrecPacket, error) {
	a, err := decodeSimpleAck(buf)
	if err != nil {
		return nil, err
	}
	return &PubrecPacket{PacketID: a.PacketID, ReasonCode: a.ReasonCode, Properties: a.Properties}, nil
}
