package packets

import "io"

// PubcompPacket is the final step of the QoS 2 handshake, acknowledging
// a PUBREL.
type PubcompPacket struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (p *PubcompPacket) Type() uint8 { return PUBCOMP }

func (p *PubcompPacket) Encode(dst []byte) []byte {
	a := simpleAck{PacketID: p.PacketID, ReasonCode: p.ReasonCode, Properties: p.Properties}
	return a.encode(dst, PUBCOMP, 0)
}

func (p *PubcompPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodePubcomp decodes a PUBCOMP packet's variable header from buf.
func DecodePubcomp(buf []byte) (*PubcompPacket, error) {
	a, err := decodeSimpleAck(buf)
	if err != nil {
		return nil, err
	}
	return &PubcompPacket{PacketID: a.PacketID, ReasonCode: a.ReasonCode, Properties: a.Properties}, nil
}
