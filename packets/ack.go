package packets

import "encoding/binary"

// simpleAck is the shared shape of PUBACK, PUBREC, PUBREL and PUBCOMP:
// a packet identifier, and a reason code + properties that may be
// omitted entirely when the reason code is Success and there are no
// properties (§3.4.2.1 and siblings).
type simpleAck struct {
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
}

func (a *simpleAck) encode(dst []byte, packetType, flags uint8) []byte {
	omit := a.ReasonCode == 0 && a.Properties == nil

	variableHeaderLen := 2
	var propsBuf []byte
	if !omit {
		propsBuf = appendProperties(nil, a.Properties)
		variableHeaderLen += 1 + len(propsBuf)
	}

	header := FixedHeader{PacketType: packetType, Flags: flags, RemainingLength: variableHeaderLen}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, a.PacketID)
	if !omit {
		dst = append(dst, a.ReasonCode)
		dst = append(dst, propsBuf...)
	}
	return dst
}

func decodeSimpleAck(buf []byte) (simpleAck, error) {
	if len(buf) < 2 {
		return simpleAck{}, incomplete(2 - len(buf))
	}
	a := simpleAck{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	if len(buf) == 2 {
		return a, nil
	}
	a.ReasonCode = buf[2]
	if len(buf) > 3 {
		props, _, err := decodeProperties(buf[3:])
		if err != nil {
			return simpleAck{}, err
		}
		a.Properties = props
	}
	return a, nil
}
