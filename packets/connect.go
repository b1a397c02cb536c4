package packets

import "io"

// ConnectPacket represents an MQTT v5.0 CONNECT control packet.
type ConnectPacket struct {
	CleanStart bool

	WillFlag       bool
	WillQoS        uint8
	WillRetain     bool
	WillTopic      string
	WillMessage    []byte
	WillProperties *Properties

	UsernameFlag bool
	Username     string
	PasswordFlag bool
	Password     string

	KeepAlive uint16
	ClientID  string

	Properties *Properties
}

func (p *ConnectPacket) Type() uint8 { return CONNECT }

func (p *ConnectPacket) Encode(dst []byte) []byte {
	var flags uint8
	if p.CleanStart {
		flags |= 0x02
	}
	if p.WillFlag {
		flags |= 0x04
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.PasswordFlag {
		flags |= 0x40
	}
	if p.UsernameFlag {
		flags |= 0x80
	}

	var vh []byte
	vh = appendString(vh, "MQTT")
	vh = append(vh, 5) // protocol level
	vh = append(vh, flags)
	vh = append(vh, byte(p.KeepAlive>>8), byte(p.KeepAlive))
	vh = appendProperties(vh, p.Properties)

	var payload []byte
	payload = appendString(payload, p.ClientID)
	if p.WillFlag {
		payload = appendProperties(payload, p.WillProperties)
		payload = appendString(payload, p.WillTopic)
		payload = appendBinary(payload, p.WillMessage)
	}
	if p.UsernameFlag {
		payload = appendString(payload, p.Username)
	}
	if p.PasswordFlag {
		payload = appendString(payload, p.Password)
	}

	header := FixedHeader{PacketType: CONNECT, RemainingLength: len(vh) + len(payload)}
	dst = header.appendBytes(dst)
	dst = append(dst, vh...)
	dst = append(dst, payload...)
	return dst
}

func (p *ConnectPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeConnect decodes a CONNECT packet's variable header and payload
// from buf (the fixed header has already been stripped off).
func DecodeConnect(buf []byte) (*ConnectPacket, error) {
	protocolName, n, err := decodeString(buf)
	if err != nil {
		return nil, err
	}
	offset := n
	if protocolName != "MQTT" {
		return nil, malformed("unexpected protocol name %q", protocolName)
	}

	if len(buf) < offset+1 {
		return nil, incomplete(offset + 1 - len(buf))
	}
	level := buf[offset]
	offset++
	if level != 5 {
		return nil, malformed("unsupported protocol level %d", level)
	}

	if len(buf) < offset+1 {
		return nil, incomplete(offset + 1 - len(buf))
	}
	flags := buf[offset]
	offset++
	if flags&0x01 != 0 {
		return nil, malformed("CONNECT reserved flag bit must be 0")
	}

	pkt := &ConnectPacket{
		CleanStart:   flags&0x02 != 0,
		WillFlag:     flags&0x04 != 0,
		WillQoS:      (flags >> 3) & 0x03,
		WillRetain:   flags&0x20 != 0,
		PasswordFlag: flags&0x40 != 0,
		UsernameFlag: flags&0x80 != 0,
	}
	if !pkt.WillFlag && (pkt.WillQoS != 0 || pkt.WillRetain) {
		return nil, malformed("Will QoS/Retain set without Will Flag")
	}
	if pkt.WillQoS > 2 {
		return nil, malformed("invalid Will QoS %d", pkt.WillQoS)
	}

	if len(buf) < offset+2 {
		return nil, incomplete(offset + 2 - len(buf))
	}
	pkt.KeepAlive = uint16(buf[offset])<<8 | uint16(buf[offset+1])
	offset += 2

	props, nProps, err := decodeProperties(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += nProps

	clientID, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.ClientID = clientID
	offset += n

	if pkt.WillFlag {
		willProps, nProps, err := decodeProperties(buf[offset:])
		if err != nil {
			return nil, err
		}
		pkt.WillProperties = willProps
		offset += nProps

		willTopic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		pkt.WillTopic = willTopic
		offset += n

		willMessage, n, err := decodeBinary(buf[offset:])
		if err != nil {
			return nil, err
		}
		pkt.WillMessage = willMessage
		offset += n
	}

	if pkt.UsernameFlag {
		username, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		pkt.Username = username
		offset += n
	}

	if pkt.PasswordFlag {
		password, _, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		pkt.Password = password
	}

	return pkt, nil
}
