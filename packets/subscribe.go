package packets

import (
	"encoding/binary"
	"io"
)

// SubscriptionRequest is one Topic Filter + Subscription Options pair
// carried in a SUBSCRIBE packet's payload (§3.8.3.1).
type SubscriptionRequest struct {
	TopicFilter       string
	QoS               uint8
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    uint8 // 0=SendAlways, 1=SendIfNewSubscription, 2=DoNotSend
}

// SubscribePacket represents an MQTT SUBSCRIBE control packet. Its
// fixed header flags are always 0x02.
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []SubscriptionRequest
	Properties    *Properties
}

func (p *SubscribePacket) Type() uint8 { return SUBSCRIBE }

func (p *SubscribePacket) Encode(dst []byte) []byte {
	propsBuf := appendProperties(nil, p.Properties)

	payloadLen := 0
	for _, s := range p.Subscriptions {
		payloadLen += 2 + len(s.TopicFilter) + 1
	}

	header := FixedHeader{
		PacketType:      SUBSCRIBE,
		Flags:           flagsSubscribe,
		RemainingLength: 2 + len(propsBuf) + payloadLen,
	}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	dst = append(dst, propsBuf...)

	for _, s := range p.Subscriptions {
		dst = appendString(dst, s.TopicFilter)
		opts := s.QoS & 0x03
		if s.NoLocal {
			opts |= 1 << 2
		}
		if s.RetainAsPublished {
			opts |= 1 << 3
		}
		opts |= (s.RetainHandling & 0x03) << 4
		dst = append(dst, opts)
	}
	return dst
}

func (p *SubscribePacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeSubscribe decodes a SUBSCRIBE packet's variable header and
// payload from buf.
func DecodeSubscribe(buf []byte) (*SubscribePacket, error) {
	if len(buf) < 2 {
		return nil, incomplete(2 - len(buf))
	}
	pkt := &SubscribePacket{PacketID: binary.BigEndian.Uint16(buf[0:2])}
	offset := 2

	props, n, err := decodeProperties(buf[offset:])
	if err != nil {
		return nil, err
	}
	pkt.Properties = props
	offset += n

	if offset >= len(buf) {
		return nil, malformed("SUBSCRIBE payload must contain at least one topic filter")
	}

	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, err
		}
		offset += n

		if offset >= len(buf) {
			return nil, incomplete(1)
		}
		opts := buf[offset]
		offset++

		if opts&0xC0 != 0 {
			return nil, malformed("SUBSCRIBE subscription options reserved bits must be 0")
		}
		retainHandling := (opts >> 4) & 0x03
		if retainHandling > 2 {
			return nil, malformed("invalid retain handling %d", retainHandling)
		}

		pkt.Subscriptions = append(pkt.Subscriptions, SubscriptionRequest{
			TopicFilter:       topic,
			QoS:               opts & 0x03,
			NoLocal:           opts&(1<<2) != 0,
			RetainAsPublished: opts&(1<<3) != 0,
			RetainHandling:    retainHandling,
		})
	}

	return pkt, nil
}
