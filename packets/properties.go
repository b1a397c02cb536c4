package packets

import "encoding/binary"

// Property identifiers defined by the MQTT v5.0 spec.
const (
	PropPayloadFormatIndicator          uint8 = 0x01
	PropMessageExpiryInterval           uint8 = 0x02
	PropContentType                     uint8 = 0x03
	PropResponseTopic                   uint8 = 0x08
	PropCorrelationData                 uint8 = 0x09
	PropSubscriptionIdentifier          uint8 = 0x0B
	PropSessionExpiryInterval           uint8 = 0x11
	PropAssignedClientIdentifier        uint8 = 0x12
	PropServerKeepAlive                 uint8 = 0x13
	PropAuthenticationMethod            uint8 = 0x15
	PropAuthenticationData              uint8 = 0x16
	PropRequestProblemInformation       uint8 = 0x17
	PropWillDelayInterval                uint8 = 0x18
	PropRequestResponseInformation      uint8 = 0x19
	PropResponseInformation             uint8 = 0x1A
	PropServerReference                 uint8 = 0x1C
	PropReasonString                    uint8 = 0x1F
	PropReceiveMaximum                  uint8 = 0x21
	PropTopicAliasMaximum               uint8 = 0x22
	PropTopicAlias                      uint8 = 0x23
	PropMaximumQoS                      uint8 = 0x24
	PropRetainAvailable                 uint8 = 0x25
	PropUserProperty                    uint8 = 0x26
	PropMaximumPacketSize               uint8 = 0x27
	PropWildcardSubscriptionAvailable   uint8 = 0x28
	PropSubscriptionIdentifierAvailable uint8 = 0x29
	PropSharedSubscriptionAvailable     uint8 = 0x2A
)

// Presence bitmask flags for Properties, one per single-valued
// property. Repeatable properties (UserProperty, SubscriptionIdentifier)
// use slice length instead of a presence bit.
const (
	PresPayloadFormatIndicator          uint32 = 1 << 0
	PresMessageExpiryInterval           uint32 = 1 << 1
	PresContentType                     uint32 = 1 << 2
	PresResponseTopic                   uint32 = 1 << 3
	PresSessionExpiryInterval           uint32 = 1 << 4
	PresAssignedClientIdentifier        uint32 = 1 << 5
	PresServerKeepAlive                 uint32 = 1 << 6
	PresAuthenticationMethod            uint32 = 1 << 7
	PresRequestProblemInformation       uint32 = 1 << 8
	PresWillDelayInterval               uint32 = 1 << 9
	PresRequestResponseInformation      uint32 = 1 << 10
	PresResponseInformation             uint32 = 1 << 11
	PresServerReference                 uint32 = 1 << 12
	PresReasonString                    uint32 = 1 << 13
	PresReceiveMaximum                  uint32 = 1 << 14
	PresTopicAliasMaximum               uint32 = 1 << 15
	PresTopicAlias                      uint32 = 1 << 16
	PresMaximumQoS                      uint32 = 1 << 17
	PresRetainAvailable                 uint32 = 1 << 18
	PresMaximumPacketSize               uint32 = 1 << 19
	PresWildcardSubscriptionAvailable   uint32 = 1 << 20
	PresSubscriptionIdentifierAvailable uint32 = 1 << 21
	PresSharedSubscriptionAvailable     uint32 = 1 << 22
	PresCorrelationData                 uint32 = 1 << 23
	PresAuthenticationData              uint32 = 1 << 24
)

// UserProperty is one key/value pair of an (ordered, duplicate-
// permitting) User Property sequence.
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds every standard MQTT v5.0 property. Presence is
// tracked by bitmask rather than pointers so decoding a packet with no
// properties allocates nothing beyond the zero-length UserProperties/
// SubscriptionIdentifier slices.
type Properties struct {
	Presence uint32

	PayloadFormatIndicator uint8
	MessageExpiryInterval  uint32
	ContentType            string
	ResponseTopic          string
	CorrelationData        []byte

	SubscriptionIdentifier []int // repeatable, order preserved

	SessionExpiryInterval    uint32
	AssignedClientIdentifier string
	ServerKeepAlive          uint16
	AuthenticationMethod     string
	AuthenticationData       []byte

	RequestProblemInformation  uint8
	WillDelayInterval          uint32
	RequestResponseInformation uint8
	ResponseInformation        string
	ServerReference            string
	ReasonString                string

	ReceiveMaximum     uint16
	TopicAliasMaximum  uint16
	TopicAlias         uint16
	MaximumQoS         uint8
	RetainAvailable    bool
	MaximumPacketSize  uint32

	WildcardSubscriptionAvailable   bool
	SubscriptionIdentifierAvailable bool
	SharedSubscriptionAvailable     bool

	UserProperties []UserProperty // repeatable, order preserved
}

// has reports whether the single-valued property identified by mask
// is present.
func (p *Properties) has(mask uint32) bool { return p != nil && p.Presence&mask != 0 }

func encodeProperties(p *Properties) []byte {
	return appendProperties(make([]byte, 0, 16), p)
}

// appendProperties appends the length-prefixed Properties region to dst.
func appendProperties(dst []byte, p *Properties) []byte {
	if p == nil {
		return append(dst, 0x00)
	}

	startLen := len(dst)
	dst = append(dst, 0) // placeholder length byte, patched below
	propsStart := len(dst)

	dst = p.appendNumeric(dst)
	dst = p.appendBool(dst)
	dst = p.appendStringOrBinary(dst)
	dst = p.appendRepeatable(dst)

	propLen := len(dst) - propsStart
	if propLen < 128 {
		dst[startLen] = byte(propLen)
		return dst
	}

	lenBuf := encodeVarInt(propLen)
	lenDiff := len(lenBuf) - 1
	dst = append(dst, make([]byte, lenDiff)...)
	copy(dst[propsStart+lenDiff:], dst[propsStart:propsStart+propLen])
	copy(dst[startLen:], lenBuf)
	return dst
}

// decodeProperties reads the length-prefixed Properties region from
// the front of buf. Returns the parsed set, bytes consumed (including
// the length prefix), and an error for any grammar violation,
// including a property ID repeated when the spec forbids repetition.
func decodeProperties(buf []byte) (*Properties, int, error) {
	if len(buf) == 0 {
		return nil, 0, incomplete(1)
	}

	propLen, n, err := decodeVarIntBuf(buf)
	if err != nil {
		return nil, 0, err
	}
	total := n + propLen
	if len(buf) < total {
		return nil, 0, incomplete(total - len(buf))
	}
	if propLen == 0 {
		return &Properties{}, total, nil
	}

	p := &Properties{}
	seen := make(map[uint8]bool)
	slice := buf[n:total]
	offset := 0

	for offset < len(slice) {
		id := slice[offset]
		offset++
		if id != PropUserProperty && id != PropSubscriptionIdentifier && seen[id] {
			return nil, 0, malformed("property 0x%02x appears more than once", id)
		}
		seen[id] = true

		consumed, ok, err := p.decodeNumeric(id, slice[offset:])
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			consumed, ok, err = p.decodeBool(id, slice[offset:])
			if err != nil {
				return nil, 0, err
			}
		}
		if !ok {
			consumed, ok, err = p.decodeStringOrBinary(id, slice[offset:])
			if err != nil {
				return nil, 0, err
			}
		}
		if !ok {
			consumed, ok, err = p.decodeRepeatable(id, slice[offset:])
			if err != nil {
				return nil, 0, err
			}
		}
		if !ok {
			return nil, 0, malformed("unsupported property ID 0x%02x", id)
		}
		offset += consumed
	}

	return p, total, nil
}

func (p *Properties) appendNumeric(dst []byte) []byte {
	if p.has(PresPayloadFormatIndicator) {
		dst = append(dst, PropPayloadFormatIndicator, p.PayloadFormatIndicator)
	}
	if p.has(PresMessageExpiryInterval) {
		dst = append(dst, PropMessageExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.MessageExpiryInterval)
	}
	if p.has(PresSessionExpiryInterval) {
		dst = append(dst, PropSessionExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.SessionExpiryInterval)
	}
	if p.has(PresServerKeepAlive) {
		dst = append(dst, PropServerKeepAlive)
		dst = binary.BigEndian.AppendUint16(dst, p.ServerKeepAlive)
	}
	if p.has(PresRequestProblemInformation) {
		dst = append(dst, PropRequestProblemInformation, p.RequestProblemInformation)
	}
	if p.has(PresWillDelayInterval) {
		dst = append(dst, PropWillDelayInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.WillDelayInterval)
	}
	if p.has(PresRequestResponseInformation) {
		dst = append(dst, PropRequestResponseInformation, p.RequestResponseInformation)
	}
	if p.has(PresReceiveMaximum) {
		dst = append(dst, PropReceiveMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.ReceiveMaximum)
	}
	if p.has(PresTopicAliasMaximum) {
		dst = append(dst, PropTopicAliasMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAliasMaximum)
	}
	if p.has(PresTopicAlias) {
		dst = append(dst, PropTopicAlias)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAlias)
	}
	if p.has(PresMaximumQoS) {
		dst = append(dst, PropMaximumQoS, p.MaximumQoS)
	}
	if p.has(PresMaximumPacketSize) {
		dst = append(dst, PropMaximumPacketSize)
		dst = binary.BigEndian.AppendUint32(dst, p.MaximumPacketSize)
	}
	return dst
}

func (p *Properties) appendBool(dst []byte) []byte {
	appendFlag := func(dst []byte, id uint8, mask uint32, v bool) []byte {
		if !p.has(mask) {
			return dst
		}
		val := byte(0)
		if v {
			val = 1
		}
		return append(dst, id, val)
	}
	dst = appendFlag(dst, PropRetainAvailable, PresRetainAvailable, p.RetainAvailable)
	dst = appendFlag(dst, PropWildcardSubscriptionAvailable, PresWildcardSubscriptionAvailable, p.WildcardSubscriptionAvailable)
	dst = appendFlag(dst, PropSubscriptionIdentifierAvailable, PresSubscriptionIdentifierAvailable, p.SubscriptionIdentifierAvailable)
	dst = appendFlag(dst, PropSharedSubscriptionAvailable, PresSharedSubscriptionAvailable, p.SharedSubscriptionAvailable)
	return dst
}

func (p *Properties) appendStringOrBinary(dst []byte) []byte {
	if p.has(PresContentType) {
		dst = append(dst, PropContentType)
		dst = appendString(dst, p.ContentType)
	}
	if p.has(PresResponseTopic) {
		dst = append(dst, PropResponseTopic)
		dst = appendString(dst, p.ResponseTopic)
	}
	if p.has(PresCorrelationData) {
		dst = append(dst, PropCorrelationData)
		dst = appendBinary(dst, p.CorrelationData)
	}
	if p.has(PresAssignedClientIdentifier) {
		dst = append(dst, PropAssignedClientIdentifier)
		dst = appendString(dst, p.AssignedClientIdentifier)
	}
	if p.has(PresAuthenticationMethod) {
		dst = append(dst, PropAuthenticationMethod)
		dst = appendString(dst, p.AuthenticationMethod)
	}
	if p.has(PresAuthenticationData) {
		dst = append(dst, PropAuthenticationData)
		dst = appendBinary(dst, p.AuthenticationData)
	}
	if p.has(PresResponseInformation) {
		dst = append(dst, PropResponseInformation)
		dst = appendString(dst, p.ResponseInformation)
	}
	if p.has(PresServerReference) {
		dst = append(dst, PropServerReference)
		dst = appendString(dst, p.ServerReference)
	}
	if p.has(PresReasonString) {
		dst = append(dst, PropReasonString)
		dst = appendString(dst, p.ReasonString)
	}
	return dst
}

func (p *Properties) appendRepeatable(dst []byte) []byte {
	for _, id := range p.SubscriptionIdentifier {
		dst = append(dst, PropSubscriptionIdentifier)
		dst = appendVarInt(dst, id)
	}
	for _, up := range p.UserProperties {
		dst = append(dst, PropUserProperty)
		dst = appendString(dst, up.Key)
		dst = appendString(dst, up.Value)
	}
	return dst
}

func (p *Properties) decodeNumeric(id byte, data []byte) (int, bool, error) {
	need := func(n int) error {
		if len(data) < n {
			return malformed("property 0x%02x truncated", id)
		}
		return nil
	}
	switch id {
	case PropPayloadFormatIndicator:
		if err := need(1); err != nil {
			return 0, false, err
		}
		p.PayloadFormatIndicator = data[0]
		p.Presence |= PresPayloadFormatIndicator
		return 1, true, nil
	case PropMessageExpiryInterval:
		if err := need(4); err != nil {
			return 0, false, err
		}
		p.MessageExpiryInterval = binary.BigEndian.Uint32(data)
		p.Presence |= PresMessageExpiryInterval
		return 4, true, nil
	case PropSessionExpiryInterval:
		if err := need(4); err != nil {
			return 0, false, err
		}
		p.SessionExpiryInterval = binary.BigEndian.Uint32(data)
		p.Presence |= PresSessionExpiryInterval
		return 4, true, nil
	case PropServerKeepAlive:
		if err := need(2); err != nil {
			return 0, false, err
		}
		p.ServerKeepAlive = binary.BigEndian.Uint16(data)
		p.Presence |= PresServerKeepAlive
		return 2, true, nil
	case PropRequestProblemInformation:
		if err := need(1); err != nil {
			return 0, false, err
		}
		p.RequestProblemInformation = data[0]
		p.Presence |= PresRequestProblemInformation
		return 1, true, nil
	case PropWillDelayInterval:
		if err := need(4); err != nil {
			return 0, false, err
		}
		p.WillDelayInterval = binary.BigEndian.Uint32(data)
		p.Presence |= PresWillDelayInterval
		return 4, true, nil
	case PropRequestResponseInformation:
		if err := need(1); err != nil {
			return 0, false, err
		}
		p.RequestResponseInformation = data[0]
		p.Presence |= PresRequestResponseInformation
		return 1, true, nil
	case PropReceiveMaximum:
		if err := need(2); err != nil {
			return 0, false, err
		}
		p.ReceiveMaximum = binary.BigEndian.Uint16(data)
		p.Presence |= PresReceiveMaximum
		return 2, true, nil
	case PropTopicAliasMaximum:
		if err := need(2); err != nil {
			return 0, false, err
		}
		p.TopicAliasMaximum = binary.BigEndian.Uint16(data)
		p.Presence |= PresTopicAliasMaximum
		return 2, true, nil
	case PropTopicAlias:
		if err := need(2); err != nil {
			return 0, false, err
		}
		p.TopicAlias = binary.BigEndian.Uint16(data)
		p.Presence |= PresTopicAlias
		return 2, true, nil
	case PropMaximumQoS:
		if err := need(1); err != nil {
			return 0, false, err
		}
		p.MaximumQoS = data[0]
		p.Presence |= PresMaximumQoS
		return 1, true, nil
	case PropMaximumPacketSize:
		if err := need(4); err != nil {
			return 0, false, err
		}
		p.MaximumPacketSize = binary.BigEndian.Uint32(data)
		p.Presence |= PresMaximumPacketSize
		return 4, true, nil
	}
	return 0, false, nil
}

func (p *Properties) decodeBool(id byte, data []byte) (int, bool, error) {
	set := func(mask uint32, v *bool) (int, bool, error) {
		if len(data) < 1 {
			return 0, false, malformed("property 0x%02x truncated", id)
		}
		*v = data[0] != 0
		p.Presence |= mask
		return 1, true, nil
	}
	switch id {
	case PropRetainAvailable:
		return set(PresRetainAvailable, &p.RetainAvailable)
	case PropWildcardSubscriptionAvailable:
		return set(PresWildcardSubscriptionAvailable, &p.WildcardSubscriptionAvailable)
	case PropSubscriptionIdentifierAvailable:
		return set(PresSubscriptionIdentifierAvailable, &p.SubscriptionIdentifierAvailable)
	case PropSharedSubscriptionAvailable:
		return set(PresSharedSubscriptionAvailable, &p.SharedSubscriptionAvailable)
	}
	return 0, false, nil
}

func (p *Properties) decodeStringOrBinary(id byte, data []byte) (int, bool, error) {
	switch id {
	case PropContentType:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.ContentType = s
		p.Presence |= PresContentType
		return n, true, nil
	case PropResponseTopic:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.ResponseTopic = s
		p.Presence |= PresResponseTopic
		return n, true, nil
	case PropCorrelationData:
		b, n, err := decodeBinary(data)
		if err != nil {
			return 0, false, err
		}
		p.CorrelationData = b
		p.Presence |= PresCorrelationData
		return n, true, nil
	case PropAssignedClientIdentifier:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.AssignedClientIdentifier = s
		p.Presence |= PresAssignedClientIdentifier
		return n, true, nil
	case PropAuthenticationMethod:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.AuthenticationMethod = s
		p.Presence |= PresAuthenticationMethod
		return n, true, nil
	case PropAuthenticationData:
		b, n, err := decodeBinary(data)
		if err != nil {
			return 0, false, err
		}
		p.AuthenticationData = b
		p.Presence |= PresAuthenticationData
		return n, true, nil
	case PropResponseInformation:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.ResponseInformation = s
		p.Presence |= PresResponseInformation
		return n, true, nil
	case PropServerReference:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.ServerReference = s
		p.Presence |= PresServerReference
		return n, true, nil
	case PropReasonString:
		s, n, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		p.ReasonString = s
		p.Presence |= PresReasonString
		return n, true, nil
	}
	return 0, false, nil
}

func (p *Properties) decodeRepeatable(id byte, data []byte) (int, bool, error) {
	switch id {
	case PropUserProperty:
		k, nK, err := decodeString(data)
		if err != nil {
			return 0, false, err
		}
		v, nV, err := decodeString(data[nK:])
		if err != nil {
			return 0, false, err
		}
		p.UserProperties = append(p.UserProperties, UserProperty{Key: k, Value: v})
		return nK + nV, true, nil
	case PropSubscriptionIdentifier:
		val, n, err := decodeVarIntBuf(data)
		if err != nil {
			return 0, false, err
		}
		if val == 0 {
			return 0, false, malformed("subscription identifier must not be 0")
		}
		p.SubscriptionIdentifier = append(p.SubscriptionIdentifier, val)
		return n, true, nil
	}
	return 0, false, nil
}
