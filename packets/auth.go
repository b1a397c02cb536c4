package packets

import "io"

// AUTH reason codes (§3.15.2.1).
const (
	AuthReasonSuccess        uint8 = 0x00
	AuthReasonContinue       uint8 = 0x18
	AuthReasonReauthenticate uint8 = 0x19
)

// AuthPacket represents an MQTT v5.0 AUTH control packet, used for
// extended (challenge/response) authentication exchanges such as
// SCRAM, Kerberos or OAuth token refresh.
type AuthPacket struct {
	ReasonCode uint8
	Properties *Properties
}

func (p *AuthPacket) Type() uint8 { return AUTH }

func (p *AuthPacket) Encode(dst []byte) []byte {
	omit := p.ReasonCode == 0 && p.Properties == nil

	var propsBuf []byte
	variableHeaderLen := 0
	if !omit {
		propsBuf = appendProperties(nil, p.Properties)
		variableHeaderLen = 1 + len(propsBuf)
	}

	header := FixedHeader{PacketType: AUTH, RemainingLength: variableHeaderLen}
	dst = header.appendBytes(dst)
	if !omit {
		dst = append(dst, p.ReasonCode)
		dst = append(dst, propsBuf...)
	}
	return dst
}

func (p *AuthPacket) WriteTo(w io.Writer) (int64, error) { return writeViaEncode(p, w) }

// DecodeAuth decodes an AUTH packet's variable header from buf. An
// empty buf means Success with no properties.
func DecodeAuth(buf []byte) (*AuthPacket, error) {
	pkt := &AuthPacket{}
	if len(buf) == 0 {
		return pkt, nil
	}
	pkt.ReasonCode = buf[0]
	if pkt.ReasonCode != AuthReasonSuccess && pkt.ReasonCode != AuthReasonContinue && pkt.ReasonCode != AuthReasonReauthenticate {
		return nil, malformed("invalid AUTH reason code 0x%02x", pkt.ReasonCode)
	}
	if len(buf) > 1 {
		props, _, err := decodeProperties(buf[1:])
		if err != nil {
			return nil, err
		}
		if props.AuthenticationMethod == "" {
			return nil, malformed("AUTH properties must include Authentication Method")
		}
		pkt.Properties = props
	} else if pkt.ReasonCode != AuthReasonSuccess {
		return nil, malformed("AUTH with non-Success reason code must carry an Authentication Method property")
	}
	return pkt, nil
}
