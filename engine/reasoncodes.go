package engine

// DisconnectReason mirrors the MQTT v5.0 reason code space used in
// DISCONNECT, CONNACK and the ack packets (0x00-0x7F success, 0x80-0xFF
// failure). The engine narrows it to the subset it can itself produce
// or needs to recognize in a peer's CONNACK/DISCONNECT; everything else
// a server sends still round-trips through DisconnectReason, it just
// has no named constant here.
type DisconnectReason uint8

const (
	ReasonNormalDisconnection  DisconnectReason = 0x00
	ReasonDisconnectWithWill   DisconnectReason = 0x04
	ReasonUnspecifiedError     DisconnectReason = 0x80
	ReasonMalformedPacket      DisconnectReason = 0x81
	ReasonProtocolError        DisconnectReason = 0x82
	ReasonImplementationError  DisconnectReason = 0x83
	ReasonNotAuthorized        DisconnectReason = 0x87
	ReasonServerBusy           DisconnectReason = 0x89
	ReasonServerShuttingDown   DisconnectReason = 0x8B
	ReasonKeepAliveTimeout     DisconnectReason = 0x8D
	ReasonSessionTakenOver     DisconnectReason = 0x8E
	ReasonTopicFilterInvalid   DisconnectReason = 0x90
	ReasonTopicNameInvalid     DisconnectReason = 0x91
	ReasonReceiveMaximumExceed DisconnectReason = 0x93
	ReasonTopicAliasInvalid    DisconnectReason = 0x94
	ReasonPacketTooLarge       DisconnectReason = 0x95
	ReasonQuotaExceeded        DisconnectReason = 0x97
	ReasonQoSNotSupported      DisconnectReason = 0x9B
)

// reasonNames gives a human string for logging; unnamed codes fall back
// to their numeric form.
var reasonNames = map[DisconnectReason]string{
	ReasonNormalDisconnection:  "normal disconnection",
	ReasonDisconnectWithWill:   "disconnect with will message",
	ReasonUnspecifiedError:     "unspecified error",
	ReasonMalformedPacket:      "malformed packet",
	ReasonProtocolError:        "protocol error",
	ReasonImplementationError:  "implementation specific error",
	ReasonNotAuthorized:        "not authorized",
	ReasonServerBusy:           "server busy",
	ReasonServerShuttingDown:   "server shutting down",
	ReasonKeepAliveTimeout:     "keep alive timeout",
	ReasonSessionTakenOver:     "session taken over",
	ReasonTopicFilterInvalid:   "topic filter invalid",
	ReasonTopicNameInvalid:     "topic name invalid",
	ReasonReceiveMaximumExceed: "receive maximum exceeded",
	ReasonTopicAliasInvalid:    "topic alias invalid",
	ReasonPacketTooLarge:       "packet too large",
	ReasonQuotaExceeded:        "quota exceeded",
	ReasonQoSNotSupported:      "qos not supported",
}

func (r DisconnectReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unrecognized reason code"
}
