package client

import "github.com/windtalker/mqtt5engine/packets"

// Message is an MQTT message delivered to a subscription handler.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        QoS
	Retained   bool
	Duplicate  bool
	Properties *packets.Properties
}

// MessageHandler processes one delivered Message.
type MessageHandler func(c *Client, msg Message)

// HandlerInterceptor wraps a MessageHandler, letting cross-cutting
// concerns (logging, metrics, tracing) apply to every delivered
// message without each handler repeating them.
type HandlerInterceptor func(MessageHandler) MessageHandler

func applyHandlerInterceptors(handler MessageHandler, interceptors []HandlerInterceptor) MessageHandler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		handler = interceptors[i](handler)
	}
	return handler
}

// SubscribeOptions carries the MQTT v5.0 subscription options beyond
// the QoS level.
type SubscribeOptions struct {
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    uint8
}
