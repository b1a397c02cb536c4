package client

import (
	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/mqttopic"
	"github.com/windtalker/mqtt5engine/packets"
)

// PublishOption adjusts a single Publish call.
type PublishOption func(*engine.PublishRequest)

// WithPublishProperties attaches PUBLISH properties (correlation data,
// response topic, user properties, content type, ...).
func WithPublishProperties(props *packets.Properties) PublishOption {
	return func(r *engine.PublishRequest) { r.Properties = props }
}

// WithRetain asks the broker to retain this message for future
// subscribers.
func WithRetain() PublishOption {
	return func(r *engine.PublishRequest) { r.Retain = true }
}

// WithTopicAlias asks the engine to use sender-side topic alias
// optimization for this publish, if the server has advertised room
// for one.
func WithTopicAlias() PublishOption {
	return func(r *engine.PublishRequest) { r.UseAlias = true }
}

// Publish sends a PUBLISH and returns a Token that completes once the
// delivery handshake for qos finishes (immediately for QoS 0).
func (c *Client) Publish(topic string, payload []byte, qos QoS, opts ...PublishOption) Token {
	maxTopic := mqttopic.DefaultMaxTopicLength
	if c.cfg.MaxTopicLength != 0 {
		maxTopic = c.cfg.MaxTopicLength
	}
	maxPayload := mqttopic.DefaultMaxPayloadSize
	if c.cfg.MaxPayloadSize != 0 {
		maxPayload = c.cfg.MaxPayloadSize
	}
	if err := mqttopic.ValidatePublishTopic(topic, maxTopic); err != nil {
		return failedToken(err)
	}
	if err := mqttopic.ValidatePayload(payload, maxPayload); err != nil {
		return failedToken(err)
	}

	req := engine.PublishRequest{Topic: topic, Payload: payload, QoS: uint8(qos)}
	for _, opt := range opts {
		opt(&req)
	}

	c.engineLock.Lock()
	actions, err := c.eng.Publish(req)
	c.engineLock.Unlock()
	if err != nil {
		return failedToken(err)
	}

	var tk *token
	for _, a := range actions {
		if store, ok := a.(engine.StorePacket); ok {
			tk = c.registerToken(store.ID)
		}
	}
	for _, a := range actions {
		if err := c.perform(a); err != nil {
			if tk != nil {
				tk.complete(err)
			}
			return failedToken(err)
		}
	}
	if tk == nil {
		tk = newToken()
		tk.complete(nil)
	}
	return tk
}

func failedToken(err error) *token {
	tk := newToken()
	tk.complete(err)
	return tk
}
