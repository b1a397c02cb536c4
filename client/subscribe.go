package client

import (
	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/mqttopic"
	"github.com/windtalker/mqtt5engine/packets"
)

// SubscribeOption adjusts a single Subscribe call.
type SubscribeOption func(*SubscribeOptions)

// WithNoLocal suppresses delivery of messages this client itself published.
func WithNoLocal() SubscribeOption {
	return func(o *SubscribeOptions) { o.NoLocal = true }
}

// WithRetainAsPublished preserves the RETAIN flag on delivered messages
// instead of clearing it for non-initial deliveries.
func WithRetainAsPublished() SubscribeOption {
	return func(o *SubscribeOptions) { o.RetainAsPublished = true }
}

// WithRetainHandling controls whether retained messages are sent for
// this subscription (0=SendAlways, 1=SendIfNewSubscription, 2=DoNotSend).
func WithRetainHandling(mode uint8) SubscribeOption {
	return func(o *SubscribeOptions) { o.RetainHandling = mode }
}

// Subscribe registers handler for messages matching filter and sends a
// SUBSCRIBE, returning a Token that completes when the SUBACK arrives.
func (c *Client) Subscribe(filter string, qos QoS, handler MessageHandler, opts ...SubscribeOption) Token {
	maxTopic := mqttopic.DefaultMaxTopicLength
	if c.cfg.MaxTopicLength != 0 {
		maxTopic = c.cfg.MaxTopicLength
	}
	if err := mqttopic.ValidateSubscribeTopic(filter, maxTopic); err != nil {
		return failedToken(err)
	}

	var subOpts SubscribeOptions
	for _, opt := range opts {
		opt(&subOpts)
	}

	c.subsLock.Lock()
	c.subscriptions[filter] = subscriptionEntry{handler: handler, qos: uint8(qos), opts: subOpts}
	c.subsLock.Unlock()

	c.engineLock.Lock()
	action, err := c.eng.Subscribe(engine.SubscribeRequest{Subscriptions: []packets.SubscriptionRequest{{
		TopicFilter:       filter,
		QoS:               uint8(qos),
		NoLocal:           subOpts.NoLocal,
		RetainAsPublished: subOpts.RetainAsPublished,
		RetainHandling:    subOpts.RetainHandling,
	}}})
	c.engineLock.Unlock()
	if err != nil {
		return failedToken(err)
	}

	send := action.(engine.SendPacket)
	sub := send.Packet.(*packets.SubscribePacket)
	tk := c.registerToken(sub.PacketID)
	if err := c.perform(action); err != nil {
		tk.complete(err)
	}
	return tk
}

// Unsubscribe removes the handlers for filters and sends an
// UNSUBSCRIBE, returning a Token that completes when the UNSUBACK
// arrives.
func (c *Client) Unsubscribe(filters ...string) Token {
	c.subsLock.Lock()
	for _, f := range filters {
		delete(c.subscriptions, f)
	}
	c.subsLock.Unlock()

	c.engineLock.Lock()
	action, err := c.eng.Unsubscribe(engine.UnsubscribeRequest{Topics: filters})
	c.engineLock.Unlock()
	if err != nil {
		return failedToken(err)
	}

	send := action.(engine.SendPacket)
	unsub := send.Packet.(*packets.UnsubscribePacket)
	tk := c.registerToken(unsub.PacketID)
	if err := c.perform(action); err != nil {
		tk.complete(err)
	}
	return tk
}
