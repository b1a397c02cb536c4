package client

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/mqttmetrics"
	"github.com/windtalker/mqtt5engine/mqttstore"
	"github.com/windtalker/mqtt5engine/packets"
)

// ContextDialer is the seam for custom transport acquisition. It
// matches net.Dialer.DialContext, so a *net.Dialer satisfies it
// directly; DialWebSocket and tests supply their own.
type ContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DialFunc adapts a function to the ContextDialer interface.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext implements ContextDialer.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// config holds everything Dial needs to establish and maintain a
// connection. It is built from functional Options, following the same
// pattern the engine's host binding and the rest of the pack use.
type config struct {
	ClientID     string
	Username     string
	Password     string
	HasPassword  bool
	KeepAlive    time.Duration
	CleanStart   bool
	AutoReconnect bool
	ConnectTimeout time.Duration
	TLSConfig    *tls.Config
	Dialer       ContextDialer
	Logger       *slog.Logger

	Will *engine.Will

	TopicAliasMaximum uint16
	ReceiveMaximum    uint16
	SessionExpiry     uint32
	SessionExpirySet  bool
	UserProperties    []packets.UserProperty

	MaxTopicLength    int
	MaxPayloadSize    int
	MaxIncomingPacket int

	SessionStore mqttstore.SessionStore
	Stats        *mqttmetrics.Stats
	Authenticator engine.Authenticator

	DefaultPublishHandler MessageHandler
	HandlerInterceptors   []HandlerInterceptor

	OnConnect        func(*Client)
	OnConnectionLost func(*Client, error)
}

func defaultConfig() *config {
	return &config{
		KeepAlive:      60 * time.Second,
		CleanStart:     true,
		AutoReconnect:  true,
		ConnectTimeout: 30 * time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionStore:   mqttstore.NewMemoryStore(),
	}
}

// Option configures a Client at Dial time.
type Option func(*config)

// WithClientID sets the client identifier sent in CONNECT. If never
// set (or set to ""), Dial generates a random one itself rather than
// asking the server for one, since ServerAssigned identifiers are not
// reported back under clean_start=false resumption.
func WithClientID(id string) Option {
	return func(c *config) { c.ClientID = id }
}

// WithCredentials sets the username/password CONNECT fields.
func WithCredentials(username, password string) Option {
	return func(c *config) {
		c.Username = username
		c.Password = password
		c.HasPassword = true
	}
}

// WithKeepAlive sets the requested keep-alive interval (default 60s).
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) { c.KeepAlive = d }
}

// WithCleanSession sets clean_start. false requires a non-empty
// ClientID and should usually be paired with WithSessionExpiryInterval
// to actually persist state on the server past disconnect.
func WithCleanSession(clean bool) Option {
	return func(c *config) { c.CleanStart = clean }
}

// WithAutoReconnect enables or disables automatic reconnection with
// backoff (default true).
func WithAutoReconnect(enabled bool) Option {
	return func(c *config) { c.AutoReconnect = enabled }
}

// WithConnectTimeout bounds how long Dial waits for the TCP connect and
// CONNACK (default 30s).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) { c.ConnectTimeout = d }
}

// WithTLS enables TLS using the given config (nil uses Go's defaults).
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) { c.TLSConfig = cfg }
}

// WithDialer sets a custom dialer for establishing the network
// connection, enabling alternative transports (WebSockets, Unix
// sockets, in-memory pipes for tests) without the library knowing
// about them. When set, Dial skips its own scheme handling and passes
// the URL scheme as network and the full address string as addr.
func WithDialer(dialer ContextDialer) Option {
	return func(c *config) { c.Dialer = dialer }
}

// WithLogger sets the structured logger (default discards everything).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

// WithWill sets the Last Will and Testament published if the
// connection is lost ungracefully.
func WithWill(topic string, payload []byte, qos QoS, retain bool) Option {
	return func(c *config) {
		c.Will = &engine.Will{Topic: topic, Payload: payload, QoS: uint8(qos), Retain: retain}
	}
}

// WithTopicAliasMaximum advertises how many sender-side topic aliases
// the server may use against this client.
func WithTopicAliasMaximum(max uint16) Option {
	return func(c *config) { c.TopicAliasMaximum = max }
}

// WithReceiveMaximum bounds how many QoS 1/2 publishes the server may
// have unacknowledged towards this client at once (0 = 65535 default).
func WithReceiveMaximum(max uint16) Option {
	return func(c *config) { c.ReceiveMaximum = max }
}

// WithSessionExpiryInterval requests the server retain session state
// for the given number of seconds after disconnect. Combine with
// WithCleanSession(false) to actually resume it next connect.
func WithSessionExpiryInterval(seconds uint32) Option {
	return func(c *config) {
		c.SessionExpiry = seconds
		c.SessionExpirySet = true
	}
}

// WithUserProperties attaches CONNECT user properties.
func WithUserProperties(props ...packets.UserProperty) Option {
	return func(c *config) { c.UserProperties = props }
}

// WithSessionStore persists outstanding publishes and received QoS 2
// identifiers so a session survives a process restart, not just a
// reconnect (default: in-memory only).
func WithSessionStore(store mqttstore.SessionStore) Option {
	return func(c *config) { c.SessionStore = store }
}

// WithMetrics registers Prometheus collectors for this client's
// traffic and connection state.
func WithMetrics(stats *mqttmetrics.Stats) Option {
	return func(c *config) { c.Stats = stats }
}

// WithAuthenticator enables enhanced (challenge/response) AUTH
// exchanges, such as SCRAM.
func WithAuthenticator(auth engine.Authenticator) Option {
	return func(c *config) { c.Authenticator = auth }
}

// WithDefaultPublishHandler sets the handler invoked for inbound
// PUBLISH packets matching no registered subscription filter.
func WithDefaultPublishHandler(h MessageHandler) Option {
	return func(c *config) { c.DefaultPublishHandler = h }
}

// WithHandlerInterceptor wraps every delivered message through mw,
// applied outermost-registered-first.
func WithHandlerInterceptor(mw HandlerInterceptor) Option {
	return func(c *config) { c.HandlerInterceptors = append(c.HandlerInterceptors, mw) }
}

// WithOnConnect registers a callback fired after every successful
// (re)connection, including automatic reconnects.
func WithOnConnect(fn func(*Client)) Option {
	return func(c *config) { c.OnConnect = fn }
}

// WithOnConnectionLost registers a callback fired when the connection
// drops, before any reconnect attempt.
func WithOnConnectionLost(fn func(*Client, error)) Option {
	return func(c *config) { c.OnConnectionLost = fn }
}

// WithLimits overrides the MQTT spec default size limits (0 keeps the
// default for that field).
func WithLimits(maxTopicLength, maxPayloadSize, maxIncomingPacket int) Option {
	return func(c *config) {
		c.MaxTopicLength = maxTopicLength
		c.MaxPayloadSize = maxPayloadSize
		c.MaxIncomingPacket = maxIncomingPacket
	}
}
