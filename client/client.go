package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/windtalker/mqtt5engine/engine"
	"github.com/windtalker/mqtt5engine/mqttopic"
	"github.com/windtalker/mqtt5engine/packets"
)

type subscriptionEntry struct {
	handler MessageHandler
	qos     uint8
	opts    SubscribeOptions
}

// Client binds an engine.Engine to a net.Conn: one reader goroutine
// decodes inbound packets onto a channel, one logic goroutine feeds them
// and keep-alive ticks to the engine and performs the resulting actions,
// and (when enabled) a supervisor goroutine reconnects with backoff on
// connection loss. Publish, Subscribe and Unsubscribe also drive the
// engine, under engineLock, and write their packets from the caller's
// goroutine.
type Client struct {
	cfg  *config
	addr string

	engineLock sync.Mutex
	eng        *engine.Engine

	connMu sync.RWMutex
	conn   net.Conn

	subsLock      sync.Mutex
	subscriptions map[string]subscriptionEntry

	tokensLock sync.Mutex
	tokens     map[uint16]*token

	stop   chan struct{}
	stopWg sync.WaitGroup
	closed bool
}

// Dial establishes a connection to addr (accepted schemes: tcp://,
// tls://, ssl://, mqtts://) and performs the CONNECT/CONNACK handshake.
// On success it starts the reader/logic goroutines and, if
// WithAutoReconnect(true) (the default), a reconnect supervisor.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "mqtt5engine-" + uuid.NewString()
	}

	c := &Client{
		cfg:           cfg,
		addr:          addr,
		eng:           engine.New(),
		subscriptions: make(map[string]subscriptionEntry),
		tokens:        make(map[uint16]*token),
		stop:          make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.stopWg.Add(1)
	go c.run()

	return c, nil
}

func dialTransport(ctx context.Context, addr string, cfg *config) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("client: invalid address %q: %w", addr, err)
	}

	if cfg.Dialer != nil {
		return cfg.Dialer.DialContext(ctx, u.Scheme, addr)
	}

	dialer := &net.Dialer{}
	switch u.Scheme {
	case "tcp", "":
		return dialer.DialContext(ctx, "tcp", u.Host)
	case "tls", "ssl", "mqtts":
		tlsCfg := cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
		return tlsDialer.DialContext(ctx, "tcp", u.Host)
	default:
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
}

// connect dials the transport and drives HandleConnect through CONNACK
// synchronously, swapping in the new connection on success. It does
// not start the background goroutines; Dial and reconnectLoop do that
// once each successful connect returns.
func (c *Client) connect(ctx context.Context) error {
	conn, err := dialTransport(ctx, c.addr, c.cfg)
	if err != nil {
		return err
	}

	c.engineLock.Lock()
	// Each connection attempt gets a fresh engine: recovery from
	// Disconnected is an explicit new connect, with any surviving
	// session state re-supplied through the resume snapshot.
	c.eng = engine.New()
	if c.cfg.Authenticator != nil {
		c.eng.SetAuthenticator(c.cfg.Authenticator)
	}
	resume := c.loadResumeSnapshot()
	action, err := c.eng.HandleConnect(engine.Instant(time.Now().Unix()), engine.ConnectRequest{
		ClientID:          c.cfg.ClientID,
		CleanStart:        c.cfg.CleanStart,
		KeepAlive:         uint16(c.cfg.KeepAlive / time.Second),
		Username:          c.cfg.Username,
		Password:          c.cfg.Password,
		HasAuth:           c.cfg.HasPassword,
		Will:              c.cfg.Will,
		ReceiveMaximum:    c.cfg.ReceiveMaximum,
		TopicAliasMaximum: c.cfg.TopicAliasMaximum,
		SessionExpiry:     c.cfg.SessionExpiry,
		UserProperties:    c.cfg.UserProperties,
		Resume:            resume,
	})
	c.engineLock.Unlock()
	if err != nil {
		conn.Close()
		return err
	}
	send := action.(engine.SendPacket)
	if _, err := send.Packet.WriteTo(conn); err != nil {
		conn.Close()
		return err
	}

	// Read the CONNACK unbuffered: a buffered reader could swallow
	// bytes of whatever the server sends next, which belong to the
	// readLoop's reader. The deadline bounds a server that accepts the
	// TCP connection but never answers the handshake.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	pkt, err := packets.ReadPacket(conn, c.cfg.MaxIncomingPacket)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return err
	}
	connack, ok := pkt.(*packets.ConnackPacket)
	if !ok {
		conn.Close()
		return fmt.Errorf("client: expected CONNACK, got %T", pkt)
	}

	c.engineLock.Lock()
	actions, err := c.eng.HandlePacket(engine.Instant(time.Now().Unix()), connack)
	c.engineLock.Unlock()
	if err != nil {
		conn.Close()
		return err
	}
	if connack.ReasonCode != 0 {
		conn.Close()
		return fmt.Errorf("client: connection refused, reason code 0x%02X", connack.ReasonCode)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Session replay (stored publishes re-sent with DUP, pending
	// PUBRELs) happens before any new application traffic.
	for _, a := range actions {
		if err := c.perform(a); err != nil {
			conn.Close()
			return err
		}
	}

	if !connack.SessionPresent {
		// The server holds no session for us: anything we persisted
		// for the previous one is unreplayable.
		if c.cfg.SessionStore != nil {
			if err := c.cfg.SessionStore.Clear(); err != nil {
				c.cfg.Logger.Warn("failed to clear stale session state", "error", err)
			}
		}
		c.resubscribeAll()
	}
	if c.cfg.Stats != nil {
		c.cfg.Stats.Connected.Set(1)
	}
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(c)
	}
	return nil
}

// loadResumeSnapshot reads persisted outstanding/received-QoS2 state
// from the configured SessionStore so a clean_start=false reconnect
// can replay it. With the default MemoryStore the first connect finds
// nothing; later reconnects in the same process load whatever earlier
// connections stored there.
func (c *Client) loadResumeSnapshot() *engine.SessionSnapshot {
	if c.cfg.CleanStart || c.cfg.SessionStore == nil {
		return nil
	}
	outstanding, err := c.cfg.SessionStore.LoadOutstanding()
	if err != nil {
		c.cfg.Logger.Warn("failed to load outstanding publishes", "error", err)
		return nil
	}
	receivedQoS2, err := c.cfg.SessionStore.LoadReceivedQoS2()
	if err != nil {
		c.cfg.Logger.Warn("failed to load received qos2 set", "error", err)
		return nil
	}
	nextID, err := c.cfg.SessionStore.LoadNextID()
	if err != nil {
		c.cfg.Logger.Warn("failed to load packet id cursor", "error", err)
		return nil
	}
	if len(outstanding) == 0 && len(receivedQoS2) == 0 && nextID == 0 {
		return nil
	}

	entries := make([]engine.OutstandingEntry, len(outstanding))
	for i, e := range outstanding {
		entries[i] = engine.OutstandingEntry{ID: e.ID, Packet: e.Packet}
	}
	return &engine.SessionSnapshot{Outstanding: entries, ReceivedQoS2: receivedQoS2, NextID: nextID}
}

func (c *Client) resubscribeAll() {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	if len(c.subscriptions) == 0 {
		return
	}
	subs := make([]packets.SubscriptionRequest, 0, len(c.subscriptions))
	for filter, entry := range c.subscriptions {
		subs = append(subs, packets.SubscriptionRequest{
			TopicFilter:       filter,
			QoS:               entry.qos,
			NoLocal:           entry.opts.NoLocal,
			RetainAsPublished: entry.opts.RetainAsPublished,
			RetainHandling:    entry.opts.RetainHandling,
		})
	}
	c.engineLock.Lock()
	action, err := c.eng.Subscribe(engine.SubscribeRequest{Subscriptions: subs})
	c.engineLock.Unlock()
	if err != nil {
		c.cfg.Logger.Warn("failed to resubscribe after reconnect", "error", err)
		return
	}
	if err := c.perform(action); err != nil {
		c.cfg.Logger.Warn("failed to resend subscriptions after reconnect", "error", err)
	}
}

func (c *Client) run() {
	defer c.stopWg.Done()

	g, ctx := errgroup.WithContext(context.Background())
	incoming := make(chan packets.Packet, 64)

	g.Go(func() error { return c.readLoop(ctx, incoming) })
	g.Go(func() error { return c.logicLoop(ctx, incoming) })

	err := g.Wait()

	if c.cfg.Stats != nil {
		c.cfg.Stats.Connected.Set(0)
	}
	if !c.isClosed() {
		if c.cfg.OnConnectionLost != nil {
			c.cfg.OnConnectionLost(c, err)
		}
		c.failAllTokens(err)
		if c.cfg.AutoReconnect {
			c.reconnectLoop()
		}
	}
}

func (c *Client) reconnectLoop() {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	_ = backoff.Retry(func() error {
		if c.isClosed() {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		defer cancel()
		if err := c.connect(ctx); err != nil {
			c.cfg.Logger.Warn("reconnect attempt failed", "error", err)
			return err
		}
		if c.cfg.Stats != nil {
			c.cfg.Stats.Reconnects.Inc()
		}
		c.stopWg.Add(1)
		go c.run()
		return nil
	}, bo)
}

func (c *Client) isClosed() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.closed
}

// countingReader feeds the BytesReceived counter as bytes come off the
// socket, before any buffering.
type countingReader struct {
	r     io.Reader
	count func(int)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.count(n)
	}
	return n, err
}

func (c *Client) readLoop(ctx context.Context, incoming chan<- packets.Packet) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	var src io.Reader = conn
	if c.cfg.Stats != nil {
		src = &countingReader{r: conn, count: func(n int) { c.cfg.Stats.BytesReceived.Add(float64(n)) }}
	}
	r := bufio.NewReaderSize(src, 4096)

	for {
		pkt, err := packets.ReadPacket(r, c.cfg.MaxIncomingPacket)
		if err != nil {
			return err
		}
		if c.cfg.Stats != nil {
			c.cfg.Stats.PacketsReceived.Inc()
		}
		select {
		case incoming <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) logicLoop(ctx context.Context, incoming <-chan packets.Packet) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case pkt := <-incoming:
			if err := c.dispatch(pkt); err != nil {
				return err
			}
		case now := <-ticker.C:
			c.engineLock.Lock()
			action, ok := c.eng.Poll(engine.Instant(now.Unix()))
			c.engineLock.Unlock()
			if ok {
				if err := c.perform(action); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Client) dispatch(pkt packets.Packet) error {
	c.engineLock.Lock()
	actions, err := c.eng.HandlePacket(engine.Instant(time.Now().Unix()), pkt)
	c.engineLock.Unlock()
	if err != nil {
		return err
	}
	for _, action := range actions {
		if err := c.perform(action); err != nil {
			return err
		}
	}

	// SUBACK/UNSUBACK carry no StorePacket/ReleasePacket Action, since
	// they never enter the outstanding table, so complete their tokens
	// directly from the raw packet here. A failure reason code in the
	// payload completes the token with an error; the session continues.
	switch p := pkt.(type) {
	case *packets.SubackPacket:
		c.completeToken(p.PacketID, ackPayloadError(p.ReasonCodes))
	case *packets.UnsubackPacket:
		c.completeToken(p.PacketID, ackPayloadError(p.ReasonCodes))
	case *packets.PublishPacket:
		if p.QoS == 2 && c.cfg.SessionStore != nil {
			if err := c.cfg.SessionStore.SaveReceivedQoS2(p.PacketID); err != nil {
				c.cfg.Logger.Warn("failed to persist received qos2 id", "id", p.PacketID, "error", err)
			}
		}
	case *packets.PubrelPacket:
		if c.cfg.SessionStore != nil {
			if err := c.cfg.SessionStore.DeleteReceivedQoS2(p.PacketID); err != nil {
				c.cfg.Logger.Warn("failed to delete received qos2 id", "id", p.PacketID, "error", err)
			}
		}
	}
	return nil
}

func ackPayloadError(codes []uint8) error {
	for _, code := range codes {
		if code >= 0x80 {
			return &engine.ReasonCodeError{Reason: engine.DisconnectReason(code)}
		}
	}
	return nil
}

func (c *Client) perform(action engine.Action) error {
	switch a := action.(type) {
	case engine.SendPacket:
		return c.send(a.Packet)
	case engine.StorePacket:
		// A QoS 2 exchange stores twice (PUBLISH, then the PUBREL that
		// replaces it) but releases once; count only the publish.
		if _, isPublish := a.Packet.(*packets.PublishPacket); isPublish && c.cfg.Stats != nil {
			c.cfg.Stats.InFlight.Inc()
		}
		if c.cfg.SessionStore != nil {
			if err := c.cfg.SessionStore.SaveOutstanding(a.ID, a.Packet); err != nil {
				c.cfg.Logger.Warn("failed to persist outstanding packet", "id", a.ID, "error", err)
			}
			if err := c.cfg.SessionStore.SaveNextID(a.ID); err != nil {
				c.cfg.Logger.Warn("failed to persist packet id cursor", "id", a.ID, "error", err)
			}
		}
		return nil
	case engine.ReleasePacket:
		c.completeToken(a.ID, a.Err)
		if c.cfg.Stats != nil {
			c.cfg.Stats.InFlight.Dec()
		}
		if c.cfg.SessionStore != nil {
			if err := c.cfg.SessionStore.DeleteOutstanding(a.ID); err != nil {
				c.cfg.Logger.Warn("failed to delete outstanding packet", "id", a.ID, "error", err)
			}
		}
		return nil
	case engine.ReceivedPublish:
		c.deliver(a.Publish)
		return nil
	case engine.DisconnectAction:
		c.cfg.Logger.Info("disconnecting", "reason", a.Reason, "from_peer", a.FromPeer)
		return fmt.Errorf("client: disconnected: %s", a.Reason)
	}
	return nil
}

func (c *Client) send(pkt packets.Packet) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("client: not connected")
	}
	n, err := pkt.WriteTo(conn)
	if err != nil {
		return err
	}
	if c.cfg.Stats != nil {
		c.cfg.Stats.PacketsSent.Inc()
		c.cfg.Stats.BytesSent.Add(float64(n))
	}
	c.engineLock.Lock()
	c.eng.NoteSend(engine.Instant(time.Now().Unix()))
	c.engineLock.Unlock()
	return nil
}

func (c *Client) deliver(p *packets.PublishPacket) {
	c.subsLock.Lock()
	var handlers []MessageHandler
	for filter, entry := range c.subscriptions {
		if mqttopic.Match(filter, p.Topic) {
			handlers = append(handlers, entry.handler)
		}
	}
	if len(handlers) == 0 && c.cfg.DefaultPublishHandler != nil {
		handlers = append(handlers, c.cfg.DefaultPublishHandler)
	}
	c.subsLock.Unlock()

	msg := Message{
		Topic:      p.Topic,
		Payload:    p.Payload,
		QoS:        QoS(p.QoS),
		Retained:   p.Retain,
		Duplicate:  p.Dup,
		Properties: p.Properties,
	}
	for _, h := range handlers {
		handler := applyHandlerInterceptors(h, c.cfg.HandlerInterceptors)
		go handler(c, msg)
	}
}

func (c *Client) registerToken(id uint16) *token {
	tk := newToken()
	c.tokensLock.Lock()
	c.tokens[id] = tk
	c.tokensLock.Unlock()
	return tk
}

// failAllTokens completes every still-pending token with err so no
// caller stays blocked in Wait across a connection loss.
func (c *Client) failAllTokens(err error) {
	c.tokensLock.Lock()
	pending := c.tokens
	c.tokens = make(map[uint16]*token)
	c.tokensLock.Unlock()
	for _, tk := range pending {
		tk.complete(err)
	}
}

func (c *Client) completeToken(id uint16, err error) {
	c.tokensLock.Lock()
	tk, ok := c.tokens[id]
	if ok {
		delete(c.tokens, id)
	}
	c.tokensLock.Unlock()
	if ok {
		tk.complete(err)
	}
}

// Disconnect sends a DISCONNECT and closes the transport. The Client
// must not be used afterwards.
func (c *Client) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.connMu.Unlock()

	_ = c.send(&packets.DisconnectPacket{})
	close(c.stop)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
