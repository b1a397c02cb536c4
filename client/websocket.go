package client

import (
	"context"
	"net"

	"nhooyr.io/websocket"
)

// DialWebSocket connects to an MQTT broker over a WebSocket endpoint
// (ws:// or wss://), negotiating the "mqtt" subprotocol and framing
// the byte stream as binary messages. Everything past the transport is
// identical to Dial. WithTLS has no effect here: the WebSocket dialer
// replaces Dial's own, and a wss:// URL is dialed with the WebSocket
// library's default TLS settings.
func DialWebSocket(addr string, opts ...Option) (*Client, error) {
	ws := WithDialer(DialFunc(func(ctx context.Context, network, a string) (net.Conn, error) {
		conn, _, err := websocket.Dial(ctx, a, &websocket.DialOptions{
			Subprotocols: []string{"mqtt"},
		})
		if err != nil {
			return nil, err
		}
		// The NetConn context governs the connection's lifetime, not
		// the dial: it must outlive the connect timeout.
		return websocket.NetConn(context.Background(), conn, websocket.MessageBinary), nil
	}))
	return Dial(addr, append([]Option{ws}, opts...)...)
}
