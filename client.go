package jrpc

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

var nextClientID uint64

// DialOptions configures a client connection.
type DialOptions struct {
	// Engine configures the connection's engine.
	Engine Options
	// Header is sent with the WebSocket handshake.
	Header http.Header
	// Setup runs before the first inbound frame is read. Use it to register
	// the handlers the server may call.
	Setup func(conn *Conn) error
	// SendBuffer is the number of outbound frames queued. Default: 256
	SendBuffer int
}

// Dial opens a WebSocket connection to url and returns the client side Conn.
func Dial(ctx context.Context, url string, opts ...DialOptions) (*Conn, error) {
	var options DialOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.SendBuffer <= 0 {
		options.SendBuffer = 256
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, options.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	wsT := newWSTransport(ws, options.SendBuffer)
	id := atomic.AddUint64(&nextClientID, 1)
	conn := newConn(wsT, nil, id, nil, context.Background(), options.Engine)

	if options.Setup != nil {
		if err := options.Setup(conn); err != nil {
			conn.cancel()
			ws.Close()
			return nil, err
		}
	}

	go wsT.writePump()
	go wsT.readPump(conn, conn.close)
	return conn, nil
}
