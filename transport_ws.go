package jrpc

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errSendBufferFull = errors.New("jrpc: send buffer full")

// wsTransport wraps a WebSocket connection as a transport.
type wsTransport struct {
	ws     *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newWSTransport(ws *websocket.Conn, buffer int) *wsTransport {
	return &wsTransport{
		ws:   ws,
		send: make(chan []byte, buffer),
	}
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	select {
	case t.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.send)
	}
	return nil
}

func (t *wsTransport) CloseGracefully() error {
	// Send a WebSocket close frame to notify the peer
	_ = t.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(5*time.Second),
	)
	return t.Close()
}

// readPump reads text frames from the WebSocket and hands them to the
// connection until the socket fails. Binary frames are ignored.
func (t *wsTransport) readPump(conn *Conn, onExit func()) {
	defer func() {
		onExit()
		t.ws.Close()
	}()

	for {
		kind, data, err := t.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		conn.handleIncomingMessage(data)
	}
}

// writePump writes frames from the send channel to the WebSocket.
func (t *wsTransport) writePump() {
	defer t.ws.Close()

	for data := range t.send {
		if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
