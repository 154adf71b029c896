package jrpc

// Sink receives every frame the engine emits: calls, notifications, batches
// and replies. Send must be safe for concurrent use and should not block.
type Sink interface {
	Send(data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(data []byte) error

func (f SinkFunc) Send(data []byte) error {
	return f(data)
}

// transport is the connection-side I/O behind a Conn.
// Both WebSocket and SSE transports implement this.
type transport interface {
	Sink
	// Close closes the transport.
	Close() error
	// CloseGracefully sends a close frame (if supported) before closing.
	CloseGracefully() error
}
