package jrpc

import (
	"context"
	"net/http"
	"sync"
)

// Conn is one peer connection. It embeds the Engine serving it, so handlers
// are registered and calls are made directly on the Conn.
type Conn struct {
	*Engine

	id        uint64
	transport transport
	server    *Server
	request   *http.Request
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newConn(t transport, server *Server, id uint64, r *http.Request, ctx context.Context, opts Options) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		id:        id,
		transport: t,
		server:    server,
		request:   r,
		cancel:    cancel,
	}
	c.ctx = withConnection(ctx, c)
	c.Engine = New(t, opts)
	return c
}

// ID returns the connection's process-unique identifier.
func (c *Conn) ID() uint64 {
	return c.id
}

// Context returns the connection context. It is canceled when the
// connection closes.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// HTTPRequest returns the request that opened the connection, or nil for
// client connections.
func (c *Conn) HTTPRequest() *http.Request {
	return c.request
}

// Done is closed when the connection has closed.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection. Calls still pending stay pending.
func (c *Conn) Close() error {
	if c.server != nil {
		c.server.unregister(c)
		return nil
	}
	c.close()
	return nil
}

// handleIncomingMessage hands one inbound frame to the engine on its own
// goroutine, so a handler may itself call the peer and wait.
func (c *Conn) handleIncomingMessage(data []byte) {
	go func() {
		if err := c.HandleIncoming(c.ctx, data); err != nil {
			c.logger.Debug().Err(err).Uint64("conn", c.id).Msg("inbound frame failed")
		}
	}()
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.transport.Close()
}

func (c *Conn) closeGracefully() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.transport.CloseGracefully()
}
