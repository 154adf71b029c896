package jrpc

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectHook is called when a new connection is established, before any
// frame is read. Hooks register the connection's handlers.
// Return an error to reject the connection.
type ConnectHook func(ctx context.Context, conn *Conn) error

// DisconnectHook is called when a connection is closed.
type DisconnectHook func(ctx context.Context, conn *Conn)

// ServerOptions configures the server behavior.
type ServerOptions struct {
	// Engine configures the engine of every connection.
	Engine Options
	// SendBuffer is the number of outbound frames queued per connection. Default: 256
	SendBuffer int
	// KeepAlive is the SSE keep-alive comment interval. Default: 15s
	KeepAlive time.Duration
}

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		SendBuffer: 256,
		KeepAlive:  15 * time.Second,
	}
}

// Server accepts WebSocket connections and gives each one its own Engine.
type Server struct {
	upgrader        websocket.Upgrader
	conns           map[*Conn]struct{}
	mu              sync.RWMutex
	nextConnID      uint64 // atomic counter for connection IDs
	options         ServerOptions
	connectHooks    []ConnectHook
	disconnectHooks []DisconnectHook
	stopping        atomic.Bool
}

// NewServer creates a new server.
// An optional ServerOptions can be passed to configure server behavior.
func NewServer(opts ...ServerOptions) *Server {
	options := defaultServerOptions()
	if len(opts) > 0 {
		// Merge provided options with defaults
		opt := opts[0]
		options.Engine = opt.Engine
		if opt.SendBuffer > 0 {
			options.SendBuffer = opt.SendBuffer
		}
		if opt.KeepAlive > 0 {
			options.KeepAlive = opt.KeepAlive
		}
	}

	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins by default
			},
		},
		conns:   make(map[*Conn]struct{}),
		options: options,
	}
}

// OnConnect registers a hook to be called when a new connection is established.
// Hooks are called in the order they are registered.
// If a hook returns an error, the connection is rejected and subsequent hooks are not called.
func (s *Server) OnConnect(hook ConnectHook) {
	s.connectHooks = append(s.connectHooks, hook)
}

// OnDisconnect registers a hook to be called when a connection is closed.
// Hooks are called in the order they are registered.
func (s *Server) OnDisconnect(hook DisconnectHook) {
	s.disconnectHooks = append(s.disconnectHooks, hook)
}

// runConnectHooks executes all connect hooks in order.
// Returns the first error encountered, or nil if all hooks succeed.
func (s *Server) runConnectHooks(ctx context.Context, conn *Conn) error {
	for _, hook := range s.connectHooks {
		if err := hook(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

// runDisconnectHooks executes all disconnect hooks in order.
func (s *Server) runDisconnectHooks(conn *Conn) {
	for _, hook := range s.disconnectHooks {
		hook(conn.ctx, conn)
	}
}

// SetCheckOrigin sets the origin check function for the WebSocket upgrader.
func (s *Server) SetCheckOrigin(f func(r *http.Request) bool) {
	s.upgrader.CheckOrigin = f
}

// ServeHTTP implements http.Handler for WebSocket upgrades.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}

	logger := s.options.Engine.Logger
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	wsT := newWSTransport(ws, s.options.SendBuffer)
	conn := s.newConn(wsT, r)

	// Run connect hooks before starting message processing
	if err := s.runConnectHooks(conn.ctx, conn); err != nil {
		logger.Info().Err(err).Uint64("conn", conn.id).Msg("connection rejected")
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second),
		)
		conn.cancel()
		ws.Close()
		return
	}

	s.register(conn)

	go wsT.writePump()
	wsT.readPump(conn, func() { s.unregister(conn) })
}

func (s *Server) newConn(t transport, r *http.Request) *Conn {
	connID := atomic.AddUint64(&s.nextConnID, 1)
	// The request context ends with the handler; connections outlive it.
	return newConn(t, s, connID, r, context.WithoutCancel(r.Context()), s.options.Engine)
}

func (s *Server) register(conn *Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.options.Engine.Logger.Debug().Uint64("conn", conn.id).Msg("connection opened")
}

// unregister removes conn, runs the disconnect hooks and closes it.
func (s *Server) unregister(conn *Conn) {
	s.mu.Lock()
	_, existed := s.conns[conn]
	if existed {
		delete(s.conns, conn)
	}
	s.mu.Unlock()

	if existed {
		s.runDisconnectHooks(conn)
		conn.close()
		s.options.Engine.Logger.Debug().Uint64("conn", conn.id).Msg("connection closed")
	}
}

// Broadcast sends a notification to every connected peer. It returns the
// encoding error, if any; per-connection send failures are logged.
func (s *Server) Broadcast(method string, params any) error {
	data, err := EncodeNotification(method, params)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for conn := range s.conns {
		if err := conn.send(data); err != nil {
			conn.logger.Warn().Err(err).Uint64("conn", conn.id).Str("method", method).Msg("broadcast failed")
		}
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Close stops accepting connections and closes every open one with a close frame.
func (s *Server) Close() error {
	s.stopping.Store(true)

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[*Conn]struct{})
	s.mu.Unlock()

	for _, conn := range conns {
		s.runDisconnectHooks(conn)
		conn.closeGracefully()
	}
	return nil
}
