package jrpc

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
)

// ConnectedMessage is the first event of an SSE stream. Its ConnectionID
// addresses POST /rpc frames to that stream's connection.
type ConnectedMessage struct {
	ConnectionID string `json:"connectionId"`
}

// maxFrameSize bounds a POSTed frame.
const maxFrameSize = 1 << 20

// sseHandler serves the SSE+HTTP transport: the stream carries every frame
// the server emits, and each POST delivers one frame from the client.
type sseHandler struct {
	server      *Server
	connections map[string]*Conn
	mu          sync.RWMutex
}

// NewSSEHandler returns the SSE+HTTP transport for s. Connections opened
// through it run the same connect hooks and receive the same broadcasts as
// WebSocket connections. Mount it with http.StripPrefix so that GET / opens
// a stream and POST /rpc?connection=<id> delivers a frame.
func NewSSEHandler(s *Server) http.Handler {
	return &sseHandler{
		server:      s,
		connections: make(map[string]*Conn),
	}
}

func (h *sseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet:
		h.handleSSE(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/rpc":
		h.handleRPC(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *sseHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if h.server.stopping.Load() {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	connectionID := uuid.NewString()
	sseT := newSSETransport(w, flusher)
	conn := h.server.newConn(sseT, r)

	// Run connect hooks
	if err := h.server.runConnectHooks(conn.ctx, conn); err != nil {
		data, _ := json.Marshal(newErrorEnvelope(null, NewServerError(CodeServerError, err.Error()).wire()))
		sseT.sendEvent("error", data)
		conn.cancel()
		return
	}

	h.mu.Lock()
	h.connections[connectionID] = conn
	h.mu.Unlock()

	h.server.register(conn)

	// Send connected event with connection ID
	connData, _ := json.Marshal(ConnectedMessage{ConnectionID: connectionID})
	sseT.sendEvent("connected", connData)

	// Keep-alive loop, blocks until client disconnects
	keepAlive := time.NewTicker(h.server.options.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected. Close the transport first so in-flight writes end
			// before the HTTP server finalizes the response writer.
			sseT.Close()
			h.drop(connectionID, conn)
			return
		case <-sseT.done:
			// Transport was closed (e.g. by server shutdown)
			h.drop(connectionID, conn)
			return
		case <-keepAlive.C:
			sseT.sendComment("keep-alive")
		}
	}
}

func (h *sseHandler) drop(connectionID string, conn *Conn) {
	h.mu.Lock()
	delete(h.connections, connectionID)
	h.mu.Unlock()
	h.server.unregister(conn)
}

func (h *sseHandler) handleRPC(w http.ResponseWriter, r *http.Request) {
	if h.server.stopping.Load() {
		http.Error(w, "server stopping", http.StatusServiceUnavailable)
		return
	}

	h.mu.RLock()
	conn, ok := h.connections[r.URL.Query().Get("connection")]
	h.mu.RUnlock()

	if !ok {
		http.Error(w, "unknown connection ID", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Replies, including parse errors, go out on the stream.
	conn.handleIncomingMessage(body)

	w.WriteHeader(http.StatusAccepted)
}
