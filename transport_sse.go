package jrpc

import (
	"fmt"
	"net/http"
	"sync"
)

// sseTransport wraps an http.ResponseWriter for SSE output.
type sseTransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
	done    chan struct{} // closed when the SSE stream ends
}

func newSSETransport(w http.ResponseWriter, flusher http.Flusher) *sseTransport {
	return &sseTransport{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
}

// Send writes one JSON-RPC frame as a "message" event. Frames are compact
// JSON and never span lines.
func (t *sseTransport) Send(data []byte) error {
	if !t.sendEvent("message", data) {
		return ErrClosed
	}
	return nil
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

func (t *sseTransport) CloseGracefully() error {
	return t.Close()
}

// sendEvent sends a named SSE event. It reports false once the stream has ended.
func (t *sseTransport) sendEvent(event string, data []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	fmt.Fprintf(t.w, "event: %s\n", event)
	fmt.Fprintf(t.w, "data: %s\n\n", data)
	t.flusher.Flush()
	return true
}

// sendComment sends an SSE comment (used for keep-alive).
func (t *sseTransport) sendComment(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	fmt.Fprintf(t.w, ": %s\n\n", text)
	t.flusher.Flush()
}
