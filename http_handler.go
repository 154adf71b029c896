package jrpc

import (
	"io"
	"net/http"
	"strings"
)

// httpHandler answers each POSTed frame in the response body.
type httpHandler struct {
	engine *Engine
}

// NewHTTPHandler serves e over plain HTTP: every POST body is one frame and
// the reply is written back synchronously. Nothing due yields 204. Calls
// made on e have no way back to the client over this transport.
func NewHTTPHandler(e *Engine) http.Handler {
	return &httpHandler{engine: e}
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "JSON-RPC requires POST method", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Parse failures still produce a reply frame; the error is only for
	// hosts that feed frames directly.
	out, _ := h.engine.Process(r.Context(), body)
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
