package jrpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sseEvent represents a parsed SSE event.
type sseEvent struct {
	Event string
	Data  string
}

// sseReader reads SSE events from an HTTP response body.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(resp *http.Response) *sseReader {
	return &sseReader{scanner: bufio.NewScanner(resp.Body)}
}

// readEvent reads the next SSE event, skipping comments and blank lines.
func (r *sseReader) readEvent() (*sseEvent, error) {
	var event sseEvent
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if strings.HasPrefix(line, ":") {
			// SSE comment, skip
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			event.Event = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			event.Data = strings.TrimPrefix(line, "data: ")
		} else if line == "" && event.Data != "" {
			return &event, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if event.Data != "" {
		return &event, nil
	}
	return nil, fmt.Errorf("SSE stream ended")
}

// readMessageEvent reads the next "message" event and decodes its frame.
func (r *sseReader) readMessageEvent(t *testing.T) map[string]any {
	t.Helper()
	ev, err := r.readEvent()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if ev.Event != "message" {
		t.Fatalf("Expected 'message' event, got '%s'", ev.Event)
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
		t.Fatalf("Failed to parse frame %s: %v", ev.Data, err)
	}
	return msg
}

func setupSSETestServer(t *testing.T, opts ...ServerOptions) (*httptest.Server, *Server) {
	server := NewServer(opts...)
	server.OnConnect(func(ctx context.Context, conn *Conn) error {
		return registerIntegration(server, conn)
	})

	sseH := NewSSEHandler(server)

	mux := http.NewServeMux()
	mux.Handle("/ws", server)
	mux.Handle("/sse", http.StripPrefix("/sse", sseH))
	mux.Handle("/sse/", http.StripPrefix("/sse", sseH))

	ts := httptest.NewServer(mux)
	return ts, server
}

// connectSSE establishes an SSE connection, reads the connected event, and returns
// the response, reader, and connection ID.
func connectSSE(t *testing.T, ts *httptest.Server) (*http.Response, *sseReader, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/sse")
	if err != nil {
		t.Fatalf("Failed to connect SSE: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %s", ct)
	}

	reader := newSSEReader(resp)

	// Read connected event
	ev, err := reader.readEvent()
	if err != nil {
		t.Fatalf("Failed to read connected event: %v", err)
	}
	if ev.Event != "connected" {
		t.Fatalf("Expected 'connected' event, got '%s'", ev.Event)
	}

	var connMsg ConnectedMessage
	if err := json.Unmarshal([]byte(ev.Data), &connMsg); err != nil {
		t.Fatalf("Failed to parse connected message: %v", err)
	}

	return resp, reader, connMsg.ConnectionID
}

func postRPC(t *testing.T, ts *httptest.Server, connectionID, frame string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/sse/rpc?connection="+connectionID, "application/json", strings.NewReader(frame))
	if err != nil {
		t.Fatalf("POST /rpc failed: %v", err)
	}
	resp.Body.Close()
	return resp
}

func TestSSEConnectedEventCarriesUUID(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, _, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	if _, err := uuid.Parse(connID); err != nil {
		t.Errorf("Expected a UUID connection id, got %q: %v", connID, err)
	}
}

func TestSSEEcho(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	postResp := postRPC(t, ts, connID, `{"jsonrpc":"2.0","method":"echo","params":{"message":"hello"},"id":1}`)
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", postResp.StatusCode)
	}

	msg := reader.readMessageEvent(t)
	if msg["id"] != float64(1) {
		t.Errorf("Expected id 1, got %v", msg["id"])
	}
	result, _ := msg["result"].(map[string]any)
	if result["message"] != "hello" {
		t.Errorf("Expected hello, got %v", msg["result"])
	}
}

func TestSSEMethodNotFound(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	postRPC(t, ts, connID, `{"jsonrpc":"2.0","method":"NonExistent","id":1}`)

	msg := reader.readMessageEvent(t)
	if code := errorCodeOf(msg); code != CodeMethodNotFound {
		t.Errorf("Expected method not found code, got %d", code)
	}
}

func TestSSEParseError(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	postResp := postRPC(t, ts, connID, `{not json`)
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", postResp.StatusCode)
	}

	msg := reader.readMessageEvent(t)
	if code := errorCodeOf(msg); code != CodeParseError {
		t.Errorf("Expected parse error code, got %d", code)
	}
}

func TestSSEPush(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	postRPC(t, ts, connID, `{"jsonrpc":"2.0","method":"triggerPush","params":{"message":"pushed"},"id":1}`)

	gotPush, gotResponse := false, false
	for !gotPush || !gotResponse {
		msg := reader.readMessageEvent(t)
		switch {
		case msg["method"] == "notification":
			gotPush = true
		case msg["id"] == float64(1):
			gotResponse = true
		default:
			t.Fatalf("Unexpected message: %v", msg)
		}
	}
}

func TestSSEConnectHook(t *testing.T) {
	ts, server := setupSSETestServer(t)
	defer ts.Close()

	var called atomic.Int32
	server.OnConnect(func(ctx context.Context, conn *Conn) error {
		called.Add(1)
		return nil
	})

	resp, _, _ := connectSSE(t, ts)
	defer resp.Body.Close()

	if called.Load() != 1 {
		t.Errorf("Expected connect hook called once, got %d", called.Load())
	}
	if server.ConnectionCount() != 1 {
		t.Errorf("Expected 1 connection, got %d", server.ConnectionCount())
	}
}

func TestSSEConnectHookRejects(t *testing.T) {
	server := NewServer()
	server.OnConnect(func(ctx context.Context, conn *Conn) error {
		return errors.New("max connections reached")
	})

	sseH := NewSSEHandler(server)
	ts := httptest.NewServer(http.StripPrefix("/sse", sseH))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	reader := newSSEReader(resp)
	ev, err := reader.readEvent()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	if ev.Event != "error" {
		t.Errorf("Expected 'error' event, got '%s'", ev.Event)
	}

	var env struct {
		Error Error `json:"error"`
	}
	json.Unmarshal([]byte(ev.Data), &env)
	if env.Error.Code != CodeServerError {
		t.Errorf("Expected server error code, got %d", env.Error.Code)
	}
	if env.Error.Message != "max connections reached" {
		t.Errorf("Expected 'max connections reached', got %s", env.Error.Message)
	}

	time.Sleep(50 * time.Millisecond)
	if server.ConnectionCount() != 0 {
		t.Errorf("Expected 0 connections, got %d", server.ConnectionCount())
	}
}

func TestSSEDisconnectHook(t *testing.T) {
	ts, server := setupSSETestServer(t)
	defer ts.Close()

	var called atomic.Int32
	server.OnDisconnect(func(ctx context.Context, conn *Conn) {
		called.Add(1)
	})

	resp, _, _ := connectSSE(t, ts)

	time.Sleep(50 * time.Millisecond)

	resp.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for called.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if called.Load() != 1 {
		t.Errorf("Expected disconnect hook called once, got %d", called.Load())
	}
	if server.ConnectionCount() != 0 {
		t.Errorf("Expected 0 connections, got %d", server.ConnectionCount())
	}
}

func TestSSEKeepAlive(t *testing.T) {
	ts, _ := setupSSETestServer(t, ServerOptions{KeepAlive: 20 * time.Millisecond})
	defer ts.Close()

	resp, reader, _ := connectSSE(t, ts)
	defer resp.Body.Close()

	for reader.scanner.Scan() {
		if reader.scanner.Text() == ": keep-alive" {
			return
		}
	}
	t.Fatal("no keep-alive comment received")
}

func TestSSEInvalidConnectionID(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp := postRPC(t, ts, "nonexistent", `{"jsonrpc":"2.0","method":"echo","id":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestSSEUnknownRoute(t *testing.T) {
	ts, _ := setupSSETestServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/sse/other", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestSSEServerClose(t *testing.T) {
	ts, server := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	server.Close()

	if _, err := reader.readEvent(); err == nil {
		t.Error("Expected the stream to end")
	}
	postResp := postRPC(t, ts, connID, `{"jsonrpc":"2.0","method":"echo","id":1}`)
	if postResp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", postResp.StatusCode)
	}
}

func TestMixedBroadcast(t *testing.T) {
	ts, server := setupSSETestServer(t)
	defer ts.Close()

	resp, reader, _ := connectSSE(t, ts)
	defer resp.Body.Close()

	wsConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WS: %v", err)
	}
	defer wsConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for server.ConnectionCount() != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.ConnectionCount() != 2 {
		t.Fatalf("Expected 2 connections, got %d", server.ConnectionCount())
	}

	if err := server.Broadcast("notification", &NotificationEvent{Message: "everyone"}); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	msg := reader.readMessageEvent(t)
	if msg["method"] != "notification" {
		t.Errorf("SSE: expected notification, got %v", msg)
	}
	wsMsg := readMessage(t, wsConn)
	if wsMsg["method"] != "notification" {
		t.Errorf("WS: expected notification, got %v", wsMsg)
	}
}

func TestSSEServerCallsClient(t *testing.T) {
	server := NewServer()
	conns := make(chan *Conn, 1)
	server.OnConnect(func(ctx context.Context, conn *Conn) error {
		conns <- conn
		return nil
	})

	sseH := NewSSEHandler(server)
	mux := http.NewServeMux()
	mux.Handle("/sse", http.StripPrefix("/sse", sseH))
	mux.Handle("/sse/", http.StripPrefix("/sse", sseH))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, reader, connID := connectSSE(t, ts)
	defer resp.Body.Close()

	conn := <-conns
	call, err := conn.Go("client.name", nil)
	if err != nil {
		t.Fatalf("Go failed: %v", err)
	}

	msg := reader.readMessageEvent(t)
	if msg["method"] != "client.name" {
		t.Fatalf("Expected server call, got %v", msg)
	}
	id := int(msg["id"].(float64))
	postRPC(t, ts, connID, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"browser"}`, id))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var name string
	if err := call.Decode(ctx, &name); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if name != "browser" {
		t.Errorf("Expected browser, got %q", name)
	}
}
