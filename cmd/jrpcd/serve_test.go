package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrasen/jrpc"
)

func newTestMux(t *testing.T) (*httptest.Server, *jrpc.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts := jrpc.Options{Metrics: jrpc.NewMetrics(reg)}
	server := jrpc.NewServer(jrpc.ServerOptions{Engine: opts})
	counter := NewCounter()
	counter.Notify(server.Broadcast)

	mux, err := newMux(server, counter, opts, reg)
	require.NoError(t, err)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
	})
	return ts, server
}

func TestServeHTTPAndMetrics(t *testing.T) {
	ts, _ := newTestMux(t)

	resp, err := http.Post(ts.URL+"/rpc", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"add","params":[2,3],"id":1}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":5}`, string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `jrpc_frames_in_total{kind="request"} 1`)
	assert.Contains(t, string(body), `jrpc_frames_out_total 0`)
}

func TestServeRESTProperties(t *testing.T) {
	ts, _ := newTestMux(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/Counter/value", strings.NewReader("12"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ts.URL + "/api/Counter/value")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12", string(body))

	resp, err = http.Get(ts.URL + "/api/Counter/version")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "1.0", string(body))
}

func TestServeWebSocketRoundTrip(t *testing.T) {
	ts, _ := newTestMux(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := jrpc.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	require.NoError(t, err)
	defer conn.Close()

	var diff float64
	require.NoError(t, conn.Call(ctx, "subtract", map[string]int{"minuend": 42, "subtrahend": 23}, &diff))
	assert.Equal(t, float64(19), diff)

	var ok string
	require.NoError(t, conn.Call(ctx, "Counter.value", 3, &ok))
	assert.Equal(t, "OK", ok)

	var echoed jsontext.Value
	require.NoError(t, conn.Call(ctx, "echo", []string{"x"}, &echoed))
	assert.JSONEq(t, `["x"]`, string(echoed))
}
