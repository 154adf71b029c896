package jrpc

import (
	"sync"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"
)

// correlator assigns call ids and matches replies to pending calls.
type correlator struct {
	mu      sync.Mutex
	nextID  int64
	pending map[int64]*Call

	logger  zerolog.Logger
	metrics *Metrics
}

func newCorrelator(logger zerolog.Logger, metrics *Metrics) *correlator {
	return &correlator{
		pending: make(map[int64]*Call),
		logger:  logger,
		metrics: metrics,
	}
}

// begin registers a new pending call for method.
func (c *correlator) begin(method string, params any) (*Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID + 1
	req, err := newCallRequest(method, params, id)
	if err != nil {
		return nil, err
	}
	c.nextID = id

	call := newCall(req, id)
	c.pending[id] = call
	c.metrics.pendingAdd(1)
	return call, nil
}

// take removes and returns the pending call for id.
func (c *correlator) take(id int64) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.metrics.pendingAdd(-1)
	}
	return call, ok
}

// resolve completes the call id with result. Unknown ids are logged and ignored.
func (c *correlator) resolve(id int64, result jsontext.Value) bool {
	call, ok := c.take(id)
	if !ok {
		c.miss(id, "response")
		return false
	}
	return call.settle(result, nil)
}

// reject fails the call id with rerr. Unknown ids are logged and ignored.
func (c *correlator) reject(id int64, rerr *Error) bool {
	call, ok := c.take(id)
	if !ok {
		c.miss(id, "error")
		return false
	}
	return call.settle(nil, rerr)
}

// forget drops a pending call whose frame never left the engine.
func (c *correlator) forget(id int64) {
	c.take(id)
}

func (c *correlator) miss(id int64, kind string) {
	c.metrics.correlationMiss()
	c.logger.Warn().Int64("id", id).Str("kind", kind).Msg("unknown request")
}

// missRaw records a reply whose id is not a call id at all.
func (c *correlator) missRaw(id jsontext.Value, kind string) {
	if len(id) == 0 {
		id = null
	}
	c.metrics.correlationMiss()
	c.logger.Warn().RawJSON("id", id).Str("kind", kind).Msg("unknown request")
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
