package jrpc

import (
	"context"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Call is an outbound call awaiting its response. It settles exactly once.
type Call struct {
	ID      int64
	Method  string
	Request *Request

	once   sync.Once
	done   chan struct{}
	result jsontext.Value
	err    error
}

func newCall(req *Request, id int64) *Call {
	return &Call{
		ID:      id,
		Method:  req.Method,
		Request: req,
		done:    make(chan struct{}),
	}
}

// settle completes the call. Only the first settlement has any effect.
func (c *Call) settle(result jsontext.Value, err error) bool {
	settled := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
		settled = true
	})
	return settled
}

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the raw result. It is nil until the call succeeded.
func (c *Call) Result() jsontext.Value {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

// Err returns the failure of a settled call, or nil.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call settles or ctx ends. Ending ctx does not
// withdraw the call; a late response still settles it.
func (c *Call) Wait(ctx context.Context) (jsontext.Value, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the call and unmarshals its result into v.
func (c *Call) Decode(ctx context.Context, v any) error {
	result, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(result, v, decodeOptions)
}
