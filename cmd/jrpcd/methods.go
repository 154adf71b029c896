package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"

	"github.com/marrasen/jrpc"
	"github.com/marrasen/jrpc/expose"
)

// codeDemoFailure is the code of the error the fail method raises.
const codeDemoFailure = -32001

// registerDemo registers the demo methods and the Counter object on r.
func registerDemo(r expose.Registrar, counter *Counter) error {
	if err := r.Register("add", jrpc.Positional(), func(a, b float64) float64 {
		return a + b
	}); err != nil {
		return err
	}
	if err := r.Register("subtract", jrpc.Named("minuend", "subtrahend"), func(minuend, subtrahend float64) float64 {
		return minuend - subtrahend
	}); err != nil {
		return err
	}
	if err := r.Register("echo", jrpc.PassThrough(), func(v jsontext.Value) jsontext.Value {
		return v
	}); err != nil {
		return err
	}
	if err := r.Register("fail", jrpc.Positional(), func(ctx context.Context, reason string) error {
		if reason == "" {
			return errors.New("unexpected failure")
		}
		return jrpc.NewServerError(codeDemoFailure, reason)
	}); err != nil {
		return err
	}
	return counter.Bind(r)
}

// Counter is the exposed demo object. Its value property counts ticks and
// can be set by peers.
type Counter struct {
	*expose.Object

	mu    sync.Mutex
	value int
}

// NewCounter creates the Counter object.
func NewCounter() *Counter {
	c := &Counter{Object: expose.NewObject("Counter", "1.0")}
	expose.Property(c.Object, "value", c.Value, c.Set)
	return c
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores v. Writes through the exposed property are announced by
// the object.
func (c *Counter) Set(v int) error {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
	return nil
}

func (c *Counter) incr() error {
	c.mu.Lock()
	c.value++
	c.mu.Unlock()
	return c.Changed("value")
}

// Run increments the counter every interval until ctx ends.
func (c *Counter) Run(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.incr(); err != nil {
				logger.Warn().Err(err).Msg("counter broadcast failed")
			}
		}
	}
}
