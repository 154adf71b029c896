package jrpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"
)

// handlerEntry is a registered method.
type handlerEntry struct {
	method  string
	shape   ParamShape
	handler Handler
}

// dispatcher maps method names to handlers and invokes them.
type dispatcher struct {
	mu         sync.RWMutex
	entries    map[string]*handlerEntry
	middleware []Middleware

	logger  zerolog.Logger
	metrics *Metrics
}

func newDispatcher(logger zerolog.Logger, metrics *Metrics) *dispatcher {
	return &dispatcher{
		entries: make(map[string]*handlerEntry),
		logger:  logger,
		metrics: metrics,
	}
}

func (d *dispatcher) register(method string, shape ParamShape, h any) error {
	if method == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidArgument)
	}
	if !shape.valid() {
		return fmt.Errorf("%w: unrecognized parameter shape for %q", ErrInvalidArgument, method)
	}
	handler, err := asHandler(h)
	if err != nil {
		return fmt.Errorf("register %q: %w", method, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[method] = &handlerEntry{method: method, shape: shape, handler: handler}
	return nil
}

func (d *dispatcher) unregister(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, method)
}

func (d *dispatcher) use(mw ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = append(d.middleware, mw...)
}

func (d *dispatcher) lookup(method string) (*handlerEntry, []Middleware, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[method]
	return e, d.middleware, ok
}

func (d *dispatcher) methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// invoke runs req and returns the reply due, or nil for a notification.
func (d *dispatcher) invoke(ctx context.Context, req *Request) reply {
	result, rerr := d.run(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if rerr != nil {
		d.metrics.dispatchError(rerr.Code)
		return newErrorEnvelope(req.ID, rerr)
	}
	return newResponse(req.ID, result)
}

func (d *dispatcher) run(ctx context.Context, req *Request) (jsontext.Value, *Error) {
	entry, middleware, ok := d.lookup(req.Method)
	if !ok {
		return nil, newError(CodeMethodNotFound, req.Method)
	}

	args, rerr := bind(entry, req.Params)
	if rerr != nil {
		return nil, rerr
	}

	h := chain(middleware, func(ctx context.Context, _ *Request) (any, error) {
		return entry.handler.ServeRPC(ctx, args)
	})

	start := time.Now()
	res, err := d.call(withRequest(ctx, req), req, h)
	d.metrics.observe(req.Method, time.Since(start))
	if err != nil {
		return nil, toWireError(err)
	}

	if isUndefined(res) {
		return jsontext.Value("true"), nil
	}
	out, err := marshalValue(res)
	if err != nil {
		return nil, newError(CodeInternalError, err.Error())
	}
	return out, nil
}

// isUndefined reports whether a handler produced no result at all: a nil
// interface or an empty raw value.
func isUndefined(res any) bool {
	if res == nil {
		return true
	}
	v, ok := res.(jsontext.Value)
	return ok && len(v) == 0
}

// call runs the middleware chain and handler, converting a panic in
// either into an error.
func (d *dispatcher) call(ctx context.Context, req *Request, h Invoker) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("method", req.Method).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(ctx, req)
}

// bind normalizes params into positional arguments according to the
// entry's declared shape. Null params count as absent. The params value
// itself is never modified.
func bind(entry *handlerEntry, params jsontext.Value) (Args, *Error) {
	if len(params) == 0 || kindOf(params) == 'n' {
		return Args{}, nil
	}
	if entry.shape.kind == shapePassThrough {
		return Args{params}, nil
	}

	switch kindOf(params) {
	case '[':
		var items []jsontext.Value
		if err := json.Unmarshal(params, &items, decodeOptions); err != nil {
			return nil, newError(CodeInvalidParams, err.Error())
		}
		return Args(items), nil

	case '{':
		if entry.shape.kind != shapeNamed {
			return nil, newError(CodeInvalidParams, "undeclared arguments of method "+entry.method)
		}
		var fields map[string]jsontext.Value
		if err := json.Unmarshal(params, &fields, decodeOptions); err != nil {
			return nil, newError(CodeInvalidParams, err.Error())
		}
		args := make(Args, len(entry.shape.names))
		consumed := make(map[string]struct{}, len(entry.shape.names))
		for i, name := range entry.shape.names {
			if v, ok := fields[name]; ok {
				args[i] = v
				consumed[name] = struct{}{}
			}
		}
		var leftover []string
		for name := range fields {
			if _, ok := consumed[name]; !ok {
				leftover = append(leftover, name)
			}
		}
		if len(leftover) > 0 {
			slices.Sort(leftover)
			return nil, newError(CodeInvalidParams, "params not used: "+strings.Join(leftover, ", "))
		}
		return args, nil
	}

	return Args{params}, nil
}
