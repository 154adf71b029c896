package jrpc

import (
	"context"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"
)

// Options configures an Engine.
type Options struct {
	// Logger receives correlation misses, send failures and handler panics.
	// The zero value discards everything.
	Logger zerolog.Logger
	// Metrics records engine counters. nil disables metrics.
	Metrics *Metrics
	// BatchConcurrency bounds how many members of one inbound batch run at
	// once. 0 means no bound.
	BatchConcurrency int
}

func mergeOptions(opts []Options) Options {
	var options Options
	if len(opts) > 0 {
		opt := opts[0]
		options.Logger = opt.Logger
		options.Metrics = opt.Metrics
		if opt.BatchConcurrency > 0 {
			options.BatchConcurrency = opt.BatchConcurrency
		}
	}
	return options
}

// Engine is a JSON-RPC 2.0 peer. It encodes outbound calls and
// notifications, correlates their replies, and dispatches inbound requests
// to registered handlers. Frames leave through the Sink; the host feeds
// inbound frames to HandleIncoming.
type Engine struct {
	sink     Sink
	calls    *correlator
	handlers *dispatcher
	options  Options
	logger   zerolog.Logger
	metrics  *Metrics
}

// New creates an engine that writes frames to sink. sink may be nil when the
// engine is only used through Process.
func New(sink Sink, opts ...Options) *Engine {
	options := mergeOptions(opts)
	return &Engine{
		sink:     sink,
		calls:    newCorrelator(options.Logger, options.Metrics),
		handlers: newDispatcher(options.Logger, options.Metrics),
		options:  options,
		logger:   options.Logger,
		metrics:  options.Metrics,
	}
}

// Register binds method to handler. handler may be a Handler, a HandlerFunc,
// a func(context.Context, Args) (any, error), or any function Func accepts.
// Registering an existing method replaces it.
func (e *Engine) Register(method string, shape ParamShape, handler any) error {
	return e.handlers.register(method, shape, handler)
}

// Unregister removes method. Removing an unknown method is a no-op.
func (e *Engine) Unregister(method string) {
	e.handlers.unregister(method)
}

// Use adds middleware around every handler invocation.
// Middleware is executed in the order it is added.
func (e *Engine) Use(mw ...Middleware) {
	e.handlers.use(mw...)
}

// Methods returns the registered method names, sorted.
func (e *Engine) Methods() []string {
	return e.handlers.methods()
}

// Pending returns the number of calls awaiting a response.
func (e *Engine) Pending() int {
	return e.calls.len()
}

// Go sends a call and returns without waiting for the response.
func (e *Engine) Go(method string, params any) (*Call, error) {
	call, err := e.calls.begin(method, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	data, err := json.Marshal(call.Request)
	if err == nil {
		err = e.send(data)
	}
	if err != nil {
		e.calls.forget(call.ID)
		return nil, err
	}
	return call, nil
}

// Call sends a call and waits for its result, which is decoded into result
// unless result is nil. A peer rejection is returned as *Error. When ctx
// ends first the call stays pending; only the wait is abandoned.
func (e *Engine) Call(ctx context.Context, method string, params any, result any) error {
	call, err := e.Go(method, params)
	if err != nil {
		return err
	}
	return call.Decode(ctx, result)
}

// Notify sends a notification.
func (e *Engine) Notify(method string, params any) error {
	data, err := EncodeNotification(method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	return e.send(data)
}

// BatchItem is one member of an outbound batch.
type BatchItem struct {
	Method       string
	Params       any
	Notification bool
}

// CallItem is a batch member that expects a result.
func CallItem(method string, params any) BatchItem {
	return BatchItem{Method: method, Params: params}
}

// NotifyItem is a batch member that expects nothing back.
func NotifyItem(method string, params any) BatchItem {
	return BatchItem{Method: method, Params: params, Notification: true}
}

// Batch sends items as one frame and waits until every call in it has
// settled. It returns one Call per CallItem, in order; a rejected member is
// reported through its Err, not through the returned error.
func (e *Engine) Batch(ctx context.Context, items ...BatchItem) ([]*Call, error) {
	reqs := make([]*Request, 0, len(items))
	var calls []*Call
	abort := func() {
		for _, c := range calls {
			e.calls.forget(c.ID)
		}
	}

	for _, item := range items {
		if item.Notification {
			req, err := newNotificationRequest(item.Method, item.Params)
			if err != nil {
				abort()
				return nil, fmt.Errorf("encode %s: %w", item.Method, err)
			}
			reqs = append(reqs, req)
			continue
		}
		call, err := e.calls.begin(item.Method, item.Params)
		if err != nil {
			abort()
			return nil, fmt.Errorf("encode %s: %w", item.Method, err)
		}
		calls = append(calls, call)
		reqs = append(reqs, call.Request)
	}

	data, err := EncodeBatch(reqs)
	if err == nil {
		err = e.send(data)
	}
	if err != nil {
		abort()
		return nil, err
	}

	for _, c := range calls {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return calls, ctx.Err()
		}
	}
	return calls, nil
}

// HandleIncoming processes one inbound frame and sends the reply due, if
// any. A frame that is not valid JSON is answered with a parse error
// envelope and reported as *ParseError.
func (e *Engine) HandleIncoming(ctx context.Context, raw []byte) error {
	out, err := e.Process(ctx, raw)
	if out != nil {
		if serr := e.send(out); serr != nil {
			e.logger.Error().Err(serr).Msg("failed to send reply")
			if err == nil {
				err = serr
			}
		}
	}
	return err
}

// Process processes one inbound frame and returns the reply frame instead
// of sending it. The reply is nil when nothing is due.
func (e *Engine) Process(ctx context.Context, raw []byte) ([]byte, error) {
	msg, err := Decode(raw)
	if err != nil {
		e.metrics.frameIn("invalid")
		e.logger.Debug().Err(err).Msg("discarding unparsable frame")
		out, _ := json.Marshal(newErrorEnvelope(null, newError(CodeParseError, nil)))
		return out, err
	}

	var replies []reply
	if kindOf(msg) == '[' {
		var items []jsontext.Value
		if err := json.Unmarshal(msg, &items, decodeOptions); err != nil {
			return nil, &ParseError{Err: err}
		}
		replies = e.routeBatch(ctx, items)
	} else if r := e.route(ctx, msg); r != nil {
		replies = []reply{r}
	}

	switch len(replies) {
	case 0:
		return nil, nil
	case 1:
		return e.encodeReply(replies[0])
	}
	return e.encodeReply(replies)
}

// encodeReply marshals replies. A result that does not marshal is replaced
// by an internal error for the same id.
func (e *Engine) encodeReply(v any) ([]byte, error) {
	out, err := json.Marshal(v)
	if err == nil {
		return out, nil
	}
	e.logger.Error().Err(err).Msg("failed to encode reply")
	if r, ok := v.(reply); ok {
		return json.Marshal(newErrorEnvelope(r.replyID(), newError(CodeInternalError, err.Error())))
	}
	return nil, err
}

func (e *Engine) send(data []byte) error {
	if e.sink == nil {
		return ErrNoSink
	}
	if err := e.sink.Send(data); err != nil {
		return err
	}
	e.metrics.frameOut()
	return nil
}
