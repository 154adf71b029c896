package jrpc

import (
	"context"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/sync/errgroup"
)

type messageKind int

const (
	kindMalformed messageKind = iota
	kindError
	kindResponse
	kindRequest
)

func (k messageKind) String() string {
	switch k {
	case kindError:
		return "error"
	case kindResponse:
		return "response"
	case kindRequest:
		return "request"
	}
	return "malformed"
}

// classify decides what an inbound value is from the members it carries.
func classify(raw jsontext.Value) (messageKind, map[string]jsontext.Value) {
	if kindOf(raw) != '{' {
		return kindMalformed, nil
	}
	var fields map[string]jsontext.Value
	if err := json.Unmarshal(raw, &fields, decodeOptions); err != nil {
		return kindMalformed, nil
	}
	if e, ok := fields["error"]; ok && kindOf(e) != 'n' {
		return kindError, fields
	}
	_, hasResult := fields["result"]
	_, hasID := fields["id"]
	if hasResult && hasID {
		return kindResponse, fields
	}
	if m, ok := fields["method"]; ok && kindOf(m) == '"' {
		return kindRequest, fields
	}
	return kindMalformed, fields
}

// route handles one classified value and returns the reply due, if any.
func (e *Engine) route(ctx context.Context, raw jsontext.Value) reply {
	kind, fields := classify(raw)
	e.metrics.frameIn(kind.String())

	switch kind {
	case kindError:
		rerr := new(Error)
		if err := json.Unmarshal(fields["error"], rerr, decodeOptions); err != nil {
			rerr = newError(CodeInternalError, fields["error"])
		}
		if id, ok := callID(fields["id"]); ok {
			e.calls.reject(id, rerr)
		} else {
			e.calls.missRaw(fields["id"], "error")
		}
		return nil

	case kindResponse:
		if id, ok := callID(fields["id"]); ok {
			e.calls.resolve(id, fields["result"])
		} else {
			e.calls.missRaw(fields["id"], "response")
		}
		return nil

	case kindRequest:
		req := &Request{
			JSONRPC: Version,
			Params:  fields["params"],
			ID:      fields["id"],
		}
		if err := json.Unmarshal(fields["method"], &req.Method, decodeOptions); err != nil {
			break
		}
		return e.handlers.invoke(ctx, req)
	}

	e.metrics.dispatchError(CodeInvalidRequest)
	return newErrorEnvelope(null, newError(CodeInvalidRequest, nil))
}

// routeBatch handles every element concurrently and returns the replies
// due, in input order.
func (e *Engine) routeBatch(ctx context.Context, items []jsontext.Value) []reply {
	replies := make([]reply, len(items))

	var g errgroup.Group
	if e.options.BatchConcurrency > 0 {
		g.SetLimit(e.options.BatchConcurrency)
	}
	for i, item := range items {
		g.Go(func() error {
			replies[i] = e.route(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	out := replies[:0]
	for _, r := range replies {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// callID extracts an integer call id. null, strings and fractions are not call ids.
func callID(raw jsontext.Value) (int64, bool) {
	if kindOf(raw) != '0' {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id, decodeOptions); err != nil {
		return 0, false
	}
	return id, true
}
