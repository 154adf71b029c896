package jrpc

import "context"

// Invoker is one step of the middleware chain around a handler.
type Invoker func(ctx context.Context, req *Request) (any, error)

// Middleware wraps an Invoker to add cross-cutting behavior.
type Middleware func(next Invoker) Invoker

// chain applies middleware so that the first registered is outermost.
func chain(middleware []Middleware, final Invoker) Invoker {
	h := final
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
