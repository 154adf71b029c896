package jrpc

import "context"

type contextKey int

const (
	requestKey contextKey = iota
	connectionKey
)

// RequestFromContext returns the Request being served.
// Returns nil if not present.
func RequestFromContext(ctx context.Context) *Request {
	if req, ok := ctx.Value(requestKey).(*Request); ok {
		return req
	}
	return nil
}

// Connection returns the Conn the request arrived on.
// Returns nil if not present.
func Connection(ctx context.Context) *Conn {
	if c, ok := ctx.Value(connectionKey).(*Conn); ok {
		return c
	}
	return nil
}

// withRequest returns a context with the given request.
func withRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey, req)
}

// withConnection returns a context with the given connection.
func withConnection(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connectionKey, c)
}
