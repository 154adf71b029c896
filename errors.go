package jrpc

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	// CodeParseError means invalid JSON was received.
	CodeParseError = -32700
	// CodeInvalidRequest means the JSON sent is not a valid request object.
	CodeInvalidRequest = -32600
	// CodeMethodNotFound means the method does not exist or is not available.
	CodeMethodNotFound = -32601
	// CodeInvalidParams means the method parameters did not bind.
	CodeInvalidParams = -32602
	// CodeInternalError means the handler failed.
	CodeInternalError = -32603
	// CodeServerError is the default code of a ServerError.
	CodeServerError = -32000
)

var standardMessages = map[int]string{
	CodeParseError:     "Invalid JSON was received by the server. An error occurred on the server while parsing the JSON text.",
	CodeInvalidRequest: "Invalid Request. The JSON sent is not a valid Request object.",
	CodeMethodNotFound: "Method not found. The method does not exist / is not available.",
	CodeInvalidParams:  "Invalid params. Invalid method parameter(s).",
	CodeInternalError:  "Internal error. Internal JSON-RPC error.",
}

var (
	// ErrInvalidArgument is returned when a registration is malformed.
	ErrInvalidArgument = errors.New("jrpc: invalid argument")
	// ErrNoSink is returned when the engine has nowhere to send a frame.
	ErrNoSink = errors.New("jrpc: no sink")
	// ErrClosed is returned by transports that were already closed.
	ErrClosed = errors.New("jrpc: closed")
)

// Error is the error object of an error envelope. Calls rejected by the
// peer fail with an *Error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jrpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jrpc error %d: %s", e.Code, e.Message)
}

// newError builds a standard error object. data is omitted when nil.
func newError(code int, data any) *Error {
	return &Error{Code: code, Message: standardMessages[code], Data: data}
}

// ServerError is an application error a handler raises deliberately. It is
// sent to the peer verbatim instead of being wrapped as an internal error.
type ServerError struct {
	Code    int
	Message string
	Data    any
}

// NewServerError creates a declared application error. A zero code becomes
// CodeServerError; data is optional.
func NewServerError(code int, message string, data ...any) *ServerError {
	if code == 0 {
		code = CodeServerError
	}
	e := &ServerError{Code: code, Message: message}
	if len(data) > 0 {
		e.Data = data[0]
	}
	return e
}

func (e *ServerError) Error() string {
	return e.Message
}

func (e *ServerError) wire() *Error {
	return &Error{Code: e.Code, Message: e.Message, Data: e.Data}
}

// ErrInvalidParams returns a ServerError with CodeInvalidParams. Handlers use
// it to refuse arguments they cannot work with.
func ErrInvalidParams(reason string) *ServerError {
	return NewServerError(CodeInvalidParams, standardMessages[CodeInvalidParams], reason)
}

// ParseError is returned by HandleIncoming when a frame is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jrpc: parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// toWireError converts a handler failure into the error object sent to the peer.
func toWireError(err error) *Error {
	var serr *ServerError
	if errors.As(err, &serr) {
		return serr.wire()
	}
	return newError(CodeInternalError, err.Error())
}
