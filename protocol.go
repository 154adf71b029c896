package jrpc

import "github.com/go-json-experiment/json/jsontext"

// Version is the only protocol version this engine speaks.
const Version = "2.0"

var null = jsontext.Value("null")

// Request is a call or a notification. A Request without ID is a notification.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
	ID      jsontext.Value `json:"id,omitzero"`
}

// IsNotification reports whether no response is expected for r.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a successful reply to a call.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id"`
	Result  jsontext.Value `json:"result"`
}

// ErrorEnvelope is a failed reply to a call, or a protocol error with a null id.
type ErrorEnvelope struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id"`
	Error   *Error         `json:"error"`
}

// reply is an outbound envelope produced while handling an inbound frame.
type reply interface {
	replyID() jsontext.Value
}

func (r *Response) replyID() jsontext.Value      { return r.ID }
func (e *ErrorEnvelope) replyID() jsontext.Value { return e.ID }

func newResponse(id, result jsontext.Value) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func newErrorEnvelope(id jsontext.Value, err *Error) *ErrorEnvelope {
	if len(id) == 0 {
		id = null
	}
	return &ErrorEnvelope{JSONRPC: Version, ID: id, Error: err}
}
