package jrpc

import (
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// EncodeRequest serializes a call. A call always carries a params member,
// null when params is nil.
func EncodeRequest(method string, params any, id int64) ([]byte, error) {
	req, err := newCallRequest(method, params, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

// EncodeNotification serializes a notification. Empty params are omitted.
func EncodeNotification(method string, params any) ([]byte, error) {
	req, err := newNotificationRequest(method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

// EncodeBatch serializes requests as a single batch frame.
func EncodeBatch(reqs []*Request) ([]byte, error) {
	return json.Marshal(reqs)
}

// decodeOptions apply to every inbound value. Duplicate member names are
// accepted with the last one taking effect, and invalid UTF-8 is replaced.
var decodeOptions = json.JoinOptions(
	jsontext.AllowDuplicateNames(true),
	jsontext.AllowInvalidUTF8(true),
)

// Decode parses a raw frame. Invalid JSON yields a *ParseError.
func Decode(raw []byte) (jsontext.Value, error) {
	var v jsontext.Value
	if err := json.Unmarshal(raw, &v, decodeOptions); err != nil {
		return nil, &ParseError{Err: err}
	}
	return v, nil
}

func newCallRequest(method string, params any, id int64) (*Request, error) {
	p, err := marshalValue(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  p,
		ID:      jsontext.Value(strconv.FormatInt(id, 10)),
	}, nil
}

func newNotificationRequest(method string, params any) (*Request, error) {
	p, err := marshalValue(params)
	if err != nil {
		return nil, err
	}
	if isEmptyValue(p) {
		p = nil
	}
	return &Request{JSONRPC: Version, Method: method, Params: p}, nil
}

// marshalValue encodes v, passing already encoded values through. nil
// becomes null.
func marshalValue(v any) (jsontext.Value, error) {
	switch v := v.(type) {
	case nil:
		return null, nil
	case jsontext.Value:
		if len(v) == 0 {
			return null, nil
		}
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsontext.Value(b), nil
}

// kindOf returns the first byte of a JSON value: 'n', 't', 'f', '"', '0'
// for numbers, '{' or '['. It returns 0 for an empty value.
func kindOf(v jsontext.Value) byte {
	for _, c := range v {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			return '0'
		default:
			return c
		}
	}
	return 0
}

func isEmptyValue(v jsontext.Value) bool {
	switch kindOf(v) {
	case 0, 'n':
		return true
	case '{':
		var m map[string]jsontext.Value
		return json.Unmarshal(v, &m) == nil && len(m) == 0
	case '[':
		var a []jsontext.Value
		return json.Unmarshal(v, &a) == nil && len(a) == 0
	}
	return false
}
