package jrpc

import (
	"testing"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want messageKind
	}{
		{`{"jsonrpc":"2.0","id":1,"error":{"code":1,"message":"x"}}`, kindError},
		{`{"id":1,"error":{"code":1},"result":2}`, kindError},
		{`{"id":1,"error":null,"result":2}`, kindResponse},
		{`{"jsonrpc":"2.0","id":1,"result":null}`, kindResponse},
		{`{"jsonrpc":"2.0","result":1}`, kindMalformed},
		{`{"jsonrpc":"2.0","method":"m"}`, kindRequest},
		{`{"jsonrpc":"2.0","method":"m","id":1,"params":[]}`, kindRequest},
		{`{"method":null}`, kindMalformed},
		{`{}`, kindMalformed},
		{`[]`, kindMalformed},
		{`"method"`, kindMalformed},
	}
	for _, tt := range tests {
		got, _ := classify(jsontext.Value(tt.raw))
		assert.Equal(t, tt.want, got, "classify(%s)", tt.raw)
	}
}

func TestCallID(t *testing.T) {
	tests := []struct {
		raw string
		id  int64
		ok  bool
	}{
		{`3`, 3, true},
		{`-1`, -1, true},
		{`"3"`, 0, false},
		{`null`, 0, false},
		{`1.5`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		id, ok := callID(jsontext.Value(tt.raw))
		assert.Equal(t, tt.ok, ok, "callID(%s)", tt.raw)
		assert.Equal(t, tt.id, id, "callID(%s)", tt.raw)
	}
}

func TestMessageKindString(t *testing.T) {
	assert.Equal(t, "request", kindRequest.String())
	assert.Equal(t, "response", kindResponse.String())
	assert.Equal(t, "error", kindError.String())
	assert.Equal(t, "malformed", kindMalformed.String())
}
