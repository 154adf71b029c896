package jrpc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

type shapeKind int

const (
	shapeUndeclared shapeKind = iota
	shapePassThrough
	shapePositional
	shapeNamed
	shapeInvalid
)

// ParamShape declares how inbound params bind to handler arguments.
type ParamShape struct {
	kind  shapeKind
	names []string
}

// PassThrough hands the whole params value to the handler as its only argument.
func PassThrough() ParamShape {
	return ParamShape{kind: shapePassThrough}
}

// Positional binds array params positionally. Object params are refused.
func Positional() ParamShape {
	return ParamShape{kind: shapePositional}
}

// Named binds object params to positional arguments in the order of names.
// Array params are still spread positionally.
func Named(names ...string) ParamShape {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup || n == "" {
			return ParamShape{kind: shapeInvalid}
		}
		seen[n] = struct{}{}
	}
	return ParamShape{kind: shapeNamed, names: append([]string(nil), names...)}
}

// Names returns the declared names of a Named shape.
func (s ParamShape) Names() []string {
	return append([]string(nil), s.names...)
}

func (s ParamShape) String() string {
	switch s.kind {
	case shapeUndeclared:
		return "undeclared"
	case shapePassThrough:
		return "pass"
	case shapePositional:
		return "positional"
	case shapeNamed:
		return fmt.Sprintf("named%v", s.names)
	}
	return "invalid"
}

func (s ParamShape) valid() bool {
	return s.kind >= shapeUndeclared && s.kind < shapeInvalid
}

// Args are the bound arguments of an invocation. A nil element is an
// argument the caller left out.
type Args []jsontext.Value

// Has reports whether argument i was supplied.
func (a Args) Has(i int) bool {
	return i < len(a) && a[i] != nil
}

// Decode unmarshals argument i into v. A missing argument leaves v untouched.
func (a Args) Decode(i int, v any) error {
	if !a.Has(i) {
		return nil
	}
	if err := json.Unmarshal(a[i], v, decodeOptions); err != nil {
		return ErrInvalidParams(fmt.Sprintf("argument %d: %v", i, err))
	}
	return nil
}

// Handler serves one method.
type Handler interface {
	ServeRPC(ctx context.Context, args Args) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

func (f HandlerFunc) ServeRPC(ctx context.Context, args Args) (any, error) {
	return f(ctx, args)
}

// Func adapts an arbitrary Go function to a HandlerFunc. The function may
// take a leading context.Context followed by any number of JSON-decodable
// parameters, the last of which may be variadic. It may return nothing, a
// result, an error, or a result and an error.
//
// Arguments the caller left out decode as zero values; surplus arguments are
// refused with an invalid params error.
func Func(fn any) (HandlerFunc, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: handler is not a function", ErrInvalidArgument)
	}
	t := v.Type()

	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		first = 1
	}

	var resultIdx, errIdx = -1, -1
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			errIdx = 0
		} else {
			resultIdx = 0
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result of %s must be error", ErrInvalidArgument, t)
		}
		resultIdx, errIdx = 0, 1
	default:
		return nil, fmt.Errorf("%w: %s returns too many values", ErrInvalidArgument, t)
	}

	params := make([]reflect.Type, 0, t.NumIn()-first)
	for i := first; i < t.NumIn(); i++ {
		params = append(params, t.In(i))
	}
	variadic := t.IsVariadic()

	return func(ctx context.Context, args Args) (any, error) {
		in, err := bindArgs(params, variadic, args)
		if err != nil {
			return nil, err
		}
		if first == 1 {
			in = append([]reflect.Value{reflect.ValueOf(ctx)}, in...)
		}

		var out []reflect.Value
		if variadic {
			out = v.CallSlice(in)
		} else {
			out = v.Call(in)
		}

		if errIdx >= 0 && !out[errIdx].IsNil() {
			return nil, out[errIdx].Interface().(error)
		}
		if resultIdx >= 0 {
			return out[resultIdx].Interface(), nil
		}
		return nil, nil
	}, nil
}

// bindArgs decodes args into values of the given parameter types.
func bindArgs(params []reflect.Type, variadic bool, args Args) ([]reflect.Value, error) {
	fixed := len(params)
	if variadic {
		fixed--
	}
	if !variadic && len(args) > fixed {
		return nil, ErrInvalidParams(fmt.Sprintf("expected at most %d arguments, got %d", fixed, len(args)))
	}

	in := make([]reflect.Value, 0, len(params))
	for i := 0; i < fixed; i++ {
		arg := reflect.New(params[i])
		if err := args.Decode(i, arg.Interface()); err != nil {
			return nil, err
		}
		in = append(in, arg.Elem())
	}
	if variadic {
		elem := params[fixed].Elem()
		rest := reflect.MakeSlice(params[fixed], 0, max(len(args)-fixed, 0))
		for i := fixed; i < len(args); i++ {
			arg := reflect.New(elem)
			if err := args.Decode(i, arg.Interface()); err != nil {
				return nil, err
			}
			rest = reflect.Append(rest, arg.Elem())
		}
		in = append(in, rest)
	}
	return in, nil
}

// asHandler turns what Register accepts into a Handler.
func asHandler(h any) (Handler, error) {
	switch h := h.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	case Handler:
		if v := reflect.ValueOf(h); v.Kind() == reflect.Func && v.IsNil() {
			return nil, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
		}
		return h, nil
	case func(context.Context, Args) (any, error):
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
		}
		return HandlerFunc(h), nil
	}
	return Func(h)
}
