// Package expose publishes the properties of an object as JSON-RPC methods.
//
// An object named "Counter" with a property "value" is served as the method
// "Counter.value". Calling it without params reads the property; calling it
// with one value writes it and answers "OK". Changes are announced as
// notifications of the same method carrying the new value. NewRESTHandler
// serves the same properties as plain-text HTTP resources.
package expose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/marrasen/jrpc"
)

// Registrar is where an Object registers its methods. *jrpc.Engine and
// *jrpc.Conn satisfy it.
type Registrar interface {
	Register(method string, shape jrpc.ParamShape, handler any) error
}

// Notifier sends a notification, for example (*jrpc.Server).Broadcast or
// (*jrpc.Engine).Notify.
type Notifier func(method string, params any) error

var errNotFound = errors.New("expose: unknown property")

type property struct {
	read    func() (any, error)
	write   func(jsontext.Value) error
	decodes func(jsontext.Value) bool
}

// accepts reports whether raw decodes to the property's type.
func (p *property) accepts(raw jsontext.Value) bool {
	return p.decodes != nil && p.decodes(raw)
}

// Object is a named set of properties.
type Object struct {
	name    string
	version string

	mu       sync.RWMutex
	props    map[string]*property
	notifier Notifier
}

// NewObject creates an object. A non-empty version is served as the
// read-only property "version".
func NewObject(name, version string) *Object {
	o := &Object{
		name:    name,
		version: version,
		props:   make(map[string]*property),
	}
	if version != "" {
		Property(o, "version", func() string { return o.version }, nil)
	}
	return o
}

// Name returns the object name.
func (o *Object) Name() string {
	return o.name
}

// Version returns the version the object was created with.
func (o *Object) Version() string {
	return o.version
}

// Property adds a property to o. A nil get makes it write-only and a nil set
// makes it read-only. Adding an existing name replaces it. Successful writes
// made through a method or the REST handler are announced with Changed; set
// should not announce them again.
func Property[T any](o *Object, name string, get func() T, set func(T) error) {
	p := &property{
		decodes: func(raw jsontext.Value) bool {
			var v T
			return json.Unmarshal(raw, &v) == nil
		},
	}
	if get != nil {
		p.read = func() (any, error) { return get(), nil }
	}
	if set != nil {
		p.write = func(raw jsontext.Value) error {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return jrpc.ErrInvalidParams(fmt.Sprintf("%s.%s: %v", o.name, name, err))
			}
			return set(v)
		}
	}

	o.mu.Lock()
	o.props[name] = p
	o.mu.Unlock()
}

// Properties returns the property names, sorted.
func (o *Object) Properties() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.props))
	for name := range o.props {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Method returns the method name that serves property.
func (o *Object) Method(property string) string {
	return o.name + "." + property
}

// Bind registers one method per property on r.
func (o *Object) Bind(r Registrar) error {
	for _, name := range o.Properties() {
		if err := r.Register(o.Method(name), jrpc.PassThrough(), o.handler(name)); err != nil {
			return err
		}
	}
	return nil
}

// Notify sets where Changed sends its notifications.
func (o *Object) Notify(n Notifier) {
	o.mu.Lock()
	o.notifier = n
	o.mu.Unlock()
}

// Changed announces the current value of property. Write-only properties
// and objects without a notifier announce nothing.
func (o *Object) Changed(property string) error {
	o.mu.RLock()
	p, ok := o.props[property]
	n := o.notifier
	o.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, o.Method(property))
	}
	if n == nil || p.read == nil {
		return nil
	}
	v, err := p.read()
	if err != nil {
		return err
	}
	return n(o.Method(property), v)
}

func (o *Object) lookup(name string) *property {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.props[name]
}

func (o *Object) handler(name string) jrpc.HandlerFunc {
	method := o.Method(name)
	return func(ctx context.Context, args jrpc.Args) (any, error) {
		p := o.lookup(name)
		if p == nil {
			return nil, notFound(method)
		}

		value, err := writeValue(args)
		if err != nil {
			return nil, err
		}
		if value == nil {
			if p.read == nil {
				return nil, notFound(method)
			}
			return p.read()
		}

		if p.write == nil {
			return nil, notFound(method)
		}
		if err := o.store(name, p, value); err != nil {
			return nil, err
		}
		return "OK", nil
	}
}

// store writes raw to p and announces the new value. The write stands even
// if the announcement fails.
func (o *Object) store(name string, p *property, raw jsontext.Value) error {
	if err := p.write(raw); err != nil {
		return err
	}
	_ = o.Changed(name)
	return nil
}

// writeValue extracts the value to write from pass-through args. It returns
// nil for a read: no params, null, or an empty array.
func writeValue(args jrpc.Args) (jsontext.Value, error) {
	if !args.Has(0) {
		return nil, nil
	}
	raw := jsontext.Value(bytes.TrimSpace(args[0]))
	switch {
	case string(raw) == "null":
		return nil, nil
	case len(raw) > 0 && raw[0] == '[':
		var items []jsontext.Value
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, jrpc.ErrInvalidParams(err.Error())
		}
		switch len(items) {
		case 0:
			return nil, nil
		case 1:
			return items[0], nil
		}
		return nil, jrpc.ErrInvalidParams(fmt.Sprintf("expected one value, got %d", len(items)))
	}
	return raw, nil
}

func notFound(method string) error {
	return jrpc.NewServerError(jrpc.CodeMethodNotFound, "Method not found. The method does not exist / is not available.", method)
}
