package expose

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/marrasen/jrpc"
)

const maxBodySize = 1 << 20

type restHandler struct {
	objects map[string]*Object
}

// NewRESTHandler serves the properties of objects as plain-text resources.
// GET /<Object>/<property> answers the value and PUT writes the request body
// to it. Unknown objects and properties yield 404, any other method 405.
// Mount it with http.StripPrefix.
func NewRESTHandler(objects ...*Object) http.Handler {
	h := &restHandler{objects: make(map[string]*Object, len(objects))}
	for _, o := range objects {
		h.objects[o.name] = o
	}
	return h
}

func (h *restHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPut {
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name, prop, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	o := h.objects[name]
	if !ok || o == nil {
		http.NotFound(w, r)
		return
	}
	p := o.lookup(prop)
	if p == nil {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodGet {
		h.get(w, p)
		return
	}
	h.put(w, r, o, prop, p)
}

func (h *restHandler) get(w http.ResponseWriter, p *property) {
	if p.read == nil {
		w.Header().Set("Allow", http.MethodPut)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, err := p.read()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	text, err := formatText(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, text)
}

func (h *restHandler) put(w http.ResponseWriter, r *http.Request, o *Object, prop string, p *property) {
	if p.write == nil {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := o.store(prop, p, textValue(p, body)); err != nil {
		var serr *jrpc.ServerError
		if errors.As(err, &serr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "OK")
}

// textValue converts a plain-text body to the value written to p. A body
// that is JSON of the property's type is used as is; anything else is
// taken as a string.
func textValue(p *property, body []byte) jsontext.Value {
	raw := jsontext.Value(bytes.TrimSpace(body))
	if raw.IsValid() && p.accepts(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// formatText renders a property value as plain text. Strings are written
// bare, everything else as JSON.
func formatText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
