package http

import "strings"

// Header is a single header field.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header multimap. Names compare case-insensitively.
//
// Add follows the request semantics of the server: a second field with a
// name already present has its value appended to the existing one without a
// separator. Append keeps fields separate, which responses need for
// Set-Cookie.
type Headers []Header

func (h Headers) index(name string) int {
	for i := range h {
		if strings.EqualFold(h[i].Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of the first field called name.
func (h Headers) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h[i].Value
	}
	return ""
}

// Lookup is like Get but also reports whether the field exists.
func (h Headers) Lookup(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h[i].Value, true
	}
	return "", false
}

// Has reports whether a field called name exists.
func (h Headers) Has(name string) bool { return h.index(name) >= 0 }

// Add appends value to an existing field called name or adds a new field.
func (h *Headers) Add(name, value string) {
	if i := h.index(name); i >= 0 {
		(*h)[i].Value += value
		return
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Append adds a new field even if one with the same name exists.
func (h *Headers) Append(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces every field called name with a single field.
func (h *Headers) Set(name, value string) {
	i := h.index(name)
	if i < 0 {
		*h = append(*h, Header{Name: name, Value: value})
		return
	}
	(*h)[i].Value = value
	h.delFrom(name, i+1)
}

// Del removes every field called name.
func (h *Headers) Del(name string) {
	h.delFrom(name, 0)
}

func (h *Headers) delFrom(name string, start int) {
	s := *h
	out := s[:start]
	for _, f := range s[start:] {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	clear(s[len(out):])
	*h = out
}

// Values returns every value of fields called name in order.
func (h Headers) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Reset drops all fields but keeps the storage.
func (h *Headers) Reset() {
	clear(*h)
	*h = (*h)[:0]
}

// hasToken reports whether the comma separated value contains token,
// ignoring case and surrounding whitespace.
func hasToken(value, token string) bool {
	for value != "" {
		var part string
		part, value, _ = strings.Cut(value, ",")
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// lastToken returns the last element of a comma separated value.
func lastToken(value string) string {
	if i := strings.LastIndexByte(value, ','); i >= 0 {
		value = value[i+1:]
	}
	return strings.TrimSpace(value)
}

// headerCarrier exposes Headers to OpenTelemetry propagators.
type headerCarrier struct {
	headers *Headers
}

func (c headerCarrier) Get(key string) string { return c.headers.Get(key) }

func (c headerCarrier) Set(key, value string) { c.headers.Set(key, value) }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Name)
	}
	return keys
}
