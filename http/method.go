package http

import "strings"

// Method is a bit set of request methods. A route registered for several
// methods carries all of their bits.
type Method uint16

const (
	MethodOptions Method = 1 << iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodTrace
	MethodConnect
	MethodPatch
	// MethodExtension tags every request method not listed above.
	MethodExtension

	MethodAll = MethodOptions | MethodGet | MethodHead | MethodPost | MethodPut |
		MethodDelete | MethodTrace | MethodConnect | MethodPatch | MethodExtension
)

var methodNames = [...]struct {
	method Method
	name   string
}{
	{MethodOptions, "OPTIONS"},
	{MethodGet, "GET"},
	{MethodHead, "HEAD"},
	{MethodPost, "POST"},
	{MethodPut, "PUT"},
	{MethodDelete, "DELETE"},
	{MethodTrace, "TRACE"},
	{MethodConnect, "CONNECT"},
	{MethodPatch, "PATCH"},
	{MethodExtension, "EXTENSION"},
}

// ParseMethod maps a request method token to its bit. Unknown tokens map to
// MethodExtension; methods are case sensitive, so "get" is one of them.
func ParseMethod(token string) Method {
	for _, m := range methodNames[:len(methodNames)-1] {
		if token == m.name {
			return m.method
		}
	}
	return MethodExtension
}

// String returns the method names in the set joined by ", ".
func (m Method) String() string {
	var b strings.Builder
	for _, e := range methodNames {
		if m&e.method == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.name)
	}
	return b.String()
}

// Each calls fn for every single-method bit set in m.
func (m Method) Each(fn func(Method)) {
	for _, e := range methodNames {
		if m&e.method != 0 {
			fn(e.method)
		}
	}
}

// Has reports whether every bit of other is set in m.
func (m Method) Has(other Method) bool { return other != 0 && m&other == other }
