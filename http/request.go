package http

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// Request is a fully received HTTP/1.x request. Handlers must treat it as
// read-only.
type Request struct {
	Method     Method
	MethodName string // raw method token, useful for extension methods
	Target     string // request-target exactly as sent
	Path       string // percent-decoded path of Target
	RawQuery   string
	Query      url.Values
	Proto      string

	Headers  Headers
	Trailers Headers
	Body     []byte

	// Params holds the values bound by parameter and pattern segments of the
	// matched route.
	Params Params

	KeepAlive  bool
	RemoteAddr net.Addr

	// Auth is the context produced by the route's auth module.
	Auth AuthContext

	ctx context.Context
}

// Context returns the request context. It is never nil.
func (req *Request) Context() context.Context {
	if req.ctx == nil {
		return context.Background()
	}
	return req.ctx
}

// SetContext replaces the request context.
func (req *Request) SetContext(ctx context.Context) {
	req.ctx = ctx
}

// Header returns the value of the named header.
func (req *Request) Header(name string) string {
	return req.Headers.Get(name)
}

// Param returns the value bound to the named route parameter.
func (req *Request) Param(name string) string {
	return req.Params.Get(name)
}

// Cookie returns the named cookie sent with the request.
func (req *Request) Cookie(name string) (Cookie, error) {
	for _, c := range req.Cookies() {
		if c.Name == name {
			return *c, nil
		}
	}
	return Cookie{}, ErrNoCookie
}

// Cookies parses every Cookie header of the request.
func (req *Request) Cookies() []*Cookie {
	raw := req.Headers.Get("Cookie")
	if raw == "" {
		return nil
	}
	cookies, _ := ParseCookies(raw)
	return cookies
}

// keepAlive decides connection persistence from the protocol version and
// the Connection header.
func keepAlive(proto string, headers Headers) bool {
	conn := headers.Get("Connection")
	switch {
	case hasToken(conn, "close"):
		return false
	case strings.EqualFold(proto, "HTTP/1.1"):
		return true
	default:
		return hasToken(conn, "keep-alive")
	}
}
