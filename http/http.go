// Package http implements the HTTP/1.x protocol layer of flint: the
// incremental request decoder, the routing tree, the dispatcher that runs
// auth modules and handlers, the response encoder and the Server that plugs
// all of them into the connection reactor.
package http

// Handler serves one request. Handlers run on the connection's event loop
// and must not block.
type Handler func(req *Request, res *Response)

// AuthContext is whatever an auth module extracts from a request, for
// example the presented credentials.
type AuthContext any

// AuthModule authorizes requests for the routes it guards. Map extracts the
// credentials from the request and fails when none are present; Check
// validates them.
type AuthModule interface {
	Map(req *Request) (AuthContext, bool)
	Check(ctx AuthContext) bool
}

// Challenger is implemented by auth modules that can tell the client how to
// authenticate. Its value is sent as WWW-Authenticate with 401 responses.
type Challenger interface {
	Challenge() string
}
