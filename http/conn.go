package http

import (
	"github.com/freekieb7/flint/net/reactor"
)

// protocol adapts the server to the reactor: every connection gets a session
// with its own decoder over the connection's inbound buffer.
type protocol struct {
	server *Server
}

func (p protocol) Open(c *reactor.Conn) reactor.Session {
	dec := NewDecoder(c.In())
	dec.MaxHeaderBytes = p.server.maxHeaderBytes
	dec.MaxBodyBytes = p.server.maxBodyBytes

	return &session{server: p.server, dec: dec}
}

type session struct {
	server  *Server
	dec     *Decoder
	scratch []byte
}

// Serve answers every complete request in the inbound buffer, in order,
// until the buffer runs dry, the connection is congested or it is closing.
func (s *session) Serve(c *reactor.Conn) error {
	for !c.Closing() && !c.Congested() {
		req, err := s.dec.Decode()
		if err != nil {
			s.server.logger.Debug("rejecting request", "conn", c.ID(), "remote", c.RemoteAddr(), "error", err)
			s.reject(c, StatusOf(err))
			return nil
		}

		if req == nil {
			if s.dec.InProgress() {
				c.BeginRequest()
			} else {
				c.EndRequest()
			}
			return nil
		}
		c.EndRequest()

		c.SetState(reactor.StateDispatching)
		req.RemoteAddr = c.RemoteAddr()
		req.SetContext(s.server.baseContext())

		res := NewResponse()
		s.server.dispatcher.Dispatch(req, res)
		s.write(c, res, req.KeepAlive, req.Method == MethodHead)

		if !req.KeepAlive {
			c.CloseAfterFlush()
		}
	}
	return nil
}

func (s *session) OnTimeout(c *reactor.Conn) {
	if c.Closing() {
		return
	}
	s.reject(c, StatusRequestTimeout)
}

func (s *session) Close(c *reactor.Conn, err error) {
	s.dec = nil
	s.scratch = nil
}

// reject answers with an error status and closes the connection.
func (s *session) reject(c *reactor.Conn, status uint16) {
	res := NewResponse()
	res.Error(status)
	s.write(c, res, false, false)
	c.CloseAfterFlush()
}

func (s *session) write(c *reactor.Conn, res *Response, keepAlive, bodyless bool) {
	if len(res.Raw) == 0 {
		if keepAlive {
			res.Headers.Set("Connection", "keep-alive")
		} else {
			res.Headers.Set("Connection", "close")
		}
		if !res.Headers.Has("Date") {
			res.Headers.Set("Date", s.server.CurrentDate())
		}
		if s.server.name != "" && !res.Headers.Has("Server") {
			res.Headers.Set("Server", s.server.name)
		}
	}

	s.scratch = s.server.encoder.Append(s.scratch[:0], res, bodyless)
	c.Write(s.scratch)
}
