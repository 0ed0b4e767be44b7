package http

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequestLine     = errors.New("http: malformed request line")
	ErrBadHeader          = errors.New("http: malformed header field")
	ErrBadChunkSize       = errors.New("http: malformed chunk")
	ErrTooLarge           = errors.New("http: message too large")
	ErrBodyTooLarge       = fmt.Errorf("http: body %w", ErrTooLarge)
	ErrUnsupportedVersion = errors.New("http: unsupported protocol version")
)

// ProtocolError is a request the decoder refused. Status is the response
// the connection answers with before closing.
type ProtocolError struct {
	Status uint16
	Err    error
}

func (e *ProtocolError) Error() string { return e.Err.Error() }

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(err error) *ProtocolError {
	status := StatusBadRequest
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		status = StatusRequestEntityTooLarge
	case errors.Is(err, ErrTooLarge):
		status = StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, ErrUnsupportedVersion):
		status = StatusHTTPVersionNotSupported
	}
	return &ProtocolError{Status: status, Err: err}
}

// StatusOf returns the response status for a decoder error.
func StatusOf(err error) uint16 {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Status
	}
	return protocolError(err).Status
}
