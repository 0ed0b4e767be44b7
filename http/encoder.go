package http

import "strings"

// DefaultChunkSize is the largest chunk the encoder emits in chunked mode.
const DefaultChunkSize = 65536

var (
	protocolHTTP11 = []byte("HTTP/1.1 ")
	crlf           = []byte("\r\n")
	lastChunk      = []byte("0\r\n\r\n")
)

// Encoder serializes responses onto the wire.
type Encoder struct {
	ChunkSize int
}

// Encode returns the wire form of res.
func (e Encoder) Encode(res *Response) []byte {
	return e.Append(nil, res, false)
}

// Append appends the wire form of res to dst. With bodyless set, as for
// responses to HEAD, the framing headers are written but the body is not.
//
// A non-empty Raw buffer is appended verbatim. Otherwise the body is framed
// with Content-Length, or in chunks when res.Chunked is set or the
// Transfer-Encoding header ends in "chunked". Statuses that forbid a body
// (1xx, 204, 304) get neither a body nor framing headers.
func (e Encoder) Append(dst []byte, res *Response, bodyless bool) []byte {
	if len(res.Raw) > 0 {
		return append(dst, res.Raw...)
	}

	status := res.Status
	if status == 0 {
		status = StatusOK
	}
	reason := res.Reason
	if reason == "" {
		reason = StatusText(status)
	}

	dst = append(dst, protocolHTTP11...)
	dst = appendInt(dst, int(status))
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, crlf...)

	chunked := res.Chunked || strings.EqualFold(lastToken(res.Headers.Get("Transfer-Encoding")), "chunked")
	allowed := bodyAllowed(status)

	for _, h := range res.Headers {
		if strings.EqualFold(h.Name, "Content-Length") || strings.EqualFold(h.Name, "Transfer-Encoding") {
			continue
		}
		dst = append(dst, h.Name...)
		dst = append(dst, ':', ' ')
		dst = append(dst, h.Value...)
		dst = append(dst, crlf...)
	}

	switch {
	case !allowed:
	case chunked:
		dst = append(dst, "Transfer-Encoding: chunked\r\n"...)
	default:
		dst = append(dst, "Content-Length: "...)
		dst = appendInt(dst, len(res.Body))
		dst = append(dst, crlf...)
	}
	dst = append(dst, crlf...)

	if !allowed || bodyless {
		return dst
	}
	if !chunked {
		return append(dst, res.Body...)
	}
	return e.appendChunks(dst, res.Body)
}

func (e Encoder) appendChunks(dst, body []byte) []byte {
	size := e.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	for len(body) > 0 {
		n := min(size, len(body))
		dst = appendHex(dst, n)
		dst = append(dst, crlf...)
		dst = append(dst, body[:n]...)
		dst = append(dst, crlf...)
		body = body[n:]
	}
	return append(dst, lastChunk...)
}
