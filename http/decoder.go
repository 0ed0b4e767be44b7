package http

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/freekieb7/flint/buffer"
)

const (
	DefaultMaxHeaderBytes = 16 << 10
	DefaultMaxBodyBytes   = 2 << 20

	maxChunkSizeLine = 4096
)

type decodeState uint8

const (
	stateRequestLine decodeState = iota
	stateHeaders
	stateBody
	stateChunkSize
	stateChunkData
	stateChunkCRLF
	stateTrailers
	stateComplete
	stateError
)

// Decoder incrementally parses HTTP/1.x requests out of a connection
// buffer. It can be resumed after any byte: Decode consumes what it can and
// reports that it needs more data by returning a nil request and nil error.
//
// Once Decode fails the decoder keeps returning the same error until Reset.
type Decoder struct {
	MaxHeaderBytes int
	MaxBodyBytes   int

	in    *buffer.Buffer
	state decodeState
	err   error
	req   *Request

	// scanned counts leading bytes of in already searched for a line
	// terminator, so a line split over many reads is scanned once.
	scanned     int
	headerBytes int
	remaining   int64

	pending    Header
	hasPending bool
}

// NewDecoder returns a decoder reading from in.
func NewDecoder(in *buffer.Buffer) *Decoder {
	return &Decoder{
		MaxHeaderBytes: DefaultMaxHeaderBytes,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		in:             in,
	}
}

// Feed appends p to the input buffer and decodes.
func (d *Decoder) Feed(p []byte) (*Request, error) {
	d.in.Write(p)
	return d.Decode()
}

// Decode returns the next complete request, or nil when more input is
// needed. Errors are *ProtocolError values wrapping one of the decoder's
// sentinel errors.
func (d *Decoder) Decode() (*Request, error) {
	if d.state == stateError {
		return nil, d.err
	}

	for {
		var (
			progress bool
			err      error
		)

		switch d.state {
		case stateRequestLine:
			progress, err = d.readRequestLine()
		case stateHeaders, stateTrailers:
			progress, err = d.readField()
		case stateBody:
			progress = d.readBody(stateComplete)
		case stateChunkSize:
			progress, err = d.readChunkSize()
		case stateChunkData:
			progress = d.readBody(stateChunkCRLF)
		case stateChunkCRLF:
			progress, err = d.readChunkCRLF()
		}

		if err != nil {
			d.state = stateError
			d.err = protocolError(err)
			return nil, d.err
		}

		if d.state == stateComplete {
			req := d.req
			req.KeepAlive = keepAlive(req.Proto, req.Headers)
			d.reset()
			return req, nil
		}

		if !progress {
			return nil, nil
		}
	}
}

// InProgress reports whether part of a request has been received.
func (d *Decoder) InProgress() bool {
	return d.state != stateRequestLine || d.in.Len() > 0
}

// Reset drops any partial request and a sticky error. Buffered input is
// kept.
func (d *Decoder) Reset() {
	d.reset()
}

func (d *Decoder) reset() {
	d.state = stateRequestLine
	d.err = nil
	d.req = nil
	d.scanned = 0
	d.headerBytes = 0
	d.remaining = 0
	d.pending = Header{}
	d.hasPending = false
}

// line returns the next LF terminated line and the number of bytes it
// occupies. A line, complete or not, longer than limit fails with overflow.
func (d *Decoder) line(limit int, overflow error) (line []byte, n int, ok bool, err error) {
	c := buffer.NewCursor(d.in.Bytes())

	line, ok = c.Line(d.scanned)
	if !ok {
		d.scanned = c.Remaining()
		if d.scanned > limit {
			return nil, 0, false, overflow
		}
		return nil, 0, false, nil
	}

	d.scanned = 0
	if c.Pos() > limit {
		return nil, 0, false, overflow
	}
	return line, c.Pos(), true, nil
}

func (d *Decoder) headerBudget() int {
	return d.MaxHeaderBytes - d.headerBytes
}

func (d *Decoder) readRequestLine() (bool, error) {
	line, n, ok, err := d.line(d.headerBudget(), ErrTooLarge)
	if !ok {
		return false, err
	}

	// Empty lines before a request are ignored.
	if len(line) == 0 {
		d.in.Discard(n)
		return true, nil
	}

	req, err := parseRequestLine(line)
	if err != nil {
		return false, err
	}

	d.in.Discard(n)
	d.headerBytes += n
	d.req = req
	d.state = stateHeaders
	return true, nil
}

func parseRequestLine(line []byte) (*Request, error) {
	parts := strings.Fields(string(line))
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadRequestLine, line)
	}
	method, target, proto := parts[0], parts[1], parts[2]

	if err := checkVersion(proto); err != nil {
		return nil, err
	}

	path, rawQuery, query, err := splitTarget(target)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:     ParseMethod(method),
		MethodName: method,
		Target:     target,
		Path:       path,
		RawQuery:   rawQuery,
		Query:      query,
		Proto:      proto,
	}, nil
}

func checkVersion(proto string) error {
	v, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok || len(v) != 3 || v[1] != '.' || !isDigit(v[0]) || !isDigit(v[2]) {
		return fmt.Errorf("%w: bad version %q", ErrBadRequestLine, proto)
	}
	if v[0] != '1' {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, proto)
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitTarget(target string) (path, rawQuery string, query url.Values, err error) {
	target, _, _ = strings.Cut(target, "#")

	switch {
	case target == "*":
		return "*", "", url.Values{}, nil
	case strings.HasPrefix(target, "/"):
		path, rawQuery, _ = strings.Cut(target, "?")
	default:
		u, perr := url.ParseRequestURI(target)
		if perr != nil {
			return "", "", nil, fmt.Errorf("%w: %v", ErrBadRequestLine, perr)
		}
		path, rawQuery = u.EscapedPath(), u.RawQuery
		if path == "" {
			path = "/"
		}
	}

	if path, err = url.PathUnescape(path); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrBadRequestLine, err)
	}
	if query, err = url.ParseQuery(rawQuery); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrBadRequestLine, err)
	}
	return path, rawQuery, query, nil
}

// readField handles one line of the header or trailer block. A field is
// committed when the following line turns out not to be a continuation.
func (d *Decoder) readField() (bool, error) {
	line, n, ok, err := d.line(d.headerBudget(), ErrTooLarge)
	if !ok {
		return false, err
	}
	d.in.Discard(n)
	d.headerBytes += n

	if len(line) == 0 {
		d.commitField()
		if d.state == stateTrailers {
			d.state = stateComplete
			return true, nil
		}
		return true, d.selectBody()
	}

	if isSpace(line[0]) {
		if !d.hasPending {
			return false, fmt.Errorf("%w: continuation without a field", ErrBadHeader)
		}
		if v := trimSpace(line); len(v) > 0 {
			if d.pending.Value != "" {
				d.pending.Value += " "
			}
			d.pending.Value += string(v)
		}
		return true, nil
	}

	d.commitField()

	name, value, found := bytes.Cut(line, []byte{':'})
	if !found || len(name) == 0 || bytes.ContainsAny(name, " \t") {
		return false, fmt.Errorf("%w: %q", ErrBadHeader, line)
	}

	d.pending = Header{Name: string(name), Value: string(trimSpace(value))}
	d.hasPending = true
	return true, nil
}

func (d *Decoder) commitField() {
	if !d.hasPending {
		return
	}
	if d.state == stateTrailers {
		d.req.Trailers.Add(d.pending.Name, d.pending.Value)
	} else {
		d.req.Headers.Add(d.pending.Name, d.pending.Value)
	}
	d.pending = Header{}
	d.hasPending = false
}

func (d *Decoder) selectBody() error {
	headers := d.req.Headers

	if te, ok := headers.Lookup("Transfer-Encoding"); ok && strings.EqualFold(lastToken(te), "chunked") {
		d.state = stateChunkSize
		return nil
	}

	d.state = stateComplete

	cl, ok := headers.Lookup("Content-Length")
	if !ok {
		return nil
	}
	// An unparsable length means no body.
	n, valid := parseDecimal(trimSpace([]byte(cl)))
	if !valid || n == 0 {
		return nil
	}
	if n > int64(d.MaxBodyBytes) {
		return ErrBodyTooLarge
	}

	d.req.Body = make([]byte, 0, n)
	d.remaining = n
	d.state = stateBody
	return nil
}

// readBody moves up to remaining bytes into the request body.
func (d *Decoder) readBody(next decodeState) bool {
	avail := d.in.Len()
	if avail == 0 {
		return false
	}

	n := int(min(int64(avail), d.remaining))
	d.req.Body = append(d.req.Body, d.in.Next(n)...)
	d.remaining -= int64(n)

	if d.remaining == 0 {
		d.state = next
	}
	return true
}

func (d *Decoder) readChunkSize() (bool, error) {
	line, n, ok, err := d.line(maxChunkSizeLine, ErrBadChunkSize)
	if !ok {
		return false, err
	}
	d.in.Discard(n)

	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, valid := parseHex(trimSpace(line))
	if !valid {
		return false, fmt.Errorf("%w: %q", ErrBadChunkSize, line)
	}

	if size == 0 {
		d.state = stateTrailers
		return true, nil
	}
	if int64(len(d.req.Body))+size > int64(d.MaxBodyBytes) {
		return false, ErrBodyTooLarge
	}

	d.remaining = size
	d.state = stateChunkData
	return true, nil
}

func (d *Decoder) readChunkCRLF() (bool, error) {
	p := d.in.Bytes()
	if len(p) > 0 && p[0] != '\r' {
		return false, fmt.Errorf("%w: missing CRLF after chunk data", ErrBadChunkSize)
	}
	if len(p) < 2 {
		return false, nil
	}
	if p[1] != '\n' {
		return false, fmt.Errorf("%w: missing CRLF after chunk data", ErrBadChunkSize)
	}

	d.in.Discard(2)
	d.state = stateChunkSize
	return true, nil
}
