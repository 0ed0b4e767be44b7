package buffer

import "bytes"

// Cursor reads forward over a byte slice with bounds checks. Every accessor
// reports whether enough data was available instead of panicking, which lets
// incremental parsers stop and resume when more bytes arrive.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte) Cursor {
	return Cursor{data: data}
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of bytes not consumed yet.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Rest returns the bytes not consumed yet.
func (c *Cursor) Rest() []byte { return c.data[c.pos:] }

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, bool) {
	if c.pos >= len(c.data) {
		return 0, false
	}
	return c.data[c.pos], true
}

// Take consumes and returns the next n bytes.
func (c *Cursor) Take(n int) ([]byte, bool) {
	if n < 0 || c.Remaining() < n {
		return nil, false
	}
	p := c.data[c.pos : c.pos+n]
	c.pos += n
	return p, true
}

// Line consumes one line terminated by LF and returns it without the
// terminator and without a trailing CR. Scanning starts from offset from
// within the remaining bytes, so callers that already searched a prefix do
// not search it again. When no LF is present nothing is consumed.
func (c *Cursor) Line(from int) (line []byte, ok bool) {
	rest := c.data[c.pos:]
	if from < 0 {
		from = 0
	}
	if from > len(rest) {
		return nil, false
	}
	i := bytes.IndexByte(rest[from:], '\n')
	if i < 0 {
		return nil, false
	}
	end := from + i
	line = rest[:end]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	c.pos += end + 1
	return line, true
}
