// Package buffer provides the growable byte buffers owned by each connection.
//
// A Buffer keeps unread bytes contiguous so that parsers can look at them as
// a single slice. Readers consume from the front with Discard or Next, writers
// append at the back with Write or with Reserve followed by Commit.
package buffer

const minGrow = 512

// Buffer is a byte queue with a read offset. The zero value is ready to use.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	buf []byte
	off int
}

// New returns a Buffer with the given initial capacity.
func New(size int) *Buffer {
	return &Buffer{buf: make([]byte, 0, size)}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return len(b.buf) - b.off }

// Cap returns the capacity of the underlying storage.
func (b *Buffer) Cap() int { return cap(b.buf) }

// Bytes returns the unread bytes. The slice is only valid until the next
// modification of the buffer.
func (b *Buffer) Bytes() []byte { return b.buf[b.off:] }

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.grow(len(p))
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteString appends s to the buffer.
func (b *Buffer) WriteString(s string) (int, error) {
	b.grow(len(s))
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// WriteByte appends c to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	b.grow(1)
	b.buf = append(b.buf, c)
	return nil
}

// Reserve returns a writable slice of at least n bytes past the unread data.
// Bytes written into it become visible after Commit.
func (b *Buffer) Reserve(n int) []byte {
	b.grow(n)
	return b.buf[len(b.buf):cap(b.buf)]
}

// Commit makes n bytes written into the slice returned by Reserve readable.
func (b *Buffer) Commit(n int) {
	if n < 0 || len(b.buf)+n > cap(b.buf) {
		panic("buffer: commit out of range")
	}
	b.buf = b.buf[:len(b.buf)+n]
}

// Discard drops the first n unread bytes.
func (b *Buffer) Discard(n int) {
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.off += n
}

// Next returns the first n unread bytes and consumes them. The returned slice
// is only valid until the next write.
func (b *Buffer) Next(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	p := b.buf[b.off : b.off+n]
	b.off += n
	if b.off == len(b.buf) {
		b.buf = b.buf[:0]
		b.off = 0
	}
	return p
}

// Compact moves the unread bytes to the front of the storage.
func (b *Buffer) Compact() {
	if b.off == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.off:])
	b.buf = b.buf[:n]
	b.off = 0
}

// Reset empties the buffer but keeps its storage.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
}

// Release empties the buffer and drops its storage.
func (b *Buffer) Release() {
	b.buf = nil
	b.off = 0
}

func (b *Buffer) grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}
	// Reclaim consumed space before allocating.
	if b.off > 0 && cap(b.buf)-b.Len() >= n {
		b.Compact()
		return
	}
	size := 2*cap(b.buf) + n
	if size < minGrow {
		size = minGrow
	}
	nb := make([]byte, b.Len(), size)
	copy(nb, b.buf[b.off:])
	b.buf = nb
	b.off = 0
}
