package http

import (
	"strings"
	"testing"

	"github.com/freekieb7/flint/buffer"
	"github.com/freekieb7/flint/test"
)

func newTestDecoder() *Decoder {
	return NewDecoder(buffer.New(512))
}

func decodeOne(t *testing.T, raw string) *Request {
	t.Helper()

	req, err := newTestDecoder().Feed([]byte(raw))
	test.NoError(t, err)
	if req == nil {
		t.Fatalf("expected a complete request for %q", raw)
	}
	return req
}

func decodeErr(t *testing.T, d *Decoder, raw string) error {
	t.Helper()

	req, err := d.Feed([]byte(raw))
	if req != nil {
		t.Fatalf("expected an error, got request %s %s", req.MethodName, req.Target)
	}
	if err == nil {
		t.Fatalf("expected an error for %q", raw)
	}
	return err
}

func TestRequestParse(t *testing.T) {
	req := decodeOne(t, "GET /test HTTP/1.1\r\nAccept: text/css\r\nConnection: keep-alive\r\nContent-Length: 0\r\n\r\n")

	test.Equal(t, MethodGet, req.Method)
	test.Equal(t, "GET", req.MethodName)
	test.Equal(t, "/test", req.Path)
	test.Equal(t, "HTTP/1.1", req.Proto)
	test.Equal(t, "keep-alive", req.Header("connection"))
	test.Equal(t, "text/css", req.Header("Accept"))
	test.Equal(t, 0, len(req.Body))
	test.True(t, req.KeepAlive)
}

func TestDecodeByteByByte(t *testing.T) {
	raw := "POST /echo?x=1 HTTP/1.1\r\nHost: localhost\r\nContent-Length: 5\r\n\r\nhello"
	d := newTestDecoder()

	for i := 0; i < len(raw)-1; i++ {
		req, err := d.Feed([]byte{raw[i]})
		test.NoError(t, err)
		if req != nil {
			t.Fatalf("request completed early at byte %d", i)
		}
		test.True(t, d.InProgress())
	}

	req, err := d.Feed([]byte{raw[len(raw)-1]})
	test.NoError(t, err)
	test.Equal(t, "hello", string(req.Body))
	test.Equal(t, "1", req.Query.Get("x"))
	test.False(t, d.InProgress())
}

func TestDecodeChunked(t *testing.T) {
	req := decodeOne(t, "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"+
		"4\r\nWiki\r\n6\r\npedia \r\nE\r\nin \r\n\r\nchunks.\r\n0\r\n\r\n")

	test.Equal(t, "Wikipedia in \r\n\r\nchunks.", string(req.Body))
}

func TestDecodeChunkedExtensionsAndTrailers(t *testing.T) {
	req := decodeOne(t, "POST / HTTP/1.1\r\nTransfer-Encoding: gzip, chunked\r\n\r\n"+
		"3;name=value\r\nabc\r\n0\r\nX-Checksum: 900150983cd24fb0\r\n\r\n")

	test.Equal(t, "abc", string(req.Body))
	test.Equal(t, "900150983cd24fb0", req.Trailers.Get("X-Checksum"))
	test.False(t, req.Headers.Has("X-Checksum"))
}

func TestDecodeChunkedByteByByte(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\na\r\n0123456789\r\n0\r\n\r\n"
	d := newTestDecoder()

	var req *Request
	for i := 0; i < len(raw); i++ {
		var err error
		req, err = d.Feed([]byte{raw[i]})
		test.NoError(t, err)
		if req != nil && i != len(raw)-1 {
			t.Fatalf("request completed early at byte %d", i)
		}
	}
	test.Equal(t, "0123456789", string(req.Body))
}

func TestDecodeRepeatedHeaderConcatenates(t *testing.T) {
	req := decodeOne(t, "GET / HTTP/1.1\r\nX-A: a\r\nx-a: b\r\n\r\n")

	test.Equal(t, "ab", req.Header("X-A"))
	test.Equal(t, 1, len(req.Headers))
}

func TestDecodeObsFold(t *testing.T) {
	req := decodeOne(t, "GET / HTTP/1.1\r\nX-Long: one\r\n   two\r\n\tthree\r\nHost: h\r\n\r\n")

	test.Equal(t, "one two three", req.Header("X-Long"))
	test.Equal(t, "h", req.Header("Host"))
}

func TestDecodeBareLF(t *testing.T) {
	req := decodeOne(t, "GET /lf HTTP/1.1\nHost: h\n\n")

	test.Equal(t, "/lf", req.Path)
	test.Equal(t, "h", req.Header("Host"))
}

func TestDecodeLeadingEmptyLines(t *testing.T) {
	req := decodeOne(t, "\r\n\r\nGET / HTTP/1.1\r\n\r\n")

	test.Equal(t, "/", req.Path)
}

func TestDecodePipelined(t *testing.T) {
	d := newTestDecoder()

	first, err := d.Feed([]byte("GET /a HTTP/1.1\r\n\r\nPOST /b HTTP/1.1\r\nContent-Length: 2\r\n\r\nokGET /c HT"))
	test.NoError(t, err)
	test.Equal(t, "/a", first.Path)

	second, err := d.Decode()
	test.NoError(t, err)
	test.Equal(t, "/b", second.Path)
	test.Equal(t, "ok", string(second.Body))

	third, err := d.Decode()
	test.NoError(t, err)
	test.True(t, third == nil)
	test.True(t, d.InProgress())

	third, err = d.Feed([]byte("TP/1.1\r\n\r\n"))
	test.NoError(t, err)
	test.Equal(t, "/c", third.Path)
}

func TestDecodeTarget(t *testing.T) {
	req := decodeOne(t, "GET /files/a%20b?q=x%26y&n=1#frag HTTP/1.1\r\n\r\n")
	test.Equal(t, "/files/a b", req.Path)
	test.Equal(t, "q=x%26y&n=1", req.RawQuery)
	test.Equal(t, "x&y", req.Query.Get("q"))

	req = decodeOne(t, "GET http://example.com/abs?k=v HTTP/1.1\r\n\r\n")
	test.Equal(t, "/abs", req.Path)
	test.Equal(t, "v", req.Query.Get("k"))

	req = decodeOne(t, "OPTIONS * HTTP/1.1\r\n\r\n")
	test.Equal(t, "*", req.Path)
}

func TestDecodeExtensionMethod(t *testing.T) {
	req := decodeOne(t, "PURGE /cache HTTP/1.1\r\n\r\n")

	test.Equal(t, MethodExtension, req.Method)
	test.Equal(t, "PURGE", req.MethodName)

	req = decodeOne(t, "get /cache HTTP/1.1\r\n\r\n")
	test.Equal(t, MethodExtension, req.Method)
	test.Equal(t, "get", req.MethodName)
}

func TestDecodeKeepAlive(t *testing.T) {
	tests := []struct {
		raw       string
		keepAlive bool
	}{
		{"GET / HTTP/1.1\r\n\r\n", true},
		{"GET / HTTP/1.1\r\nConnection: close\r\n\r\n", false},
		{"GET / HTTP/1.0\r\n\r\n", false},
		{"GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n", true},
		{"GET / HTTP/1.1\r\nConnection: upgrade, close\r\n\r\n", false},
	}

	for _, tt := range tests {
		test.Equal(t, tt.keepAlive, decodeOne(t, tt.raw).KeepAlive)
	}
}

func TestDecodeInvalidContentLength(t *testing.T) {
	d := newTestDecoder()

	req, err := d.Feed([]byte("POST / HTTP/1.1\r\nContent-Length: ten\r\n\r\nGET /next HTTP/1.1\r\n\r\n"))
	test.NoError(t, err)
	test.Equal(t, 0, len(req.Body))

	next, err := d.Decode()
	test.NoError(t, err)
	test.Equal(t, "/next", next.Path)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		target error
		status uint16
	}{
		{"two tokens", "GET /\r\n\r\n", ErrBadRequestLine, StatusBadRequest},
		{"four tokens", "GET / HTTP/1.1 extra\r\n\r\n", ErrBadRequestLine, StatusBadRequest},
		{"bad version", "GET / HTTX/1.1\r\n\r\n", ErrBadRequestLine, StatusBadRequest},
		{"http2", "GET / HTTP/2.0\r\n\r\n", ErrUnsupportedVersion, StatusHTTPVersionNotSupported},
		{"bad escape", "GET /%zz HTTP/1.1\r\n\r\n", ErrBadRequestLine, StatusBadRequest},
		{"no colon", "GET / HTTP/1.1\r\nBroken\r\n\r\n", ErrBadHeader, StatusBadRequest},
		{"space in name", "GET / HTTP/1.1\r\nBad Name: v\r\n\r\n", ErrBadHeader, StatusBadRequest},
		{"leading fold", "GET / HTTP/1.1\r\n folded: v\r\n\r\n", ErrBadHeader, StatusBadRequest},
		{"bad chunk size", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", ErrBadChunkSize, StatusBadRequest},
		{"chunk without crlf", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n2\r\nabXY", ErrBadChunkSize, StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeErr(t, newTestDecoder(), tt.raw)
			test.ErrorIs(t, err, tt.target)
			test.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestDecodeHeaderTooLarge(t *testing.T) {
	d := newTestDecoder()
	d.MaxHeaderBytes = 64

	err := decodeErr(t, d, "GET / HTTP/1.1\r\nX-Big: "+strings.Repeat("a", 100)+"\r\n\r\n")
	test.ErrorIs(t, err, ErrTooLarge)
	test.Equal(t, StatusRequestHeaderFieldsTooLarge, StatusOf(err))
}

func TestDecodeHeaderTooLargeWithoutTerminator(t *testing.T) {
	d := newTestDecoder()
	d.MaxHeaderBytes = 32

	_, err := d.Feed([]byte("GET / HTTP/1.1\r\n"))
	test.NoError(t, err)

	err = decodeErr(t, d, strings.Repeat("x", 40))
	test.Equal(t, StatusRequestHeaderFieldsTooLarge, StatusOf(err))
}

func TestDecodeBodyTooLarge(t *testing.T) {
	d := newTestDecoder()
	d.MaxBodyBytes = 4

	err := decodeErr(t, d, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n")
	test.ErrorIs(t, err, ErrBodyTooLarge)
	test.Equal(t, StatusRequestEntityTooLarge, StatusOf(err))

	d = newTestDecoder()
	d.MaxBodyBytes = 4

	err = decodeErr(t, d, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n3\r\n")
	test.Equal(t, StatusRequestEntityTooLarge, StatusOf(err))
}

func TestDecodeChunkSizeLineLimit(t *testing.T) {
	d := newTestDecoder()

	err := decodeErr(t, d, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n1;"+strings.Repeat("e", maxChunkSizeLine+1))
	test.ErrorIs(t, err, ErrBadChunkSize)
}

func TestDecodeErrorIsSticky(t *testing.T) {
	d := newTestDecoder()
	first := decodeErr(t, d, "BROKEN\r\n")

	req, err := d.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	test.True(t, req == nil)
	test.Equal(t, first, err)

	d.Reset()
	d.in.Reset()
	req, err = d.Feed([]byte("GET / HTTP/1.1\r\n\r\n"))
	test.NoError(t, err)
	test.Equal(t, "/", req.Path)
}

func BenchmarkRequestParse(b *testing.B) {
	reqMsg := []byte("GET /test HTTP/1.1\r\nAccept: text/css\r\nConnection: keep-alive\r\nContent-Length: 0\r\n\r\n")
	d := newTestDecoder()

	for b.Loop() {
		if _, err := d.Feed(reqMsg); err != nil {
			b.Error(err)
		}
	}
}
