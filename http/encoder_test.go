package http

import (
	"strings"
	"testing"

	"github.com/freekieb7/flint/test"
)

func TestEncodeContentLength(t *testing.T) {
	res := NewResponse().WithText("hello")
	res.Headers.Set("Content-Length", "999")

	got := string(Encoder{}.Encode(res))
	want := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"
	test.Equal(t, want, got)
}

func TestEncodeCustomReason(t *testing.T) {
	res := NewResponse().WithStatus(StatusTeapot)
	res.Reason = "Short And Stout"

	got := string(Encoder{}.Encode(res))
	test.True(t, strings.HasPrefix(got, "HTTP/1.1 418 Short And Stout\r\n"))
	test.Contains(t, got, "Content-Length: 0\r\n")
}

func TestEncodeChunked(t *testing.T) {
	res := NewResponse().WithChunked()
	res.Body = []byte("abcdefghij")

	got := string(Encoder{ChunkSize: 4}.Encode(res))
	want := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"4\r\nabcd\r\n" +
		"4\r\nefgh\r\n" +
		"2\r\nij\r\n" +
		"0\r\n\r\n"
	test.Equal(t, want, got)
}

func TestEncodeChunkedFromHeader(t *testing.T) {
	res := NewResponse().WithHeader("Transfer-Encoding", "chunked")
	res.Body = []byte(strings.Repeat("x", DefaultChunkSize+1))

	got := string(Encoder{}.Encode(res))
	test.Contains(t, got, "\r\n10000\r\n")
	test.Contains(t, got, "\r\n1\r\nx\r\n0\r\n\r\n")
	test.Equal(t, 1, strings.Count(got, "Transfer-Encoding"))
	test.False(t, strings.Contains(got, "Content-Length"))
}

func TestEncodeEmptyChunked(t *testing.T) {
	got := string(Encoder{}.Encode(NewResponse().WithChunked()))
	test.True(t, strings.HasSuffix(got, "Transfer-Encoding: chunked\r\n\r\n0\r\n\r\n"))
}

func TestEncodeRaw(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Raw: 1\r\n\r\n"
	res := NewResponse().WithText("ignored").WithRaw([]byte(raw))

	test.Equal(t, raw, string(Encoder{}.Encode(res)))
}

func TestEncodeBodyless(t *testing.T) {
	res := NewResponse().WithText("hello")

	got := string(Encoder{}.Append(nil, res, true))
	test.True(t, strings.HasSuffix(got, "Content-Length: 5\r\n\r\n"))
}

func TestEncodeStatusWithoutBody(t *testing.T) {
	for _, status := range []uint16{StatusNoContent, StatusNotModified, StatusContinue} {
		res := NewResponse().WithStatus(status)
		res.Body = []byte("dropped")

		got := string(Encoder{}.Encode(res))
		test.False(t, strings.Contains(got, "Content-Length"))
		test.False(t, strings.Contains(got, "dropped"))
		test.True(t, strings.HasSuffix(got, "\r\n\r\n"))
	}
}

func TestEncodeAppendReusesDst(t *testing.T) {
	dst := make([]byte, 0, 256)
	dst = Encoder{}.Append(dst, NewResponse().WithText("a"), false)
	dst = Encoder{}.Append(dst, NewResponse().WithText("b"), false)

	test.Equal(t, 2, strings.Count(string(dst), "HTTP/1.1 200 OK"))
}

func BenchmarkEncode(b *testing.B) {
	res := NewResponse().WithJSON(map[string]string{"hello": "world"})
	dst := make([]byte, 0, 512)

	for b.Loop() {
		dst = Encoder{}.Append(dst[:0], res, false)
	}
}
