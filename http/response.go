package http

import (
	"encoding/json"
	"strconv"
)

// Encoding is a set of content coding flags. The encoder accepts them but
// does not compress yet, so bodies are always sent as written.
type Encoding uint8

const (
	EncodingCompress Encoding = 1 << iota
	EncodingDeflate
	EncodingGzip
)

// Serializer is implemented by values that know their own wire format.
type Serializer interface {
	Serialize() ([]byte, error)
}

// Response is the mutable response handed to handlers.
type Response struct {
	Status  uint16
	Reason  string // defaults to StatusText(Status) when empty
	Headers Headers
	Body    []byte

	// Raw, when non-empty, is written to the connection verbatim instead of
	// an encoded status line, headers and body.
	Raw []byte

	// Chunked selects chunked transfer framing instead of Content-Length.
	Chunked  bool
	Encoding Encoding
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{Status: StatusOK}
}

func (res *Response) WithStatus(status uint16) *Response {
	res.Status = status
	return res
}

func (res *Response) WithHeader(name, value string) *Response {
	res.Headers.Set(name, value)
	return res
}

func (res *Response) WithText(payload string) *Response {
	res.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	res.Body = append(res.Body[:0], payload...)
	return res
}

func (res *Response) WithHTML(payload string) *Response {
	res.Headers.Set("Content-Type", "text/html; charset=utf-8")
	res.Body = append(res.Body[:0], payload...)
	return res
}

func (res *Response) WithBytes(contentType string, payload []byte) *Response {
	res.Headers.Set("Content-Type", contentType)
	res.Body = append(res.Body[:0], payload...)
	return res
}

// WithJSON encodes payload with encoding/json. Strings are written as-is.
// An encoding failure turns the response into a 500.
func (res *Response) WithJSON(payload any) *Response {
	if s, ok := payload.(string); ok {
		return res.WithBytes("application/json", []byte(s))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return res.fail()
	}
	return res.WithBytes("application/json", data)
}

// WithSerialized writes the self-serialized value v as the body.
func (res *Response) WithSerialized(contentType string, v Serializer) *Response {
	data, err := v.Serialize()
	if err != nil {
		return res.fail()
	}
	return res.WithBytes(contentType, data)
}

func (res *Response) WithRedirect(status uint16, location string) *Response {
	res.Status = status
	res.Headers.Set("Location", location)
	return res
}

// WithRaw makes the response bypass encoding entirely.
func (res *Response) WithRaw(raw []byte) *Response {
	res.Raw = append(res.Raw[:0], raw...)
	return res
}

func (res *Response) WithChunked() *Response {
	res.Chunked = true
	return res
}

func (res *Response) WithEncoding(enc Encoding) *Response {
	res.Encoding |= enc
	return res
}

// SetCookie adds a Set-Cookie field.
func (res *Response) SetCookie(cookie Cookie) {
	res.Headers.Append("Set-Cookie", cookie.String())
}

// Write appends p to the body.
func (res *Response) Write(p []byte) (int, error) {
	res.Body = append(res.Body, p...)
	return len(p), nil
}

func (res *Response) WriteString(s string) (int, error) {
	res.Body = append(res.Body, s...)
	return len(s), nil
}

// Error replaces the response with a plain text status page.
func (res *Response) Error(status uint16) {
	res.Reset()
	res.Status = status
	res.WithText(strconv.Itoa(int(status)) + " " + StatusText(status))
}

// Reset clears the response for reuse.
func (res *Response) Reset() {
	res.Status = StatusOK
	res.Reason = ""
	res.Headers.Reset()
	res.Body = res.Body[:0]
	res.Raw = res.Raw[:0]
	res.Chunked = false
	res.Encoding = 0
}

func (res *Response) fail() *Response {
	res.Error(StatusInternalServerError)
	return res
}
