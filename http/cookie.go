package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SameSite int

const (
	SameSiteDefaultMode SameSite = iota + 1
	SameSiteLaxMode
	SameSiteStrictMode
	SameSiteNoneMode
)

var (
	ErrNoCookie      = errors.New("http: named cookie not present")
	ErrInvalidCookie = errors.New("http: invalid cookie format")
	ErrCookieTooLong = errors.New("http: cookie value too long")
)

const cookieTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cookie is a Set-Cookie value for responses or a name/value pair received
// in a Cookie header.
type Cookie struct {
	Name  string
	Value string

	Path        string
	Domain      string
	Expires     time.Time
	MaxAge      int
	Secure      bool
	HttpOnly    bool
	SameSite    SameSite
	Partitioned bool
}

// String serializes the cookie for a Set-Cookie header.
func (c *Cookie) String() string {
	var b strings.Builder

	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(cookieTimeFormat))
	}

	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}

	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}

	switch c.SameSite {
	case SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}

	if c.Partitioned {
		b.WriteString("; Partitioned")
	}

	return b.String()
}

// Valid checks the cookie against the RFC 6265 name grammar and a few
// browser rules.
func (c *Cookie) Valid() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCookie)
	}
	for _, r := range c.Name {
		if !isValidCookieNameChar(r) {
			return fmt.Errorf("%w: invalid character %q in name", ErrInvalidCookie, r)
		}
	}
	if len(c.Value) > 4096 {
		return ErrCookieTooLong
	}
	if c.SameSite == SameSiteNoneMode && !c.Secure {
		return fmt.Errorf("%w: SameSite=None requires Secure", ErrInvalidCookie)
	}
	return nil
}

// Expire turns the cookie into one that removes itself from the client.
func (c *Cookie) Expire() {
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Unix(1, 0)
}

// ParseCookies parses the name=value pairs of a Cookie request header.
// Malformed pairs are skipped.
func ParseCookies(header string) ([]*Cookie, error) {
	var cookies []*Cookie

	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}

		cookies = append(cookies, &Cookie{
			Name:  name,
			Value: strings.Trim(strings.TrimSpace(value), `"`),
		})
	}

	if len(cookies) == 0 {
		return nil, ErrInvalidCookie
	}
	return cookies, nil
}

func isValidCookieNameChar(r rune) bool {
	return r > 0x20 && r < 0x7f && !strings.ContainsRune("\"(),/:;<=>?@[\\]{}", r)
}
