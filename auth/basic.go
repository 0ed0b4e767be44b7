package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"time"

	"github.com/freekieb7/flint/http"
)

// BasicCredentials is the auth context of Basic.
type BasicCredentials struct {
	User     string
	Password string
}

type BasicOption func(*Basic)

// WithBasicChecker replaces the lookup in the user store.
func WithBasicChecker(check func(user, password string) bool) BasicOption {
	return func(b *Basic) {
		b.check = check
	}
}

// Basic implements HTTP Basic authentication, reading
// "Authorization: Basic base64(user:password)".
type Basic struct {
	realm string
	users *Store[string]
	check func(user, password string) bool
}

func NewBasic(realm string, opts ...BasicOption) *Basic {
	b := &Basic{
		realm: realm,
		users: NewStore[string](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetUser adds or replaces a user. A ttl of 0 never expires.
func (b *Basic) SetUser(user, password string, ttl time.Duration) {
	b.users.Set(user, password, ttl)
}

func (b *Basic) ClearUser(user string) {
	b.users.Delete(user)
}

func (b *Basic) ClearAll() {
	b.users.Clear()
}

// Users returns the backing store.
func (b *Basic) Users() *Store[string] { return b.users }

func (b *Basic) Map(req *http.Request) (http.AuthContext, bool) {
	scheme, encoded, ok := strings.Cut(req.Header("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return nil, false
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, false
	}

	user, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, false
	}
	return BasicCredentials{User: user, Password: password}, true
}

func (b *Basic) Check(ctx http.AuthContext) bool {
	creds, ok := ctx.(BasicCredentials)
	if !ok {
		return false
	}
	if b.check != nil {
		return b.check(creds.User, creds.Password)
	}

	stored, ok := b.users.Get(creds.User)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(creds.Password)) == 1
}

func (b *Basic) Challenge() string {
	return `Basic realm="` + b.realm + `", charset="UTF-8"`
}
