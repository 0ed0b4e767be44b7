package auth

import (
	"strings"
	"time"

	"github.com/freekieb7/flint/http"
)

const DefaultAPIKeyHeader = "X-API-Key"

type APIKeyOption func(*APIKey)

// WithAPIKeyHeader reads the key from another header.
func WithAPIKeyHeader(name string) APIKeyOption {
	return func(a *APIKey) {
		a.header = name
	}
}

// WithAPIKeyChecker replaces the lookup in the key store.
func WithAPIKeyChecker(check func(key string) bool) APIKeyOption {
	return func(a *APIKey) {
		a.check = check
	}
}

// APIKey authenticates requests by a key sent in a header. The auth context
// is the key itself.
type APIKey struct {
	header string
	keys   *Store[string]
	check  func(key string) bool
}

func NewAPIKey(opts ...APIKeyOption) *APIKey {
	a := &APIKey{
		header: DefaultAPIKeyHeader,
		keys:   NewStore[string](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetKey registers key for owner. A ttl of 0 never expires.
func (a *APIKey) SetKey(key, owner string, ttl time.Duration) {
	a.keys.Set(key, owner, ttl)
}

func (a *APIKey) ClearKey(key string) {
	a.keys.Delete(key)
}

func (a *APIKey) ClearAll() {
	a.keys.Clear()
}

// Owner returns who a valid key belongs to.
func (a *APIKey) Owner(key string) (string, bool) {
	return a.keys.Get(key)
}

// Keys returns the backing store.
func (a *APIKey) Keys() *Store[string] { return a.keys }

func (a *APIKey) Map(req *http.Request) (http.AuthContext, bool) {
	key := strings.TrimSpace(req.Header(a.header))
	if key == "" {
		return nil, false
	}
	return key, true
}

func (a *APIKey) Check(ctx http.AuthContext) bool {
	key, ok := ctx.(string)
	if !ok {
		return false
	}
	if a.check != nil {
		return a.check(key)
	}
	return a.keys.Has(key)
}
