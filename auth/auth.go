// Package auth provides the built-in auth modules: NoAuth, HTTP Basic and
// API keys. Basic and APIKey keep their credentials in a Store whose entries
// can expire.
package auth

import "github.com/freekieb7/flint/http"

// NoAuth lets every request through.
type NoAuth struct{}

func (NoAuth) Map(*http.Request) (http.AuthContext, bool) { return nil, true }

func (NoAuth) Check(http.AuthContext) bool { return true }

// Func builds an auth module from two functions.
type Func struct {
	MapFunc   func(req *http.Request) (http.AuthContext, bool)
	CheckFunc func(ctx http.AuthContext) bool
}

func (f Func) Map(req *http.Request) (http.AuthContext, bool) { return f.MapFunc(req) }

func (f Func) Check(ctx http.AuthContext) bool { return f.CheckFunc(ctx) }

var (
	_ http.AuthModule = NoAuth{}
	_ http.AuthModule = Func{}
	_ http.AuthModule = (*Basic)(nil)
	_ http.Challenger = (*Basic)(nil)
	_ http.AuthModule = (*APIKey)(nil)
)
