package http

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrRouterFrozen   = errors.New("router: routes cannot be added after the server started")
	ErrDuplicateRoute = errors.New("router: route already registered")
	ErrInvalidPattern = errors.New("router: invalid route pattern")
	ErrParamConflict  = errors.New("router: conflicting parameter names")
	ErrNoMethod       = errors.New("router: route needs at least one method")
	ErrNilHandler     = errors.New("router: nil handler")
)

// Route is a registered handler together with the methods and the auth
// module it was registered with.
type Route struct {
	Method  Method
	Pattern string
	Handler Handler
	Auth    AuthModule
}

// Param is one value bound by a parameter or pattern segment.
type Param struct {
	Key   string
	Value string
}

// Params are the bound values of a match, in path order.
type Params []Param

// Get returns the value bound to name.
func (ps Params) Get(name string) string {
	for _, p := range ps {
		if p.Key == name {
			return p.Value
		}
	}
	return ""
}

// Outcome is the result kind of a route lookup.
type Outcome uint8

const (
	NotFound Outcome = iota
	Matched
	MethodNotAllowed
)

// Match is the result of Resolve. Allowed is set for MethodNotAllowed and
// lists the methods the path accepts.
type Match struct {
	Outcome Outcome
	Route   *Route
	Params  Params
	Allowed Method
}

type regexEdge struct {
	name  string
	expr  string
	re    *regexp.Regexp
	child *node
}

type node struct {
	literals  map[string]*node
	param     *node
	paramName string
	regexes   []*regexEdge

	routes  map[Method]*Route
	allowed Method
}

// Router is a segment trie of routes.
//
// At every segment a literal child wins over the parameter child, which wins
// over pattern children tried in registration order. A decision is never
// revisited, so a pattern route next to a parameter route is unreachable.
//
// Routes are registered before the server starts and the router is frozen
// afterwards, which makes concurrent lookups safe.
type Router struct {
	mu     sync.Mutex
	root   *node
	routes []*Route
	frozen atomic.Bool
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{root: &node{}}
}

// Register adds a route for every method in method. Patterns are made of
// literal segments, {name} parameters and {name:regex} patterns matched
// against a whole segment. Empty segments are ignored.
func (r *Router) Register(method Method, pattern string, handler Handler, auth AuthModule) error {
	if r.frozen.Load() {
		return ErrRouterFrozen
	}
	if method == 0 {
		return ErrNoMethod
	}
	if handler == nil {
		return ErrNilHandler
	}

	segs, err := parsePattern(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, s := range segs {
		if n, err = n.child(s); err != nil {
			return fmt.Errorf("%w: %s", err, pattern)
		}
	}

	if n.allowed&method != 0 {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, n.allowed&method, pattern)
	}

	route := &Route{
		Method:  method,
		Pattern: joinPattern(segs),
		Handler: handler,
		Auth:    auth,
	}
	if n.routes == nil {
		n.routes = make(map[Method]*Route)
	}
	method.Each(func(m Method) {
		n.routes[m] = route
	})
	n.allowed |= method
	r.routes = append(r.routes, route)

	return nil
}

// Resolve looks up the route for a single method and a decoded path.
func (r *Router) Resolve(method Method, path string) Match {
	n := r.root
	var params Params

	for path != "" {
		var seg string
		seg, path = nextSegment(path)
		if seg == "" {
			continue
		}

		if child, ok := n.literals[seg]; ok {
			n = child
			continue
		}

		if n.param != nil {
			params = append(params, Param{Key: n.paramName, Value: seg})
			n = n.param
			continue
		}

		var next *node
		for _, e := range n.regexes {
			if e.re.MatchString(seg) {
				params = append(params, Param{Key: e.name, Value: seg})
				next = e.child
				break
			}
		}
		if next == nil {
			return Match{Outcome: NotFound}
		}
		n = next
	}

	if n.allowed == 0 {
		return Match{Outcome: NotFound}
	}
	if route, ok := n.routes[method]; ok {
		return Match{Outcome: Matched, Route: route, Params: params}
	}
	return Match{Outcome: MethodNotAllowed, Allowed: n.allowed}
}

// Freeze rejects further registrations.
func (r *Router) Freeze() { r.frozen.Store(true) }

// Frozen reports whether the router accepts registrations.
func (r *Router) Frozen() bool { return r.frozen.Load() }

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Route(nil), r.routes...)
}

func nextSegment(path string) (seg, rest string) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

type segmentKind uint8

const (
	segmentLiteral segmentKind = iota
	segmentParam
	segmentRegex
)

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
	expr  string
	re    *regexp.Regexp
}

func parsePattern(pattern string) ([]segment, error) {
	var segs []segment

	for _, s := range strings.Split(pattern, "/") {
		if s == "" {
			continue
		}

		if s[0] != '{' {
			if strings.ContainsAny(s, "{}") {
				return nil, fmt.Errorf("%w: stray brace in %q", ErrInvalidPattern, s)
			}
			segs = append(segs, segment{kind: segmentLiteral, value: s})
			continue
		}

		if s[len(s)-1] != '}' {
			return nil, fmt.Errorf("%w: unterminated %q", ErrInvalidPattern, s)
		}

		name, expr, hasExpr := strings.Cut(s[1:len(s)-1], ":")
		if name == "" {
			return nil, fmt.Errorf("%w: empty name in %q", ErrInvalidPattern, s)
		}
		if !hasExpr {
			segs = append(segs, segment{kind: segmentParam, value: name})
			continue
		}

		if expr == "" {
			return nil, fmt.Errorf("%w: empty pattern in %q", ErrInvalidPattern, s)
		}
		re, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		segs = append(segs, segment{kind: segmentRegex, value: name, expr: expr, re: re})
	}

	return segs, nil
}

func joinPattern(segs []segment) string {
	if len(segs) == 0 {
		return "/"
	}

	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		switch s.kind {
		case segmentLiteral:
			b.WriteString(s.value)
		case segmentParam:
			b.WriteString("{" + s.value + "}")
		case segmentRegex:
			b.WriteString("{" + s.value + ":" + s.expr + "}")
		}
	}
	return b.String()
}

func (n *node) child(s segment) (*node, error) {
	switch s.kind {
	case segmentParam:
		if n.param == nil {
			n.param = &node{}
			n.paramName = s.value
		} else if n.paramName != s.value {
			return nil, fmt.Errorf("%w: {%s} and {%s}", ErrParamConflict, n.paramName, s.value)
		}
		return n.param, nil

	case segmentRegex:
		for _, e := range n.regexes {
			if e.expr == s.expr {
				if e.name != s.value {
					return nil, fmt.Errorf("%w: {%s} and {%s}", ErrParamConflict, e.name, s.value)
				}
				return e.child, nil
			}
		}
		e := &regexEdge{name: s.value, expr: s.expr, re: s.re, child: &node{}}
		n.regexes = append(n.regexes, e)
		return e.child, nil

	default:
		if c, ok := n.literals[s.value]; ok {
			return c, nil
		}
		if n.literals == nil {
			n.literals = make(map[string]*node)
		}
		c := &node{}
		n.literals[s.value] = c
		return c, nil
	}
}
