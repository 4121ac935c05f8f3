package scope

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type chainKey struct{}

// Chain is an immutable list of scopes, outermost first. Entering a scope
// never mutates an existing chain, so a chain captured by one goroutine is
// unaffected by scopes entered elsewhere.
type Chain struct {
	parent *Chain
	scope  *Scope
	depth  int
}

// Enter returns a context whose chain has s as its innermost scope.
// Entering the scope that is already innermost returns ctx unchanged.
func Enter(ctx context.Context, s *Scope) context.Context {
	parent := ChainOf(ctx)
	if parent != nil && parent.scope == s {
		return ctx
	}
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	return context.WithValue(ctx, chainKey{}, &Chain{parent: parent, scope: s, depth: depth})
}

// Run calls fn with s entered. The scope is only visible through the
// context handed to fn, so it is left on every return path.
func Run(ctx context.Context, s *Scope, fn func(ctx context.Context) error) error {
	return fn(Enter(ctx, s))
}

// ChainOf returns the chain carried by ctx, or nil.
func ChainOf(ctx context.Context) *Chain {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(chainKey{}).(*Chain)
	return c
}

// Current returns the innermost scope carried by ctx, or nil.
func Current(ctx context.Context) *Scope {
	if c := ChainOf(ctx); c != nil {
		return c.scope
	}
	return nil
}

// Len returns the number of scopes in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// Scopes returns the scopes of the chain, outermost first.
func (c *Chain) Scopes() []*Scope {
	scopes := make([]*Scope, c.Len())
	for n := c; n != nil; n = n.parent {
		scopes[n.depth-1] = n.scope
	}
	return scopes
}

// Lookup searches the chain innermost first for a value or provider, then
// for sub-scopes named key. Sub-scopes are returned as a *View.
func (c *Chain) Lookup(key string) (any, bool, error) {
	for n := c; n != nil; n = n.parent {
		v, ok, err := n.scope.Lookup(key)
		if err != nil || ok {
			return v, ok, err
		}
	}
	if view := c.View(key); view != nil {
		return view, true, nil
	}
	return nil, false, nil
}

// Get is Lookup failing with ErrKeyNotFound when nothing is found.
func (c *Chain) Get(key string) (any, error) {
	v, ok, err := c.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

// View returns a view over every sub-scope named name in the chain, or
// nil when no scope of the chain has one.
func (c *Chain) View(name string) *View {
	var subs []*Scope
	for n := c; n != nil; n = n.parent {
		if sub, ok := n.scope.sub(name); ok {
			subs = append(subs, sub)
		}
	}
	if len(subs) == 0 {
		return nil
	}
	return &View{name: name, subs: subs}
}

// View aggregates the sub-scopes sharing one name across a chain so that
// independently initialised modules can publish into one namespace.
// Lookups prefer the innermost sub-scope.
type View struct {
	name string
	subs []*Scope
}

// Name returns the sub-scope name.
func (v *View) Name() string {
	return v.name
}

// Lookup returns the first value for key, innermost sub-scope first.
func (v *View) Lookup(key string) (any, bool, error) {
	for _, s := range v.subs {
		val, ok, err := s.Lookup(key)
		if err != nil || ok {
			return val, ok, err
		}
	}
	return nil, false, nil
}

// Get is Lookup failing with ErrKeyNotFound.
func (v *View) Get(key string) (any, error) {
	val, ok, err := v.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrKeyNotFound, key, v.name)
	}
	return val, nil
}

// Has reports whether any sub-scope of the view defines key.
func (v *View) Has(key string) bool {
	for _, s := range v.subs {
		if s.Has(key) {
			return true
		}
	}
	return false
}

// Keys returns the sorted union of keys of all sub-scopes.
func (v *View) Keys() []string {
	seen := make(map[string]struct{})
	for _, s := range v.subs {
		for _, k := range s.Keys() {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get looks key up in the chain carried by ctx.
func Get(ctx context.Context, key string) (any, error) {
	c := ChainOf(ctx)
	if c == nil {
		return nil, fmt.Errorf("%w: looking up %q", ErrOutsideScope, key)
	}
	return c.Get(key)
}

// GetOr looks key up in the chain carried by ctx and returns def when it
// is not found or no scope is active. Other failures, such as a provider
// error, are returned.
func GetOr(ctx context.Context, key string, def any) (any, error) {
	v, err := Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrOutsideScope) {
		return def, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Value looks key up and asserts it to T.
func Value[T any](ctx context.Context, key string) (T, error) {
	var zero T
	v, err := Get(ctx, key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, want %T", ErrWrongType, key, v, zero)
	}
	return typed, nil
}

// IsNotFound reports whether err means a key was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
