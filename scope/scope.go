// Package scope provides nested key/value scopes used for dependency
// injection.
//
// A Scope holds plain values, lazily resolved providers and named
// sub-scopes. Scopes are stacked into a Chain which travels with a
// context.Context, so every goroutine (request, startup hook, event
// subscriber) sees exactly the chain of the unit of work it belongs to:
//
//	app := scope.New()
//	app.Set("settings", settings)
//
//	ctx = scope.Enter(ctx, app)
//	req := scope.New()
//	req.Provide("user", loadUser)
//
//	err := scope.Run(ctx, req, func(ctx context.Context) error {
//		user, err := scope.Get(ctx, "user") // resolved once, cached in req
//		...
//	})
//
// Lookups walk the chain from the innermost scope outwards.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Static errors for scope package
var (
	ErrKeyNotFound  = errors.New("no value stored and no default given")
	ErrOutsideScope = errors.New("no scope active")
	ErrInjectTarget = errors.New("inject target must be a non-nil pointer to a struct")
	ErrWrongType    = errors.New("scope value has unexpected type")
	ErrIncompatible = errors.New("scope value cannot be assigned to field")
)

// Provider lazily computes a scope value. It is invoked at most once per
// scope; its result replaces it.
type Provider func() (any, error)

type lazy struct {
	once sync.Once
	fn   Provider
	val  any
	err  error
}

func (l *lazy) resolve() (any, error) {
	l.once.Do(func() {
		l.val, l.err = l.fn()
	})
	return l.val, l.err
}

// Activator is a unit that can be activated within a scope, typically a
// plugin whose init event populates the scope.
type Activator interface {
	Name() string
	Activate(ctx context.Context) error
}

// Scope is a mutable key/value store with providers and sub-scopes.
// It is safe for concurrent use.
type Scope struct {
	mu        sync.RWMutex
	values    map[string]any
	providers map[string]*lazy
	subs      map[string]*Scope
	active    []string
}

// New creates an empty scope.
func New() *Scope {
	return &Scope{
		values:    make(map[string]any),
		providers: make(map[string]*lazy),
		subs:      make(map[string]*Scope),
	}
}

// NewWith creates a scope pre-populated with values.
func NewWith(values map[string]any) *Scope {
	s := New()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set stores a value, discarding any provider registered for key.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	delete(s.providers, key)
}

// SetDefault stores value unless key already has a value and returns the
// value now stored under key.
func (s *Scope) SetDefault(key string, value any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing
	}
	s.values[key] = value
	return value
}

// Delete removes the value and provider stored under key.
func (s *Scope) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.providers, key)
}

// Provide registers a provider for key. A value already stored under key
// takes precedence over the provider.
func (s *Scope) Provide(key string, p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[key] = &lazy{fn: p}
}

// Lookup returns the value stored under key in this scope only, resolving
// and caching a provider if needed.
func (s *Scope) Lookup(key string) (any, bool, error) {
	s.mu.RLock()
	if v, ok := s.values[key]; ok {
		s.mu.RUnlock()
		return v, true, nil
	}
	p, ok := s.providers[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	// resolve outside the lock: providers may read the chain themselves
	v, err := p.resolve()
	if err != nil {
		return nil, true, fmt.Errorf("provider for %q: %w", key, err)
	}

	s.mu.Lock()
	if current, ok := s.providers[key]; ok && current == p {
		s.values[key] = v
		delete(s.providers, key)
	} else if stored, ok := s.values[key]; ok {
		v = stored
	}
	s.mu.Unlock()
	return v, true, nil
}

// Get returns the value stored under key in this scope only.
func (s *Scope) Get(key string) (any, error) {
	v, ok, err := s.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

// Has reports whether key has a value or a provider in this scope.
func (s *Scope) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.values[key]; ok {
		return true
	}
	_, ok := s.providers[key]
	return ok
}

// Keys returns the sorted keys with a value or provider in this scope.
func (s *Scope) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values)+len(s.providers))
	for k := range s.values {
		keys = append(keys, k)
	}
	for k := range s.providers {
		if _, ok := s.values[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Sub returns the sub-scope registered under name, creating it if absent.
func (s *Scope) Sub(name string) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[name]
	if !ok {
		sub = New()
		s.subs[name] = sub
	}
	return sub
}

func (s *Scope) sub(name string) (*Scope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[name]
	return sub, ok
}

// Activate activates a within this scope: the scope is entered, the
// activator runs, and its name is recorded as active. Activating an
// already active name is a no-op.
func (s *Scope) Activate(ctx context.Context, a Activator) error {
	name := a.Name()
	s.mu.Lock()
	for _, n := range s.active {
		if n == name {
			s.mu.Unlock()
			return nil
		}
	}
	s.active = append(s.active, name)
	s.mu.Unlock()

	if err := a.Activate(Enter(ctx, s)); err != nil {
		s.mu.Lock()
		for i, n := range s.active {
			if n == name {
				s.active = append(s.active[:i], s.active[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return fmt.Errorf("activate %s: %w", name, err)
	}
	return nil
}

// Active returns the names of the activators activated in this scope, in
// activation order.
func (s *Scope) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.active...)
}

// IsActive reports whether name was activated in this scope.
func (s *Scope) IsActive(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.active {
		if n == name {
			return true
		}
	}
	return false
}
