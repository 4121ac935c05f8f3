package routing

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/rw/scope"
)

// Endpoint is a handler registered on a table.
type Endpoint struct {
	Name    string
	Method  string
	Rule    *Rule
	Handler any

	// full is the rule of the first route the outermost finalized table
	// built for this endpoint.
	full *Rule
}

// URL builds the path of the endpoint from args.
func (e *Endpoint) URL(args Args) (string, error) {
	if e.full != nil {
		return e.full.Path(args)
	}
	return e.Rule.Path(args)
}

// Route is an entry of a finalized table.
type Route struct {
	Method   string
	Rule     *Rule
	Prefix   string
	Endpoint *Endpoint
}

// FullName returns the dotted name used for reverse routing.
func (r *Route) FullName() string {
	return joinName(r.Prefix, r.Endpoint.Name)
}

type mount struct {
	prefix *Rule
	name   string
	table  *Table
}

// Table is a per-method set of routes plus mounted child tables.
// Registration is safe for concurrent use; after Finalize the table is
// read-only and lookups take no lock.
type Table struct {
	name       string
	converters Converters

	mu        sync.Mutex
	own       []*Route
	mounts    []mount
	finalized atomic.Bool

	routes map[string][]*Route
	names  map[string]*Route
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithConverters sets the converters used to parse templates.
func WithConverters(c Converters) TableOption {
	return func(t *Table) {
		t.converters = c
	}
}

// NewTable creates an empty table.
func NewTable(name string, opts ...TableOption) *Table {
	t := &Table{name: name, converters: DefaultConverters()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Handle registers h for method and template under name. Names need not
// be unique within a method but resolve to one path across the table.
func (t *Table) Handle(method, template, name string, h any) (*Endpoint, error) {
	rule, err := ParseWith(template, t.converters)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{Name: name, Method: strings.ToUpper(method), Rule: rule, Handler: h}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized.Load() {
		return nil, fmt.Errorf("%w: %s", ErrTableFinalized, t.name)
	}
	t.own = append(t.own, &Route{Method: ep.Method, Rule: rule, Endpoint: ep})
	return ep, nil
}

// Get registers h for GET requests.
func (t *Table) Get(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodGet, template, name, h)
}

// Post registers h for POST requests.
func (t *Table) Post(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodPost, template, name, h)
}

// Put registers h for PUT requests.
func (t *Table) Put(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodPut, template, name, h)
}

// Delete registers h for DELETE requests.
func (t *Table) Delete(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodDelete, template, name, h)
}

// Patch registers h for PATCH requests.
func (t *Table) Patch(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodPatch, template, name, h)
}

// Options registers h for OPTIONS requests.
func (t *Table) Options(template, name string, h any) (*Endpoint, error) {
	return t.Handle(http.MethodOptions, template, name, h)
}

// Mount mounts child at prefix. Route names of the child are prefixed
// with the prefix path, dots for slashes: "/admin/users" gives
// "admin.users".
func (t *Table) Mount(prefix string, child *Table) error {
	return t.MountAs(prefix, strings.ReplaceAll(strings.Trim(prefix, "/"), "/", "."), child)
}

// MountAs mounts child at prefix with an explicit name prefix.
func (t *Table) MountAs(prefix, name string, child *Table) error {
	rule, err := ParseWith(prefix, t.converters)
	if err != nil {
		return err
	}
	if child == t {
		return fmt.Errorf("%w: table %s mounted on itself", ErrMalformedRule, t.name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized.Load() {
		return fmt.Errorf("%w: %s", ErrTableFinalized, t.name)
	}
	t.mounts = append(t.mounts, mount{prefix: rule, name: name, table: child})
	return nil
}

type routeKey struct {
	ep     *Endpoint
	method string
	prefix string
}

// Finalize builds the sorted route lists. Child tables are finalized
// first and their routes merged in with the mount prefix applied; a route
// whose endpoint, method and name prefix are already present is skipped.
// Finalize is idempotent, and the table cannot be changed afterwards.
func (t *Table) Finalize() error {
	return t.finalize(make(map[*Table]bool))
}

func (t *Table) finalize(visiting map[*Table]bool) error {
	if visiting[t] {
		return fmt.Errorf("%w: table %s is mounted inside itself", ErrMalformedRule, t.name)
	}
	visiting[t] = true
	defer delete(visiting, t)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized.Load() {
		return nil
	}

	var (
		ordered []*Route
		seen    = make(map[routeKey]bool)
	)
	add := func(r *Route) {
		key := routeKey{r.Endpoint, r.Method, r.Prefix}
		if seen[key] {
			return
		}
		seen[key] = true
		ordered = append(ordered, r)
	}

	for _, r := range t.own {
		add(r)
	}
	for _, m := range t.mounts {
		if err := m.table.finalize(visiting); err != nil {
			return fmt.Errorf("mount %s: %w", m.prefix.Template, err)
		}
		for _, cr := range m.table.all() {
			rule, err := Join(m.prefix, cr.Rule)
			if err != nil {
				return err
			}
			add(&Route{
				Method:   cr.Method,
				Rule:     rule,
				Prefix:   joinName(m.name, cr.Prefix),
				Endpoint: cr.Endpoint,
			})
		}
	}

	routes := make(map[string][]*Route)
	names := make(map[string]*Route)
	full := make(map[*Endpoint]bool)
	for _, r := range ordered {
		routes[r.Method] = append(routes[r.Method], r)
		if !full[r.Endpoint] {
			full[r.Endpoint] = true
			r.Endpoint.full = r.Rule
		}
		if r.Endpoint.Name == "" {
			continue
		}
		name := r.FullName()
		if prev, ok := names[name]; ok {
			if prev.Rule.String() != r.Rule.String() {
				return fmt.Errorf("%w: %q for %s and %s", ErrDuplicateRouteName, name, prev.Rule.Template, r.Rule.Template)
			}
			continue
		}
		names[name] = r
	}
	for _, list := range routes {
		slices.SortStableFunc(list, func(a, b *Route) int { return Compare(a.Rule, b.Rule) })
	}

	t.routes = routes
	t.names = names
	t.finalized.Store(true)
	return nil
}

// all returns the finalized routes of every method, methods sorted.
func (t *Table) all() []*Route {
	methods := make([]string, 0, len(t.routes))
	for m := range t.routes {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	var out []*Route
	for _, m := range methods {
		out = append(out, t.routes[m]...)
	}
	return out
}

// Finalized reports whether Finalize has run.
func (t *Table) Finalized() bool {
	return t.finalized.Load()
}

// Routes returns the finalized routes grouped by method, methods sorted,
// each group in match order.
func (t *Table) Routes() []*Route {
	if !t.Finalized() {
		return nil
	}
	return t.all()
}

// FindRoute returns the name prefix, endpoint and arguments of the first
// route of method matching path, or zero values when nothing matches.
// Only finalized tables have routes.
func (t *Table) FindRoute(method, path string) (string, *Endpoint, Args) {
	if !t.Finalized() {
		return "", nil, nil
	}
	for _, r := range t.routes[strings.ToUpper(method)] {
		if args, ok := r.Rule.Match(path); ok {
			return r.Prefix, r.Endpoint, args
		}
	}
	return "", nil, nil
}

// Allowed returns the methods with a route matching path.
func (t *Table) Allowed(path string) []string {
	if !t.Finalized() {
		return nil
	}
	var methods []string
	for method, list := range t.routes {
		for _, r := range list {
			if _, ok := r.Rule.Match(path); ok {
				methods = append(methods, method)
				break
			}
		}
	}
	sort.Strings(methods)
	return methods
}

// URLFor builds a path for target, which is an *Endpoint or a dotted
// route name. Names starting with "." are relative to the mount prefix
// found in the context chain under PrefixKey.
func (t *Table) URLFor(ctx context.Context, target any, args Args) (string, error) {
	switch tgt := target.(type) {
	case *Endpoint:
		return tgt.URL(args)
	case string:
		name := tgt
		if strings.HasPrefix(name, ".") {
			v, err := scope.GetOr(ctx, PrefixKey, "")
			if err != nil {
				return "", err
			}
			prefix, _ := v.(string)
			name = strings.TrimLeft(prefix+name, ".")
		}
		if !t.Finalized() {
			return "", fmt.Errorf("%w: %s", ErrUnknownRoute, name)
		}
		r, ok := t.names[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownRoute, name)
		}
		return r.Rule.Path(args)
	default:
		return "", fmt.Errorf("%w: got %T", ErrInvalidTarget, target)
	}
}

// URLFor builds a path with the table published in the context chain.
func URLFor(ctx context.Context, target any, args Args) (string, error) {
	if ep, ok := target.(*Endpoint); ok {
		return ep.URL(args)
	}
	t, err := scope.Value[*Table](ctx, TableKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoTable, err)
	}
	return t.URLFor(ctx, target, args)
}

func joinName(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}
