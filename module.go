package rw

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/rw/routing"
	"github.com/GoCodeAlone/rw/scope"
)

// HandlerFunc handles a routed request. Request data is read from the
// context chain: the request scope holds the URL variables under their
// names and, together, under URLVariablesKey.
type HandlerFunc func(ctx context.Context) error

// Keys of the per-request scope.
const (
	RequestKey      = "request"
	ResponseKey     = "response"
	URLVariablesKey = "url_variables"
	ModuleKey       = "module"
)

// Route is a route declared on a module. After the routing table was
// built it knows its endpoint, which URLFor accepts as target.
type Route struct {
	Method   string
	Template string
	Name     string
	Handler  HandlerFunc

	module   *Module
	endpoint *routing.Endpoint
}

// Endpoint returns the endpoint built for the route, or nil before the
// routing table was built.
func (r *Route) Endpoint() *routing.Endpoint {
	return r.endpoint
}

// Module returns the module declaring the route.
func (r *Route) Module() *Module {
	return r.module
}

type moduleMount struct {
	prefix string
	name   string
	module *Module
}

// Module is a plugin declaring routes and mounting other modules. The
// application builds one routing table from its root module.
type Module struct {
	*Plugin

	routes []*Route
	mounts []moduleMount
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Plugin: NewPlugin(name)}
}

// Handle declares a route. Templates are parsed when the routing table
// is built, with the converters found in the context chain then.
func (m *Module) Handle(method, template, name string, h HandlerFunc) *Route {
	r := &Route{Method: method, Template: template, Name: name, Handler: h, module: m}
	m.routes = append(m.routes, r)
	return r
}

// Get declares a GET route.
func (m *Module) Get(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodGet, template, name, h)
}

// Post declares a POST route.
func (m *Module) Post(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodPost, template, name, h)
}

// Put declares a PUT route.
func (m *Module) Put(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodPut, template, name, h)
}

// Delete declares a DELETE route.
func (m *Module) Delete(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodDelete, template, name, h)
}

// Patch declares a PATCH route.
func (m *Module) Patch(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodPatch, template, name, h)
}

// Options declares an OPTIONS route.
func (m *Module) Options(template, name string, h HandlerFunc) *Route {
	return m.Handle(http.MethodOptions, template, name, h)
}

// Mount mounts child at prefix; its route names get the prefix path,
// dots for slashes, as name prefix.
func (m *Module) Mount(prefix string, child *Module) *Module {
	m.mounts = append(m.mounts, moduleMount{prefix: prefix, module: child})
	return m
}

// MountAs mounts child at prefix with an explicit name prefix.
func (m *Module) MountAs(prefix, name string, child *Module) *Module {
	m.mounts = append(m.mounts, moduleMount{prefix: prefix, name: name, module: child})
	return m
}

// Modules returns m followed by every module mounted below it, each
// once, depth first.
func (m *Module) Modules() []*Module {
	var (
		out  []*Module
		seen = make(map[*Module]bool)
		walk func(*Module)
	)
	walk = func(mod *Module) {
		if seen[mod] {
			return
		}
		seen[mod] = true
		out = append(out, mod)
		for _, mt := range mod.mounts {
			walk(mt.module)
		}
	}
	walk(m)
	return out
}

// BuildTable builds and finalizes the routing table of m and the modules
// mounted below it.
func (m *Module) BuildTable(ctx context.Context) (*routing.Table, error) {
	t, err := m.build(routing.ConvertersFrom(ctx), make(map[*Module]bool))
	if err != nil {
		return nil, err
	}
	if err := t.Finalize(); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Name(), err)
	}
	return t, nil
}

func (m *Module) build(convs routing.Converters, visiting map[*Module]bool) (*routing.Table, error) {
	if visiting[m] {
		return nil, fmt.Errorf("%w: %s", ErrModuleCycle, m.Name())
	}
	visiting[m] = true
	defer delete(visiting, m)

	t := routing.NewTable(m.Name(), routing.WithConverters(convs))
	for _, r := range m.routes {
		ep, err := t.Handle(r.Method, r.Template, r.Name, r)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name(), err)
		}
		if r.endpoint == nil {
			r.endpoint = ep
		}
	}
	for _, mt := range m.mounts {
		child, err := mt.module.build(convs, visiting)
		if err != nil {
			return nil, err
		}
		if mt.name == "" {
			err = t.Mount(mt.prefix, child)
		} else {
			err = t.MountAs(mt.prefix, mt.name, child)
		}
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name(), err)
		}
	}
	return t, nil
}

// URLFor builds a path for target: a *Route, a *routing.Endpoint or a
// route name, where names starting with "." are relative to the module
// serving the current request.
func URLFor(ctx context.Context, target any, args routing.Args) (string, error) {
	if r, ok := target.(*Route); ok {
		if r.endpoint == nil {
			return "", fmt.Errorf("%w: route %s has not been built", routing.ErrUnknownRoute, r.Template)
		}
		target = r.endpoint
	}
	return routing.URLFor(ctx, target, args)
}

// URLVariables returns the variables of the matched route.
func URLVariables(ctx context.Context) routing.Args {
	if args, err := scope.Value[routing.Args](ctx, URLVariablesKey); err == nil {
		return args
	}
	return nil
}
