package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/GoCodeAlone/rw/internal/logging"
)

// Static errors for registry package
var (
	ErrInterfaceNotDefined      = errors.New("interface not defined")
	ErrInterfaceAlreadyDeclared = errors.New("interface already declared")
	ErrInvalidPath              = errors.New("interface path must be <namespace>.<name>")
	ErrContractNotInterface     = errors.New("contract must be an interface type")
	ErrInvalidCardinality       = errors.New("invalid cardinality")
	ErrNoImplementationActive   = errors.New("no implementation active")
	ErrImplementationConflict   = errors.New("implementation already active for single interface")
	ErrImplementationNil        = errors.New("implementation is nil")
	ErrContractNotSatisfied     = errors.New("implementation does not satisfy contract")
	ErrPathRequired             = errors.New("implementation path required")
	ErrMethodNotDefined         = errors.New("method not defined by interface")
	ErrArgumentCount            = errors.New("wrong number of arguments")
	ErrArgumentType             = errors.New("argument has wrong type")
	ErrCardinalityMismatch      = errors.New("interface has other cardinality")
	ErrLoaderFailed             = errors.New("namespace loader failed")
)

// Registry holds declared interfaces and their active implementations. It
// is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	interfaces map[string]*Interface
	active     map[string][]any
	config     *Config
	logger     logging.Logger

	loadMu  sync.Mutex
	loaders map[string][]Loader
	loaded  map[string]bool
}

// NewRegistry creates a new plugin registry
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = &Config{
			ConflictResolution: ConflictResolutionError,
		}
	}

	return &Registry{
		interfaces: make(map[string]*Interface),
		active:     make(map[string][]any),
		config:     config,
		logger:     logging.OrDiscard(config.Logger),
		loaders:    make(map[string][]Loader),
		loaded:     make(map[string]bool),
	}
}

// Declare declares the interface path with the given contract, which must
// be an interface type.
func (r *Registry) Declare(path string, contract reflect.Type, card Cardinality, opts ...DeclareOption) (*Interface, error) {
	namespace, name, ok := splitPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if contract == nil || contract.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %s got %v", ErrContractNotInterface, path, contract)
	}
	if card != Single && card != Multi {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCardinality, card)
	}

	iface := &Interface{
		Path:        path,
		Namespace:   namespace,
		Name:        name,
		Contract:    contract,
		Cardinality: card,
		postProcess: make(map[string]Combiner),
		docs:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(iface)
	}
	for method := range iface.postProcess {
		if !iface.HasMethod(method) {
			return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotDefined, path, method)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.interfaces[path]; exists {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceAlreadyDeclared, path)
	}
	r.interfaces[path] = iface
	r.logger.Debug("Declared interface", "path", path, "cardinality", card, "contract", contract.String())
	return iface, nil
}

// DeclareFor declares path with the interface type T as contract.
func DeclareFor[T any](r *Registry, path string, card Cardinality, opts ...DeclareOption) (*Interface, error) {
	return r.Declare(path, reflect.TypeFor[T](), card, opts...)
}

// AddLoader registers a loader for namespace. Looking up an undeclared
// path runs the loaders of its namespace, or of the nearest parent
// namespace that has loaders, once.
func (r *Registry) AddLoader(namespace string, l Loader) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	r.loaders[namespace] = append(r.loaders[namespace], l)
}

// Interface returns the declaration of path.
func (r *Registry) Interface(path string) (*Interface, error) {
	r.mu.RLock()
	iface, ok := r.interfaces[path]
	r.mu.RUnlock()
	if ok {
		return iface, nil
	}

	namespace, _, ok := splitPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if err := r.load(namespace); err != nil {
		return nil, err
	}

	r.mu.RLock()
	iface, ok = r.interfaces[path]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInterfaceNotDefined, path)
	}
	return iface, nil
}

// load runs the loaders of the nearest namespace that has any. The
// namespace is claimed under loadMu and its loaders run without it, so a
// loader may look up paths of other namespaces. A lookup made while the
// namespace is still loading does not wait for it.
func (r *Registry) load(namespace string) error {
	ns, loaders := r.claim(namespace)
	for _, l := range loaders {
		if err := l(r); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrLoaderFailed, ns, err)
		}
	}
	return nil
}

func (r *Registry) claim(namespace string) (string, []Loader) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	for ns := namespace; ns != ""; ns = parentNamespace(ns) {
		loaders := r.loaders[ns]
		if len(loaders) == 0 {
			continue
		}
		if r.loaded[ns] {
			return ns, nil
		}
		r.loaded[ns] = true
		return ns, slices.Clone(loaders)
	}
	return "", nil
}

// Activate makes impl an active implementation of path. An empty path is
// taken from impl when it implements PathProvider.
func (r *Registry) Activate(path string, impl any) error {
	if impl == nil {
		return ErrImplementationNil
	}
	if path == "" {
		p, ok := impl.(PathProvider)
		if !ok {
			return fmt.Errorf("%w: %T", ErrPathRequired, impl)
		}
		path = p.PluginPath()
	}

	iface, err := r.Interface(path)
	if err != nil {
		return err
	}
	if !reflect.TypeOf(impl).Implements(iface.Contract) {
		return fmt.Errorf("%w: %T does not implement %s (%s)", ErrContractNotSatisfied, impl, iface.Contract, path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch iface.Cardinality {
	case Single:
		if existing := r.active[path]; len(existing) > 0 {
			if r.config.ConflictResolution != ConflictResolutionOverwrite {
				return fmt.Errorf("%w: %s has %T", ErrImplementationConflict, path, existing[0])
			}
			r.logger.Warn("Replacing active implementation", "path", path, "old", fmt.Sprintf("%T", existing[0]), "new", fmt.Sprintf("%T", impl))
		}
		r.active[path] = []any{impl}
	case Multi:
		r.active[path] = append(r.active[path], impl)
	}
	r.logger.Debug("Activated implementation", "path", path, "implementation", fmt.Sprintf("%T", impl))
	return nil
}

// Deactivate removes every active implementation of path.
func (r *Registry) Deactivate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, path)
}

// Resolve returns a handle over the implementations of path active now.
func (r *Registry) Resolve(path string) (*Handle, error) {
	iface, err := r.Interface(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	impls := append([]any(nil), r.active[path]...)
	r.mu.RUnlock()

	h := &Handle{iface: iface, impls: impls, kind: KindStub}
	if len(impls) > 0 {
		if iface.Cardinality == Single {
			h.kind = KindSingle
		} else {
			h.kind = KindMulti
		}
	}
	return h, nil
}

// Call resolves path and calls method on it.
func (r *Registry) Call(path, method string, args ...any) (any, error) {
	h, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return h.Call(method, args...)
}

// List returns the declared interfaces sorted by path
func (r *Registry) List() []*InterfaceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*InterfaceEntry, 0, len(r.interfaces))
	for path, iface := range r.interfaces {
		entries = append(entries, &InterfaceEntry{
			Path:        path,
			Cardinality: iface.Cardinality,
			Methods:     iface.Methods(),
			Active:      len(r.active[path]),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// Get returns the active implementation of the Single interface path.
func Get[T any](r *Registry, path string) (T, error) {
	var zero T
	h, err := r.Resolve(path)
	if err != nil {
		return zero, err
	}
	if h.iface.Cardinality != Single {
		return zero, fmt.Errorf("%w: %s is %s", ErrCardinalityMismatch, path, h.iface.Cardinality)
	}
	if h.kind == KindStub {
		return zero, fmt.Errorf("%w: %s", ErrNoImplementationActive, path)
	}
	impl, ok := h.impls[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not %T", ErrContractNotSatisfied, h.impls[0], zero)
	}
	return impl, nil
}

// All returns the active implementations of the Multi interface path in
// activation order.
func All[T any](r *Registry, path string) ([]T, error) {
	h, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	if h.iface.Cardinality != Multi {
		return nil, fmt.Errorf("%w: %s is %s", ErrCardinalityMismatch, path, h.iface.Cardinality)
	}
	out := make([]T, 0, len(h.impls))
	for _, i := range h.impls {
		impl, ok := i.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("%w: %T is not %T", ErrContractNotSatisfied, i, zero)
		}
		out = append(out, impl)
	}
	return out, nil
}

func splitPath(path string) (namespace, name string, ok bool) {
	idx := strings.LastIndexByte(path, '.')
	if idx <= 0 || idx == len(path)-1 {
		return "", "", false
	}
	namespace, name = path[:idx], path[idx+1:]
	for _, part := range strings.Split(namespace, ".") {
		if part == "" {
			return "", "", false
		}
	}
	return namespace, name, true
}

func parentNamespace(ns string) string {
	idx := strings.LastIndexByte(ns, '.')
	if idx < 0 {
		return ""
	}
	return ns[:idx]
}
