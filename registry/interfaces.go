// Package registry defines plugin interfaces and collects their
// implementations.
//
// An interface is declared under a dotted path "<module>.<name>" with a Go
// interface type as its contract and a cardinality: Single interfaces
// expect exactly one active implementation, Multi interfaces fan calls out
// to every active implementation. Callers resolve a path to a Handle and
// call methods through it without caring how many implementations exist.
package registry

import (
	"reflect"
	"sort"

	"github.com/GoCodeAlone/rw/internal/logging"
)

// Cardinality defines how many implementations an interface takes
type Cardinality string

const (
	Single Cardinality = "single" // exactly one active implementation
	Multi  Cardinality = "multi"  // zero or more, calls fan out
)

// Kind tells which variant a Handle is
type Kind int

const (
	KindStub Kind = iota
	KindSingle
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMulti:
		return "multi"
	default:
		return "stub"
	}
}

// Combiner reduces the results of a fanned-out call to one value. It
// receives the call arguments and the results in activation order.
type Combiner func(args []any, results []any) (any, error)

// Loader declares the interfaces of a namespace. Loaders run the first
// time an undeclared path of their namespace is looked up.
type Loader func(r *Registry) error

// PathProvider is implemented by implementations that know their path.
type PathProvider interface {
	PluginPath() string
}

// Interface is a declared plugin contract
type Interface struct {
	Path        string
	Namespace   string
	Name        string
	Contract    reflect.Type
	Cardinality Cardinality

	postProcess map[string]Combiner
	docs        map[string]string
}

// Methods returns the sorted method names of the contract.
func (i *Interface) Methods() []string {
	names := make([]string, 0, i.Contract.NumMethod())
	for m := 0; m < i.Contract.NumMethod(); m++ {
		names = append(names, i.Contract.Method(m).Name)
	}
	sort.Strings(names)
	return names
}

// HasMethod reports whether the contract has method.
func (i *Interface) HasMethod(method string) bool {
	_, ok := i.Contract.MethodByName(method)
	return ok
}

// PostProcessed reports whether calls to method are reduced by a Combiner.
func (i *Interface) PostProcessed(method string) bool {
	_, ok := i.postProcess[method]
	return ok
}

// Doc returns the documentation registered for method.
func (i *Interface) Doc(method string) string {
	return i.docs[method]
}

// DeclareOption configures a declared interface.
type DeclareOption func(*Interface)

// WithPostProcess reduces fanned-out calls of method with c.
func WithPostProcess(method string, c Combiner) DeclareOption {
	return func(i *Interface) {
		i.postProcess[method] = c
	}
}

// WithDoc documents method.
func WithDoc(method, doc string) DeclareOption {
	return func(i *Interface) {
		i.docs[method] = doc
	}
}

// InterfaceEntry describes a declared interface for diagnostics
type InterfaceEntry struct {
	Path        string      `json:"path"`
	Cardinality Cardinality `json:"cardinality"`
	Methods     []string    `json:"methods"`
	Active      int         `json:"active"`
}

// ConflictResolution defines what happens when a second implementation of
// a Single interface is activated
type ConflictResolution string

const (
	ConflictResolutionError     ConflictResolution = "error"     // Fail the activation
	ConflictResolutionOverwrite ConflictResolution = "overwrite" // Replace the active implementation
)

// Config represents configuration for the registry
type Config struct {
	ConflictResolution ConflictResolution
	Logger             logging.Logger
}
