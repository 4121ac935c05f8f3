package registry

import "reflect"

var defaultRegistry = NewRegistry(nil)

// Default returns the process-wide registry used by the package functions.
func Default() *Registry {
	return defaultRegistry
}

// Declare declares path on the default registry.
func Declare(path string, contract reflect.Type, card Cardinality, opts ...DeclareOption) (*Interface, error) {
	return defaultRegistry.Declare(path, contract, card, opts...)
}

// Activate activates impl on the default registry.
func Activate(path string, impl any) error {
	return defaultRegistry.Activate(path, impl)
}

// Resolve resolves path on the default registry.
func Resolve(path string) (*Handle, error) {
	return defaultRegistry.Resolve(path)
}

// Call calls method of path on the default registry.
func Call(path, method string, args ...any) (any, error) {
	return defaultRegistry.Call(path, method, args...)
}
