package registry

import (
	"fmt"
	"reflect"
)

// Handle is the resolved view of an interface. Depending on how many
// implementations were active at resolution time it is a single, a multi
// or a stub handle; Call hides the difference.
type Handle struct {
	iface *Interface
	kind  Kind
	impls []any
}

// Kind returns the handle variant.
func (h *Handle) Kind() Kind { return h.kind }

// Interface returns the declaration the handle was resolved from.
func (h *Handle) Interface() *Interface { return h.iface }

// Implementations returns the implementations captured by the handle.
func (h *Handle) Implementations() []any {
	return append([]any(nil), h.impls...)
}

// Call invokes method with args.
//
// Single handles return the method's result. Multi handles call every
// implementation in activation order and return the []any of results, or
// the Combiner's value when the method is post-processed. Stubs of Multi
// interfaces behave like a Multi handle with no implementations, so a
// post-processed method still gets its Combiner called with no results.
// Stubs of Single interfaces fail with ErrNoImplementationActive.
func (h *Handle) Call(method string, args ...any) (any, error) {
	if !h.iface.HasMethod(method) {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotDefined, h.iface.Path, method)
	}

	if h.iface.Cardinality == Single {
		if h.kind == KindStub {
			return nil, fmt.Errorf("%w: %s", ErrNoImplementationActive, h.iface.Path)
		}
		return invoke(h.impls[0], method, args)
	}

	results := make([]any, 0, len(h.impls))
	for _, impl := range h.impls {
		res, err := invoke(impl, method, args)
		if err != nil {
			return nil, fmt.Errorf("%s.%s on %T: %w", h.iface.Path, method, impl, err)
		}
		results = append(results, res)
	}
	if combine, ok := h.iface.postProcess[method]; ok {
		return combine(args, results)
	}
	return results, nil
}

var errorType = reflect.TypeFor[error]()

func invoke(impl any, method string, args []any) (any, error) {
	m := reflect.ValueOf(impl).MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T.%s", ErrMethodNotDefined, impl, method)
	}
	in, err := buildArgs(m.Type(), args)
	if err != nil {
		return nil, fmt.Errorf("%T.%s: %w", impl, method, err)
	}
	return unpack(m.Type(), m.Call(in))
}

func buildArgs(mt reflect.Type, args []any) ([]reflect.Value, error) {
	n := mt.NumIn()
	if mt.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%w: got %d, want at least %d", ErrArgumentCount, len(args), n-1)
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrArgumentCount, len(args), n)
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var t reflect.Type
		if mt.IsVariadic() && i >= n-1 {
			t = mt.In(n - 1).Elem()
		} else {
			t = mt.In(i)
		}
		v, err := argValue(arg, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func argValue(arg any, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrArgumentType, t)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(t.Kind()) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s for %s", ErrArgumentType, v.Type(), t)
}

func unpack(mt reflect.Type, out []reflect.Value) (any, error) {
	var err error
	if n := mt.NumOut(); n > 0 && mt.Out(n-1) == errorType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}
	if err != nil {
		return nil, err
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	values := make([]any, len(out))
	for i, v := range out {
		values[i] = v.Interface()
	}
	return values, nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
