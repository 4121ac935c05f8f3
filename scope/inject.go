package scope

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/golobby/cast"
)

// Inject fills the zero-valued exported fields of the struct target points
// to from the chain carried by ctx. Fields already set by the caller are
// kept.
//
// The scope key of a field is taken from its `scope` tag, or defaults to
// the field name with a lower-case first letter:
//
//	type deps struct {
//		Settings config.Settings `scope:"settings"`
//		Handler  *Handler        // key "handler"
//		Mailer   Mailer          `scope:"mailer,optional"`
//		Internal int             `scope:"-"`
//	}
//
// String values are converted to the field type when they are not directly
// assignable. Without an active chain, any field that would need a lookup
// fails with ErrOutsideScope.
func Inject(ctx context.Context, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: got %T", ErrInjectTarget, target)
	}

	chain := ChainOf(ctx)
	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}
		key, optional, skip := parseTag(field)
		if skip {
			continue
		}
		fv := sv.Field(i)
		if !fv.IsZero() {
			continue
		}

		if chain == nil {
			if optional {
				continue
			}
			return fmt.Errorf("%w: cannot inject %q into %s.%s", ErrOutsideScope, key, st.Name(), field.Name)
		}

		v, err := chain.Get(key)
		if err != nil {
			if optional && errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("inject %s.%s: %w", st.Name(), field.Name, err)
		}
		if err := assign(fv, v); err != nil {
			return fmt.Errorf("inject %s.%s: %w", st.Name(), field.Name, err)
		}
	}
	return nil
}

// Injected adapts fn so that its dependencies are injected from the chain
// of the context it is called with.
func Injected[T any](fn func(ctx context.Context, deps T) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var deps T
		if err := Inject(ctx, &deps); err != nil {
			return err
		}
		return fn(ctx, deps)
	}
}

func parseTag(field reflect.StructField) (key string, optional, skip bool) {
	tag, ok := field.Tag.Lookup("scope")
	if ok && tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = lowerFirst(field.Name)
	}
	for _, opt := range strings.Split(opts, ",") {
		if strings.TrimSpace(opt) == "optional" {
			optional = true
		}
	}
	return name, optional, false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func assign(field reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	val := reflect.ValueOf(v)
	ft := field.Type()
	if val.Type().AssignableTo(ft) {
		field.Set(val)
		return nil
	}

	if str, ok := v.(string); ok {
		converted, err := cast.FromType(str, ft)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIncompatible, err)
		}
		cv := reflect.ValueOf(converted)
		if cv.Type().AssignableTo(ft) {
			field.Set(cv)
			return nil
		}
		if cv.Type().ConvertibleTo(ft) {
			field.Set(cv.Convert(ft))
			return nil
		}
	}

	if val.Type().ConvertibleTo(ft) && (val.Kind() == ft.Kind() || (isNumeric(val.Kind()) && isNumeric(ft.Kind()))) {
		field.Set(val.Convert(ft))
		return nil
	}
	return fmt.Errorf("%w: %T into %s", ErrIncompatible, v, ft)
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
