package event

import "fmt"

// Number is the set of types Sum can add.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sum adds up results of type T. Nil results are skipped.
func Sum[T Number](results []any) (any, error) {
	var total T
	for i, r := range results {
		if r == nil {
			continue
		}
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("%w: result %d is %T, want %T", ErrResultType, i, r, total)
		}
		total += v
	}
	return total, nil
}

// Collect returns the non-nil results as a []T.
func Collect[T any](results []any) (any, error) {
	out := make([]T, 0, len(results))
	for i, r := range results {
		if r == nil {
			continue
		}
		v, ok := r.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("%w: result %d is %T, want %T", ErrResultType, i, r, zero)
		}
		out = append(out, v)
	}
	return out, nil
}
