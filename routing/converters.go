package routing

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/rw/scope"
)

// DefaultConverter is used for placeholders that name no converter.
const DefaultConverter = "str"

// Converter consumes a prefix of remaining and returns how many bytes it
// used together with the converted value. It returns ErrNoMatch when
// remaining does not start with something it accepts. args is the text
// between the parentheses of the placeholder, or empty.
type Converter func(remaining, args string) (int, any, error)

// Converters maps converter names to converters.
type Converters map[string]Converter

// DefaultConverters returns a new table holding the built-in converters.
func DefaultConverters() Converters {
	return Converters{
		"str":  String,
		"int":  Int,
		"uint": Uint,
		"path": Path,
		"uuid": UUID,
	}
}

// With returns a copy of c with conv added under name.
func (c Converters) With(name string, conv Converter) Converters {
	out := make(Converters, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[name] = conv
	return out
}

// ConvertersFrom returns the converter table published in the context
// chain under ConvertersKey, or the defaults.
func ConvertersFrom(ctx context.Context) Converters {
	if c, err := scope.Value[Converters](ctx, ConvertersKey); err == nil && c != nil {
		return c
	}
	return DefaultConverters()
}

// String matches one non-empty path segment.
func String(remaining, _ string) (int, any, error) {
	n := strings.IndexByte(remaining, '/')
	if n < 0 {
		n = len(remaining)
	}
	if n == 0 {
		return 0, nil, ErrNoMatch
	}
	return n, remaining[:n], nil
}

// Path matches the rest of the path, slashes included.
func Path(remaining, _ string) (int, any, error) {
	if remaining == "" {
		return 0, nil, ErrNoMatch
	}
	return len(remaining), remaining, nil
}

// Int matches a signed decimal integer. Leading zeros and "-0" are
// rejected so every match prints back to the same text.
func Int(remaining, _ string) (int, any, error) {
	sign := 0
	if strings.HasPrefix(remaining, "-") {
		sign = 1
	}
	digits := digitRun(remaining[sign:])
	if !canonical(digits) || (sign == 1 && digits == "0") {
		return 0, nil, ErrNoMatch
	}
	n := sign + len(digits)
	v, err := strconv.Atoi(remaining[:n])
	if err != nil {
		return 0, nil, ErrNoMatch
	}
	return n, v, nil
}

// Uint matches an unsigned decimal integer.
func Uint(remaining, _ string) (int, any, error) {
	digits := digitRun(remaining)
	if !canonical(digits) {
		return 0, nil, ErrNoMatch
	}
	v, err := strconv.ParseUint(digits, 10, 0)
	if err != nil {
		return 0, nil, ErrNoMatch
	}
	return len(digits), uint(v), nil
}

// UUID matches a UUID in its lower-case 36 character form.
func UUID(remaining, _ string) (int, any, error) {
	const size = 36
	if len(remaining) < size {
		return 0, nil, ErrNoMatch
	}
	id, err := uuid.Parse(remaining[:size])
	if err != nil || id.String() != remaining[:size] {
		return 0, nil, ErrNoMatch
	}
	return size, id, nil
}

func digitRun(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func canonical(digits string) bool {
	if digits == "" {
		return false
	}
	return digits == "0" || digits[0] != '0'
}
