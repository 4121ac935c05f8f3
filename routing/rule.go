// Package routing turns path templates into rules, matches request paths
// against sorted routing tables and generates paths back from rules.
//
// A template is literal text with placeholders:
//
//	/shop/<category>/item/<id:int>
//	/files/<name:path>
//	/doc/<id:uuid>
//
// A placeholder without converter uses "str", which matches one non-empty
// path segment. Text in parentheses after the converter name, as in
// <code:custom(4)>, is handed to the converter.
//
// For every template T and every path P matching T, generating a path
// from the arguments of the match gives back P.
package routing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Static errors for routing package
var (
	ErrMalformedRule      = errors.New("malformed url rule")
	ErrNoMatch            = errors.New("no match")
	ErrMissingArgument    = errors.New("missing url argument")
	ErrDuplicateRouteName = errors.New("duplicate route name")
	ErrTableFinalized     = errors.New("routing table already finalized")
	ErrUnknownRoute       = errors.New("unknown route")
	ErrNoTable            = errors.New("no routing table in scope")
	ErrInvalidTarget      = errors.New("url target must be a route name or *Endpoint")
)

// Keys under which routing state is published in the context chain.
const (
	TableKey      = "rw.routing.table"
	PrefixKey     = "rw.routing.prefix"
	ConvertersKey = "rw.routing.converters"
)

// Args holds the values extracted from a path, keyed by variable name.
type Args map[string]any

// Segment is either literal text or a variable converted by a converter.
type Segment struct {
	Literal   string
	Variable  string
	Converter string
	Args      string

	conv Converter
}

// IsVariable reports whether s is a placeholder.
func (s Segment) IsVariable() bool {
	return s.Variable != ""
}

func (s Segment) String() string {
	if !s.IsVariable() {
		return s.Literal
	}
	if s.Args != "" {
		return fmt.Sprintf("<%s:%s(%s)>", s.Variable, s.Converter, s.Args)
	}
	return fmt.Sprintf("<%s:%s>", s.Variable, s.Converter)
}

// Rule is a parsed path template.
type Rule struct {
	Template string
	Segments []Segment
}

// Parse parses template with the built-in converters.
func Parse(template string) (*Rule, error) {
	return ParseWith(template, DefaultConverters())
}

// ParseContext parses template with the converters of the context chain.
func ParseContext(ctx context.Context, template string) (*Rule, error) {
	return ParseWith(template, ConvertersFrom(ctx))
}

// ParseWith parses template, resolving converter names in convs.
func ParseWith(template string, convs Converters) (*Rule, error) {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: %q: %s", ErrMalformedRule, template, fmt.Sprintf(format, args...))
	}

	rule := &Rule{Template: template}
	used := make(map[string]bool)
	pos := 0
	for pos < len(template) {
		open := strings.IndexByte(template[pos:], '<')
		if open < 0 {
			open = len(template) - pos
		}
		if lit := template[pos : pos+open]; lit != "" {
			if strings.ContainsRune(lit, '>') {
				return nil, malformed("unexpected '>'")
			}
			rule.Segments = append(rule.Segments, Segment{Literal: lit})
		}
		pos += open
		if pos >= len(template) {
			break
		}

		seg, next, err := scanPlaceholder(template, pos)
		if err != nil {
			return nil, malformed("%v", err)
		}
		if used[seg.Variable] {
			return nil, malformed("variable name %q used twice", seg.Variable)
		}
		used[seg.Variable] = true
		conv, ok := convs[seg.Converter]
		if !ok {
			return nil, malformed("unknown converter %q", seg.Converter)
		}
		seg.conv = conv
		rule.Segments = append(rule.Segments, seg)
		pos = next
	}
	return rule, nil
}

// scanPlaceholder reads "<name[:conv[(args)]]>" starting at the '<' at pos.
func scanPlaceholder(t string, pos int) (Segment, int, error) {
	i := pos + 1
	name := identifier(t[i:])
	if name == "" {
		return Segment{}, 0, fmt.Errorf("invalid variable name at offset %d", i)
	}
	i += len(name)
	seg := Segment{Variable: name, Converter: DefaultConverter}

	if i < len(t) && t[i] == ':' {
		i++
		conv := identifier(t[i:])
		if conv == "" {
			return Segment{}, 0, fmt.Errorf("invalid converter name at offset %d", i)
		}
		seg.Converter = conv
		i += len(conv)
		if i < len(t) && t[i] == '(' {
			end := strings.Index(t[i:], ")>")
			if end < 0 {
				return Segment{}, 0, fmt.Errorf("unterminated converter arguments at offset %d", i)
			}
			seg.Args = t[i+1 : i+end]
			i += end + 1
		}
	}

	if i >= len(t) {
		return Segment{}, 0, fmt.Errorf("unterminated placeholder at offset %d", pos)
	}
	if t[i] != '>' {
		return Segment{}, 0, fmt.Errorf("unexpected %q at offset %d", t[i], i)
	}
	return seg, i + 1, nil
}

func identifier(s string) string {
	i := 0
	for i < len(s) {
		c := s[i]
		alpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !alpha && (i == 0 || c < '0' || c > '9') {
			break
		}
		i++
	}
	return s[:i]
}

// Match matches path against the rule. The whole path must be consumed.
func (r *Rule) Match(path string) (Args, bool) {
	args := Args{}
	rest := path
	for _, seg := range r.Segments {
		if !seg.IsVariable() {
			if !strings.HasPrefix(rest, seg.Literal) {
				return nil, false
			}
			rest = rest[len(seg.Literal):]
			continue
		}
		n, v, err := seg.conv(rest, seg.Args)
		if err != nil || n <= 0 || n > len(rest) {
			return nil, false
		}
		args[seg.Variable] = v
		rest = rest[n:]
	}
	if rest != "" {
		return nil, false
	}
	return args, true
}

// Path builds a path by substituting args into the rule.
func (r *Rule) Path(args Args) (string, error) {
	var b strings.Builder
	for _, seg := range r.Segments {
		if !seg.IsVariable() {
			b.WriteString(seg.Literal)
			continue
		}
		v, ok := args[seg.Variable]
		if !ok {
			return "", fmt.Errorf("%w: %q for %s", ErrMissingArgument, seg.Variable, r.Template)
		}
		fmt.Fprint(&b, v)
	}
	return b.String(), nil
}

// Variables returns the variable names in order.
func (r *Rule) Variables() []string {
	var vars []string
	for _, seg := range r.Segments {
		if seg.IsVariable() {
			vars = append(vars, seg.Variable)
		}
	}
	return vars
}

// String returns the canonical template, with every converter spelled out.
func (r *Rule) String() string {
	var b strings.Builder
	for _, seg := range r.Segments {
		b.WriteString(seg.String())
	}
	return b.String()
}

// Join returns the rule matching prefix followed by child. A child rule
// of "/" yields the prefix alone.
func Join(prefix, child *Rule) (*Rule, error) {
	if child.Template == "/" && prefix.Template != "" {
		return prefix, nil
	}
	for _, v := range child.Variables() {
		for _, p := range prefix.Variables() {
			if v == p {
				return nil, fmt.Errorf("%w: variable name %q used in mount prefix %q and %q", ErrMalformedRule, v, prefix.Template, child.Template)
			}
		}
	}

	segs := make([]Segment, 0, len(prefix.Segments)+len(child.Segments))
	segs = append(segs, prefix.Segments...)
	for _, seg := range child.Segments {
		if n := len(segs); n > 0 && !seg.IsVariable() && !segs[n-1].IsVariable() {
			segs[n-1].Literal += seg.Literal
			continue
		}
		segs = append(segs, seg)
	}
	return &Rule{Template: prefix.Template + child.Template, Segments: segs}, nil
}

func (r *Rule) literals() (lits []string, size int) {
	for _, seg := range r.Segments {
		if !seg.IsVariable() {
			lits = append(lits, seg.Literal)
			size += len(seg.Literal)
		}
	}
	return lits, size
}

func (r *Rule) variables() []Segment {
	var vars []Segment
	for _, seg := range r.Segments {
		if seg.IsVariable() {
			vars = append(vars, seg)
		}
	}
	return vars
}

// Compare orders rules from most to least specific:
//
//  1. fewer variables first
//  2. more literal text first
//  3. literal segments compared in order
//  4. at the first variable with a different converter, a non-default
//     converter before the default one
//
// Remaining ties are broken on converter names, arguments, variable
// names and segment layout, so only structurally identical rules compare
// equal.
func Compare(a, b *Rule) int {
	av, bv := a.variables(), b.variables()
	if c := cmp.Compare(len(av), len(bv)); c != 0 {
		return c
	}

	al, asize := a.literals()
	bl, bsize := b.literals()
	if c := cmp.Compare(bsize, asize); c != 0 {
		return c
	}
	for i := 0; i < len(al) && i < len(bl); i++ {
		if c := strings.Compare(al[i], bl[i]); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(len(al), len(bl)); c != 0 {
		return c
	}

	for i := range av {
		ad, bd := av[i].Converter == DefaultConverter, bv[i].Converter == DefaultConverter
		if ad != bd {
			if bd {
				return -1
			}
			return 1
		}
	}
	for i := range av {
		if c := cmp.Or(
			strings.Compare(av[i].Converter, bv[i].Converter),
			strings.Compare(av[i].Args, bv[i].Args),
			strings.Compare(av[i].Variable, bv[i].Variable),
		); c != 0 {
			return c
		}
	}
	return strings.Compare(a.String(), b.String())
}
