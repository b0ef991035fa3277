package settings

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Quote wraps s in double quotes, backslash-escaping backslash, double quote,
// CR and LF.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// IsQuoted reports whether s is wrapped in double quotes.
func IsQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

// Unquote reverses Quote. Unrecognized escapes yield the escaped byte.
func Unquote(s string) (string, error) {
	if !IsQuoted(s) {
		return "", fmt.Errorf("not a quoted string: %s", s)
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(inner) {
			return "", fmt.Errorf("dangling escape in %s", s)
		}
		switch inner[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(inner[i])
		}
	}
	return b.String(), nil
}

func unquoteLenient(s string) string {
	if IsQuoted(s) {
		if u, err := Unquote(s); err == nil {
			return u
		}
	}
	return s
}

// SplitList splits s on commas that are outside quotes and parentheses.
// Elements are trimmed; an empty input yields no elements.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		parts   []string
		depth   int
		inQuote bool
		start   int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// StripParens removes one pair of enclosing parentheses when the opening
// parenthesis at the start of s is closed by the one at its end.
func StripParens(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s, false
	}
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s, false
			}
		}
	}
	if depth != 0 {
		return s, false
	}
	return s[1 : len(s)-1], true
}

// ParseToken builds a value of kind k from one raw token. Vectors and structs
// use parenthesized literal syntax, e.g. (1,2,3) or (Name="x",Count=2).
func ParseToken(k Kind, token string) (Value, error) {
	v, err := parseToken(k, strings.TrimSpace(token))
	if err != nil {
		return Value{}, &TypeMismatchError{Token: token, Kind: k, Err: err}
	}
	return v, nil
}

// ParseList parses an unparenthesized comma list of elements of kind elem.
func ParseList(elem Kind, text string) (Value, error) {
	parts := SplitList(text)
	items := make([]Value, 0, len(parts))
	for i, part := range parts {
		v, err := parseToken(elem, part)
		if err != nil {
			return Value{}, &TypeMismatchError{Token: text, Kind: VectorOf(elem), Err: fmt.Errorf("element %d: %w", i, err)}
		}
		items = append(items, v)
	}
	return Vector(items...), nil
}

func parseToken(k Kind, t string) (Value, error) {
	switch k.Tag {
	case KindBool:
		switch strings.ToLower(unquoteLenient(t)) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("invalid bool %q", t)
	case KindInt:
		i, err := strconv.ParseInt(unquoteLenient(t), 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(unquoteLenient(t), 64)
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindDuration:
		d, err := parseDuration(unquoteLenient(t))
		if err != nil {
			return Value{}, err
		}
		return Duration(d), nil
	case KindString:
		if IsQuoted(t) {
			s, err := Unquote(t)
			if err != nil {
				return Value{}, err
			}
			return Str(s), nil
		}
		return Str(t), nil
	case KindEnum:
		name := unquoteLenient(t)
		if variant, ok := k.variant(name); ok {
			return Enum(variant), nil
		}
		return Value{}, fmt.Errorf("%q is not one of %s", name, strings.Join(k.Variants, ", "))
	case KindVector:
		inner, ok := StripParens(t)
		if !ok {
			return Value{}, fmt.Errorf("expected parenthesized list, got %q", t)
		}
		parts := SplitList(inner)
		items := make([]Value, 0, len(parts))
		for i, part := range parts {
			v, err := parseToken(*k.Elem, part)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			items = append(items, v)
		}
		return Vector(items...), nil
	case KindStruct:
		return parseStruct(k, t)
	}
	return Value{}, fmt.Errorf("unsupported kind %s", k)
}

func parseStruct(k Kind, t string) (Value, error) {
	inner, ok := StripParens(t)
	if !ok {
		return Value{}, fmt.Errorf("expected struct literal, got %q", t)
	}
	vals := make([]Value, len(k.Fields))
	set := make([]bool, len(k.Fields))
	for _, part := range SplitList(inner) {
		if part == "" {
			continue
		}
		name, raw, ok := strings.Cut(part, "=")
		if !ok {
			return Value{}, fmt.Errorf("struct member %q has no value", part)
		}
		idx, ok := k.field(strings.TrimSpace(name))
		if !ok {
			return Value{}, fmt.Errorf("unknown struct member %q", strings.TrimSpace(name))
		}
		v, err := parseToken(k.Fields[idx].Kind, strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("member %s: %w", k.Fields[idx].Name, err)
		}
		vals[idx], set[idx] = v, true
	}
	fields := make([]FieldValue, len(k.Fields))
	for i, f := range k.Fields {
		if !set[i] {
			vals[i] = Zero(f.Kind)
		}
		fields[i] = Named(f.Name, vals[i])
	}
	return Struct(fields...), nil
}

// parseDuration accepts plain seconds ("90", "1.5") or Go duration syntax.
func parseDuration(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return secondsToDuration(f), nil
	}
	return time.ParseDuration(s)
}

func secondsToDuration(f float64) time.Duration {
	return time.Duration(math.Round(f * float64(time.Second)))
}

// FormatToken renders v in nested literal syntax. Strings and enum names are
// always quoted so that ParseToken(k, FormatToken(v)) reproduces v.
func FormatToken(v Value) string {
	switch v.tag {
	case KindVector:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = FormatToken(item)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case KindStruct:
		parts := make([]string, len(v.fields))
		for i, f := range v.fields {
			parts[i] = f.Name + "=" + FormatToken(f.Value)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case KindString, KindEnum:
		return Quote(v.s)
	default:
		return FormatScalar(v)
	}
}

// FormatScalar renders a bool, number or duration the way game INI files
// spell them. Strings and enums are returned unquoted.
func FormatScalar(v Value) string {
	switch v.tag {
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindDuration:
		return strconv.FormatFloat(v.d.Seconds(), 'f', -1, 64)
	case KindString, KindEnum:
		return v.s
	default:
		return FormatToken(v)
	}
}
