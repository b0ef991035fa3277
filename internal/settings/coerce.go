package settings

import (
	"fmt"
	"time"
)

// Mode selects how shape mismatches are handled.
type Mode int

const (
	// Lenient falls back to the setting default and reports a warning.
	Lenient Mode = iota
	// Strict reports the mismatch as an error.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Coerce converts v to kind k where a lossless reading exists: a scalar
// becomes a one-element vector, ints widen to floats, numbers become seconds
// for durations, enums match case-insensitively, and struct members missing
// from v are filled with zero values.
func Coerce(k Kind, v Value) (Value, error) {
	out, ok := coerce(k, v)
	if !ok {
		return Value{}, &ShapeMismatchError{Want: k, Got: v.tag}
	}
	return out, nil
}

func coerce(k Kind, v Value) (Value, bool) {
	switch k.Tag {
	case KindBool:
		return v, v.tag == KindBool
	case KindInt:
		return v, v.tag == KindInt
	case KindFloat:
		switch v.tag {
		case KindFloat:
			return v, true
		case KindInt:
			return Float(float64(v.i)), true
		}
	case KindDuration:
		switch v.tag {
		case KindDuration:
			return v, true
		case KindInt:
			return Duration(time.Duration(v.i) * time.Second), true
		case KindFloat:
			return Duration(secondsToDuration(v.f)), true
		}
	case KindString:
		switch v.tag {
		case KindString:
			return v, true
		case KindEnum:
			return Str(v.s), true
		}
	case KindEnum:
		if v.tag == KindEnum || v.tag == KindString {
			if variant, ok := k.variant(v.s); ok {
				return Enum(variant), true
			}
		}
	case KindVector:
		if v.tag == KindVector {
			items := make([]Value, len(v.items))
			for i, item := range v.items {
				c, ok := coerce(*k.Elem, item)
				if !ok {
					return Value{}, false
				}
				items[i] = c
			}
			return Vector(items...), true
		}
		if item, ok := coerce(*k.Elem, v); ok {
			return Vector(item), true
		}
	case KindStruct:
		if v.tag != KindStruct {
			return Value{}, false
		}
		fields := make([]FieldValue, len(k.Fields))
		for i, f := range k.Fields {
			fv, ok := v.Field(f.Name)
			if !ok {
				fields[i] = Named(f.Name, Zero(f.Kind))
				continue
			}
			c, ok := coerce(f.Kind, fv)
			if !ok {
				return Value{}, false
			}
			fields[i] = Named(f.Name, c)
		}
		return Struct(fields...), true
	}
	return Value{}, false
}

// Resolve fits v to the setting's kind. In Strict mode an impossible
// coercion is returned as an error; in Lenient mode the setting default is
// returned together with a warning.
func Resolve(s Setting, v Value, mode Mode) (Value, *Warning, error) {
	out, err := Coerce(s.Kind, v)
	if err == nil {
		return out, nil, nil
	}
	if mode == Strict {
		return Value{}, nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return s.Default, &Warning{Setting: s.Name, Err: fmt.Errorf("%w; using default", err)}, nil
}
