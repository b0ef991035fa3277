package settings

import (
	"strings"
	"time"
)

// Value is a typed setting value. Its tag mirrors the Kind it was built for;
// vectors and structs hold nested values.
type Value struct {
	tag    KindTag
	b      bool
	i      int64
	f      float64
	d      time.Duration
	s      string // string and enum
	items  []Value
	fields []FieldValue
}

// FieldValue is one named member of a struct value.
type FieldValue struct {
	Name  string `yaml:"name"`
	Value Value  `yaml:"value"`
}

func Bool(b bool) Value              { return Value{tag: KindBool, b: b} }
func Int(i int64) Value              { return Value{tag: KindInt, i: i} }
func Float(f float64) Value          { return Value{tag: KindFloat, f: f} }
func Duration(d time.Duration) Value { return Value{tag: KindDuration, d: d} }
func Str(s string) Value             { return Value{tag: KindString, s: s} }
func Enum(variant string) Value      { return Value{tag: KindEnum, s: variant} }

func Named(name string, v Value) FieldValue { return FieldValue{Name: name, Value: v} }

func Vector(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{tag: KindVector, items: items}
}

func Struct(fields ...FieldValue) Value {
	if fields == nil {
		fields = []FieldValue{}
	}
	return Value{tag: KindStruct, fields: fields}
}

func (v Value) Tag() KindTag { return v.tag }

func (v Value) AsBool() (bool, bool)              { return v.b, v.tag == KindBool }
func (v Value) AsInt() (int64, bool)              { return v.i, v.tag == KindInt }
func (v Value) AsFloat() (float64, bool)          { return v.f, v.tag == KindFloat }
func (v Value) AsDuration() (time.Duration, bool) { return v.d, v.tag == KindDuration }

// AsString returns the text of a string or the variant name of an enum.
func (v Value) AsString() (string, bool) {
	return v.s, v.tag == KindString || v.tag == KindEnum
}

// Items returns the elements of a vector, nil for other kinds.
func (v Value) Items() []Value {
	if v.tag != KindVector {
		return nil
	}
	return v.items
}

// Fields returns the members of a struct, nil for other kinds.
func (v Value) Fields() []FieldValue {
	if v.tag != KindStruct {
		return nil
	}
	return v.fields
}

// Field looks up a struct member by case-insensitive name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields() {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Equal compares values structurally. Struct members are matched by name.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindDuration:
		return v.d == o.d
	case KindString, KindEnum:
		return v.s == o.s
	case KindVector:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for _, f := range v.fields {
			of, ok := o.Field(f.Name)
			if !ok || !f.Value.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string { return FormatToken(v) }

// unset reports whether v is the zero Value nobody constructed on purpose.
func (v Value) unset() bool {
	return v.tag == KindBool && !v.b && v.items == nil && v.fields == nil
}

// Conforms reports whether v has exactly the shape declared by k.
func Conforms(k Kind, v Value) bool {
	if k.Tag != v.tag {
		return false
	}
	switch k.Tag {
	case KindEnum:
		for _, variant := range k.Variants {
			if variant == v.s {
				return true
			}
		}
		return false
	case KindVector:
		for _, item := range v.items {
			if !Conforms(*k.Elem, item) {
				return false
			}
		}
	case KindStruct:
		if len(v.fields) != len(k.Fields) {
			return false
		}
		for _, f := range k.Fields {
			fv, ok := v.Field(f.Name)
			if !ok || !Conforms(f.Kind, fv) {
				return false
			}
		}
	}
	return true
}

// Zero is the value used for settings declared without a default.
func Zero(k Kind) Value {
	switch k.Tag {
	case KindInt:
		return Int(0)
	case KindFloat:
		return Float(0)
	case KindDuration:
		return Duration(0)
	case KindString:
		return Str("")
	case KindEnum:
		if len(k.Variants) > 0 {
			return Enum(k.Variants[0])
		}
		return Enum("")
	case KindVector:
		return Vector()
	case KindStruct:
		fields := make([]FieldValue, len(k.Fields))
		for i, f := range k.Fields {
			fields[i] = Named(f.Name, Zero(f.Kind))
		}
		return Struct(fields...)
	default:
		return Bool(false)
	}
}
