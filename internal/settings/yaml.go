package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML writes v as a single-key mapping naming its kind, e.g.
// {int: 5}, {vector: [{string: a}]} or {struct: [{name: A, value: {bool: true}}]}.
func (v Value) MarshalYAML() (any, error) {
	var payload any
	switch v.tag {
	case KindBool:
		payload = v.b
	case KindInt:
		payload = v.i
	case KindFloat:
		payload = v.f
	case KindDuration:
		payload = v.d.String()
	case KindString, KindEnum:
		payload = v.s
	case KindVector:
		payload = v.items
	case KindStruct:
		payload = v.fields
	}
	return map[string]any{v.tag.String(): payload}, nil
}

func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: value must be a single-key mapping like {int: 5}", n.Line)
	}
	tag, body := n.Content[0].Value, n.Content[1]
	switch tag {
	case "bool":
		var b bool
		if err := body.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "int":
		var i int64
		if err := body.Decode(&i); err != nil {
			return err
		}
		*v = Int(i)
	case "float":
		var f float64
		if err := body.Decode(&f); err != nil {
			return err
		}
		*v = Float(f)
	case "duration":
		d, err := parseDuration(body.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", body.Line, err)
		}
		*v = Duration(d)
	case "string":
		*v = Str(body.Value)
	case "enum":
		*v = Enum(body.Value)
	case "vector":
		var items []Value
		if err := body.Decode(&items); err != nil {
			return err
		}
		*v = Vector(items...)
	case "struct":
		var fields []FieldValue
		if err := body.Decode(&fields); err != nil {
			return err
		}
		*v = Struct(fields...)
	default:
		return fmt.Errorf("line %d: unknown value kind %q", n.Line, tag)
	}
	return nil
}
