package settings

import (
	"fmt"
	"strings"
)

// KindTag identifies the shape of a setting value.
type KindTag int

const (
	KindBool KindTag = iota
	KindInt
	KindFloat
	KindDuration
	KindString
	KindEnum
	KindVector
	KindStruct
)

var tagNames = [...]string{"bool", "int", "float", "duration", "string", "enum", "vector", "struct"}

func (t KindTag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("KindTag(%d)", int(t))
}

// Kind is the declared type of a setting. Vector and struct kinds nest
// arbitrarily.
type Kind struct {
	Tag      KindTag
	Variants []string // enum
	Elem     *Kind    // vector
	Fields   []Field  // struct, in declaration order
}

// Field is one named member of a struct kind.
type Field struct {
	Name string
	Kind Kind
}

var (
	BoolKind     = Kind{Tag: KindBool}
	IntKind      = Kind{Tag: KindInt}
	FloatKind    = Kind{Tag: KindFloat}
	DurationKind = Kind{Tag: KindDuration}
	StringKind   = Kind{Tag: KindString}
)

func EnumOf(variants ...string) Kind {
	return Kind{Tag: KindEnum, Variants: variants}
}

func VectorOf(elem Kind) Kind {
	return Kind{Tag: KindVector, Elem: &elem}
}

func StructOf(fields ...Field) Kind {
	return Kind{Tag: KindStruct, Fields: fields}
}

// ContainsStruct reports whether values of k are written in struct literal
// syntax somewhere in their tree.
func (k Kind) ContainsStruct() bool {
	switch k.Tag {
	case KindStruct:
		return true
	case KindVector:
		return k.Elem != nil && k.Elem.ContainsStruct()
	}
	return false
}

func (k Kind) field(name string) (int, bool) {
	for i, f := range k.Fields {
		if strings.EqualFold(f.Name, name) {
			return i, true
		}
	}
	return -1, false
}

func (k Kind) variant(name string) (string, bool) {
	for _, v := range k.Variants {
		if strings.EqualFold(v, name) {
			return v, true
		}
	}
	return "", false
}

func (k Kind) Equal(o Kind) bool {
	if k.Tag != o.Tag {
		return false
	}
	switch k.Tag {
	case KindEnum:
		if len(k.Variants) != len(o.Variants) {
			return false
		}
		for i := range k.Variants {
			if k.Variants[i] != o.Variants[i] {
				return false
			}
		}
	case KindVector:
		return k.Elem.Equal(*o.Elem)
	case KindStruct:
		if len(k.Fields) != len(o.Fields) {
			return false
		}
		for i := range k.Fields {
			if k.Fields[i].Name != o.Fields[i].Name || !k.Fields[i].Kind.Equal(o.Fields[i].Kind) {
				return false
			}
		}
	}
	return true
}

// String renders the kind in catalog notation, e.g. vector<struct{A:int}>.
func (k Kind) String() string {
	switch k.Tag {
	case KindEnum:
		return "enum(" + strings.Join(k.Variants, "|") + ")"
	case KindVector:
		if k.Elem == nil {
			return "vector<?>"
		}
		return "vector<" + k.Elem.String() + ">"
	case KindStruct:
		parts := make([]string, len(k.Fields))
		for i, f := range k.Fields {
			parts[i] = f.Name + ":" + f.Kind.String()
		}
		return "struct{" + strings.Join(parts, ",") + "}"
	default:
		return k.Tag.String()
	}
}

// ParseKind parses catalog kind notation:
//
//	bool | int | float | duration | string
//	enum(A|B|C)
//	vector<KIND>
//	struct{Name:KIND,Other:KIND}
func ParseKind(s string) (Kind, error) {
	p := &kindParser{s: s}
	k, err := p.kind()
	if err != nil {
		return Kind{}, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return Kind{}, p.errorf("unexpected %q", p.s[p.pos:])
	}
	return k, nil
}

type kindParser struct {
	s   string
	pos int
}

func (p *kindParser) errorf(format string, args ...any) error {
	return fmt.Errorf("kind %q at %d: %s", p.s, p.pos, fmt.Sprintf(format, args...))
}

func (p *kindParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *kindParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *kindParser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *kindParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && isIdentByte(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.'
}

func (p *kindParser) kind() (Kind, error) {
	name := p.ident()
	switch strings.ToLower(name) {
	case "bool":
		return BoolKind, nil
	case "int":
		return IntKind, nil
	case "float":
		return FloatKind, nil
	case "duration":
		return DurationKind, nil
	case "string":
		return StringKind, nil
	case "enum":
		if err := p.expect('('); err != nil {
			return Kind{}, err
		}
		var variants []string
		for {
			v := p.ident()
			if v == "" {
				return Kind{}, p.errorf("empty enum variant")
			}
			variants = append(variants, v)
			if p.peek() != '|' {
				break
			}
			p.pos++
		}
		if err := p.expect(')'); err != nil {
			return Kind{}, err
		}
		return EnumOf(variants...), nil
	case "vector":
		if err := p.expect('<'); err != nil {
			return Kind{}, err
		}
		elem, err := p.kind()
		if err != nil {
			return Kind{}, err
		}
		if err := p.expect('>'); err != nil {
			return Kind{}, err
		}
		return VectorOf(elem), nil
	case "struct":
		if err := p.expect('{'); err != nil {
			return Kind{}, err
		}
		var fields []Field
		for {
			fname := p.ident()
			if fname == "" {
				return Kind{}, p.errorf("empty field name")
			}
			if err := p.expect(':'); err != nil {
				return Kind{}, err
			}
			fk, err := p.kind()
			if err != nil {
				return Kind{}, err
			}
			fields = append(fields, Field{Name: fname, Kind: fk})
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
		if err := p.expect('}'); err != nil {
			return Kind{}, err
		}
		return StructOf(fields...), nil
	case "":
		return Kind{}, p.errorf("missing kind")
	default:
		return Kind{}, p.errorf("unknown kind %q", name)
	}
}
