// Package ini reads and writes game server INI files against a settings
// catalog. Known keys become typed values. Other key=value lines, including
// known keys found outside their setting's section, are carried through with
// their section so that keys from newer game versions survive a save.
// Comments, blank lines and lines without '=' are not kept, and the file is
// rewritten in a fixed order.
package ini

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

const maxLineLength = 1 << 20

// Line is a key=value line the catalog does not describe, kept verbatim.
type Line struct {
	Section string `json:"section,omitempty"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

// Document is the decoded content of one INI file.
type Document struct {
	// Values holds the settings present in the file, keyed by canonical name.
	Values  map[string]settings.Value
	Unknown []Line
}

type Codec struct {
	catalog *settings.Catalog
	mode    settings.Mode
}

func NewCodec(catalog *settings.Catalog, mode settings.Mode) *Codec {
	return &Codec{catalog: catalog, mode: mode}
}

type rawValue struct {
	line int
	text string
}

type collected struct {
	setting  settings.Setting
	scalar   *rawValue
	indexed  map[int]rawValue
	repeated []rawValue
}

// lookup finds the INI setting for key as written under section. A setting
// that names a section only matches inside it.
func (c *Codec) lookup(section, key string) (settings.Setting, bool) {
	s, ok := c.catalog.Lookup(key)
	if !ok || s.Location != settings.LocationINI {
		return settings.Setting{}, false
	}
	if s.Section != "" && !strings.EqualFold(s.Section, section) {
		return settings.Setting{}, false
	}
	return s, true
}

// Decode parses r. Lines that cannot be read as their setting's kind are
// reported as warnings and the setting keeps its default. In Strict mode the
// warnings are also returned as an error.
func (c *Codec) Decode(r io.Reader) (Document, settings.Warnings, error) {
	doc := Document{Values: map[string]settings.Value{}}
	var warns settings.Warnings

	found := map[string]*collected{}
	var order []string
	get := func(s settings.Setting) *collected {
		col, ok := found[s.Name]
		if !ok {
			col = &collected{setting: s, indexed: map[int]rawValue{}}
			found[s.Name] = col
			order = append(order, s.Name)
		}
		return col
	}

	section := ""
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if lineNo == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		text = strings.TrimSpace(text)
		if text == "" || text[0] == ';' || text[0] == '#' {
			continue
		}
		if text[0] == '[' && text[len(text)-1] == ']' {
			section = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		key, val, ok := strings.Cut(text, "=")
		if !ok {
			warns = append(warns, settings.Warning{Line: lineNo, Err: fmt.Errorf("ignoring line without '=': %q", text)})
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		if s, ok := c.lookup(section, key); ok {
			col := get(s)
			if s.Kind.Tag != settings.KindVector || s.Convention == settings.CommaSeparated {
				if col.scalar != nil {
					warns = append(warns, settings.Warning{
						Setting: s.Name,
						Line:    lineNo,
						Err:     fmt.Errorf("duplicate key replaces value from line %d", col.scalar.line),
					})
				}
				col.scalar = &rawValue{line: lineNo, text: val}
			} else if val != "" {
				col.repeated = append(col.repeated, rawValue{line: lineNo, text: val})
			}
			continue
		}
		if base, idx, ok := splitIndex(key); ok {
			if s, ok := c.lookup(section, base); ok && s.Kind.Tag == settings.KindVector && s.Convention == settings.Indexed {
				col := get(s)
				if prev, dup := col.indexed[idx]; dup {
					warns = append(warns, settings.Warning{
						Setting: s.Name,
						Line:    lineNo,
						Err:     fmt.Errorf("duplicate index %d replaces value from line %d", idx, prev.line),
					})
				}
				col.indexed[idx] = rawValue{line: lineNo, text: val}
				continue
			}
		}
		doc.Unknown = append(doc.Unknown, Line{Section: section, Key: key, Value: val})
	}
	if err := sc.Err(); err != nil {
		return Document{}, warns, fmt.Errorf("read ini: %w", err)
	}

	for _, name := range order {
		v, ws, ok := build(found[name])
		warns = append(warns, ws...)
		if ok {
			doc.Values[name] = v
		}
	}
	if c.mode == settings.Strict && len(warns) > 0 {
		return doc, warns, warns.Err()
	}
	return doc, warns, nil
}

func build(col *collected) (settings.Value, settings.Warnings, bool) {
	s := col.setting
	if s.Kind.Tag != settings.KindVector || s.Convention == settings.CommaSeparated {
		v, err := ParseValue(s, col.scalar.text)
		if err != nil {
			return settings.Value{}, settings.Warnings{{Setting: s.Name, Line: col.scalar.line, Err: fmt.Errorf("%w; using default", err)}}, false
		}
		return v, nil, true
	}

	idxs := make([]int, 0, len(col.indexed))
	for i := range col.indexed {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	raws := make([]rawValue, 0, len(idxs)+len(col.repeated))
	for _, i := range idxs {
		raws = append(raws, col.indexed[i])
	}
	raws = append(raws, col.repeated...)

	var warns settings.Warnings
	elem := *s.Kind.Elem
	items := make([]settings.Value, 0, len(raws))
	for _, r := range raws {
		v, err := settings.ParseToken(elem, r.text)
		if err != nil {
			warns = append(warns, settings.Warning{Setting: s.Name, Line: r.line, Err: fmt.Errorf("%w; element dropped", err)})
			continue
		}
		items = append(items, v)
	}
	return settings.Vector(items...), warns, true
}

func splitIndex(key string) (string, int, bool) {
	if !strings.HasSuffix(key, "]") {
		return "", 0, false
	}
	open := strings.LastIndexByte(key, '[')
	if open <= 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(key[open+1 : len(key)-1])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return strings.TrimSpace(key[:open]), idx, true
}

// ParseValue reads the text after "Key=" for setting s. Vectors are read in
// the comma separated form regardless of the setting's convention.
func ParseValue(s settings.Setting, text string) (settings.Value, error) {
	if s.Kind.Tag != settings.KindVector {
		return settings.ParseToken(s.Kind, text)
	}
	elem := *s.Kind.Elem
	t := strings.TrimSpace(text)
	if t == "" {
		return settings.Vector(), nil
	}
	if elem.ContainsStruct() {
		if inner, ok := settings.StripParens(t); ok && (elem.Tag != settings.KindStruct || strings.HasPrefix(strings.TrimSpace(inner), "(")) {
			t = inner
		}
	}
	return settings.ParseList(elem, t)
}

// FormatValue renders v as it appears after "Key=". Vectors use the comma
// separated form, wrapped in parentheses when their elements are structs.
func FormatValue(s settings.Setting, v settings.Value) string {
	if v.Tag() != settings.KindVector {
		return formatElement(v)
	}
	items := v.Items()
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = formatElement(item)
	}
	out := strings.Join(parts, ",")
	if len(items) > 0 && s.Kind.Elem != nil && s.Kind.Elem.ContainsStruct() {
		out = "(" + out + ")"
	}
	return out
}

func formatElement(v settings.Value) string {
	switch v.Tag() {
	case settings.KindString:
		s, _ := v.AsString()
		return Escape(s)
	case settings.KindVector, settings.KindStruct:
		return settings.FormatToken(v)
	default:
		return settings.FormatScalar(v)
	}
}

func encodeSetting(s settings.Setting, v settings.Value) []string {
	if v.Tag() != settings.KindVector || s.Convention == settings.CommaSeparated {
		return []string{s.Name + "=" + FormatValue(s, v)}
	}
	items := v.Items()
	if len(items) == 0 {
		return []string{s.Name + "="}
	}
	lines := make([]string, len(items))
	for i, item := range items {
		if s.Convention == settings.Indexed {
			lines[i] = s.Name + "[" + strconv.Itoa(i) + "]=" + formatElement(item)
		} else {
			lines[i] = s.Name + "=" + formatElement(item)
		}
	}
	return lines
}

type block struct {
	name  string
	lines []string
}

// Encode writes values and unknown lines to w. Output is deterministic:
// settings without a section come first in catalog order, followed by
// unknown lines without a section in their given order, then each section in
// name order with the same layout inside.
func (c *Codec) Encode(w io.Writer, values map[string]settings.Value, unknown []Line) (settings.Warnings, error) {
	var warns settings.Warnings
	byName := make(map[string]settings.Value, len(values))
	for name, v := range values {
		s, ok := c.catalog.Lookup(name)
		if !ok {
			warns = append(warns, settings.Warning{Setting: name, Err: errors.New("unknown setting not written")})
			continue
		}
		if s.Location != settings.LocationINI {
			warns = append(warns, settings.Warning{Setting: s.Name, Err: fmt.Errorf("%s setting not written to ini", s.Location)})
			continue
		}
		if !settings.Conforms(s.Kind, v) {
			rv, w, err := settings.Resolve(s, v, c.mode)
			if err != nil {
				return warns, err
			}
			if w != nil {
				warns = append(warns, *w)
			}
			v = rv
		}
		byName[s.Name] = v
	}

	blocks := map[string]*block{}
	blockFor := func(section string) *block {
		key := strings.ToLower(section)
		b, ok := blocks[key]
		if !ok {
			b = &block{name: section}
			blocks[key] = b
		}
		return b
	}
	for _, s := range c.catalog.All() {
		v, ok := byName[s.Name]
		if !ok {
			continue
		}
		b := blockFor(s.Section)
		b.lines = append(b.lines, encodeSetting(s, v)...)
	}
	for _, l := range unknown {
		b := blockFor(l.Section)
		b.lines = append(b.lines, l.Key+"="+l.Value)
	}

	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	first := true
	writeBlock := func(b *block, header bool) {
		if !first {
			bw.WriteByte('\n')
		}
		first = false
		if header {
			bw.WriteString("[" + b.name + "]\n")
		}
		for _, l := range b.lines {
			bw.WriteString(l)
			bw.WriteByte('\n')
		}
	}
	if b, ok := blocks[""]; ok {
		writeBlock(b, false)
	}
	for _, k := range keys {
		writeBlock(blocks[k], true)
	}
	if err := bw.Flush(); err != nil {
		return warns, fmt.Errorf("write ini: %w", err)
	}
	return warns, nil
}
