package settings

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Convention selects how a vector setting is laid out in an INI file.
type Convention int

const (
	// CommaSeparated writes one Key=a,b,c line.
	CommaSeparated Convention = iota
	// Indexed writes Key[0]=a, Key[1]=b, ...
	Indexed
	// Repeated writes one Key=v line per element.
	Repeated
)

func (c Convention) String() string {
	switch c {
	case Indexed:
		return "indexed"
	case Repeated:
		return "repeated"
	default:
		return "comma"
	}
}

func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "comma", "commaseparated":
		return CommaSeparated, nil
	case "indexed", "index":
		return Indexed, nil
	case "repeated", "repeat":
		return Repeated, nil
	}
	return 0, fmt.Errorf("unknown vector convention %q", s)
}

// Location is where a setting ends up when a server is launched.
type Location int

const (
	// LocationINI settings are stored in the profile's INI file.
	LocationINI Location = iota
	// LocationCommandLine settings become -Name or -Name=Value switches.
	LocationCommandLine
	// LocationMapURL settings become ?Name=Value options after the map name.
	LocationMapURL
	// LocationMap is the map name itself.
	LocationMap
)

func (l Location) String() string {
	switch l {
	case LocationCommandLine:
		return "commandline"
	case LocationMapURL:
		return "mapurl"
	case LocationMap:
		return "map"
	default:
		return "ini"
	}
}

func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ini":
		return LocationINI, nil
	case "commandline", "cmdline":
		return LocationCommandLine, nil
	case "mapurl", "url":
		return LocationMapURL, nil
	case "map":
		return LocationMap, nil
	}
	return 0, fmt.Errorf("unknown setting location %q", s)
}

// Setting is the immutable metadata of one configurable key.
type Setting struct {
	Name        string
	Description string
	Kind        Kind
	Default     Value
	Convention  Convention
	Location    Location
	Section     string
	Deprecated  bool
}

// Catalog is the set of known settings, in declaration order. Lookups are
// case-insensitive like the game's own INI reader.
type Catalog struct {
	settings []Setting
	index    map[string]int
}

func NewCatalog(list ...Setting) (*Catalog, error) {
	c := &Catalog{
		settings: make([]Setting, 0, len(list)),
		index:    make(map[string]int, len(list)),
	}
	for _, s := range list {
		if err := c.add(s, false); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(s Setting, replace bool) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("setting with empty name")
	}
	if s.Kind.Tag == KindVector && s.Kind.Elem == nil {
		return fmt.Errorf("setting %s: vector without element kind", s.Name)
	}
	if !Conforms(s.Kind, s.Default) {
		if !s.Default.unset() {
			return fmt.Errorf("setting %s: default %s does not fit %s", s.Name, FormatToken(s.Default), s.Kind)
		}
		s.Default = Zero(s.Kind)
	}
	key := strings.ToLower(s.Name)
	if i, ok := c.index[key]; ok {
		if !replace {
			return fmt.Errorf("duplicate setting %s", s.Name)
		}
		c.settings[i] = s
		return nil
	}
	c.index[key] = len(c.settings)
	c.settings = append(c.settings, s)
	return nil
}

func (c *Catalog) Lookup(name string) (Setting, bool) {
	i, ok := c.index[strings.ToLower(name)]
	if !ok {
		return Setting{}, false
	}
	return c.settings[i], true
}

// All returns the settings in declaration order.
func (c *Catalog) All() []Setting {
	out := make([]Setting, len(c.settings))
	copy(out, c.settings)
	return out
}

func (c *Catalog) Len() int { return len(c.settings) }

// Merge returns a new catalog where user entries replace entries of the same
// name and new entries are appended.
func (c *Catalog) Merge(user *Catalog) *Catalog {
	out := &Catalog{
		settings: make([]Setting, len(c.settings), len(c.settings)+user.Len()),
		index:    make(map[string]int, len(c.settings)+user.Len()),
	}
	copy(out.settings, c.settings)
	for k, v := range c.index {
		out.index[k] = v
	}
	for _, s := range user.settings {
		// entries already validated by their own catalog
		_ = out.add(s, true)
	}
	return out
}

type catalogFile struct {
	Settings []catalogEntry `yaml:"settings"`
}

type catalogEntry struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	Default     yaml.Node `yaml:"default"`
	Description string    `yaml:"description"`
	Convention  string    `yaml:"convention"`
	Location    string    `yaml:"location"`
	Section     string    `yaml:"section"`
	Deprecated  bool      `yaml:"deprecated"`
}

// LoadCatalog reads a YAML catalog:
//
//	settings:
//	  - name: ActiveMods
//	    kind: vector<int>
//	    convention: comma
//	    section: ServerSettings
//	    default: "1,2"
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	list := make([]Setting, 0, len(f.Settings))
	for _, e := range f.Settings {
		s, err := e.setting()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return NewCatalog(list...)
}

func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	c, err := LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (e catalogEntry) setting() (Setting, error) {
	k, err := ParseKind(e.Kind)
	if err != nil {
		return Setting{}, fmt.Errorf("setting %s: %w", e.Name, err)
	}
	conv, err := ParseConvention(e.Convention)
	if err != nil {
		return Setting{}, fmt.Errorf("setting %s: %w", e.Name, err)
	}
	loc, err := ParseLocation(e.Location)
	if err != nil {
		return Setting{}, fmt.Errorf("setting %s: %w", e.Name, err)
	}
	def := Zero(k)
	if e.Default.Kind != 0 {
		def, err = parseDefault(k, &e.Default)
		if err != nil {
			return Setting{}, fmt.Errorf("setting %s: default: %w", e.Name, err)
		}
	}
	return Setting{
		Name:        e.Name,
		Description: e.Description,
		Kind:        k,
		Default:     def,
		Convention:  conv,
		Location:    loc,
		Section:     e.Section,
		Deprecated:  e.Deprecated,
	}, nil
}

func parseDefault(k Kind, n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		if k.Tag != KindVector {
			return Value{}, fmt.Errorf("list default for %s", k)
		}
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := ParseToken(*k.Elem, c.Value)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Vector(items...), nil
	case yaml.ScalarNode:
		if k.Tag == KindVector {
			return ParseList(*k.Elem, n.Value)
		}
		return ParseToken(k, n.Value)
	}
	return Value{}, fmt.Errorf("unsupported default at line %d", n.Line)
}

//go:embed builtin.yaml
var builtinYAML string

var builtIn = sync.OnceValue(func() *Catalog {
	c, err := LoadCatalog(strings.NewReader(builtinYAML))
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
})

// BuiltIn returns the catalog shipped with the binary.
func BuiltIn() *Catalog { return builtIn() }
