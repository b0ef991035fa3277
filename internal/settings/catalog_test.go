package settings_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

func TestBuiltIn(t *testing.T) {
	c := settings.BuiltIn()
	require.NotNil(t, c)
	assert.Same(t, c, settings.BuiltIn())

	s, ok := c.Lookup("sessionname")
	require.True(t, ok)
	assert.Equal(t, "SessionName", s.Name)
	assert.Equal(t, "SessionSettings", s.Section)
	assert.True(t, settings.Str("ARK #1").Equal(s.Default))

	s, ok = c.Lookup("KickIdlePlayersPeriod")
	require.True(t, ok)
	assert.True(t, settings.Duration(time.Hour).Equal(s.Default))

	s, ok = c.Lookup("PerLevelStatsMultiplier_Player")
	require.True(t, ok)
	assert.Equal(t, settings.Indexed, s.Convention)

	s, ok = c.Lookup("Map")
	require.True(t, ok)
	assert.Equal(t, settings.LocationMap, s.Location)

	for _, s := range c.All() {
		assert.True(t, settings.Conforms(s.Kind, s.Default), s.Name)
	}
}

func TestLoadCatalog(t *testing.T) {
	src := `
settings:
  - name: Rates
    kind: vector<float>
    convention: indexed
    default: [1, 1.5]
  - name: Mods
    kind: vector<int>
    default: "1,2,3"
  - name: Platform
    kind: enum(PC|ALL)
    location: commandline
  - name: Stack
    kind: struct{Class:string,Max:int}
    default: (Class="Wood",Max=100)
`
	c, err := settings.LoadCatalog(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 4, c.Len())

	names := make([]string, 0, c.Len())
	for _, s := range c.All() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Rates", "Mods", "Platform", "Stack"}, names)

	s, _ := c.Lookup("Rates")
	assert.True(t, settings.Vector(settings.Float(1), settings.Float(1.5)).Equal(s.Default))
	s, _ = c.Lookup("Mods")
	assert.Len(t, s.Default.Items(), 3)
	s, _ = c.Lookup("Platform")
	assert.True(t, settings.Enum("PC").Equal(s.Default))
	assert.Equal(t, settings.LocationCommandLine, s.Location)
	s, _ = c.Lookup("Stack")
	m, _ := s.Default.Field("Max")
	n, _ := m.AsInt()
	assert.EqualValues(t, 100, n)
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := map[string]string{
		"bad kind":       "settings:\n  - name: A\n    kind: nope\n",
		"bad default":    "settings:\n  - name: A\n    kind: int\n    default: x\n",
		"duplicate":      "settings:\n  - name: A\n    kind: int\n  - name: a\n    kind: bool\n",
		"bad convention": "settings:\n  - name: A\n    kind: vector<int>\n    convention: zigzag\n",
		"unknown field":  "settings:\n  - name: A\n    kind: int\n    colour: red\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := settings.LoadCatalog(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestCatalogMerge(t *testing.T) {
	base, err := settings.NewCatalog(
		settings.Setting{Name: "A", Kind: settings.IntKind, Default: settings.Int(1)},
		settings.Setting{Name: "B", Kind: settings.BoolKind},
	)
	require.NoError(t, err)
	user, err := settings.NewCatalog(
		settings.Setting{Name: "a", Kind: settings.IntKind, Default: settings.Int(5)},
		settings.Setting{Name: "C", Kind: settings.StringKind},
	)
	require.NoError(t, err)

	merged := base.Merge(user)
	require.Equal(t, 3, merged.Len())
	s, _ := merged.Lookup("A")
	assert.True(t, settings.Int(5).Equal(s.Default))
	_, ok := merged.Lookup("C")
	assert.True(t, ok)

	// base is untouched
	s, _ = base.Lookup("A")
	assert.True(t, settings.Int(1).Equal(s.Default))
	assert.Equal(t, 2, base.Len())
}

func TestNewCatalog_DefaultShape(t *testing.T) {
	_, err := settings.NewCatalog(settings.Setting{Name: "A", Kind: settings.IntKind, Default: settings.Str("x")})
	assert.Error(t, err)

	c, err := settings.NewCatalog(settings.Setting{Name: "A", Kind: settings.FloatKind})
	require.NoError(t, err)
	s, _ := c.Lookup("A")
	assert.True(t, settings.Float(0).Equal(s.Default))
}

func TestValueYAML(t *testing.T) {
	v := settings.Vector(
		settings.Struct(
			settings.Named("Name", settings.Str("x")),
			settings.Named("Every", settings.Duration(90*time.Second)),
			settings.Named("On", settings.Bool(true)),
		),
	)
	out, err := yaml.Marshal(v)
	require.NoError(t, err)

	var back settings.Value
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.True(t, v.Equal(back), string(out))

	var bad settings.Value
	assert.Error(t, yaml.Unmarshal([]byte("{int: 1, float: 2}"), &bad))
	assert.Error(t, yaml.Unmarshal([]byte("{color: red}"), &bad))
}
