package profiles

import (
	"errors"
	"strings"

	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

// AdditionalOptions is the free-form setting appended to the launch line.
const AdditionalOptions = "AdditionalOptions"

var ErrNoMap = errors.New("no map setting in catalog")

// CommandLine builds the server arguments: the map name followed by
// ?Key=Value options, then -Switch and -Key=Value options. Only overridden
// options are emitted; the map falls back to its default.
func (p *Profile) CommandLine() ([]string, error) {
	var (
		mapName  string
		haveMap  bool
		url      strings.Builder
		switches []string
		extra    []string
	)
	for _, s := range p.catalog.All() {
		switch s.Location {
		case settings.LocationMap:
			if haveMap {
				continue
			}
			v, _ := p.Value(s.Name)
			mapName = argText(v)
			haveMap = true
		case settings.LocationMapURL:
			o, ok := p.Override(s.Name)
			if !ok {
				continue
			}
			url.WriteString("?" + s.Name + "=" + argText(o.Value))
		case settings.LocationCommandLine:
			o, ok := p.Override(s.Name)
			if !ok {
				continue
			}
			if strings.EqualFold(s.Name, AdditionalOptions) {
				extra = append(extra, additional(o.Value)...)
				continue
			}
			if b, isBool := o.Value.AsBool(); isBool {
				if b {
					switches = append(switches, "-"+s.Name)
				}
				continue
			}
			switches = append(switches, "-"+s.Name+"="+argText(o.Value))
		}
	}
	if !haveMap || mapName == "" {
		return nil, ErrNoMap
	}

	for _, e := range extra {
		if strings.HasPrefix(e, "?") {
			url.WriteString(e)
		} else {
			switches = append(switches, e)
		}
	}
	return append([]string{mapName + url.String()}, switches...), nil
}

// additional lists the AdditionalOptions entries, one launch option each.
func additional(v settings.Value) []string {
	items := v.Items()
	if items == nil {
		items = []settings.Value{v}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.AsString()
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// argText renders a value for the launch line. Arguments are passed to the
// process individually, so strings are not quoted.
func argText(v settings.Value) string {
	switch v.Tag() {
	case settings.KindVector:
		items := v.Items()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = argText(item)
		}
		return strings.Join(parts, ",")
	case settings.KindStruct:
		return settings.FormatToken(v)
	default:
		return settings.FormatScalar(v)
	}
}
