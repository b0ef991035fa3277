package profiles

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/faradayfan/dedicated-server-manager/internal/ini"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

// Override is a setting whose value differs from the catalog default.
type Override struct {
	Name     string
	Value    settings.Value
	Favorite bool
}

// Runtime holds per-server options that are not game settings.
type Runtime struct {
	// PluginHost launches the server through the plugin loader, which keeps
	// running in its own console when the manager exits.
	PluginHost bool `yaml:"plugin_host"`
	// MemoryLimitMB restarts the server once its resident memory exceeds
	// this many megabytes. Zero disables the check.
	MemoryLimitMB uint64 `yaml:"memory_limit_mb,omitempty"`
	// RconHost overrides the address used for administrative connections.
	RconHost string `yaml:"rcon_host,omitempty"`
	// ExternalIni leaves the INI file to the user. It is read for the
	// effective values but never written; settings changes only reach the
	// manifest.
	ExternalIni bool `yaml:"external_ini,omitempty"`
}

// Profile is the configuration of one server, stored in its own directory.
type Profile struct {
	ID         uuid.UUID
	Name       string
	Dir        string
	InstallDir string
	ConfigFile string
	Runtime    Runtime

	catalog *settings.Catalog

	mu        sync.RWMutex
	overrides map[string]*Override
	unknown   []ini.Line
	removed   map[string]struct{}
}

func newProfile(catalog *settings.Catalog, dir, configFile string) *Profile {
	return &Profile{
		Dir:        dir,
		ConfigFile: configFile,
		catalog:    catalog,
		overrides:  map[string]*Override{},
		removed:    map[string]struct{}{},
	}
}

func (p *Profile) Catalog() *settings.Catalog { return p.catalog }

// SetOverride records a value for a known setting. The value is coerced to
// the setting's kind; a value that cannot be coerced is rejected.
func (p *Profile) SetOverride(name string, v settings.Value, favorite bool) error {
	s, ok := p.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	cv, err := settings.Coerce(s.Kind, v)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[s.Name] = &Override{Name: s.Name, Value: cv, Favorite: favorite}
	delete(p.removed, s.Name)
	return nil
}

// RemoveOverride drops an override, or an unknown key preserved from the
// INI file, so the next save leaves it out. It reports whether anything was
// removed.
func (p *Profile) RemoveOverride(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := false
	if s, ok := p.catalog.Lookup(name); ok {
		if _, ok := p.overrides[s.Name]; ok {
			delete(p.overrides, s.Name)
			p.removed[s.Name] = struct{}{}
			removed = true
		}
	}
	kept := p.unknown[:0]
	for _, l := range p.unknown {
		if strings.EqualFold(l.Key, name) || strings.EqualFold(baseKey(l.Key), name) {
			p.removed[l.Key] = struct{}{}
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	p.unknown = kept
	return removed
}

func baseKey(key string) string {
	if i := strings.IndexByte(key, '['); i > 0 && strings.HasSuffix(key, "]") {
		return key[:i]
	}
	return key
}

func (p *Profile) SetFavorite(name string, favorite bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	o, ok := p.overrides[s.Name]
	if !ok {
		return fmt.Errorf("%s is not overridden", s.Name)
	}
	o.Favorite = favorite
	return nil
}

func (p *Profile) Override(name string) (Override, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.catalog.Lookup(name)
	if !ok {
		return Override{}, false
	}
	o, ok := p.overrides[s.Name]
	if !ok {
		return Override{}, false
	}
	return *o, true
}

// Overrides lists favorites first, then the rest, each by name.
func (p *Profile) Overrides() []Override {
	p.mu.RLock()
	out := make([]Override, 0, len(p.overrides))
	for _, o := range p.overrides {
		out = append(out, *o)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Value returns the effective value of a known setting.
func (p *Profile) Value(name string) (settings.Value, bool) {
	s, ok := p.catalog.Lookup(name)
	if !ok {
		return settings.Value{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if o, ok := p.overrides[s.Name]; ok {
		return o.Value, true
	}
	return s.Default, true
}

// Effective returns every catalog setting with overrides applied.
func (p *Profile) Effective() map[string]settings.Value {
	all := p.catalog.All()
	out := make(map[string]settings.Value, len(all))
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range all {
		if o, ok := p.overrides[s.Name]; ok {
			out[s.Name] = o.Value
		} else {
			out[s.Name] = s.Default
		}
	}
	return out
}

// Unknown returns the INI lines the catalog does not describe.
func (p *Profile) Unknown() []ini.Line {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ini.Line, len(p.unknown))
	copy(out, p.unknown)
	return out
}

// PendingRemovals lists keys removed since the last save.
func (p *Profile) PendingRemovals() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.removed))
	for k := range p.removed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// importValues records decoded values as overrides. With dropDefaults,
// values equal to their catalog default are skipped.
func (p *Profile) importValues(values map[string]settings.Value, dropDefaults bool) {
	for name, v := range values {
		s, ok := p.catalog.Lookup(name)
		if !ok || dropDefaults && v.Equal(s.Default) {
			continue
		}
		p.overrides[s.Name] = &Override{Name: s.Name, Value: v}
	}
}
