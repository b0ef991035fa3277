package profiles

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/faradayfan/dedicated-server-manager/internal/ini"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

const (
	ManifestFile      = "profile.yaml"
	DefaultConfigFile = "GameUserSettings.ini"
)

var ErrUnknownSetting = errors.New("unknown setting")

// ProfileIOError reports a profile directory, manifest or INI file that could
// not be read or written.
type ProfileIOError struct {
	Path string
	Err  error
}

func (e *ProfileIOError) Error() string { return fmt.Sprintf("profile %s: %v", e.Path, e.Err) }
func (e *ProfileIOError) Unwrap() error { return e.Err }

type manifest struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	InstallDir string             `yaml:"install_dir"`
	ConfigFile string             `yaml:"config_file,omitempty"`
	Runtime    Runtime            `yaml:"runtime"`
	Favorites  []string           `yaml:"favorites,omitempty"`
	Overrides  []manifestOverride `yaml:"overrides,omitempty"`
}

type manifestOverride struct {
	Name  string         `yaml:"name"`
	Value settings.Value `yaml:"value"`
}

// Store loads and saves profiles against one catalog.
type Store struct {
	catalog    *settings.Catalog
	codec      *ini.Codec
	mode       settings.Mode
	configFile string
	log        *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(catalog *settings.Catalog, mode settings.Mode, configFile string, log *zap.Logger) *Store {
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		catalog:    catalog,
		codec:      ini.NewCodec(catalog, mode),
		mode:       mode,
		configFile: configFile,
		log:        log,
		locks:      map[string]*sync.Mutex{},
	}
}

func (s *Store) Catalog() *settings.Catalog { return s.catalog }

// New returns an empty profile. Nothing is written until Save.
func (s *Store) New(dir, name, installDir string) *Profile {
	p := newProfile(s.catalog, dir, s.configFile)
	p.ID = uuid.New()
	p.Name = name
	p.InstallDir = installDir
	return p
}

// Load reads a profile saved by this store. Only the manifest and the
// designated INI file are read; both must exist.
func (s *Store) Load(dir string) (*Profile, settings.Warnings, error) {
	if err := requireDir(dir); err != nil {
		return nil, nil, err
	}

	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ProfileIOError{Path: path, Err: err}
	}
	var m manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, nil, &ProfileIOError{Path: path, Err: fmt.Errorf("parse manifest: %w", err)}
	}
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, nil, &ProfileIOError{Path: path, Err: fmt.Errorf("profile id: %w", err)}
	}

	configFile := m.ConfigFile
	if configFile == "" {
		configFile = s.configFile
	}
	p := newProfile(s.catalog, dir, configFile)
	p.ID = id
	p.Name = m.Name
	p.InstallDir = m.InstallDir
	p.Runtime = m.Runtime

	var warns settings.Warnings
	for _, o := range m.Overrides {
		setting, ok := s.catalog.Lookup(o.Name)
		if !ok {
			warns = append(warns, settings.Warning{Setting: o.Name, Err: ErrUnknownSetting})
			continue
		}
		v, w, err := settings.Resolve(setting, o.Value, s.mode)
		if err != nil {
			return nil, warns, err
		}
		if w != nil {
			warns = append(warns, *w)
			continue
		}
		p.overrides[setting.Name] = &Override{Name: setting.Name, Value: v}
	}

	iniPath := filepath.Join(dir, configFile)
	f, err := os.Open(iniPath)
	switch {
	case err == nil:
		defer f.Close()
		doc, iniWarns, err := s.codec.Decode(f)
		warns = append(warns, iniWarns...)
		if err != nil {
			return nil, warns, &ProfileIOError{Path: iniPath, Err: err}
		}
		p.importValues(doc.Values, false)
		p.unknown = doc.Unknown
	case p.Runtime.ExternalIni && errors.Is(err, os.ErrNotExist):
		// the user has not written one yet
	default:
		return nil, warns, &ProfileIOError{Path: iniPath, Err: err}
	}

	for _, name := range m.Favorites {
		if o, ok := p.overrides[name]; ok {
			o.Favorite = true
		}
	}

	s.log.Debug("profile loaded",
		zap.String("dir", dir),
		zap.String("profile_id", p.ID.String()),
		zap.Int("overrides", len(p.overrides)),
		zap.Int("warnings", len(warns)),
	)
	return p, warns, nil
}

// ImportExisting builds a new profile from an existing server directory.
// Other files in the directory are ignored. A missing INI file is reported
// as a warning. Without includeIni the INI file stays under the user's
// control: the profile is marked ExternalIni and saves leave the file alone.
func (s *Store) ImportExisting(dir string, includeIni bool) (*Profile, settings.Warnings, error) {
	if err := requireDir(dir); err != nil {
		return nil, nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	p := s.New(dir, filepath.Base(abs), dir)
	p.Runtime.ExternalIni = !includeIni

	iniPath := filepath.Join(dir, p.ConfigFile)
	f, err := os.Open(iniPath)
	if errors.Is(err, os.ErrNotExist) {
		if !includeIni {
			return p, nil, nil
		}
		return p, settings.Warnings{{Err: fmt.Errorf("no %s in %s", p.ConfigFile, dir)}}, nil
	}
	if err != nil {
		return nil, nil, &ProfileIOError{Path: iniPath, Err: err}
	}
	defer f.Close()
	doc, warns, err := s.codec.Decode(f)
	if err != nil {
		return nil, warns, &ProfileIOError{Path: iniPath, Err: err}
	}
	p.importValues(doc.Values, true)
	p.unknown = doc.Unknown

	s.log.Info("profile imported",
		zap.String("dir", dir),
		zap.String("profile_id", p.ID.String()),
		zap.Int("overrides", len(p.overrides)),
		zap.Int("unknown_keys", len(p.unknown)),
	)
	return p, warns, nil
}

func requireDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return &ProfileIOError{Path: dir, Err: err}
	}
	if !st.IsDir() {
		return &ProfileIOError{Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}

func (s *Store) lock(dir string) func() {
	key := filepath.Clean(dir)
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Save writes the INI file and then the manifest, each through a temporary
// file renamed into place. Profiles with an external INI only write the
// manifest. Saves of the same directory never interleave.
func (s *Store) Save(p *Profile) (settings.Warnings, error) {
	unlock := s.lock(p.Dir)
	defer unlock()

	values, unknown, m, removed := p.snapshot()

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, &ProfileIOError{Path: p.Dir, Err: err}
	}
	var warns settings.Warnings
	if !m.Runtime.ExternalIni {
		var buf bytes.Buffer
		var err error
		warns, err = s.codec.Encode(&buf, values, unknown)
		if err != nil {
			return warns, err
		}
		iniPath := filepath.Join(p.Dir, p.ConfigFile)
		if err := writeFileAtomic(iniPath, buf.Bytes()); err != nil {
			return warns, &ProfileIOError{Path: iniPath, Err: err}
		}
	}

	out, err := yaml.Marshal(m)
	if err != nil {
		return warns, fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(p.Dir, ManifestFile)
	if err := writeFileAtomic(path, out); err != nil {
		return warns, &ProfileIOError{Path: path, Err: err}
	}

	p.clearRemoved(removed)
	s.log.Info("profile saved",
		zap.String("dir", p.Dir),
		zap.String("profile_id", p.ID.String()),
		zap.Int("overrides", len(values)+len(m.Overrides)),
		zap.Strings("dropped", removed),
	)
	return warns, nil
}

func (p *Profile) snapshot() (map[string]settings.Value, []ini.Line, manifest, []string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	values := map[string]settings.Value{}
	m := manifest{
		ID:         p.ID.String(),
		Name:       p.Name,
		InstallDir: p.InstallDir,
		ConfigFile: p.ConfigFile,
		Runtime:    p.Runtime,
	}
	names := make([]string, 0, len(p.overrides))
	for name := range p.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o := p.overrides[name]
		if o.Favorite {
			m.Favorites = append(m.Favorites, name)
		}
		s, _ := p.catalog.Lookup(name)
		if s.Location == settings.LocationINI {
			values[name] = o.Value
		} else {
			m.Overrides = append(m.Overrides, manifestOverride{Name: name, Value: o.Value})
		}
	}
	unknown := make([]ini.Line, len(p.unknown))
	copy(unknown, p.unknown)
	removed := make([]string, 0, len(p.removed))
	for k := range p.removed {
		removed = append(removed, k)
	}
	sort.Strings(removed)
	return values, unknown, m, removed
}

func (p *Profile) clearRemoved(keys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.removed, k)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
