package instances

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Record is what the manager remembers about one managed server.
type Record struct {
	Dir     string `yaml:"dir"`
	Enabled bool   `yaml:"enabled"`
}

type recordFile struct {
	Instances map[string]Record `yaml:"instances"`
}

// Store persists management records in a YAML file.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load returns the saved records. A missing file holds no records.
func (s *Store) Load() (map[string]Record, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read instances file %q: %w", s.Path, err)
	}

	var f recordFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse instances yaml %q: %w", s.Path, err)
	}
	if f.Instances == nil {
		f.Instances = map[string]Record{}
	}
	for id, r := range f.Instances {
		if id == "" {
			return nil, fmt.Errorf("instance id cannot be empty")
		}
		if r.Dir == "" {
			return nil, fmt.Errorf("instance %q missing dir", id)
		}
	}
	return f.Instances, nil
}

func (s *Store) Save(records map[string]Record) error {
	b, err := yaml.Marshal(recordFile{Instances: records})
	if err != nil {
		return fmt.Errorf("marshal instances: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}

	// Atomic write: write temp then rename
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp instances file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp instances file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp instances file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp -> instances file: %w", err)
	}
	return nil
}
