// Package profile implements the read-only contract the launcher
// orchestrator consumes (image, backend, extra libraries and files, and
// the originating source script) plus a schema-versioned on-disk YAML
// store for managing named profiles.
package profile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/nhanford/e4s-cl/internal/pkg/e4serr"
)

// SchemaVersion is bumped whenever the on-disk record shape changes
// incompatibly; Load rejects a store from a newer schema than it
// understands.
const SchemaVersion = 1

// Profile is the orchestrator's read-only view, per spec §4.8.
type Profile struct {
	Image     string   `yaml:"image"`
	Backend   string   `yaml:"backend"`
	Libraries []string `yaml:"libraries,omitempty"`
	Files     []string `yaml:"files,omitempty"`
	Source    string   `yaml:"source,omitempty"`
}

// Store is the on-disk record of every named profile.
type Store struct {
	Schema   int                 `yaml:"schema"`
	Profiles map[string]*Profile `yaml:"profiles"`
}

// ReadFrom decodes a Store from r, defaulting to an empty Store when r is
// empty (a profile store that has never been written to).
func ReadFrom(r io.Reader) (*Store, error) {
	s := &Store{Profiles: make(map[string]*Profile)}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading profile store: %w", err)
	}
	if len(b) == 0 {
		s.Schema = SchemaVersion
		return s, nil
	}

	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, e4serr.New(e4serr.ConfigurationError, "profile store", err)
	}
	if s.Profiles == nil {
		s.Profiles = make(map[string]*Profile)
	}
	if s.Schema > SchemaVersion {
		return nil, e4serr.New(e4serr.ConfigurationError, "profile store",
			fmt.Errorf("store schema %d is newer than the %d this build understands", s.Schema, SchemaVersion))
	}
	if s.Schema == 0 {
		s.Schema = SchemaVersion
	}
	return s, nil
}

// WriteTo serializes the store as YAML to w.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	s.Schema = SchemaVersion
	data, err := yaml.Marshal(s)
	if err != nil {
		return 0, fmt.Errorf("marshaling profile store: %w", err)
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Load reads the store at path, returning an empty store if the file does
// not exist yet.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &Store{Schema: SchemaVersion, Profiles: make(map[string]*Profile)}, nil
	}
	if err != nil {
		return nil, e4serr.New(e4serr.ConfigurationError, path, err)
	}
	defer f.Close()
	return ReadFrom(f)
}

// Save atomically writes the store to path: it writes to a temp file in
// the same directory and renames over the target, so a crash mid-write
// never leaves a truncated store.
func Save(path string, s *Store) error {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return e4serr.New(e4serr.ConfigurationError, path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".profiles-*.yaml.tmp")
	if err != nil {
		return e4serr.New(e4serr.ConfigurationError, path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return e4serr.New(e4serr.ConfigurationError, path, err)
	}
	if err := tmp.Close(); err != nil {
		return e4serr.New(e4serr.ConfigurationError, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return e4serr.New(e4serr.ConfigurationError, path, err)
	}
	return nil
}

// Get returns the named profile.
func (s *Store) Get(name string) (*Profile, bool) {
	p, ok := s.Profiles[name]
	return p, ok
}

// Create adds a new profile, failing if name is already taken.
func (s *Store) Create(name string, p *Profile) error {
	if _, exists := s.Profiles[name]; exists {
		return e4serr.New(e4serr.ConfigurationError, name, fmt.Errorf("profile already exists"))
	}
	s.Profiles[name] = p
	return nil
}

// Delete removes a profile, failing if it does not exist.
func (s *Store) Delete(name string) error {
	if _, exists := s.Profiles[name]; !exists {
		return e4serr.New(e4serr.ConfigurationError, name, fmt.Errorf("no such profile"))
	}
	delete(s.Profiles, name)
	return nil
}

// List returns every profile name.
func (s *Store) List() []string {
	out := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Copy duplicates an existing profile under a new name.
func (s *Store) Copy(src, dst string) error {
	p, ok := s.Profiles[src]
	if !ok {
		return e4serr.New(e4serr.ConfigurationError, src, fmt.Errorf("no such profile"))
	}
	cp := *p
	cp.Libraries = append([]string(nil), p.Libraries...)
	cp.Files = append([]string(nil), p.Files...)
	return s.Create(dst, &cp)
}

// Edit applies fn to an existing profile, failing if it does not exist.
func (s *Store) Edit(name string, fn func(*Profile)) error {
	p, ok := s.Profiles[name]
	if !ok {
		return e4serr.New(e4serr.ConfigurationError, name, fmt.Errorf("no such profile"))
	}
	fn(p)
	return nil
}
