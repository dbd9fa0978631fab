package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// Store is a section/key string store.
type Store interface {
	Get(section, key string) (string, bool)
	Set(section, key, value string) error
	Sections() []string
}

// TOMLStore keeps sections as TOML tables in a single file.
type TOMLStore struct {
	mu       sync.Mutex
	path     string
	sections map[string]map[string]string
}

// OpenStore loads the store at path. A missing file yields an empty store.
func OpenStore(path string) (*TOMLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	s := &TOMLStore{path: path, sections: map[string]map[string]string{}}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	if _, err := toml.DecodeFile(path, &s.sections); err != nil {
		return nil, fmt.Errorf("failed to decode store %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *TOMLStore) Path() string {
	return s.path
}

func (s *TOMLStore) Get(section, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.sections[section]
	if !ok {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}

// Set stores the value and rewrites the file.
func (s *TOMLStore) Set(section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.sections[section]
	if !ok {
		values = map[string]string{}
		s.sections[section] = values
	}
	prev, had := values[key]
	values[key] = value
	if err := s.save(); err != nil {
		if had {
			values[key] = prev
		} else {
			delete(values, key)
		}
		return err
	}
	return nil
}

// Sections lists section names in sorted order.
func (s *TOMLStore) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sections))
	for name := range s.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *TOMLStore) save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.sections); err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profiles-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store %s: %w", s.path, err)
	}
	return nil
}
