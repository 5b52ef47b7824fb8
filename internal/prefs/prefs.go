// Package prefs persists client display preferences. The storage port is
// injected so non-interactive callers can run with a no-op store.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings holds the persisted display preferences.
type Settings struct {
	Theme            string `yaml:"theme"` // "dark" or "light"
	SidebarCollapsed bool   `yaml:"sidebar_collapsed"`
}

// Default returns the settings used when nothing is stored.
func Default() Settings {
	return Settings{Theme: "dark"}
}

// Store loads and saves settings. Implementations return Default values
// when nothing has been stored yet.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// DefaultPath is where the file store lives unless overridden.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskwire-settings.yaml"
	}
	return filepath.Join(home, ".taskwire", "settings.yaml")
}

// FileStore persists settings as a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath()
	}
	return &FileStore{path: path}
}

// Load reads the settings file. A missing file yields defaults, not an
// error.
func (s *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("prefs: read %s: %w", s.path, err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Default(), fmt.Errorf("prefs: parse %s: %w", s.path, err)
	}
	if settings.Theme == "" {
		settings.Theme = Default().Theme
	}
	return settings, nil
}

// Save writes the settings file, creating parent directories as needed.
func (s *FileStore) Save(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("prefs: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("prefs: write %s: %w", s.path, err)
	}
	return nil
}

// NopStore is the storage port for contexts with nothing to persist to.
type NopStore struct{}

func (NopStore) Load() (Settings, error) { return Default(), nil }
func (NopStore) Save(Settings) error     { return nil }
