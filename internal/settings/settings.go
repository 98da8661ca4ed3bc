// Package settings reads and writes the persisted user settings file.
//
// Settings are loaded once at startup and injected where they are used:
// row defaults into the grid and debug categories into the logger factory.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"fintrack/internal/grid"
	applog "fintrack/internal/log"
)

type Settings struct {
	// Enabled switches row defaults on or off without losing them.
	Enabled  bool        `yaml:"enabled"`
	Defaults RowDefaults `yaml:"defaults"`
	// Debug lists the components logged at Debug level.
	Debug []string `yaml:"debug,omitempty"`
}

// RowDefaults pre-fill new grid rows. Reference fields are names.
type RowDefaults struct {
	Name        string `yaml:"name,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Account     string `yaml:"account,omitempty"`
	Category    string `yaml:"category,omitempty"`
	SubCategory string `yaml:"sub_category,omitempty"`
	Description string `yaml:"description,omitempty"`
	DateToday   bool   `yaml:"date_today"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Enabled: true,
		Defaults: RowDefaults{
			Type:      "Expense",
			DateToday: true,
		},
	}
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes s to path, creating the parent directory.
func Save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Validate rejects unknown debug categories.
func (s *Settings) Validate() error {
	var unknown []string
	for _, c := range s.Debug {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "all" && !slices.Contains(applog.Components, c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown debug categories %v: must be among %v or all", unknown, applog.Components)
	}
	return nil
}

// RowDefaults returns the grid defaults, or nil when they are disabled.
func (s *Settings) RowDefaults() *grid.Defaults {
	if !s.Enabled {
		return nil
	}
	d := s.Defaults
	return &grid.Defaults{
		Name:        d.Name,
		Value:       d.Value,
		Type:        d.Type,
		Account:     d.Account,
		Category:    d.Category,
		SubCategory: d.SubCategory,
		Description: d.Description,
		DateToday:   d.DateToday,
	}
}
