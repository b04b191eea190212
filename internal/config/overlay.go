package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay adjusts the built-in commands without code changes:
//
//	disabled: [skills]
//	aliases:
//	  register: [enlist]
type Overlay struct {
	Disabled []string            `yaml:"disabled"`
	Aliases  map[string][]string `yaml:"aliases"`
}

// LoadOverlay reads the overlay file. An empty path or a missing file is an
// empty overlay.
func LoadOverlay(path string) (Overlay, error) {
	if path == "" {
		return Overlay{}, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Overlay{}, nil
	}
	if err != nil {
		return Overlay{}, fmt.Errorf("failed to read command overlay: %w", err)
	}

	var o Overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return Overlay{}, fmt.Errorf("failed to parse command overlay %s: %w", path, err)
	}
	return o, nil
}
