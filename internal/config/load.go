package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for descriptor files that are neither YAML nor TOML.
var ErrUnknownFormat = errors.New("unknown descriptor format")

// Load loads a descriptor with priority: defaults < file < flags.
// An empty path falls back to the standard descriptor locations.
func Load(path string, flags *Flags) (*Config, error) {
	// Start with defaults
	cfg := Default()

	if path == "" && flags != nil {
		path = flags.Config
	}
	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading descriptor from %s: %w", path, err)
		}
	}

	// Apply CLI flags (highest priority)
	if flags != nil {
		flags.apply(cfg)
	}

	return cfg, nil
}

// LoadFile loads a single descriptor file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading descriptor from %s: %w", path, err)
	}
	return cfg, nil
}

// findConfigFile looks for a descriptor in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./geomc.yaml",
		"./geomc.toml",
		filepath.Join(ConfigDir(), "geomc.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "geomc")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "geomc")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "geomc")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "geomc")
	}
}

// loadFromFile loads a descriptor file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}
