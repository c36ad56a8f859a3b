// Package config handles loading and saving workbench preferences.
//
// Preferences follow the XDG Base Directory specification:
//   - Config:  ~/.config/activity-browser/config.yaml (also holds ABsettings.json)
//   - Data:    ~/.local/share/activity-browser/ (default project base directory)
//   - State:   ~/.local/state/activity-browser/ (exported tarballs, logs)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appDir = "activity-browser"

// MaxRecent caps the recent project list.
const MaxRecent = 10

// RecentProject is a project opened from this machine.
type RecentProject struct {
	Name    string    `yaml:"name"`
	BaseDir string    `yaml:"base_dir,omitempty"`
	Opened  time.Time `yaml:"opened"`
}

// WindowConfig remembers the main window geometry.
type WindowConfig struct {
	Width     int  `yaml:"width,omitempty"`
	Height    int  `yaml:"height,omitempty"`
	X         int  `yaml:"x,omitempty"`
	Y         int  `yaml:"y,omitempty"`
	Maximized bool `yaml:"maximized,omitempty"`
}

// NavigatorConfig holds the default traversal settings of new navigator tabs.
type NavigatorConfig struct {
	Cutoff  float64 `yaml:"cutoff,omitempty"`
	MaxCalc int     `yaml:"max_calc,omitempty"`
}

// Config is the top-level preference document.
type Config struct {
	Recent     []RecentProject `yaml:"recent,omitempty"`
	Window     WindowConfig    `yaml:"window,omitempty"`
	Allocation string          `yaml:"default_allocation,omitempty"`
	Navigator  NavigatorConfig `yaml:"navigator,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:     WindowConfig{Width: 1280, Height: 800},
		Allocation: "equal",
		Navigator:  NavigatorConfig{Cutoff: 0.05, MaxCalc: 250},
	}
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), appDir)...)
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// DataDir returns the XDG data directory.
func DataDir() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// StateDir returns the XDG state directory.
func StateDir() string { return xdgDir("XDG_STATE_HOME", ".local", "state") }

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Recent {
		cfg.Recent[i].BaseDir = expandHome(cfg.Recent[i].BaseDir)
	}
	if len(cfg.Recent) > MaxRecent {
		cfg.Recent = cfg.Recent[:MaxRecent]
	}
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// AddRecent moves a project to the front of the recent list, keeping at most
// MaxRecent entries. Names compare case-insensitively within one base dir.
func (c *Config) AddRecent(name, baseDir string, at time.Time) {
	out := []RecentProject{{Name: name, BaseDir: baseDir, Opened: at}}
	for _, r := range c.Recent {
		if strings.EqualFold(r.Name, name) && r.BaseDir == baseDir {
			continue
		}
		out = append(out, r)
	}
	if len(out) > MaxRecent {
		out = out[:MaxRecent]
	}
	c.Recent = out
}

// ForgetRecent drops a project from the recent list.
func (c *Config) ForgetRecent(name string) {
	out := c.Recent[:0]
	for _, r := range c.Recent {
		if !strings.EqualFold(r.Name, name) {
			out = append(out, r)
		}
	}
	c.Recent = out
}

// FindRecent returns the recent entry with the given name, or nil.
func (c Config) FindRecent(name string) *RecentProject {
	for i := range c.Recent {
		if strings.EqualFold(c.Recent[i].Name, name) {
			return &c.Recent[i]
		}
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
