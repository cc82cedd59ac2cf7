// Package config loads godex user preferences from a JSON file, preferring a
// project-local .godex directory over the home-level one.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds user preferences.
type Config struct {
	Endpoint       string `json:"endpoint"`         // Streaming endpoint URL
	DBPath         string `json:"db_path"`          // SQLite database location; empty uses the config dir
	PreviewDelayMS int    `json:"preview_delay_ms"` // Inter-event delay of the preview stream
	ScriptPath     string `json:"script_path"`      // Optional YAML file overriding the preview script
	Theme          string `json:"theme"`            // "light" or "dark"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "http://127.0.0.1:8080/api/godex/stream",
		PreviewDelayMS: 650,
		Theme:          "dark",
	}
}

// PreviewDelay returns the configured preview cadence as a duration.
func (c Config) PreviewDelay() time.Duration {
	if c.PreviewDelayMS <= 0 {
		return 650 * time.Millisecond
	}
	return time.Duration(c.PreviewDelayMS) * time.Millisecond
}

// ConfigDir returns the directory where config and the database live.
func ConfigDir() (string, error) {
	// Prefer project-local .godex directory if present or creatable
	if cwd, err := os.Getwd(); err == nil {
		localDir := filepath.Join(cwd, ".godex")
		if stat, err := os.Stat(localDir); (err == nil && stat.IsDir()) || os.IsNotExist(err) {
			return localDir, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".godex"), nil
}

// ConfigFile returns the full path to the config file.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DatabasePath resolves the SQLite location for the given config.
func DatabasePath(cfg Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "godex.db"), nil
}

// Load reads the configuration from disk, returning defaults when the file
// does not exist.
func Load() (Config, error) {
	path, err := ConfigFile()
	if err != nil {
		return DefaultConfig(), err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// Save writes the configuration to disk.
func Save(cfg Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigFile()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// scriptFile is the YAML shape of a preview-script override.
type scriptFile struct {
	Lines []string `yaml:"lines"`
}

// LoadScript reads a preview-script override. An empty path returns nil,
// which keeps the built-in script.
func LoadScript(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	var sf scriptFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse script file: %w", err)
	}
	if len(sf.Lines) == 0 {
		return nil, fmt.Errorf("script file %s contains no lines", path)
	}
	return sf.Lines, nil
}
