// Package config handles hotpush configuration file parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adamancini/hotpush/internal/types"
)

// ConfigEnv names a configuration file explicitly.
const ConfigEnv = "HOTPUSH_CONFIG"

// Config represents the parsed configuration file.
type Config struct {
	AppName       string `yaml:"appName,omitempty" toml:"appName,omitempty" json:"appName,omitempty"`
	AppVersion    string `yaml:"appVersion" toml:"appVersion" json:"appVersion"`
	DeploymentKey string `yaml:"deploymentKey" toml:"deploymentKey" json:"deploymentKey"`
	ServerURL     string `yaml:"serverUrl,omitempty" toml:"serverUrl,omitempty" json:"serverUrl,omitempty"`
	BaseDirectory string `yaml:"baseDirectory" toml:"baseDirectory" json:"baseDirectory"`
	EntryPoint    string `yaml:"entryPoint,omitempty" toml:"entryPoint,omitempty" json:"entryPoint,omitempty"`
	IsCompanion   bool   `yaml:"isCompanion,omitempty" toml:"isCompanion,omitempty" json:"isCompanion,omitempty"`

	Sync    SyncConfig    `yaml:"sync,omitempty" toml:"sync,omitempty" json:"sync,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty" toml:"logging,omitempty" json:"logging,omitempty"`
}

// SyncConfig holds defaults for the sync command.
type SyncConfig struct {
	InstallMode               string `yaml:"installMode,omitempty" toml:"installMode,omitempty" json:"installMode,omitempty"`
	MandatoryInstallMode      string `yaml:"mandatoryInstallMode,omitempty" toml:"mandatoryInstallMode,omitempty" json:"mandatoryInstallMode,omitempty"`
	MinimumBackgroundDuration string `yaml:"minimumBackgroundDuration,omitempty" toml:"minimumBackgroundDuration,omitempty" json:"minimumBackgroundDuration,omitempty"` // Go duration, e.g. "30s"
	CheckFrequency            string `yaml:"checkFrequency,omitempty" toml:"checkFrequency,omitempty" json:"checkFrequency,omitempty"`
	IgnoreFailedUpdates       *bool  `yaml:"ignoreFailedUpdates,omitempty" toml:"ignoreFailedUpdates,omitempty" json:"ignoreFailedUpdates,omitempty"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Format string `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"` // text, json
	Level  string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`    // debug, info, warn, error
	File   string `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`
}

// Engine returns the engine-facing view of the configuration.
func (c *Config) Engine() types.Configuration {
	return types.Configuration{
		AppName:       c.AppName,
		AppVersion:    c.AppVersion,
		DeploymentKey: c.DeploymentKey,
		ServerURL:     c.ServerURL,
		BaseDirectory: c.BaseDirectory,
		IsCompanion:   c.IsCompanion,
	}
}

// fileNames lists accepted configuration file names in order of precedence.
var fileNames = []string{
	"hotpush.yaml",
	"hotpush.yml",
	"hotpush.toml",
	"hotpush.json",
	".hotpush.yaml",
	".hotpush.yml",
	".hotpush.toml",
	".hotpush.json",
}

// SearchPaths returns the directories searched for a configuration file:
// the working directory, $XDG_CONFIG_HOME/hotpush and the home directory.
func SearchPaths() []string {
	var paths []string
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, wd)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return append(paths, filepath.Join(xdgConfig, "hotpush"), home)
}

// FindConfig searches for a configuration file in the standard locations.
// Returns the path to the first file found, or an error if none exists.
func FindConfig(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(ConfigEnv); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, dir := range SearchPaths() {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// Load reads, parses and validates a configuration file. Environment
// overrides are applied before validation.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// Resolve loads the configuration file at explicitPath, or the first one
// found in the standard locations. Without any file the configuration comes
// from the environment alone.
func Resolve(explicitPath string) (*Config, string, error) {
	path, err := FindConfig(explicitPath)
	switch {
	case err == nil:
		cfg, err := Load(path)
		return cfg, path, err
	case explicitPath == "" && err == ErrNotFound:
		cfg, err := finish(&Config{})
		return cfg, "", err
	default:
		return nil, "", err
	}
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
