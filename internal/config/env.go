package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ErrNotFound is returned by FindConfig when no configuration file exists.
var ErrNotFound = errors.New("no hotpush config file found in standard locations")

// envBindings maps configuration keys to the environment variables that
// override them.
var envBindings = map[string]string{
	"appName":                        "HOTPUSH_APP_NAME",
	"appVersion":                     "HOTPUSH_APP_VERSION",
	"deploymentKey":                  "HOTPUSH_DEPLOYMENT_KEY",
	"serverUrl":                      "HOTPUSH_SERVER_URL",
	"baseDirectory":                  "HOTPUSH_BASE_DIRECTORY",
	"entryPoint":                     "HOTPUSH_ENTRY_POINT",
	"isCompanion":                    "HOTPUSH_IS_COMPANION",
	"sync.installMode":               "HOTPUSH_INSTALL_MODE",
	"sync.mandatoryInstallMode":      "HOTPUSH_MANDATORY_INSTALL_MODE",
	"sync.minimumBackgroundDuration": "HOTPUSH_MINIMUM_BACKGROUND_DURATION",
	"sync.checkFrequency":            "HOTPUSH_CHECK_FREQUENCY",
	"sync.ignoreFailedUpdates":       "HOTPUSH_IGNORE_FAILED_UPDATES",
	"logging.format":                 "HOTPUSH_LOG_FORMAT",
	"logging.level":                  "HOTPUSH_LOG_LEVEL",
	"logging.file":                   "HOTPUSH_LOG_FILE",
}

// newEnvViper returns a viper instance that only reads the environment.
func newEnvViper() (*viper.Viper, error) {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return v, nil
}

// applyEnv overrides cfg with any HOTPUSH_* variables that are set.
func applyEnv(cfg *Config) error {
	v, err := newEnvViper()
	if err != nil {
		return err
	}

	stringKeys := map[string]*string{
		"appName":                        &cfg.AppName,
		"appVersion":                     &cfg.AppVersion,
		"deploymentKey":                  &cfg.DeploymentKey,
		"serverUrl":                      &cfg.ServerURL,
		"baseDirectory":                  &cfg.BaseDirectory,
		"entryPoint":                     &cfg.EntryPoint,
		"sync.installMode":               &cfg.Sync.InstallMode,
		"sync.mandatoryInstallMode":      &cfg.Sync.MandatoryInstallMode,
		"sync.minimumBackgroundDuration": &cfg.Sync.MinimumBackgroundDuration,
		"sync.checkFrequency":            &cfg.Sync.CheckFrequency,
		"logging.format":                 &cfg.Logging.Format,
		"logging.level":                  &cfg.Logging.Level,
		"logging.file":                   &cfg.Logging.File,
	}
	for key, dst := range stringKeys {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}

	if v.IsSet("isCompanion") {
		cfg.IsCompanion = v.GetBool("isCompanion")
	}
	if v.IsSet("sync.ignoreFailedUpdates") {
		ignore := v.GetBool("sync.ignoreFailedUpdates")
		cfg.Sync.IgnoreFailedUpdates = &ignore
	}
	return nil
}
