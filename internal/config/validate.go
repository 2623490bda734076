package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/adamancini/hotpush/internal/types"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for required fields and valid values.
func Validate(c *Config) error {
	var errors []string

	if err := validateIdentity(c); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateServerURL(c.ServerURL); err != nil {
		errors = append(errors, err.Error())
	}

	if c.EntryPoint != "" && strings.ContainsAny(c.EntryPoint, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "entryPoint",
			Message: "must be a file name, not a path",
		}.Error())
	}

	for _, err := range validateSync(c.Sync) {
		errors = append(errors, err.Error())
	}

	for _, err := range validateLogging(c.Logging) {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateIdentity(c *Config) error {
	if c.AppVersion == "" {
		return ValidationError{Field: "appVersion", Message: "appVersion is required"}
	}
	if c.BaseDirectory == "" {
		return ValidationError{Field: "baseDirectory", Message: "baseDirectory is required"}
	}
	if strings.ContainsAny(c.AppName, `/\`) || c.AppName == "." || c.AppName == ".." {
		return ValidationError{Field: "appName", Message: fmt.Sprintf("invalid app name '%s'", c.AppName)}
	}
	return nil
}

func validateServerURL(raw string) error {
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "serverUrl", Message: fmt.Sprintf("invalid server URL '%s'", raw)}
	}
	return nil
}

func validateSync(s SyncConfig) []error {
	var errs []error

	if err := types.InstallMode(s.InstallMode).Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "sync.installMode", Message: err.Error()})
	}
	if err := types.InstallMode(s.MandatoryInstallMode).Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "sync.mandatoryInstallMode", Message: err.Error()})
	}
	if err := types.CheckFrequency(s.CheckFrequency).Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "sync.checkFrequency", Message: err.Error()})
	}
	if s.MinimumBackgroundDuration != "" {
		if d, err := time.ParseDuration(s.MinimumBackgroundDuration); err != nil || d < 0 {
			errs = append(errs, ValidationError{
				Field:   "sync.minimumBackgroundDuration",
				Message: fmt.Sprintf("invalid duration '%s'", s.MinimumBackgroundDuration),
			})
		}
	}

	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error

	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s' (must be text or json)", l.Format),
		})
	}

	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s'", l.Level),
		})
	}

	return errs
}
