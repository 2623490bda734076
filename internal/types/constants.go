// Package types provides type-safe constants and data contracts for hotpush.
//
// This package centralizes the enumerated types used throughout the codebase,
// replacing magic strings with typed constants that provide compile-time safety
// and validation methods.
//
// SYNC REQUIREMENT: These types must stay in sync with:
//   - internal/config/validate.go (runtime validation of sync defaults)
//   - internal/cmd flag completion lists
package types

import (
	"fmt"
	"strings"
)

// InstallMode controls when an installed update takes effect.
type InstallMode string

const (
	// InstallModeImmediate restarts the host as soon as the update is installed.
	InstallModeImmediate InstallMode = "immediate"
	// InstallModeOnNextRestart applies the update the next time the host starts.
	InstallModeOnNextRestart InstallMode = "onNextRestart"
	// InstallModeOnNextResume applies the update when the host is next resumed.
	InstallModeOnNextResume InstallMode = "onNextResume"
	// InstallModeOnNextSuspend applies the update when the host is next suspended.
	InstallModeOnNextSuspend InstallMode = "onNextSuspend"
)

// AllInstallModes returns all valid install modes.
func AllInstallModes() []InstallMode {
	return []InstallMode{
		InstallModeImmediate,
		InstallModeOnNextRestart,
		InstallModeOnNextResume,
		InstallModeOnNextSuspend,
	}
}

// Validate checks if the InstallMode is a valid value.
// Empty is valid and means "use the default".
func (m InstallMode) Validate() error {
	switch m {
	case InstallModeImmediate, InstallModeOnNextRestart, InstallModeOnNextResume, InstallModeOnNextSuspend, "":
		return nil
	default:
		return fmt.Errorf("invalid install mode '%s' (must be immediate, onNextRestart, onNextResume or onNextSuspend)", m)
	}
}

// String returns the string representation of the InstallMode.
func (m InstallMode) String() string {
	return string(m)
}

// IsImmediate returns true if the host must restart right away.
func (m InstallMode) IsImmediate() bool {
	return m == InstallModeImmediate
}

// Default returns def if the mode is empty, otherwise the mode itself.
func (m InstallMode) Default(def InstallMode) InstallMode {
	if m == "" {
		return def
	}
	return m
}

// ParseInstallMode parses a string into an InstallMode. Matching is case-insensitive.
func ParseInstallMode(s string) (InstallMode, error) {
	for _, m := range AllInstallModes() {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	if s == "" {
		return "", nil
	}
	return "", InstallMode(s).Validate()
}

// CheckFrequency controls when the host triggers a sync.
type CheckFrequency string

const (
	// CheckOnAppStart syncs once when the host starts.
	CheckOnAppStart CheckFrequency = "onAppStart"
	// CheckOnAppResume syncs on start and every time the host is resumed.
	CheckOnAppResume CheckFrequency = "onAppResume"
	// CheckManual only syncs when explicitly requested.
	CheckManual CheckFrequency = "manual"
)

// AllCheckFrequencies returns all valid check frequencies.
func AllCheckFrequencies() []CheckFrequency {
	return []CheckFrequency{CheckOnAppStart, CheckOnAppResume, CheckManual}
}

// Validate checks if the CheckFrequency is a valid value.
func (f CheckFrequency) Validate() error {
	switch f {
	case CheckOnAppStart, CheckOnAppResume, CheckManual, "":
		return nil
	default:
		return fmt.Errorf("invalid check frequency '%s' (must be onAppStart, onAppResume or manual)", f)
	}
}

// String returns the string representation of the CheckFrequency.
func (f CheckFrequency) String() string {
	return string(f)
}

// Default returns CheckOnAppStart if the frequency is empty.
func (f CheckFrequency) Default() CheckFrequency {
	if f == "" {
		return CheckOnAppStart
	}
	return f
}

// ParseCheckFrequency parses a string into a CheckFrequency. Matching is case-insensitive.
func ParseCheckFrequency(s string) (CheckFrequency, error) {
	for _, f := range AllCheckFrequencies() {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	if s == "" {
		return "", nil
	}
	return "", CheckFrequency(s).Validate()
}

// UpdateState selects which installed package getUpdateMetadata reports.
type UpdateState string

const (
	// UpdateStateRunning is the package the host is executing right now.
	UpdateStateRunning UpdateState = "running"
	// UpdateStatePending is an installed package awaiting its first run.
	UpdateStatePending UpdateState = "pending"
	// UpdateStateLatest is the newest installed package, pending or not.
	UpdateStateLatest UpdateState = "latest"
)

// AllUpdateStates returns all valid update states.
func AllUpdateStates() []UpdateState {
	return []UpdateState{UpdateStateRunning, UpdateStatePending, UpdateStateLatest}
}

// Validate checks if the UpdateState is a valid value.
func (s UpdateState) Validate() error {
	switch s {
	case UpdateStateRunning, UpdateStatePending, UpdateStateLatest:
		return nil
	case "":
		return fmt.Errorf("update state is required")
	default:
		return fmt.Errorf("invalid update state '%s' (must be running, pending or latest)", s)
	}
}

// String returns the string representation of the UpdateState.
func (s UpdateState) String() string {
	return string(s)
}

// ParseUpdateState parses a string into an UpdateState.
func ParseUpdateState(s string) (UpdateState, error) {
	st := UpdateState(strings.ToLower(s))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

// SyncStatus is the terminal outcome of a sync.
type SyncStatus string

const (
	// SyncUpToDate means the server had nothing newer.
	SyncUpToDate SyncStatus = "upToDate"
	// SyncUpdateInstalled means a release was downloaded and installed.
	SyncUpdateInstalled SyncStatus = "updateInstalled"
	// SyncUpdateIgnored means a release was found but skipped because it failed before.
	SyncUpdateIgnored SyncStatus = "updateIgnored"
	// SyncBinaryUpdateRequired means the server asked for a new binary instead.
	SyncBinaryUpdateRequired SyncStatus = "binaryUpdateRequired"
)

// String returns the string representation of the SyncStatus.
func (s SyncStatus) String() string {
	return string(s)
}
