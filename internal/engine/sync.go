package engine

import (
	"context"
	"time"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

// SyncOptions tunes Sync. Zero values take the defaults.
type SyncOptions struct {
	// DeploymentKey overrides the configured key.
	DeploymentKey string
	// InstallMode applies to optional updates (default OnNextRestart).
	InstallMode types.InstallMode
	// MandatoryInstallMode applies to mandatory updates (default Immediate).
	MandatoryInstallMode types.InstallMode
	// MinimumBackgroundDuration is recorded for OnNextResume installs.
	MinimumBackgroundDuration time.Duration
	// IgnoreFailedUpdates skips releases that failed before (default true).
	IgnoreFailedUpdates *bool
	// CheckFrequency tells the host when to call Sync (default OnAppStart).
	CheckFrequency types.CheckFrequency
	// Progress receives download progress.
	Progress transport.ProgressFunc
}

// SyncResult describes what Sync did.
type SyncResult struct {
	Status      types.SyncStatus  `json:"status" yaml:"status"`
	Package     types.Package     `json:"package,omitempty" yaml:"package,omitempty"`
	InstallMode types.InstallMode `json:"installMode,omitempty" yaml:"installMode,omitempty"`
}

// withDefaults fills unset fields.
func (o SyncOptions) withDefaults(deploymentKey string) SyncOptions {
	if o.DeploymentKey == "" {
		o.DeploymentKey = deploymentKey
	}
	o.InstallMode = o.InstallMode.Default(types.InstallModeOnNextRestart)
	o.MandatoryInstallMode = o.MandatoryInstallMode.Default(types.InstallModeImmediate)
	o.CheckFrequency = o.CheckFrequency.Default()
	if o.IgnoreFailedUpdates == nil {
		ignore := true
		o.IgnoreFailedUpdates = &ignore
	}
	return o
}

func (o SyncOptions) validate() error {
	if err := o.InstallMode.Validate(); err != nil {
		return err
	}
	if err := o.MandatoryInstallMode.Validate(); err != nil {
		return err
	}
	return o.CheckFrequency.Validate()
}

// Sync checks for an update and, when a release is available, downloads and
// installs it. Concurrent calls wait for the running one to finish.
//
// A release recorded as failed is never installed: it is reported as ignored,
// or as an InstallFailed error when IgnoreFailedUpdates is false.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	const op = "sync"

	opts = opts.withDefaults(e.cfg.DeploymentKey)
	if err := opts.validate(); err != nil {
		return nil, errs.E(errs.InvalidParameter, op, err)
	}

	release, err := e.acquire(ctx, op)
	if err != nil {
		return nil, err
	}
	defer release()

	e.updateState(func(s *State) { s.SyncInProgress = true })
	defer e.updateState(func(s *State) { s.SyncInProgress = false })

	remote, err := e.CheckForUpdate(ctx, opts.DeploymentKey)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return &SyncResult{Status: types.SyncUpToDate}, nil
	}
	if remote.IsBinaryRedirect() {
		return &SyncResult{Status: types.SyncBinaryUpdateRequired, Package: remote}, nil
	}

	if remote.FailedInstall {
		if *opts.IgnoreFailedUpdates {
			e.log.Info("skipping previously failed update", logging.KeyHash, remote.PackageHash)
			return &SyncResult{Status: types.SyncUpdateIgnored, Package: remote}, nil
		}
		return nil, errs.New(errs.InstallFailed, op, "update %s failed to install before", remote.PackageHash).WithHash(remote.PackageHash)
	}

	mode := opts.InstallMode
	if remote.IsMandatory {
		mode = opts.MandatoryInstallMode
	}

	local, err := e.downloadAndInstall(ctx, remote, mode, opts.Progress)
	if err != nil {
		return nil, err
	}
	if mode == types.InstallModeOnNextResume {
		e.updateState(func(s *State) { s.MinimumBackgroundDuration = opts.MinimumBackgroundDuration })
	}

	e.log.Info("update installed", logging.KeyHash, local.PackageHash, "installMode", mode)
	return &SyncResult{Status: types.SyncUpdateInstalled, Package: local, InstallMode: mode}, nil
}
