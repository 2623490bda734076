package engine

import (
	"context"

	"github.com/adamancini/hotpush/internal/acquisition"
	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/packages"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

// CheckForUpdate asks the server for a release newer than the latest local
// package. An empty deploymentKey uses the configured one.
//
// It returns nil when there is nothing new, including when the server offers
// the hash that is already installed. A binary redirect is returned as a
// package with IsBinaryRedirect set. Releases that previously failed carry
// FailedInstall.
func (e *Engine) CheckForUpdate(ctx context.Context, deploymentKey string) (*types.RemotePackage, error) {
	const op = "checkForUpdate"

	cfg, err := e.Configuration(ctx)
	if err != nil {
		return nil, err
	}
	if deploymentKey != "" {
		cfg.DeploymentKey = deploymentKey
	}

	local, err := e.UpdateMetadata(ctx, types.UpdateStateLatest)
	if err != nil {
		return nil, errs.E(errs.KindUnknown, op, err)
	}
	query := local
	if query == nil {
		query = &types.LocalPackage{Descriptor: types.Descriptor{AppVersion: cfg.AppVersion}}
	}

	out, err := e.acq.QueryUpdate(ctx, cfg, query)
	if err != nil {
		return nil, errs.E(errs.AcquisitionFailed, op, err)
	}
	if out.ShouldRunBinaryVersion {
		e.log.Info("server asked to run the binary version")
	}

	switch out.Kind {
	case acquisition.OutcomeNone:
		e.log.Debug("no update available")
		return nil, nil
	case acquisition.OutcomeBinaryRedirect:
		e.log.Info("binary update required", "appVersion", out.Package.AppVersion)
		return out.Package, nil
	}

	remote := out.Package
	if local != nil && remote.PackageHash == local.PackageHash {
		e.log.Debug("server offered the installed package", logging.KeyHash, remote.PackageHash)
		return nil, nil
	}

	failed, err := e.settings.ExistsFailedUpdate(ctx, remote.PackageHash)
	if err != nil {
		return nil, errs.E(errs.KindUnknown, op, err).WithHash(remote.PackageHash)
	}
	remote.FailedInstall = failed

	e.log.Info("update available", logging.KeyHash, remote.PackageHash, "label", remote.Label, "mandatory", remote.IsMandatory)
	return remote, nil
}

// DownloadUpdate fetches remote into the package store without installing it.
func (e *Engine) DownloadUpdate(ctx context.Context, remote *types.RemotePackage, progress transport.ProgressFunc) (*types.LocalPackage, error) {
	release, err := e.acquire(ctx, "downloadUpdate")
	if err != nil {
		return nil, err
	}
	defer release()
	return e.store.DownloadPackage(ctx, remote, progress)
}

// InstallUpdate makes a downloaded package current and applies mode. An empty
// mode means OnNextRestart.
func (e *Engine) InstallUpdate(ctx context.Context, local *types.LocalPackage, mode types.InstallMode) error {
	release, err := e.acquire(ctx, "installUpdate")
	if err != nil {
		return err
	}
	defer release()
	return e.installUpdate(ctx, local, mode)
}

func (e *Engine) installUpdate(ctx context.Context, local *types.LocalPackage, mode types.InstallMode) error {
	const op = "installUpdate"

	if local == nil || local.PackageHash == "" {
		return errs.New(errs.InvalidParameter, op, "update to install has no hash value")
	}
	mode = mode.Default(types.InstallModeOnNextRestart)
	if err := mode.Validate(); err != nil {
		return errs.E(errs.InvalidParameter, op, err)
	}

	// a pending update that never ran is replaced outright
	removeCurrent, err := e.settings.IsPendingUpdate(ctx, "")
	if err != nil {
		return errs.E(errs.InstallFailed, op, err).WithHash(local.PackageHash)
	}
	if err := e.store.InstallPackage(ctx, local.PackageHash, removeCurrent); err != nil {
		return err
	}

	e.updateState(func(s *State) { s.InstallModeInProgress = mode })
	if mode.IsImmediate() && e.host != nil {
		e.host.Restart(true)
	}
	return nil
}

// DownloadAndInstall downloads remote and installs it with mode.
func (e *Engine) DownloadAndInstall(ctx context.Context, remote *types.RemotePackage, mode types.InstallMode, progress transport.ProgressFunc) (*types.LocalPackage, error) {
	release, err := e.acquire(ctx, "downloadAndInstall")
	if err != nil {
		return nil, err
	}
	defer release()
	return e.downloadAndInstall(ctx, remote, mode, progress)
}

func (e *Engine) downloadAndInstall(ctx context.Context, remote *types.RemotePackage, mode types.InstallMode, progress transport.ProgressFunc) (*types.LocalPackage, error) {
	local, err := e.store.DownloadPackage(ctx, remote, progress)
	if err != nil {
		return nil, err
	}
	if err := e.installUpdate(ctx, local, mode); err != nil {
		return nil, err
	}
	return local, nil
}

// UpdateMetadata returns the installed package matching state, or nil.
//
// Running returns the package that is executing now, which is the previous
// package while an installed update is still pending. Pending returns the
// current package only if it is pending. Latest returns the current package.
func (e *Engine) UpdateMetadata(ctx context.Context, state types.UpdateState) (*types.LocalPackage, error) {
	const op = "updateMetadata"

	if err := state.Validate(); err != nil {
		return nil, errs.E(errs.InvalidParameter, op, err)
	}

	current, err := e.store.CurrentPackage(ctx)
	if err != nil || current == nil {
		return nil, err
	}

	isPending := false
	if current.PackageHash != "" {
		isPending, err = e.settings.IsPendingUpdate(ctx, current.PackageHash)
		if err != nil {
			return nil, errs.E(errs.KindUnknown, op, err).WithHash(current.PackageHash)
		}
	}

	switch {
	case state == types.UpdateStatePending && !isPending:
		return nil, nil
	case state == types.UpdateStateRunning && isPending:
		previous, err := e.store.PreviousPackage(ctx)
		if err != nil || previous == nil {
			return nil, err
		}
		previous.IsPending = false
		return previous, nil
	}

	failed, err := e.settings.ExistsFailedUpdate(ctx, current.PackageHash)
	if err != nil {
		return nil, errs.E(errs.KindUnknown, op, err).WithHash(current.PackageHash)
	}
	firstRun, err := e.IsFirstRun(ctx, current.PackageHash)
	if err != nil {
		return nil, err
	}
	current.FailedInstall = failed
	current.IsFirstRun = firstRun
	current.IsPending = isPending
	return current, nil
}

// IsFirstRun reports whether hash is the current package and this is its
// first start after install.
func (e *Engine) IsFirstRun(ctx context.Context, hash string) (bool, error) {
	if hash == "" || !e.State().DidUpdate {
		return false, nil
	}
	current, err := e.store.CurrentPackageHash(ctx)
	if err != nil {
		return false, err
	}
	return hash == current, nil
}

// ClearFailedUpdates forgets every recorded failure.
func (e *Engine) ClearFailedUpdates(ctx context.Context) error {
	if err := e.settings.ClearFailedUpdates(ctx); err != nil {
		return errs.E(errs.KindUnknown, "clearFailedUpdates", err)
	}
	return nil
}

// Prune removes package folders and temp files that are no longer
// referenced. It waits for any running lifecycle operation.
func (e *Engine) Prune(ctx context.Context, dryRun bool) (*packages.PruneResult, error) {
	release, err := e.acquire(ctx, "prune")
	if err != nil {
		return nil, err
	}
	defer release()
	return e.store.Prune(ctx, dryRun)
}

// CurrentPackagePath returns the folder of the current package, or "".
func (e *Engine) CurrentPackagePath(ctx context.Context) (string, error) {
	return e.store.CurrentPackagePath(ctx)
}

// PreviousPackagePath returns the folder of the previous package, or "".
func (e *Engine) PreviousPackagePath(ctx context.Context) (string, error) {
	return e.store.PreviousPackagePath(ctx)
}
