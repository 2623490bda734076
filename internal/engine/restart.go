package engine

import (
	"context"

	"github.com/hashicorp/go-version"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/types"
)

// InitializeAfterRestart reconciles the pending record at process start.
//
// A pending update that was marked loading never confirmed a successful start
// and is rolled back. A pending update that was not loading has now run once:
// DidUpdate is set and the pending record is cleared. A record naming a package
// other than the current one is discarded. Nothing happens when the installed
// binary is newer than the pending package.
func (e *Engine) InitializeAfterRestart(ctx context.Context) error {
	const op = "initializeAfterRestart"

	release, err := e.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	e.updateState(func(s *State) { s.DidUpdate = false })

	pending, err := e.settings.PendingUpdate(ctx)
	if err != nil {
		return errs.E(errs.KindUnknown, op, err)
	}
	if pending == nil {
		e.log.Debug("no pending update")
		return nil
	}

	current, err := e.store.CurrentPackage(ctx)
	if err != nil {
		return errs.E(errs.KindUnknown, op, err).WithHash(pending.Hash)
	}
	if current == nil {
		e.log.Warn("pending update without a current package", logging.KeyHash, pending.Hash)
		return nil
	}
	if pending.Hash != current.PackageHash {
		e.log.Warn("pending record does not match the current package, discarding it",
			logging.KeyHash, pending.Hash, "current", current.PackageHash)
		if err := e.settings.RemovePendingUpdate(ctx); err != nil {
			return errs.E(errs.KindUnknown, op, err).WithHash(pending.Hash)
		}
		return nil
	}

	binary := e.binaryVersion()
	if binaryIsNewer(binary, current.AppVersion) && current.AppVersion != binary {
		e.log.Info("binary is newer than the pending update, skipping reconciliation",
			logging.KeyHash, current.PackageHash, "binaryVersion", binary, "packageVersion", current.AppVersion)
		e.updateState(func(s *State) { s.IsRunningBinaryVersion = true })
		return nil
	}

	if pending.IsLoading {
		e.log.Warn("pending update never confirmed a successful start, rolling back", logging.KeyHash, pending.Hash)
		e.updateState(func(s *State) { s.NeedToReportRollback = true })
		return e.rollbackPackage(ctx)
	}

	e.updateState(func(s *State) { s.DidUpdate = true })
	if err := e.settings.RemovePendingUpdate(ctx); err != nil {
		return errs.E(errs.KindUnknown, op, err).WithHash(pending.Hash)
	}
	e.log.Info("update is running for the first time", logging.KeyHash, pending.Hash)
	return nil
}

// RollbackPackage abandons the current package in favor of the previous one.
func (e *Engine) RollbackPackage(ctx context.Context) error {
	release, err := e.acquire(ctx, "rollbackPackage")
	if err != nil {
		return err
	}
	defer release()
	return e.rollbackPackage(ctx)
}

func (e *Engine) rollbackPackage(ctx context.Context) error {
	return e.store.RollbackPackage(ctx)
}

// NotifyApplicationReady confirms that the current package started
// successfully by clearing the pending record.
func (e *Engine) NotifyApplicationReady(ctx context.Context) error {
	const op = "notifyApplicationReady"

	release, err := e.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	if err := e.settings.RemovePendingUpdate(ctx); err != nil {
		return errs.E(errs.KindUnknown, op, err)
	}
	return nil
}

// MarkLoading flags the pending update as loading. A restart that finds the
// flag still set rolls the update back. The pending update must be the
// current package.
func (e *Engine) MarkLoading(ctx context.Context) error {
	const op = "markLoading"

	release, err := e.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()

	pending, err := e.settings.PendingUpdate(ctx)
	if err != nil {
		return errs.E(errs.KindUnknown, op, err)
	}
	if pending == nil {
		return errs.New(errs.InvalidParameter, op, "no pending update to mark")
	}
	current, err := e.store.CurrentPackageHash(ctx)
	if err != nil {
		return errs.E(errs.KindUnknown, op, err).WithHash(pending.Hash)
	}
	if pending.Hash != current {
		return errs.New(errs.InvalidParameter, op, "pending update %s is not the current package %q", pending.Hash, current).WithHash(pending.Hash)
	}
	if err := e.settings.SavePendingUpdate(ctx, types.PendingUpdate{Hash: pending.Hash, IsLoading: true}); err != nil {
		return errs.E(errs.KindUnknown, op, err).WithHash(pending.Hash)
	}
	return nil
}

// binaryIsNewer compares two version strings. Unparseable versions are
// never newer.
func binaryIsNewer(binary, pkg string) bool {
	b, err := version.NewVersion(binary)
	if err != nil {
		return false
	}
	p, err := version.NewVersion(pkg)
	if err != nil {
		return false
	}
	return b.GreaterThan(p)
}
