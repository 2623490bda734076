package packages

import (
	"context"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/fileutil"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/types"
)

// InstallPackage makes hash the current package and records it as pending.
//
// The outgoing current package becomes the previous one and the old previous
// folder is deleted. With removeCurrent the outgoing current folder is deleted
// instead and the previous pointer is left alone. Installing the current hash
// is a no-op.
func (s *Store) InstallPackage(ctx context.Context, hash string, removeCurrent bool) error {
	const op = "installPackage"

	if hash == "" {
		return errs.New(errs.InvalidParameter, op, "package hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.packageInfo()
	if err != nil {
		return fail(errs.InstallFailed, op, hash, err)
	}
	if info.CurrentPackage == hash {
		log.Debug("package is already current", logging.KeyHash, hash)
		return nil
	}
	if _, err := s.Package(hash); err != nil {
		return fail(errs.InstallFailed, op, hash, err)
	}

	if removeCurrent {
		if info.CurrentPackage != "" {
			if err := fileutil.Remove(s.fs, s.PackageFolderPath(info.CurrentPackage)); err != nil {
				return fail(errs.InstallFailed, op, hash, err)
			}
		}
	} else {
		if info.PreviousPackage != "" && info.PreviousPackage != hash {
			if err := fileutil.Remove(s.fs, s.PackageFolderPath(info.PreviousPackage)); err != nil {
				return fail(errs.InstallFailed, op, hash, err)
			}
		}
		info.PreviousPackage = info.CurrentPackage
	}
	info.CurrentPackage = hash
	if info.PreviousPackage == info.CurrentPackage {
		info.PreviousPackage = ""
	}

	if err := s.writePackageInfo(ctx, info); err != nil {
		return fail(errs.InstallFailed, op, hash, err)
	}
	if err := s.settings.SavePendingUpdate(ctx, types.PendingUpdate{Hash: hash}); err != nil {
		return fail(errs.InstallFailed, op, hash, err)
	}

	log.Info("installed package", logging.KeyHash, hash, "previous", info.PreviousPackage, "removeCurrent", removeCurrent)
	return nil
}

// RollbackPackage abandons the current package: it is recorded as failed,
// the previous package becomes current and the pending record is cleared.
// Without a current package this is a no-op.
func (s *Store) RollbackPackage(ctx context.Context) error {
	const op = "rollbackPackage"

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.packageInfo()
	if err != nil {
		return fail(errs.RollbackFailed, op, "", err)
	}
	broken := info.CurrentPackage
	if broken == "" {
		return nil
	}

	var failed types.Package
	if pkg, err := s.Package(broken); err == nil {
		failed = pkg
	} else {
		log.Warn("rolling back package with unreadable metadata", logging.KeyHash, broken, logging.Err(err))
		failed = &types.LocalPackage{Descriptor: types.Descriptor{PackageHash: broken}}
	}
	if err := s.settings.SaveFailedUpdate(ctx, failed); err != nil {
		return fail(errs.RollbackFailed, op, broken, err)
	}

	info.CurrentPackage = info.PreviousPackage
	info.PreviousPackage = ""
	if err := s.writePackageInfo(ctx, info); err != nil {
		return fail(errs.RollbackFailed, op, broken, err)
	}

	if err := fileutil.Remove(s.fs, s.PackageFolderPath(broken)); err != nil {
		log.Warn("failed to remove rolled back package", logging.KeyHash, broken, logging.Err(err))
	}
	if err := s.settings.RemovePendingUpdate(ctx); err != nil {
		return fail(errs.RollbackFailed, op, broken, err)
	}

	log.Info("rolled back package", logging.KeyHash, broken, "current", info.CurrentPackage)
	return nil
}
