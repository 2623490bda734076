package packages

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/adamancini/hotpush/internal/diff"
	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/fileutil"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

// downloadPattern names temporary download files under the app folder.
const downloadPattern = "download-*.tmp"

// DownloadPackage fetches remote into its package folder and writes its
// metadata. Archives are extracted to a staging folder first and either merged
// against the current package (diff payload) or copied as-is (full payload).
// Any other payload is stored as the entry point file.
//
// The previous package is not downloaded again while its folder is intact. On
// failure the package folder is removed and remote is recorded as a failed
// update, unless the failure was a cancellation.
func (s *Store) DownloadPackage(ctx context.Context, remote *types.RemotePackage, progress transport.ProgressFunc) (pkg *types.LocalPackage, err error) {
	const op = "downloadPackage"

	if remote == nil || remote.PackageHash == "" {
		return nil, errs.New(errs.InvalidParameter, op, "package hash is required")
	}
	if remote.IsBinaryRedirect() || remote.DownloadURL == "" {
		return nil, errs.New(errs.InvalidParameter, op, "package %s has no download URL", remote.PackageHash).WithHash(remote.PackageHash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := remote.PackageHash
	folder := s.PackageFolderPath(hash)

	info, err := s.packageInfo()
	if err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}
	if info.CurrentPackage == hash {
		return nil, errs.New(errs.InvalidParameter, op, "package %s is already the current package", hash).WithHash(hash)
	}
	// the previous folder is the rollback target and must survive a failed download
	if info.PreviousPackage == hash {
		if pkg, err := s.reuse(ctx, remote); pkg != nil || err != nil {
			return pkg, err
		}
	}

	defer func() {
		if err == nil {
			return
		}
		if rmErr := fileutil.Remove(s.fs, folder); rmErr != nil {
			log.Warn("failed to clean up package folder", logging.KeyPath, folder, logging.Err(rmErr))
		}
		if errs.Is(err, errs.Canceled) {
			return
		}
		if saveErr := s.settings.SaveFailedUpdate(context.WithoutCancel(ctx), remote); saveErr != nil {
			log.Error("failed to record failed update", logging.KeyHash, hash, logging.Err(saveErr))
		}
	}()

	if err := fileutil.Remove(s.fs, folder); err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}

	tmp, err := s.fetch(ctx, remote, progress)
	if tmp != "" {
		defer func() {
			if rmErr := s.fs.Remove(tmp); rmErr != nil && !errors.Is(rmErr, afero.ErrFileNotFound) {
				log.Debug("failed to remove download file", logging.KeyPath, tmp, logging.Err(rmErr))
			}
		}()
	}
	if err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}

	isZip, err := fileutil.HasZipMagic(s.fs, tmp)
	if err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}
	if err := s.fs.MkdirAll(folder, 0o755); err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}

	if isZip {
		if err := s.unpack(ctx, info, tmp, folder); err != nil {
			return nil, err.WithHash(hash)
		}
	} else {
		log.Debug("payload is not an archive, storing as entry point", logging.KeyHash, hash)
		if err := fileutil.Move(ctx, s.fs, tmp, filepath.Join(folder, s.entryPoint)); err != nil {
			return nil, fail(errs.DownloadFailed, op, hash, err)
		}
	}

	entry, err := fileutil.FindFile(s.fs, folder, s.entryPoint)
	if err != nil {
		return nil, fail(errs.MergeFailed, op, hash, err)
	}

	pkg = types.NewLocalPackage(remote, entry)
	if err := fileutil.WriteJSONAtomic(ctx, s.fs, filepath.Join(folder, PackageFileName), pkg); err != nil {
		return nil, fail(errs.DownloadFailed, op, hash, err)
	}

	log.Info("downloaded package", logging.KeyHash, hash, "entryPoint", entry, "archive", isZip)
	return pkg, nil
}

// reuse returns the retained package folder for remote when it is intact,
// refreshing its metadata. It returns nil, nil when the folder must be
// downloaded again.
func (s *Store) reuse(ctx context.Context, remote *types.RemotePackage) (*types.LocalPackage, error) {
	hash := remote.PackageHash
	folder := s.PackageFolderPath(hash)

	prev, err := s.Package(hash)
	if err != nil {
		log.Warn("retained package is unreadable, downloading again", logging.KeyHash, hash, logging.Err(err))
		return nil, nil
	}
	if ok, _ := fileutil.Exists(s.fs, filepath.Join(folder, filepath.FromSlash(prev.EntryPoint))); !ok {
		log.Warn("retained package has no entry point, downloading again", logging.KeyHash, hash)
		return nil, nil
	}

	pkg := types.NewLocalPackage(remote, prev.EntryPoint)
	if err := fileutil.WriteJSONAtomic(ctx, s.fs, filepath.Join(folder, PackageFileName), pkg); err != nil {
		return nil, fail(errs.DownloadFailed, "downloadPackage", hash, err)
	}
	log.Info("reusing retained package", logging.KeyHash, hash)
	return pkg, nil
}

// fetch downloads remote into a temporary file and returns its path. The path
// is returned even on error so the caller can clean it up.
func (s *Store) fetch(ctx context.Context, remote *types.RemotePackage, progress transport.ProgressFunc) (string, error) {
	f, err := afero.TempFile(s.fs, s.root, downloadPattern)
	if err != nil {
		return "", err
	}
	path := f.Name()

	_, err = s.fetcher.Download(ctx, remote.DownloadURL, f, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return path, err
}

// unpack extracts the archive at src into folder, applying it as a diff
// against the current package when it carries a manifest.
func (s *Store) unpack(ctx context.Context, info *types.PackageInfo, src, folder string) *errs.Error {
	const op = "unpack"

	staged := filepath.Join(folder, UnzippedFolderName)
	if err := fileutil.Unzip(ctx, s.fs, src, staged); err != nil {
		return fail(errs.DownloadFailed, op, "", err)
	}

	manifest, err := diff.LoadManifest(s.fs, staged)
	if err != nil {
		return fail(errs.MergeFailed, op, "", err)
	}

	if manifest != nil {
		baseline := ""
		if info.CurrentPackage != "" {
			baseline = s.PackageFolderPath(info.CurrentPackage)
		}
		result, err := diff.Merge(ctx, s.fs, baseline, staged, folder, manifest)
		if err != nil {
			return fail(errs.MergeFailed, op, "", err)
		}
		keep, add, update, remove := result.Summary()
		log.Debug("merged diff payload", "baseline", info.CurrentPackage,
			"keep", keep, "add", add, "update", update, "remove", remove)
	} else if err := fileutil.CopyDir(ctx, s.fs, staged, folder); err != nil {
		return fail(errs.DownloadFailed, op, "", err)
	}

	if err := fileutil.Remove(s.fs, staged); err != nil {
		return fail(errs.DownloadFailed, op, "", err)
	}
	return nil
}
