// Package packages manages installed releases on disk: one folder per package
// hash plus a pointer file naming the current and previous package.
//
// Layout under <baseDirectory>/<appName>:
//
//	codepush.json        pointer record (current/previous hash)
//	<hash>/app.json      package metadata
//	<hash>/...           package content, including the entry point
package packages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/fileutil"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/settings"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

const (
	// StatusFileName is the pointer record.
	StatusFileName = "codepush.json"
	// PackageFileName is the per-package metadata file.
	PackageFileName = "app.json"
	// UnzippedFolderName is the staging folder archives are extracted into.
	UnzippedFolderName = "unzipped"
	// DefaultEntryPoint is used when no entry point name is configured.
	DefaultEntryPoint = "index.bundle"
)

var log = logging.L("packages")

// Config locates the store on disk.
type Config struct {
	BaseDirectory string
	AppName       string
	// EntryPoint is the file name the host loads from a package.
	EntryPoint string
}

// Store owns the package folders and pointer file of one application.
type Store struct {
	fs         afero.Fs
	root       string
	entryPoint string
	settings   *settings.Store
	fetcher    transport.Fetcher

	// mu serializes read-modify-write of the pointer file and pending record
	mu sync.Mutex
}

// NewStore returns a Store rooted at <cfg.BaseDirectory>/<cfg.AppName>.
func NewStore(fs afero.Fs, cfg Config, st *settings.Store, fetcher transport.Fetcher) *Store {
	entryPoint := cfg.EntryPoint
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	return &Store{
		fs:         fs,
		root:       filepath.Join(cfg.BaseDirectory, cfg.AppName),
		entryPoint: entryPoint,
		settings:   st,
		fetcher:    fetcher,
	}
}

// Root returns the application folder.
func (s *Store) Root() string {
	return s.root
}

// EntryPoint returns the configured entry point file name.
func (s *Store) EntryPoint() string {
	return s.entryPoint
}

// PackageFolderPath returns the folder of the package with the given hash.
func (s *Store) PackageFolderPath(hash string) string {
	return filepath.Join(s.root, hash)
}

func (s *Store) statusFilePath() string {
	return filepath.Join(s.root, StatusFileName)
}

// PackageInfo returns the pointer record. A missing record is empty.
func (s *Store) PackageInfo(ctx context.Context) (*types.PackageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packageInfo()
}

func (s *Store) packageInfo() (*types.PackageInfo, error) {
	info := &types.PackageInfo{}
	err := fileutil.ReadJSON(s.fs, s.statusFilePath(), info)
	if errors.Is(err, os.ErrNotExist) {
		return &types.PackageInfo{}, nil
	}
	if err != nil {
		return nil, errs.E(errs.StoreCorrupted, "packageInfo", err).WithPath(s.statusFilePath())
	}
	return info, nil
}

func (s *Store) writePackageInfo(ctx context.Context, info *types.PackageInfo) error {
	return fileutil.WriteJSONAtomic(ctx, s.fs, s.statusFilePath(), info)
}

// CurrentPackageHash returns the current hash, or "" if unset.
func (s *Store) CurrentPackageHash(ctx context.Context) (string, error) {
	info, err := s.PackageInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.CurrentPackage, nil
}

// PreviousPackageHash returns the previous hash, or "" if unset.
func (s *Store) PreviousPackageHash(ctx context.Context) (string, error) {
	info, err := s.PackageInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.PreviousPackage, nil
}

// CurrentPackagePath returns the current package folder, or "" if unset.
func (s *Store) CurrentPackagePath(ctx context.Context) (string, error) {
	hash, err := s.CurrentPackageHash(ctx)
	if err != nil || hash == "" {
		return "", err
	}
	return s.PackageFolderPath(hash), nil
}

// PreviousPackagePath returns the previous package folder, or "" if unset.
func (s *Store) PreviousPackagePath(ctx context.Context) (string, error) {
	hash, err := s.PreviousPackageHash(ctx)
	if err != nil || hash == "" {
		return "", err
	}
	return s.PackageFolderPath(hash), nil
}

// Package reads the metadata of the package with the given hash.
func (s *Store) Package(hash string) (*types.LocalPackage, error) {
	path := filepath.Join(s.PackageFolderPath(hash), PackageFileName)
	pkg := &types.LocalPackage{}
	if err := fileutil.ReadJSON(s.fs, path, pkg); err != nil {
		return nil, errs.E(errs.StoreCorrupted, "readPackage", err).WithHash(hash).WithPath(path)
	}
	return pkg, nil
}

// CurrentPackage returns the current package, or nil if none is installed.
func (s *Store) CurrentPackage(ctx context.Context) (*types.LocalPackage, error) {
	hash, err := s.CurrentPackageHash(ctx)
	if err != nil || hash == "" {
		return nil, err
	}
	return s.Package(hash)
}

// PreviousPackage returns the previous package, or nil if none is retained.
func (s *Store) PreviousPackage(ctx context.Context) (*types.LocalPackage, error) {
	hash, err := s.PreviousPackageHash(ctx)
	if err != nil || hash == "" {
		return nil, err
	}
	return s.Package(hash)
}

// EntryPointPath returns the absolute path of pkg's entry point.
func (s *Store) EntryPointPath(pkg *types.LocalPackage) string {
	return filepath.Join(s.PackageFolderPath(pkg.PackageHash), filepath.FromSlash(pkg.EntryPoint))
}

// fail classifies err as kind for op, keeping cancellation distinct.
func fail(kind errs.Kind, op, hash string, err error) *errs.Error {
	e := errs.E(kind, op, err)
	if e.Kind != errs.Canceled {
		e.Kind = kind
	}
	return e.WithHash(hash)
}
