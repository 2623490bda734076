package packages

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/adamancini/hotpush/internal/fileutil"
	"github.com/adamancini/hotpush/internal/logging"
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	// Deleted holds the names of removed entries, relative to the app folder.
	Deleted []string
	Kept    int
}

// Prune removes package folders that are neither current nor previous, along
// with leftover download files from interrupted downloads. A folder whose
// metadata is newer than the pointer file was downloaded after the last
// install or rollback and is kept for the install that follows. With dryRun
// nothing is removed.
func (s *Store) Prune(ctx context.Context, dryRun bool) (*PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.packageInfo()
	if err != nil {
		return nil, err
	}

	var pointerTime time.Time
	if fi, err := s.fs.Stat(s.statusFilePath()); err == nil {
		pointerTime = fi.ModTime()
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if ok, _ := fileutil.Exists(s.fs, s.root); !ok {
			return &PruneResult{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := &PruneResult{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := e.Name()
		var stale bool
		if e.IsDir() {
			stale = name != info.CurrentPackage && name != info.PreviousPackage &&
				!s.awaitingInstall(name, pointerTime)
		} else {
			stale = isLeftover(name)
		}
		if !stale {
			if e.IsDir() {
				result.Kept++
			}
			continue
		}

		if !dryRun {
			if err := fileutil.Remove(s.fs, filepath.Join(s.root, name)); err != nil {
				return nil, err
			}
		}
		log.Debug("pruned entry", logging.KeyPath, name, "dryRun", dryRun)
		result.Deleted = append(result.Deleted, name)
	}
	return result, nil
}

func (s *Store) awaitingInstall(hash string, pointerTime time.Time) bool {
	fi, err := s.fs.Stat(filepath.Join(s.PackageFolderPath(hash), PackageFileName))
	if err != nil {
		return false
	}
	return fi.ModTime().After(pointerTime)
}

// isLeftover matches temporary files of interrupted downloads and pointer writes.
func isLeftover(name string) bool {
	for _, pattern := range []string{downloadPattern, StatusFileName + ".*.tmp"} {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
