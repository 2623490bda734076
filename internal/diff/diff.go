// Package diff reconstructs a full release tree from a diff payload and the
// currently installed release.
package diff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/adamancini/hotpush/internal/fileutil"
)

// ManifestFileName is the file inside a diff payload listing removed files.
const ManifestFileName = "hotcodepush.json"

// Manifest lists the files removed upstream since the previous release.
// Paths are relative to the package root and use forward slashes.
type Manifest struct {
	DeletedFiles []string `json:"deletedFiles"`
}

// Action represents what a merge did to a file.
type Action string

const (
	ActionKeep   Action = "keep"   // Carried over from the baseline
	ActionAdd    Action = "add"    // New in the diff payload
	ActionUpdate Action = "update" // Replaced by the diff payload
	ActionRemove Action = "remove" // Listed in deletedFiles
)

// FileChange records the action taken for one relative path.
type FileChange struct {
	Path   string
	Action Action
}

// Result describes a completed merge.
type Result struct {
	Changes []FileChange
}

// Summary returns counts of actions taken.
func (r *Result) Summary() (keep, add, update, remove int) {
	for _, c := range r.Changes {
		switch c.Action {
		case ActionKeep:
			keep++
		case ActionAdd:
			add++
		case ActionUpdate:
			update++
		case ActionRemove:
			remove++
		}
	}
	return
}

// LoadManifest reads the diff manifest in dir. It returns nil, nil when the
// directory holds no manifest, which marks a full (non-diff) payload.
func LoadManifest(fs afero.Fs, dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	var m Manifest
	if err := fileutil.ReadJSON(fs, path, &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read diff manifest: %w", err)
	}
	return &m, nil
}

// Merge builds target from the baseline tree and the staged diff payload:
// baseline files are copied first, files listed in the manifest are deleted,
// the staged files are copied over the result, and finally the manifest file
// is removed. An empty baseline skips the copy.
func Merge(ctx context.Context, fs afero.Fs, baseline, staged, target string, m *Manifest) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("diff manifest is required")
	}

	result := &Result{}
	tracked := map[string]Action{}

	if baseline != "" {
		if err := fileutil.CopyDir(ctx, fs, baseline, target); err != nil {
			return nil, fmt.Errorf("failed to copy baseline %s: %w", baseline, err)
		}
		files, err := listFiles(fs, target)
		if err != nil {
			return nil, err
		}
		// the staging folder may live inside target
		stagedPrefix := ""
		if rel := mustRel(target, staged); rel != ".." {
			if _, ok := fileutil.Within(target, rel); ok {
				stagedPrefix = filepath.ToSlash(rel) + "/"
			}
		}
		for _, f := range files {
			if stagedPrefix != "" && strings.HasPrefix(f, stagedPrefix) {
				continue
			}
			tracked[f] = ActionKeep
		}
	}

	for _, name := range m.DeletedFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := strings.TrimLeft(filepath.ToSlash(name), "/")
		if filepath.Clean(rel) == "." {
			continue
		}
		path, ok := fileutil.Within(target, rel)
		if !ok {
			return nil, fmt.Errorf("deleted file %q escapes package root", name)
		}
		exists, err := fileutil.Exists(fs, path)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		if err := fileutil.Remove(fs, path); err != nil {
			return nil, err
		}
		tracked[rel] = ActionRemove
	}

	stagedFiles, err := listFiles(fs, staged)
	if err != nil {
		return nil, err
	}
	for _, rel := range stagedFiles {
		if rel == ManifestFileName {
			continue
		}
		if a, ok := tracked[rel]; ok && a != ActionRemove {
			tracked[rel] = ActionUpdate
		} else {
			tracked[rel] = ActionAdd
		}
	}
	if err := fileutil.CopyDir(ctx, fs, staged, target); err != nil {
		return nil, fmt.Errorf("failed to apply diff payload: %w", err)
	}

	for _, dir := range []string{staged, target} {
		if err := fileutil.Remove(fs, filepath.Join(dir, ManifestFileName)); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(tracked))
	for p := range tracked {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		result.Changes = append(result.Changes, FileChange{Path: p, Action: tracked[p]})
	}
	return result, nil
}

// listFiles returns the slash-separated relative paths of all regular files under root.
func listFiles(fs afero.Fs, root string) ([]string, error) {
	var files []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	return files, nil
}

func mustRel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return ".."
	}
	return rel
}
