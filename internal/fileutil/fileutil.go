// Package fileutil provides the filesystem primitives the package store is built on.
//
// Every function takes an afero.Fs so the store can run against the OS
// filesystem in production and an in-memory filesystem in tests.
package fileutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by FindFile when no file matches.
var ErrNotFound = errors.New("file not found")

// zipMagic is the local file header signature of a zip archive.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Exists reports whether path exists.
func Exists(fs afero.Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// IsDir reports whether path exists and is a directory.
func IsDir(fs afero.Fs, path string) (bool, error) {
	ok, err := afero.IsDir(fs, path)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return ok, err
}

// Remove deletes path and everything below it. A missing path is not an error.
func Remove(fs afero.Fs, path string) error {
	if err := fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Move renames a file, falling back to copy and delete when rename fails
// (for example across devices).
func Move(ctx context.Context, fs afero.Fs, src, dst string) error {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(ctx, fs, src, dst); err != nil {
		return err
	}
	return Remove(fs, src)
}

// CopyFile copies a single file, creating parent directories and replacing dst.
func CopyFile(ctx context.Context, fs afero.Fs, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

// CopyDir recursively copies the contents of src into dst, overwriting files
// that already exist in dst. Files in dst that are not in src are left alone.
func CopyDir(ctx context.Context, fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			return nil
		}
		return CopyFile(ctx, fs, path, target)
	})
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(fs afero.Fs, path string, v any) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic writes v as JSON to a temporary file next to path and
// renames it into place, so readers see either the old or the new content.
func WriteJSONAtomic(ctx context.Context, fs afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = fs.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// HasZipMagic reports whether the file at path starts with the zip local file header.
func HasZipMagic(fs afero.Fs, path string) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if n < len(zipMagic) {
		return false, nil
	}
	for i := range zipMagic {
		if header[i] != zipMagic[i] {
			return false, nil
		}
	}
	return true, nil
}

// FindFile searches root recursively for a regular file named name and
// returns its path relative to root. Directories are visited in lexical
// order, so the result is deterministic.
func FindFile(fs afero.Fs, root, name string) (string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// files in a directory win over files in its subdirectories
	for _, e := range entries {
		if !e.IsDir() && e.Name() == name {
			return e.Name(), nil
		}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found, err := FindFile(fs, filepath.Join(root, e.Name()), name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return filepath.ToSlash(filepath.Join(e.Name(), found)), nil
	}
	return "", fmt.Errorf("%w: %s under %s", ErrNotFound, name, root)
}

// Within joins rel to root and reports whether the result names an entry
// strictly below root.
func Within(root, rel string) (string, bool) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, target)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
