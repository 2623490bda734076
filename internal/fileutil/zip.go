package fileutil

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Unzip extracts the archive at src into dst. Entries that would land
// outside dst are rejected. The context is checked between entries.
func Unzip(ctx context.Context, fs afero.Fs, src, dst string) error {
	f, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive %s: %w", src, err)
	}

	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", src, err)
	}

	if err := fs.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dst, err)
	}

	for _, entry := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractEntry(fs, entry, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(fs afero.Fs, entry *zip.File, dst string) error {
	name := strings.TrimLeft(entry.Name, "/")
	if name == "" {
		return nil
	}
	target, ok := Within(dst, name)
	if !ok {
		return fmt.Errorf("illegal path in archive: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		if err := fs.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	}

	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", entry.Name, err)
	}
	defer rc.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return out.Close()
}
