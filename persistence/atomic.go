package persistence

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/exprvec/exprvec/internal/fs"
)

var tmpSeq atomic.Uint64

func tempName(base string) string {
	return fmt.Sprintf("%s.tmp-%d-%d", base, time.Now().UnixNano(), tmpSeq.Add(1))
}

// AtomicSaveToDir saves multiple files atomically to a directory.
// All files are written to temp files first, then renamed together.
// This ensures either all files are saved or none are.
//
// Usage:
//
//	err := AtomicSaveToDir(nil, "/path/to/run", map[string]func(io.Writer) error{
//	    "embedding.exm": func(w io.Writer) error { return writeEmbedding(w) },
//	    "metadata.json": func(w io.Writer) error { return writeMetadata(w) },
//	})
//
// fsys may be nil, in which case the local filesystem is used. Tests inject
// a faulty filesystem to verify that a failed write leaves no artifacts.
func AtomicSaveToDir(fsys fs.FileSystem, dir string, files map[string]func(io.Writer) error) error {
	if fsys == nil {
		fsys = fs.Default
	}

	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persistence: failed to create directory %s: %w", dir, err)
	}

	// Track temp files for cleanup on error
	tempFiles := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range tempFiles {
			_ = fsys.Remove(tmp)
		}
	}()

	type fileMapping struct {
		temp   string
		target string
	}
	mappings := make([]fileMapping, 0, len(files))

	for filename, writeFunc := range files {
		target := filepath.Join(dir, filename)
		tmpPath := filepath.Join(dir, tempName(filename))

		tmp, err := fsys.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("persistence: failed to create temp file for %s: %w", filename, err)
		}
		tempFiles = append(tempFiles, tmpPath)

		if err := writeFunc(tmp); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("persistence: failed to write %s: %w", filename, err)
		}

		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("persistence: failed to sync %s: %w", filename, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("persistence: failed to close %s: %w", filename, err)
		}

		mappings = append(mappings, fileMapping{temp: tmpPath, target: target})
	}

	// Rename all temp files to final names (atomic on most filesystems)
	for _, m := range mappings {
		if err := fsys.Rename(m.temp, m.target); err != nil {
			return fmt.Errorf("persistence: failed to rename %s: %w", m.target, err)
		}
	}

	// Clear temp files list (rename succeeded)
	tempFiles = nil

	// Best-effort: fsync directory
	if d, err := fsys.OpenFile(dir, os.O_RDONLY, 0); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}
