package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/exprvec/exprvec/internal/fs"
	"github.com/exprvec/exprvec/internal/mmap"
	"github.com/exprvec/exprvec/persistence"
)

// LocalStore implements BlobStore on the local file system. Reads go
// through memory mapping; writes land in temp files renamed into place,
// and PutGroup commits a whole group of files in one atomic step.
type LocalStore struct {
	root string
	fsys fs.FileSystem
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem injects a file system implementation. Tests use this
// to verify that failed writes leave no artifacts behind.
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		s.fsys = fsys
	}
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		root: root,
		fsys: fs.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var localTmpSeq atomic.Uint64

func localTempName(base string) string {
	return fmt.Sprintf("%s.tmp-%d-%d", base, time.Now().UnixNano(), localTmpSeq.Add(1))
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading via a memory mapping.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := mmap.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	return &localBlob{m: m}, nil
}

// Create creates a blob for streaming writes. The data lands in a temp
// file and is renamed into place when Close returns, so readers never
// observe a half-written blob.
func (s *LocalStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(filepath.Dir(target), localTempName(filepath.Base(target)))
	f, err := s.fsys.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &localWritableBlob{
		fsys:   s.fsys,
		f:      f,
		tmp:    tmpPath,
		target: target,
	}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// PutGroup commits a group of blobs atomically per directory: every
// entry is staged as a temp file first and the renames happen together,
// so a write failure never leaves a partial group behind.
func (s *LocalStore) PutGroup(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	byDir := make(map[string]map[string]func(io.Writer) error)
	for _, e := range entries {
		dir := path.Dir(e.Name)
		files, ok := byDir[dir]
		if !ok {
			files = make(map[string]func(io.Writer) error)
			byDir[dir] = files
		}
		data := e.Data
		files[path.Base(e.Name)] = func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}
	}

	// Deterministic commit order across directories.
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		target := filepath.Join(s.root, filepath.FromSlash(dir))
		if err := persistence.AtomicSaveToDir(s.fsys, target, byDir[dir]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fsys.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns all blob names with the given prefix, sorted. Names use
// forward slashes regardless of platform. In-flight temp files are
// skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	if err := s.walk("", &names); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	filtered := names[:0]
	for _, name := range names {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			filtered = append(filtered, name)
		}
	}
	sort.Strings(filtered)
	return filtered, nil
}

func (s *LocalStore) walk(rel string, names *[]string) error {
	dirEntries, err := s.fsys.ReadDir(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	for _, de := range dirEntries {
		child := de.Name()
		if rel != "" {
			child = rel + "/" + child
		}
		if de.IsDir() {
			if err := s.walk(child, names); err != nil {
				return err
			}
			continue
		}
		if strings.Contains(de.Name(), ".tmp-") {
			continue
		}
		*names = append(*names, child)
	}
	return nil
}

// localBlob serves reads from a memory mapping.
type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.m.ReadAt(p, off)
}

func (b *localBlob) Close() error {
	return b.m.Close()
}

func (b *localBlob) Size() int64 {
	return int64(b.m.Size())
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.m.Bytes(), nil
}

func (b *localBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := b.m.Bytes()
	if off >= int64(len(data)) {
		return nil, io.EOF
	}
	end := off + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[off:end])), nil
}

// localWritableBlob stages writes in a temp file and renames on Close.
type localWritableBlob struct {
	fsys   fs.FileSystem
	f      fs.File
	tmp    string
	target string
	closed bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.f.Write(p)
}

func (w *localWritableBlob) Sync() error {
	if w.closed {
		return os.ErrClosed
	}
	return w.f.Sync()
}

func (w *localWritableBlob) Close() error {
	if w.closed {
		return os.ErrClosed
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	if err := w.fsys.Rename(w.tmp, w.target); err != nil {
		_ = w.fsys.Remove(w.tmp)
		return err
	}

	// Best-effort durability for the rename itself.
	if d, err := w.fsys.OpenFile(filepath.Dir(w.target), os.O_RDONLY, 0); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
