package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable artifact blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes
	// visible atomically when Close returns.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob in one call. The blob becomes visible atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a streaming write handle. Close finalizes the blob.
type WritableBlob interface {
	io.Writer
	// Sync flushes buffered data to stable storage where the backend
	// supports it. Object stores finalize on Close and treat Sync as a
	// no-op.
	Sync() error
	io.Closer
}

// Mappable is an optional interface for Blobs backed by a memory
// mapping or a stable in-memory buffer.
type Mappable interface {
	// Bytes returns the underlying byte slice without copying.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// RangeReader is an optional interface for Blobs that support efficient
// partial reads, such as object stores with HTTP range requests.
// An offset at or past the end of the blob returns io.EOF; a range that
// extends past the end is truncated.
type RangeReader interface {
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// GroupWriter is an optional interface for stores that can commit a
// group of blobs together. See PutGroup for the fallback semantics.
type GroupWriter interface {
	PutGroup(ctx context.Context, entries []Entry) error
}

// Entry is one named blob within a group commit.
type Entry struct {
	Name string
	Data []byte
}

// PutGroup writes a group of blobs that belong together, such as a
// matrix container and its metadata document.
//
// Stores implementing GroupWriter commit the group natively (LocalStore
// does so atomically). Otherwise entries are written in order; the
// final entry acts as the visibility marker, and on failure previously
// written entries are deleted best-effort so no partial group lingers.
func PutGroup(ctx context.Context, store BlobStore, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if gw, ok := store.(GroupWriter); ok {
		return gw.PutGroup(ctx, entries)
	}

	for i, e := range entries {
		if err := store.Put(ctx, e.Name, e.Data); err != nil {
			for _, written := range entries[:i] {
				_ = store.Delete(ctx, written.Name)
			}
			return fmt.Errorf("put group entry %q: %w", e.Name, err)
		}
	}
	return nil
}

// DeleteAll removes every blob under the given prefix.
func DeleteAll(ctx context.Context, store BlobStore, prefix string) error {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// WithBytes invokes fn with the complete contents of the named blob.
// Mappable blobs are passed through without copying; fn must not retain
// the slice after it returns.
func WithBytes(ctx context.Context, store BlobStore, name string, fn func([]byte) error) error {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer blob.Close()

	if m, ok := blob.(Mappable); ok {
		data, err := m.Bytes()
		if err == nil {
			return fn(data)
		}
		// Fall through to a buffered read.
	}

	data := make([]byte, blob.Size())
	if len(data) > 0 {
		n, err := blob.ReadAt(ctx, data, 0)
		if err != nil && err != io.EOF {
			return err
		}
		if n != len(data) {
			return fmt.Errorf("short read of %q: %d of %d bytes", name, n, len(data))
		}
	}
	return fn(data)
}

// ReadAll returns a copy of the complete contents of the named blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	var out []byte
	err := WithBytes(ctx, store, name, func(data []byte) error {
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports whether the named blob exists.
func Exists(ctx context.Context, store BlobStore, name string) (bool, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_ = blob.Close()
	return true, nil
}
