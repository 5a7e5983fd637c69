// Package writeonce decorates a FileSystem so that a path, once
// written, can never be overwritten or removed — useful for
// append-only archival targets fronted by a mutable backend.
package writeonce

import (
	"context"
	"fmt"
	"time"

	"github.com/brindlefs/vfs"
)

// WriteOnce wraps inner so Set refuses to overwrite an existing path
// and Rm always fails.
type WriteOnce struct {
	inner vfs.FileSystem
}

// New wraps inner with write-once semantics.
func New(inner vfs.FileSystem) (*WriteOnce, error) {
	if inner == nil {
		return nil, fmt.Errorf("writeonce: inner is required")
	}
	return &WriteOnce{inner: inner}, nil
}

// String identifies this wrapper by its inner store.
func (w *WriteOnce) String() string {
	return fmt.Sprintf("WriteOnce(%s)", w.inner)
}

// IsReadOnly is always false: new paths are still writable, just not
// overwritable.
func (w *WriteOnce) IsReadOnly() bool { return false }

func (w *WriteOnce) Exists(ctx context.Context, p string) (bool, error) {
	return w.inner.Exists(ctx, p)
}

func (w *WriteOnce) IsDir(ctx context.Context, p string) (bool, error) {
	return w.inner.IsDir(ctx, p)
}

func (w *WriteOnce) IsFile(ctx context.Context, p string) (bool, error) {
	return w.inner.IsFile(ctx, p)
}

func (w *WriteOnce) GetModTime(ctx context.Context, p string) (time.Time, error) {
	return w.inner.GetModTime(ctx, p)
}

func (w *WriteOnce) GetSize(ctx context.Context, p string) (int64, error) {
	return w.inner.GetSize(ctx, p)
}

func (w *WriteOnce) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return w.inner.Stat(ctx, p)
}

func (w *WriteOnce) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	return w.inner.ListDir(ctx, p, recursive, maxEntries)
}

func (w *WriteOnce) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return w.inner.ListFiles(ctx, prefix)
}

func (w *WriteOnce) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return w.inner.ListSubdirs(ctx, p, recursive)
}

func (w *WriteOnce) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return w.inner.IterateFiles(ctx, prefix, filter)
}

func (w *WriteOnce) Get(ctx context.Context, p string) ([]byte, error) {
	return w.inner.Get(ctx, p)
}

func (w *WriteOnce) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	return w.inner.GetInto(ctx, p, stream)
}

// Set refuses to overwrite an existing path.
func (w *WriteOnce) Set(ctx context.Context, p string, content any) error {
	exists, err := w.inner.Exists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("set %q: %w", p, vfs.ErrAlreadyExists)
	}
	return w.inner.Set(ctx, p, content)
}

// Rm always fails: nothing written through a write-once FileSystem
// can ever be removed through it.
func (w *WriteOnce) Rm(ctx context.Context, p string) error {
	return fmt.Errorf("rm %q: %w", p, vfs.ErrReadOnly)
}

var _ vfs.FileSystem = (*WriteOnce)(nil)
