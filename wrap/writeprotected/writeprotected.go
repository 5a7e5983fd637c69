// Package writeprotected decorates a FileSystem so that all mutation
// is refused, regardless of whether the inner store itself permits
// writes. Unlike a plain read-only backend, this wrapper has its own
// identity distinct from the store it wraps.
package writeprotected

import (
	"context"
	"fmt"
	"time"

	"github.com/brindlefs/vfs"
)

// WriteProtected wraps inner, read-only. It embeds vfs.ReadOnly to
// pick up the standard Set/Rm refusals.
type WriteProtected struct {
	vfs.ReadOnly
	inner vfs.FileSystem
}

// New wraps inner as a read-only view.
func New(inner vfs.FileSystem) (*WriteProtected, error) {
	if inner == nil {
		return nil, fmt.Errorf("writeprotected: inner is required")
	}
	return &WriteProtected{inner: inner}, nil
}

// String identifies this wrapper distinctly from its inner store, so
// equality/hash/logging never conflate a protected view with the raw
// store underneath it.
func (w *WriteProtected) String() string {
	return fmt.Sprintf("WriteProtected(%s)", w.inner)
}

func (w *WriteProtected) Exists(ctx context.Context, p string) (bool, error) {
	return w.inner.Exists(ctx, p)
}

func (w *WriteProtected) IsDir(ctx context.Context, p string) (bool, error) {
	return w.inner.IsDir(ctx, p)
}

func (w *WriteProtected) IsFile(ctx context.Context, p string) (bool, error) {
	return w.inner.IsFile(ctx, p)
}

func (w *WriteProtected) GetModTime(ctx context.Context, p string) (time.Time, error) {
	return w.inner.GetModTime(ctx, p)
}

func (w *WriteProtected) GetSize(ctx context.Context, p string) (int64, error) {
	return w.inner.GetSize(ctx, p)
}

func (w *WriteProtected) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return w.inner.Stat(ctx, p)
}

func (w *WriteProtected) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	return w.inner.ListDir(ctx, p, recursive, maxEntries)
}

func (w *WriteProtected) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return w.inner.ListFiles(ctx, prefix)
}

func (w *WriteProtected) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return w.inner.ListSubdirs(ctx, p, recursive)
}

func (w *WriteProtected) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return w.inner.IterateFiles(ctx, prefix, filter)
}

func (w *WriteProtected) Get(ctx context.Context, p string) ([]byte, error) {
	return w.inner.Get(ctx, p)
}

func (w *WriteProtected) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	return w.inner.GetInto(ctx, p, stream)
}

var _ vfs.FileSystem = (*WriteProtected)(nil)
