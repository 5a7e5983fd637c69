// Package vfs defines the path-addressed filesystem contract shared by
// every backend and wrapper in this module: disk, in-memory, S3, FTP,
// SFTP, and the cached/cloning/write-once/write-protected decorators.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Separator is the single canonical path separator used by every
// backend. Paths are plain strings; there is no working-directory
// notion and no relative-path surface.
const Separator = "/"

// Info is the metadata returned by Stat: modification time and size.
type Info struct {
	ModTime time.Time
	Size    int64
}

// Seeker is the minimal interface a caller-supplied stream must
// satisfy to be used as Set content or a GetInto target: read/write
// plus Seek to rewind to position 0.
type Seeker interface {
	io.ReadWriteSeeker
}

// FileSystem is the abstract contract every backend and wrapper
// implements. Operations never panic; failures are returned as one of
// the sentinel-wrapped error kinds in errors.go.
type FileSystem interface {
	// Exists reports whether p resolves to a file or directory.
	Exists(ctx context.Context, p string) (bool, error)
	// IsDir reports whether p resolves to a directory.
	IsDir(ctx context.Context, p string) (bool, error)
	// IsFile reports whether p resolves to a file.
	IsFile(ctx context.Context, p string) (bool, error)

	// GetModTime returns the modification time of an existing file or
	// directory.
	GetModTime(ctx context.Context, p string) (time.Time, error)
	// GetSize returns the byte length of an existing file.
	GetSize(ctx context.Context, p string) (int64, error)
	// Stat combines GetModTime and GetSize.
	Stat(ctx context.Context, p string) (Info, error)

	// ListDir lists the direct (or recursive) children of a directory
	// as full paths rooted at p. maxEntries, if positive, truncates the
	// result at exactly that many entries.
	ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error)
	// ListFiles returns the full paths of every file whose path starts
	// with prefix.
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	// ListSubdirs returns the directory paths under p.
	ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error)
	// IterateFiles lazily walks files under prefix. filter, if non-nil,
	// is called with each candidate file path; returning false drops
	// that file. Directory paths are never passed to filter, so a
	// directory's subtree cannot be pruned as a whole.
	IterateFiles(ctx context.Context, prefix string, filter func(path string) bool) (FileIterator, error)

	// Get returns the full contents of an existing file.
	Get(ctx context.Context, p string) ([]byte, error)
	// GetInto rewinds stream to position 0 and fills it with the
	// contents of p. The memory backend is the exception: it writes at
	// the stream's current position without rewinding.
	GetInto(ctx context.Context, p string, stream Seeker) error
	// Set creates or overwrites p with content, which must be []byte or
	// a Seeker positioned at 0.
	Set(ctx context.Context, p string, content any) error
	// Rm removes a file, or an empty directory.
	Rm(ctx context.Context, p string) error

	// IsReadOnly reports whether Set/Rm are unconditionally rejected.
	IsReadOnly() bool

	fmt.Stringer
}

// FileEntry is one result of IterateFiles.
type FileEntry struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// FileIterator is a lazy sequence of files produced by IterateFiles.
type FileIterator interface {
	// Next advances to the next entry. It returns false at the end of
	// the sequence or on error (check Err).
	Next() bool
	// Entry returns the current entry. Valid only after Next returns true.
	Entry() FileEntry
	// Err returns the first error encountered, if any.
	Err() error
}

// sliceIterator adapts a pre-computed slice of entries to FileIterator.
// Backends that only have a batch listing operation (disk, memory, most
// of the default ListFiles-based implementation) build their iterator
// this way; S3 and FTP can stream instead once they need to.
type sliceIterator struct {
	entries []FileEntry
	i       int
	err     error
}

// NewSliceIterator builds a FileIterator over a precomputed slice.
func NewSliceIterator(entries []FileEntry) FileIterator {
	return &sliceIterator{entries: entries, i: -1}
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.i++
	return it.i < len(it.entries)
}

func (it *sliceIterator) Entry() FileEntry {
	return it.entries[it.i]
}

func (it *sliceIterator) Err() error {
	return it.err
}

// IsInvalidPath reports whether err is (or wraps) ErrInvalidPath.
func IsInvalidPath(err error) bool { return errors.Is(err, ErrInvalidPath) }

// IsNotExist reports whether err is (or wraps) ErrNotExist.
func IsNotExist(err error) bool { return errors.Is(err, ErrNotExist) }
