package vfs

import "context"

// ReadOnly is embedded by backends and wrappers whose Set/Rm
// unconditionally fail with ErrReadOnly. Embedders still implement
// every read operation themselves; this only supplies the write half
// of the contract plus IsReadOnly.
type ReadOnly struct{}

// Set always fails: the filesystem is read-only.
func (ReadOnly) Set(ctx context.Context, p string, content any) error {
	return pathErr("set", p, ErrReadOnly)
}

// Rm always fails: the filesystem is read-only.
func (ReadOnly) Rm(ctx context.Context, p string) error {
	return pathErr("rm", p, ErrReadOnly)
}

// IsReadOnly is always true.
func (ReadOnly) IsReadOnly() bool {
	return true
}
