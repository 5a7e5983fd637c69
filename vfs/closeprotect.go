package vfs

import (
	"errors"
	"io"
)

// CloseProtect wraps an io.ReadSeeker so that Close() only sets a
// local flag instead of forwarding to the underlying stream. Some
// object-store SDK upload paths (notably aws-sdk-go's s3manager
// uploader) close the io.Reader they are given; wrapping the caller's
// stream in this adapter before handing it to such a call keeps the
// caller's stream open and usable afterwards.
type CloseProtect struct {
	inner  io.ReadSeeker
	closed bool
}

// NewCloseProtect returns a stream that forwards Read/Seek to inner
// but swallows Close.
func NewCloseProtect(inner io.ReadSeeker) *CloseProtect {
	return &CloseProtect{inner: inner}
}

// Read forwards to the inner stream while the wrapper hasn't been
// closed; afterwards it reports the "closed stream" error.
func (c *CloseProtect) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosedStream
	}
	return c.inner.Read(p)
}

// Seek forwards to the inner stream while the wrapper hasn't been
// closed.
func (c *CloseProtect) Seek(offset int64, whence int) (int64, error) {
	if c.closed {
		return 0, ErrClosedStream
	}
	return c.inner.Seek(offset, whence)
}

// Close sets the local closed flag without touching the inner stream.
func (c *CloseProtect) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close has been called on this wrapper.
func (c *CloseProtect) Closed() bool {
	return c.closed
}

// ErrClosedStream is returned by Read/Seek once Close has been called
// on a CloseProtect wrapper.
var ErrClosedStream = errors.New("closed stream")

