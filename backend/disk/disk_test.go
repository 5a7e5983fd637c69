package disk_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlefs/vfs"
	"github.com/brindlefs/vfs/backend/disk"
)

func newTestFs(t *testing.T) *disk.TempDisk {
	td, err := disk.NewTemp()
	require.NoError(t, err)
	t.Cleanup(func() { _ = td.Close() })
	return td
}

func TestFlatLifecycle(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)

	exists, err := d.Exists(ctx, "test.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, d.Set(ctx, "test.txt", []byte("abc")))

	got, err := d.Get(ctx, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	size, err := d.GetSize(ctx, "test.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)

	entries, err := d.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, entries)

	require.NoError(t, d.Rm(ctx, "test.txt"))
	entries, err = d.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNestedDirectories(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)

	require.NoError(t, d.Set(ctx, "dir1/test.txt", []byte("abc")))

	entries, err := d.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir1"}, entries)

	entries, err = d.ListDir(ctx, "", true, 0)
	require.NoError(t, err)
	sort.Strings(entries)
	assert.Equal(t, []string{"dir1", "dir1/test.txt"}, entries)

	entries, err = d.ListDir(ctx, "dir1", false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir1/test.txt"}, entries)

	_, err = d.ListDir(ctx, "dir1/dir2/file.txt", false, 0)
	assert.Error(t, err)
}

func TestPrefixListing(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	for _, p := range []string{"f0.txt", "root/f1.txt", "root/lvl1/f2.txt", "root/lvl1/f3.txt"} {
		require.NoError(t, d.Set(ctx, p, []byte("x")))
	}

	all, err := d.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := d.ListFiles(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, none)

	three, err := d.ListFiles(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, three, 3)

	two, err := d.ListFiles(ctx, "root/lvl")
	require.NoError(t, err)
	assert.Len(t, two, 2)

	one, err := d.ListFiles(ctx, "root/lvl1/f3.t")
	require.NoError(t, err)
	assert.Equal(t, []string{"root/lvl1/f3.txt"}, one)
}

func TestMaxEntriesTruncates(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	for _, p := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, d.Set(ctx, p, []byte("x")))
	}
	entries, err := d.ListDir(ctx, "", false, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestModTimeWithinTolerance(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	require.NoError(t, d.Set(ctx, "f.txt", []byte("x")))
	mtime, err := d.GetModTime(ctx, "f.txt")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), mtime, 1100*time.Millisecond)
}

func TestStreamSetRejectsNonZeroPosition(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	buf := bytes.NewReader([]byte("hello"))
	_, _ = buf.Seek(2, 0)
	err := d.Set(ctx, "f.txt", &seekableReader{Reader: buf})
	assert.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrNonZeroPosition)
}

func TestGetIntoRoundTrips(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	require.NoError(t, d.Set(ctx, "f.txt", []byte("roundtrip")))

	target := &memSeeker{buf: make([]byte, 0, 64)}
	require.NoError(t, d.GetInto(ctx, "f.txt", target))
	assert.Equal(t, "roundtrip", string(target.buf))
}

func TestRmThenRmAgainFails(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	require.NoError(t, d.Set(ctx, "f.txt", []byte("x")))
	require.NoError(t, d.Rm(ctx, "f.txt"))
	err := d.Rm(ctx, "f.txt")
	assert.Error(t, err)
}

func TestUnsafePathRejected(t *testing.T) {
	ctx := context.Background()
	d := newTestFs(t)
	_, err := d.Exists(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, vfs.ErrInvalidPath)
}

// seekableReader adapts a *bytes.Reader (which has no Write) to vfs.Seeker
// for the purposes of the position-check test.
type seekableReader struct {
	*bytes.Reader
}

func (s *seekableReader) Write(p []byte) (int, error) { return 0, assert.AnError }

// memSeeker is a minimal in-memory vfs.Seeker used to exercise GetInto.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Read(p []byte) (int, error) {
	if m.pos >= len(m.buf) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += n
	return n, nil
}

func (m *memSeeker) Write(p []byte) (int, error) {
	if m.pos == len(m.buf) {
		m.buf = append(m.buf, p...)
	} else {
		copy(m.buf[m.pos:], p)
	}
	m.pos += len(p)
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		m.pos = int(offset)
	case 1:
		m.pos += int(offset)
	case 2:
		m.pos = len(m.buf) + int(offset)
	}
	return int64(m.pos), nil
}
