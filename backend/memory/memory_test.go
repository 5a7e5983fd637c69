package memory_test

import (
	"context"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlefs/vfs/backend/memory"
)

func newTestFs(t *testing.T) *memory.Memory {
	m, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestFlatLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestFs(t)

	exists, err := m.Exists(ctx, "test.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Set(ctx, "test.txt", []byte("abc")))

	got, err := m.Get(ctx, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	size, err := m.GetSize(ctx, "test.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)

	entries, err := m.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"test.txt"}, entries)

	require.NoError(t, m.Rm(ctx, "test.txt"))
	entries, err = m.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNestedDirectories(t *testing.T) {
	ctx := context.Background()
	m := newTestFs(t)

	require.NoError(t, m.Set(ctx, "dir1/test.txt", []byte("abc")))

	entries, err := m.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir1"}, entries)

	entries, err = m.ListDir(ctx, "", true, 0)
	require.NoError(t, err)
	sort.Strings(entries)
	assert.Equal(t, []string{"dir1", "dir1/test.txt"}, entries)

	_, err = m.ListDir(ctx, "dir1/dir2/file.txt", false, 0)
	assert.Error(t, err)
}

func TestTwoInstancesShareRootPath(t *testing.T) {
	ctx := context.Background()
	a, err := memory.New("shared/anchor")
	require.NoError(t, err)
	b, err := memory.New("shared/anchor")
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "f.txt", []byte("x")))
	got, err := b.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	require.NoError(t, b.Rm(ctx, "f.txt"))
}

func TestRmRefusesNonEmptyDir(t *testing.T) {
	ctx := context.Background()
	m := newTestFs(t)
	require.NoError(t, m.Set(ctx, "dir1/f.txt", []byte("x")))
	err := m.Rm(ctx, "dir1")
	assert.Error(t, err)
}

func TestSetWithStreamAtNonZeroPositionFails(t *testing.T) {
	ctx := context.Background()
	m := newTestFs(t)
	s := &fakeSeeker{data: []byte("hello"), pos: 2}
	err := m.Set(ctx, "f.txt", s)
	assert.Error(t, err)
}

func TestGetIntoWritesAtCurrentPosition(t *testing.T) {
	// Documents the preserved behavioral difference: the memory
	// backend's GetInto does not seek to 0 first, unlike disk/remote
	// backends.
	ctx := context.Background()
	m := newTestFs(t)
	require.NoError(t, m.Set(ctx, "f.txt", []byte("xyz")))

	s := &fakeSeeker{data: []byte("ab"), pos: 2}
	require.NoError(t, m.GetInto(ctx, "f.txt", s))
	assert.Equal(t, "abxyz", string(s.data))
}

type fakeSeeker struct {
	data []byte
	pos  int
}

func (f *fakeSeeker) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakeSeeker) Write(p []byte) (int, error) {
	if f.pos+len(p) > len(f.data) {
		grown := make([]byte, f.pos+len(p))
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos += len(p)
	return len(p), nil
}

func (f *fakeSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.pos = int(offset)
	case io.SeekCurrent:
		f.pos += int(offset)
	case io.SeekEnd:
		f.pos = len(f.data) + int(offset)
	}
	return int64(f.pos), nil
}
