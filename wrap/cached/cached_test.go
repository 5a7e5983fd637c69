package cached_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlefs/vfs"
	"github.com/brindlefs/vfs/backend/memory"
	"github.com/brindlefs/vfs/wrap/cached"
)

func newPair(t *testing.T) (*cached.Cached, *memory.Memory, *memory.Memory) {
	front, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(front.Close)
	back, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(back.Close)
	c, err := cached.New(front, back)
	require.NoError(t, err)
	return c, front, back
}

func TestGetPopulatesFront(t *testing.T) {
	ctx := context.Background()
	c, front, back := newPair(t)

	require.NoError(t, back.Set(ctx, "f.txt", []byte("abc")))

	got, err := c.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	cached, err := front.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), cached)
}

func TestSetAlwaysFails(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newPair(t)

	err := c.Set(ctx, "f.txt", []byte("xyz"))
	assert.ErrorIs(t, err, vfs.ErrReadOnly)
	assert.True(t, c.IsReadOnly())
}

func TestMetadataAlwaysFromBack(t *testing.T) {
	ctx := context.Background()
	c, _, back := newPair(t)
	require.NoError(t, back.Set(ctx, "f.txt", []byte("abc")))

	size, err := c.GetSize(ctx, "f.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 3, size)
}

func TestRepeatedGetAfterMissReturnsContent(t *testing.T) {
	ctx := context.Background()
	c, _, back := newPair(t)
	require.NoError(t, back.Set(ctx, "f.txt", []byte("abc")))

	// First Get populates front and the memo; a second Get for the
	// same path must still return the right content whether served
	// from the now-memoized front hit or back.
	got1, err := c.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got1)

	got2, err := c.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got2)
}

func TestRmAlwaysFails(t *testing.T) {
	ctx := context.Background()
	c, _, back := newPair(t)
	require.NoError(t, back.Set(ctx, "f.txt", []byte("x")))

	err := c.Rm(ctx, "f.txt")
	assert.ErrorIs(t, err, vfs.ErrReadOnly)

	existsBack, err := back.Exists(ctx, "f.txt")
	require.NoError(t, err)
	assert.True(t, existsBack)
}

func TestExistsPrefersFrontOverBack(t *testing.T) {
	ctx := context.Background()
	c, front, back := newPair(t)
	require.NoError(t, front.Set(ctx, "f.txt", []byte("front-copy")))

	exists, err := c.Exists(ctx, "f.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	isFile, err := c.IsFile(ctx, "f.txt")
	require.NoError(t, err)
	assert.True(t, isFile)

	existsBack, err := back.Exists(ctx, "f.txt")
	require.NoError(t, err)
	assert.False(t, existsBack)
}
