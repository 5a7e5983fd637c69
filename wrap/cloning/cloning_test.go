package cloning_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlefs/vfs/backend/memory"
	"github.com/brindlefs/vfs/wrap/cloning"
)

func newPair(t *testing.T) (*cloning.Cloning, *memory.Memory, *memory.Memory) {
	front, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(front.Close)
	back, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(back.Close)
	c, err := cloning.New(front, back)
	require.NoError(t, err)
	return c, front, back
}

func TestGetSpoolsFromBack(t *testing.T) {
	ctx := context.Background()
	c, front, back := newPair(t)
	require.NoError(t, back.Set(ctx, "f.txt", []byte("abc")))

	got, err := c.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	spooled, err := front.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), spooled)
}

func TestListDirUnionsBothSides(t *testing.T) {
	ctx := context.Background()
	c, front, back := newPair(t)
	require.NoError(t, front.Set(ctx, "a.txt", []byte("1")))
	require.NoError(t, back.Set(ctx, "b.txt", []byte("2")))

	entries, err := c.ListDir(ctx, "", false, 0)
	require.NoError(t, err)
	sort.Strings(entries)
	assert.Equal(t, []string{"a.txt", "b.txt"}, entries)
}

func TestSetMirrorsToFront(t *testing.T) {
	ctx := context.Background()
	c, front, back := newPair(t)
	require.NoError(t, c.Set(ctx, "f.txt", []byte("xyz")))

	gotBack, err := back.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), gotBack)

	gotFront, err := front.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), gotFront)
}
