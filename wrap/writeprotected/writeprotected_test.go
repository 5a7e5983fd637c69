package writeprotected_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlefs/vfs"
	"github.com/brindlefs/vfs/backend/memory"
	"github.com/brindlefs/vfs/wrap/writeprotected"
)

func TestReadsPassThrough(t *testing.T) {
	ctx := context.Background()
	m, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	require.NoError(t, m.Set(ctx, "f.txt", []byte("abc")))

	w, err := writeprotected.New(m)
	require.NoError(t, err)

	got, err := w.Get(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.True(t, w.IsReadOnly())
}

func TestWritesRefused(t *testing.T) {
	ctx := context.Background()
	m, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(m.Close)

	w, err := writeprotected.New(m)
	require.NoError(t, err)

	err = w.Set(ctx, "f.txt", []byte("abc"))
	assert.ErrorIs(t, err, vfs.ErrReadOnly)

	err = w.Rm(ctx, "f.txt")
	assert.ErrorIs(t, err, vfs.ErrReadOnly)
}

func TestStringIdentityDiffersFromInner(t *testing.T) {
	m, err := memory.New("")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	w, err := writeprotected.New(m)
	require.NoError(t, err)
	assert.NotEqual(t, m.String(), w.String())
}
