package vfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsEventually(t *testing.T) {
	errBoom := errors.New("boom")
	attempts := 0
	reconnects := 0
	err := Retry(3, func(error) { reconnects++ }, func() (bool, error) {
		attempts++
		if attempts < 3 {
			return true, errBoom
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, reconnects)
}

func TestRetryExhausted(t *testing.T) {
	errBoom := errors.New("boom")
	attempts := 0
	err := Retry(3, nil, func() (bool, error) {
		attempts++
		return true, errBoom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExceededRetries))
	assert.Equal(t, errBoom, errors.Unwrap(err))
	assert.Equal(t, 3, attempts)
}

func TestRetryNonEligibleStopsImmediately(t *testing.T) {
	errFatal := errors.New("fatal")
	attempts := 0
	err := Retry(5, nil, func() (bool, error) {
		attempts++
		return false, errFatal
	})
	assert.Equal(t, errFatal, err)
	assert.Equal(t, 1, attempts)
}

func TestExceededRetriesNeverRetried(t *testing.T) {
	// An ExceededRetries error must not itself look retry-eligible to
	// a nested Retry call (prevents amplifying the attempt budget).
	inner := ExceededRetries(errors.New("cause"))
	attempts := 0
	err := Retry(3, nil, func() (bool, error) {
		attempts++
		return errors.Is(inner, ErrExceededRetries), inner
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestChunkedCopyRespectsShortReads(t *testing.T) {
	src := &shortReader{chunks: [][]byte{[]byte("ab"), []byte("cde"), {}}}
	var dst writeBuf
	n, err := ChunkedCopy(&dst, src, -1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "abcde", string(dst))
}

type shortReader struct {
	chunks [][]byte
	i      int
}

func (r *shortReader) Read(p []byte) (int, error) {
	if r.i >= len(r.chunks) {
		return 0, nil
	}
	c := r.chunks[r.i]
	r.i++
	n := copy(p, c)
	if len(c) == 0 {
		return 0, nil
	}
	return n, nil
}

type writeBuf []byte

func (b *writeBuf) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
