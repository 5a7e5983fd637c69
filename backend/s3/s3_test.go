// Unit tests for the pure, network-free parts of the S3 backend.
// Spawning a real or fake S3 endpoint is test-suite-fixture territory,
// out of scope for this module (see spec.md §1).
package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFs(t *testing.T) *S3 {
	f, err := New(context.Background(), Options{Bucket: "test-bucket", KeyPrefix: "pre"})
	require.NoError(t, err)
	return f
}

func TestKeyPrefixForcesTrailingSlash(t *testing.T) {
	f := newTestFs(t)
	assert.Equal(t, "pre/", f.prefix)
}

func TestPathToKey(t *testing.T) {
	f := newTestFs(t)

	key, err := f.pathToKey("")
	require.NoError(t, err)
	assert.Equal(t, "pre/", key)

	key, err = f.pathToKey("dir1/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "pre/dir1/file.txt", key)
}

func TestPathToKeyRejectsEscape(t *testing.T) {
	f := newTestFs(t)
	_, err := f.pathToKey("../escape")
	assert.Error(t, err)
}

func TestWithTrailingSep(t *testing.T) {
	assert.Equal(t, "", withTrailingSep(""))
	assert.Equal(t, "a/", withTrailingSep("a"))
	assert.Equal(t, "a/", withTrailingSep("a/"))
}

func TestShouldRetrySubstrings(t *testing.T) {
	for _, msg := range retrySubstrings {
		assert.True(t, shouldRetry(errors.New("boom: "+msg)), msg)
	}
	assert.False(t, shouldRetry(errors.New("access denied")))
	assert.False(t, shouldRetry(nil))
}

func TestShouldRetryAWSStatusCodes(t *testing.T) {
	for _, code := range []int{429, 500, 503} {
		err := awserr.NewRequestFailure(awserr.New("Err", "msg", nil), code, "req-id")
		assert.True(t, shouldRetry(err))
	}
	err := awserr.NewRequestFailure(awserr.New("Err", "msg", nil), 404, "req-id")
	assert.False(t, shouldRetry(err))
}

func TestIsDirEmptyPathAlwaysTrue(t *testing.T) {
	// Preserved open-question behavior: isdir("") is always true, even
	// against an empty bucket, since "" short-circuits before any
	// network call.
	f := newTestFs(t)
	isDir, err := f.IsDir(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, isDir)
}
