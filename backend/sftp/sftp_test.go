// Unit tests for the pure, network-free parts of the SFTP backend.
// Spawning a real SSH server is test-suite-fixture territory, out of
// scope for this module (see spec.md §1).
package sftp

import (
	"errors"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	opt := Options{Host: "example.com"}
	opt.setDefaults()
	assert.Equal(t, 22, opt.Port)
	assert.NotZero(t, opt.DialTimeout)
}

func TestNewRequiresHost(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestClientConfigWithPassword(t *testing.T) {
	opt := Options{User: "bob", Password: "pw"}
	_, err := opt.clientConfig()
	require.NoError(t, err)
}

func TestWirePath(t *testing.T) {
	assert.Equal(t, "/", wirePath(""))
	assert.Equal(t, "/a/b", wirePath("a/b"))
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, "", parentOf("f.txt"))
	assert.Equal(t, "a", parentOf("a/f.txt"))
	assert.Equal(t, "a/b", parentOf("/a/b/f.txt"))
}

func TestClassifyWrapsNotExist(t *testing.T) {
	se := &sftp.StatusError{Code: uint32(sftp.ErrSSHFxNoSuchFile)}
	err := classify(se)
	assert.Error(t, err)
}

func TestLooksTransient(t *testing.T) {
	assert.True(t, looksTransient(errors.New("use of closed network connection")))
	assert.False(t, looksTransient(errors.New("permission denied")))
}
