// Unit tests for the pure, network-free parts of the FTP backend.
// Spawning a real FTP server is test-suite-fixture territory, out of
// scope for this module (see spec.md §1).
package ftp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	opt := Options{Host: "example.com"}
	opt.setDefaults()
	assert.Equal(t, 21, opt.Port)
	assert.Equal(t, "anonymous", opt.User)
	assert.NotZero(t, opt.DialTimeout)
}

func TestNewRequiresHost(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestWirePath(t *testing.T) {
	assert.Equal(t, "/", wirePath(""))
	assert.Equal(t, "/a/b", wirePath("a/b"))
}

func TestSplitParentBase(t *testing.T) {
	parent, base := splitParentBase("a/b/c.txt")
	assert.Equal(t, "a/b", parent)
	assert.Equal(t, "c.txt", base)

	parent, base = splitParentBase("c.txt")
	assert.Equal(t, "", parent)
	assert.Equal(t, "c.txt", base)
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, "", parentOf("f.txt"))
	assert.Equal(t, "a", parentOf("a/f.txt"))
}

func TestLooksTransient(t *testing.T) {
	assert.True(t, looksTransient(errors.New("use of closed network connection")))
	assert.False(t, looksTransient(errors.New("permission denied")))
}

func TestClassifyWrapsNotFound(t *testing.T) {
	err := classify(errors.New("550 No such file or directory"))
	assert.Error(t, err)
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.New("550 Create directory operation failed; already exists")))
	assert.False(t, isAlreadyExists(errors.New("550 permission denied")))
}
