// Package cached decorates a FileSystem with a fast local front that
// mirrors reads from an authoritative back, the way the teacher's
// cache backend fronts a slow remote with local chunk storage —
// simplified here to whole-file front/back mirroring rather than
// chunked ranges.
package cached

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/brindlefs/vfs"
	"github.com/brindlefs/vfs/backend/s3"
)

// existenceMemoTTL bounds how long a front-side existence check is
// trusted before Get re-probes front directly. Short enough that a
// concurrent Rm on front is noticed quickly.
const existenceMemoTTL = 5 * time.Second

// Cached fronts a remote FileSystem (back) with a fast local one
// (front), read-only. Reads are served from front when it asserts
// existence, falling back to back and populating front on a miss.
// Writes and deletes fail unconditionally, the same as any other
// read-only filesystem: Cached only ever populates front as a
// side effect of a Get miss, never in response to a caller-directed
// write.
//
// front must not itself be an S3-backed FileSystem: S3's eventual
// consistency on overwrite makes it a poor fast-path cache for
// another remote (see DESIGN.md Open Question).
type Cached struct {
	vfs.ReadOnly
	front vfs.FileSystem
	back  vfs.FileSystem

	// existenceMemo remembers recent front.Exists lookups (hit or
	// miss) so a burst of Get calls against the same cold path
	// doesn't each pay a front round-trip just to learn it's absent.
	existenceMemo *gocache.Cache
}

// New wraps back with front as its read cache.
func New(front, back vfs.FileSystem) (*Cached, error) {
	if front == nil || back == nil {
		return nil, fmt.Errorf("cached: front and back are required")
	}
	if _, isS3 := front.(*s3.S3); isS3 {
		return nil, fmt.Errorf("cached: front must not be an S3 backend")
	}
	return &Cached{
		front:         front,
		back:          back,
		existenceMemo: gocache.New(existenceMemoTTL, 2*existenceMemoTTL),
	}, nil
}

// frontHasFile reports whether p is a file on front, consulting the
// memo before making a fresh Exists/IsFile round-trip.
func (c *Cached) frontHasFile(ctx context.Context, p string) bool {
	if v, found := c.existenceMemo.Get(p); found {
		return v.(bool)
	}
	hit := false
	if exists, err := c.front.Exists(ctx, p); err == nil && exists {
		if isFile, err := c.front.IsFile(ctx, p); err == nil && isFile {
			hit = true
		}
	}
	c.existenceMemo.SetDefault(p, hit)
	return hit
}

// String identifies this wrapper by its two constituents.
func (c *Cached) String() string {
	return fmt.Sprintf("Cached(%s over %s)", c.front, c.back)
}

// Exists prefers front when it asserts existence, else consults back.
func (c *Cached) Exists(ctx context.Context, p string) (bool, error) {
	if c.frontHasFile(ctx, p) {
		return true, nil
	}
	return c.back.Exists(ctx, p)
}

// IsDir prefers front when it asserts existence, else consults back.
func (c *Cached) IsDir(ctx context.Context, p string) (bool, error) {
	if isDir, err := c.front.IsDir(ctx, p); err == nil && isDir {
		return true, nil
	}
	return c.back.IsDir(ctx, p)
}

// IsFile prefers front when it asserts existence, else consults back.
func (c *Cached) IsFile(ctx context.Context, p string) (bool, error) {
	if c.frontHasFile(ctx, p) {
		return true, nil
	}
	return c.back.IsFile(ctx, p)
}

// GetModTime always asks back, the authoritative source.
func (c *Cached) GetModTime(ctx context.Context, p string) (time.Time, error) {
	return c.back.GetModTime(ctx, p)
}

// GetSize always asks back, the authoritative source.
func (c *Cached) GetSize(ctx context.Context, p string) (int64, error) {
	return c.back.GetSize(ctx, p)
}

// Stat always asks back, the authoritative source.
func (c *Cached) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return c.back.Stat(ctx, p)
}

// ListDir always asks back, the authoritative source: the front
// cache may hold files back no longer has, or vice versa.
func (c *Cached) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	return c.back.ListDir(ctx, p, recursive, maxEntries)
}

// ListFiles defers to vfs.DefaultListFiles over this wrapper's own ListDir/IsFile.
func (c *Cached) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, c, prefix)
}

// ListSubdirs defers to vfs.DefaultListSubdirs.
func (c *Cached) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, c, p, recursive)
}

// IterateFiles defers to vfs.DefaultIterateFiles.
func (c *Cached) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, c, prefix, filter)
}

// Get returns p's contents, serving from front on a hit and
// populating front from back on a miss.
func (c *Cached) Get(ctx context.Context, p string) ([]byte, error) {
	if c.frontHasFile(ctx, p) {
		if data, err := c.front.Get(ctx, p); err == nil {
			return data, nil
		}
		// front claimed the file existed but serving it failed; fall
		// through to back and let the memo expire naturally.
	}
	data, err := c.back.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := c.front.Set(ctx, p, data); err != nil {
		vfs.Warnf("cached: populate front for %q failed: %v", p, err)
	} else {
		c.existenceMemo.SetDefault(p, true)
	}
	return data, nil
}

// GetInto fills stream from front if present, else from back,
// populating front afterward.
func (c *Cached) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	data, err := c.Get(ctx, p)
	if err != nil {
		return err
	}
	if err := vfs.RewindTo0(stream); err != nil {
		return err
	}
	_, err = stream.Write(data)
	return err
}

var _ vfs.FileSystem = (*Cached)(nil)
