// Package cloning decorates a FileSystem pair where front and back
// are independent, equally-authoritative stores: reads prefer front,
// spooling a copy down from back on a miss, and listings present the
// union of both. Writes go to back first (the durable store) and are
// best-effort mirrored to front — a failure there is logged, never
// fatal, since front is a convenience mirror, not a dependency.
package cloning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/brindlefs/vfs"
)

// Cloning mirrors reads and writes across two independently-addressed
// stores.
type Cloning struct {
	front vfs.FileSystem
	back  vfs.FileSystem
}

// New wraps front and back as clone mirrors of one another.
func New(front, back vfs.FileSystem) (*Cloning, error) {
	if front == nil || back == nil {
		return nil, fmt.Errorf("cloning: front and back are required")
	}
	return &Cloning{front: front, back: back}, nil
}

// String identifies this wrapper by its two constituents.
func (c *Cloning) String() string {
	return fmt.Sprintf("Cloning(%s <-> %s)", c.front, c.back)
}

// IsReadOnly is false whenever either side accepts writes.
func (c *Cloning) IsReadOnly() bool {
	return c.front.IsReadOnly() && c.back.IsReadOnly()
}

// Exists reports true if either side has p.
func (c *Cloning) Exists(ctx context.Context, p string) (bool, error) {
	if ok, err := c.front.Exists(ctx, p); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return c.back.Exists(ctx, p)
}

// IsDir reports true if either side considers p a directory.
func (c *Cloning) IsDir(ctx context.Context, p string) (bool, error) {
	if ok, err := c.front.IsDir(ctx, p); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return c.back.IsDir(ctx, p)
}

// IsFile reports true if either side considers p a file.
func (c *Cloning) IsFile(ctx context.Context, p string) (bool, error) {
	if ok, err := c.front.IsFile(ctx, p); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return c.back.IsFile(ctx, p)
}

// GetModTime prefers front's record of p, falling back to back.
func (c *Cloning) GetModTime(ctx context.Context, p string) (time.Time, error) {
	if ok, err := c.front.Exists(ctx, p); err == nil && ok {
		return c.front.GetModTime(ctx, p)
	}
	return c.back.GetModTime(ctx, p)
}

// GetSize prefers front's record of p, falling back to back.
func (c *Cloning) GetSize(ctx context.Context, p string) (int64, error) {
	if ok, err := c.front.Exists(ctx, p); err == nil && ok {
		return c.front.GetSize(ctx, p)
	}
	return c.back.GetSize(ctx, p)
}

// Stat combines GetModTime and GetSize via the side that has p.
func (c *Cloning) Stat(ctx context.Context, p string) (vfs.Info, error) {
	if ok, err := c.front.Exists(ctx, p); err == nil && ok {
		return c.front.Stat(ctx, p)
	}
	return c.back.Stat(ctx, p)
}

// ListDir returns the union of both sides' children, deduplicated and sorted.
func (c *Cloning) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(entries []string) {
		for _, e := range entries {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	frontEntries, frontErr := c.front.ListDir(ctx, p, recursive, 0)
	backEntries, backErr := c.back.ListDir(ctx, p, recursive, 0)
	if frontErr != nil && backErr != nil {
		return nil, backErr
	}
	add(frontEntries)
	add(backEntries)
	sort.Strings(out)
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

// ListFiles defers to vfs.DefaultListFiles.
func (c *Cloning) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, c, prefix)
}

// ListSubdirs defers to vfs.DefaultListSubdirs.
func (c *Cloning) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, c, p, recursive)
}

// IterateFiles defers to vfs.DefaultIterateFiles.
func (c *Cloning) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, c, prefix, filter)
}

// Get reads from front if present, spooling a copy from back (and
// writing it into front) on a miss.
func (c *Cloning) Get(ctx context.Context, p string) ([]byte, error) {
	if ok, err := c.front.Exists(ctx, p); err == nil && ok {
		return c.front.Get(ctx, p)
	}
	data, err := c.back.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := c.front.Set(ctx, p, data); err != nil {
		vfs.Warnf("cloning: spool %q into front failed: %v", p, err)
	}
	return data, nil
}

// GetInto fills stream via Get, then a rewind-and-write.
func (c *Cloning) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
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

// Set writes to back first (the durable store), then best-effort
// mirrors to front, logging rather than failing on a front error.
func (c *Cloning) Set(ctx context.Context, p string, content any) error {
	if err := c.back.Set(ctx, p, content); err != nil {
		return err
	}
	if seeker, ok := content.(vfs.Seeker); ok {
		if err := vfs.RewindTo0(seeker); err != nil {
			return nil
		}
	}
	if err := c.front.Set(ctx, p, content); err != nil {
		vfs.Warnf("cloning: mirror %q into front failed: %v", p, err)
	}
	return nil
}

// Rm removes from back, then best-effort from front.
func (c *Cloning) Rm(ctx context.Context, p string) error {
	if err := c.back.Rm(ctx, p); err != nil {
		return err
	}
	if err := c.front.Rm(ctx, p); err != nil {
		vfs.Warnf("cloning: remove %q from front failed: %v", p, err)
	}
	return nil
}

var _ vfs.FileSystem = (*Cloning)(nil)
