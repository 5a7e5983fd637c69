// Package disk provides a FileSystem rooted at a local directory.
package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brindlefs/vfs"
)

// Disk is a FileSystem rooted at an absolute local directory. The root
// is created if it doesn't already exist.
type Disk struct {
	root string // absolute, cleaned, no trailing separator (except "/")
}

// New roots a Disk backend at rootPath, creating it if absent.
// rootPath must be absolute.
func New(rootPath string) (*Disk, error) {
	if !filepath.IsAbs(rootPath) {
		return nil, fmt.Errorf("disk: rootPath %q must be absolute", rootPath)
	}
	root := filepath.Clean(rootPath)
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, fmt.Errorf("disk: create root %q: %w", root, err)
	}
	return &Disk{root: root}, nil
}

// String identifies this backend by its root path.
func (d *Disk) String() string {
	return fmt.Sprintf("Disk root '%s'", d.root)
}

// IsReadOnly is always false for a plain Disk backend.
func (d *Disk) IsReadOnly() bool { return false }

// localPath translates a vfs path to an absolute local path, refusing
// any translation that would resolve outside the root.
func (d *Disk) localPath(p string) (string, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return "", err
	}
	local := filepath.Join(d.root, filepath.FromSlash(norm))
	if local != d.root && !strings.HasPrefix(local, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("disk: path %q escapes root: %w", p, vfs.ErrInvalidPath)
	}
	return local, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%v: %w", err, vfs.ErrNotExist)
	}
	return fmt.Errorf("%v: %w", err, vfs.ErrInaccessible)
}

// Exists reports whether p resolves to a file or directory.
func (d *Disk) Exists(ctx context.Context, p string) (bool, error) {
	local, err := d.localPath(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(local)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, nil
}

// IsDir reports whether p resolves to a directory.
func (d *Disk) IsDir(ctx context.Context, p string) (bool, error) {
	local, err := d.localPath(p)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(local)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, nil
	}
	return fi.IsDir(), nil
}

// IsFile reports whether p resolves to a file.
func (d *Disk) IsFile(ctx context.Context, p string) (bool, error) {
	local, err := d.localPath(p)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(local)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, nil
	}
	return !fi.IsDir(), nil
}

// GetModTime returns the modification time of an existing file or directory.
func (d *Disk) GetModTime(ctx context.Context, p string) (time.Time, error) {
	local, err := d.localPath(p)
	if err != nil {
		return time.Time{}, err
	}
	fi, err := os.Stat(local)
	if err != nil {
		return time.Time{}, classify(err)
	}
	return fi.ModTime(), nil
}

// GetSize returns the byte length of an existing file.
func (d *Disk) GetSize(ctx context.Context, p string) (int64, error) {
	local, err := d.localPath(p)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(local)
	if err != nil {
		return 0, classify(err)
	}
	if fi.IsDir() {
		return 0, pathErr("getsize", p, vfs.ErrNotFile)
	}
	return fi.Size(), nil
}

// Stat combines GetModTime and GetSize.
func (d *Disk) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return vfs.DefaultStat(ctx, d, p)
}

// ListDir lists p's children as full paths rooted at p.
func (d *Disk) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	local, err := d.localPath(norm)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(local)
	if err != nil {
		return nil, classify(err)
	}
	if !fi.IsDir() {
		return nil, pathErr("listdir", p, vfs.ErrNotDir)
	}
	var out []string
	var walkDir func(dir string) error
	walkDir = func(dir string) error {
		entries, err := os.ReadDir(filepath.Join(d.root, filepath.FromSlash(dir)))
		if err != nil {
			return classify(err)
		}
		for _, e := range entries {
			child, err := vfs.Join(dir, e.Name())
			if err != nil {
				return err
			}
			out = append(out, child)
			if maxEntries > 0 && len(out) >= maxEntries {
				return errMaxEntries
			}
			if e.IsDir() && recursive {
				if err := walkDir(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walkDir(norm); err != nil && err != errMaxEntries {
		return nil, err
	}
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

var errMaxEntries = fmt.Errorf("max entries reached")

// ListFiles returns the full paths of files whose path starts with prefix.
func (d *Disk) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, d, prefix)
}

// ListSubdirs returns the directory paths under p.
func (d *Disk) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, d, p, recursive)
}

// IterateFiles lazily walks files under prefix.
func (d *Disk) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, d, prefix, filter)
}

// Get returns the full contents of an existing file.
func (d *Disk) Get(ctx context.Context, p string) ([]byte, error) {
	local, err := d.localPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// GetInto rewinds stream to 0 and fills it with the contents of p.
func (d *Disk) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	if err := vfs.RewindTo0(stream); err != nil {
		return err
	}
	local, err := d.localPath(p)
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return classify(err)
	}
	defer f.Close()
	_, err = vfs.ChunkedCopy(stream, f, -1, 0)
	return err
}

// Set creates or overwrites p with content, which must be []byte or a
// Seeker positioned at 0. The parent directory is created first.
func (d *Disk) Set(ctx context.Context, p string, content any) error {
	local, err := d.localPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o777); err != nil {
		return classify(err)
	}
	out, err := os.Create(local)
	if err != nil {
		return classify(err)
	}
	defer out.Close()

	switch v := content.(type) {
	case []byte:
		_, err = out.Write(v)
		return err
	case vfs.Seeker:
		if err := vfs.RequirePosition0(v); err != nil {
			return err
		}
		_, err = vfs.ChunkedCopy(out, v, -1, 0)
		return err
	default:
		return pathErr("set", p, vfs.ErrInvalidContent)
	}
}

// Rm removes a file, or an empty directory.
func (d *Disk) Rm(ctx context.Context, p string) error {
	local, err := d.localPath(p)
	if err != nil {
		return err
	}
	fi, err := os.Stat(local)
	if err != nil {
		return classify(err)
	}
	if fi.IsDir() {
		if err := os.Remove(local); err != nil {
			if isNotEmpty(err) {
				return pathErr("rm", p, vfs.ErrDirNotEmpty)
			}
			return classify(err)
		}
		return nil
	}
	if err := os.Remove(local); err != nil {
		return classify(err)
	}
	return nil
}

func isNotEmpty(err error) bool {
	var perr *os.PathError
	if !asPathError(err, &perr) {
		return false
	}
	return strings.Contains(perr.Err.Error(), "not empty") || strings.Contains(perr.Err.Error(), "directory not empty")
}

func asPathError(err error, target **os.PathError) bool {
	pe, ok := err.(*os.PathError)
	if ok {
		*target = pe
	}
	return ok
}

func pathErr(op, p string, sentinel error) error {
	return fmt.Errorf("%s %q: %w", op, p, sentinel)
}

var _ vfs.FileSystem = (*Disk)(nil)
