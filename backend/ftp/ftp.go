// Package ftp provides a FileSystem backed by a single persistent FTP
// control connection. Where the teacher backend keeps a pool of
// connections for concurrent transfers, this module serializes all
// operations behind one mutex-guarded connection, reconnecting and
// retrying through vfs.Retry on transient failures.
package ftp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/brindlefs/vfs"
)

// Options configures an FTP backend.
type Options struct {
	Host     string
	Port     int    // default 21
	User     string // default "anonymous"
	Pass     string
	RootPath string

	DialTimeout     time.Duration // default 10s
	ConnMaxAge      time.Duration // default 60s (a zero value is replaced by the default)
	ForceListHidden bool          // passed through as DialWithForceListHidden
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = 21
	}
	if o.User == "" {
		o.User = "anonymous"
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ConnMaxAge == 0 {
		o.ConnMaxAge = 60 * time.Second
	}
}

// FTP is a FileSystem backed by a single FTP control connection.
// The dialect (whether the server's directory listings carry precise
// MLSD-style times) is probed once, lazily, on first use, mirroring
// how the teacher backend caches IsTimePreciseInList() per session.
type FTP struct {
	opt Options

	mu          sync.Mutex
	conn        *ftp.ServerConn
	connectedAt time.Time

	probeOnce  sync.Once
	mlsdProbed bool // cached result of conn.IsTimePreciseInList()
}

// New constructs an FTP-backed FileSystem. The connection is
// established lazily on first use, matching the disk/S3 backends'
// behavior of never touching the network in the constructor.
func New(opt Options) (*FTP, error) {
	opt.setDefaults()
	if opt.Host == "" {
		return nil, fmt.Errorf("ftp: host is required")
	}
	return &FTP{opt: opt}, nil
}

// String identifies this backend by host and root.
func (f *FTP) String() string {
	return fmt.Sprintf("FTP %s:%d/%s", f.opt.Host, f.opt.Port, f.opt.RootPath)
}

// IsReadOnly is always false for a plain FTP backend.
func (f *FTP) IsReadOnly() bool { return false }

// Close tears down the control connection, if any.
func (f *FTP) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Quit()
		f.conn = nil
	}
}

// getConn returns the control connection, dialing or redialing it if
// absent or older than ConnMaxAge.
func (f *FTP) getConn() (*ftp.ServerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		if f.opt.ConnMaxAge == 0 || time.Since(f.connectedAt) < f.opt.ConnMaxAge {
			if f.conn.NoOp() == nil {
				return f.conn, nil
			}
		}
		_ = f.conn.Quit()
		f.conn = nil
	}
	addr := fmt.Sprintf("%s:%d", f.opt.Host, f.opt.Port)
	opts := []ftp.DialOption{ftp.DialWithTimeout(f.opt.DialTimeout)}
	if f.opt.ForceListHidden {
		opts = append(opts, ftp.DialWithForceListHidden(true))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp: dial: %w", err)
	}
	if err := c.Login(f.opt.User, f.opt.Pass); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("ftp: login: %w", err)
	}
	f.conn = c
	f.connectedAt = time.Now()
	return c, nil
}

// reconnect discards the current connection; the next getConn call
// redials. Bound as vfs.Retry's onException hook.
func (f *FTP) reconnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Quit()
		f.conn = nil
	}
}

// withConn runs op against a live connection, retrying through
// vfs.Retry when the attempt fails in a way that looks connection-shaped.
func (f *FTP) withConn(op func(c *ftp.ServerConn) error) error {
	return vfs.Retry(vfs.DefaultMaxRetries, f.reconnect, func() (bool, error) {
		c, err := f.getConn()
		if err != nil {
			return true, err
		}
		err = op(c)
		if err == nil {
			return false, nil
		}
		return looksTransient(err), err
	})
}

func looksTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection", "timeout", "broken pipe", "reset by peer", "use of closed", "eof"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// remotePath joins the configured root with a normalized vfs path.
func (f *FTP) remotePath(p string) (string, error) {
	return vfs.Join(f.opt.RootPath, p)
}

// mlsdAvailable reports whether the server returns precise MLSD-style
// times in its directory listings. Probed once and cached, as the
// teacher backend does via IsTimePreciseInList().
func (f *FTP) mlsdAvailable() (bool, error) {
	var probeErr error
	f.probeOnce.Do(func() {
		probeErr = f.withConn(func(c *ftp.ServerConn) error {
			f.mlsdProbed = c.IsTimePreciseInList()
			return nil
		})
	})
	return f.mlsdProbed, probeErr
}

// findEntry locates the directory entry for remote within its parent
// listing, or returns (nil, nil) if the listing has no such entry. A
// failure to list the parent (for example a missing parent) is
// returned as a classified error. The root always
// synthesizes a folder entry, since FTP servers don't expose metadata
// for "".
func (f *FTP) findEntry(remote string) (*ftp.Entry, error) {
	if remote == "" {
		return &ftp.Entry{Name: "", Type: ftp.EntryTypeFolder, Time: time.Now()}, nil
	}
	parent, base := splitParentBase(remote)
	var found *ftp.Entry
	err := f.withConn(func(c *ftp.ServerConn) error {
		entries, err := c.List(wirePath(parent))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Name == base {
				found = e
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return found, nil
}

func wirePath(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + p
}

func splitParentBase(remote string) (parent, base string) {
	remote = strings.Trim(remote, "/")
	idx := strings.LastIndex(remote, "/")
	if idx < 0 {
		return "", remote
	}
	return remote[:idx], remote[idx+1:]
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such file") || strings.Contains(msg, "not found") ||
		strings.Contains(msg, "550") {
		return fmt.Errorf("%v: %w", err, vfs.ErrNotExist)
	}
	return fmt.Errorf("%v: %w", err, vfs.ErrInaccessible)
}

func pathErr(op, p string, sentinel error) error {
	return fmt.Errorf("%s %q: %w", op, p, sentinel)
}

// --- FileSystem surface ------------------------------------------------

// Exists reports whether p resolves to a file or directory. An empty
// directory still resolves here because findEntry matches against the
// parent listing rather than requiring children — the preserved
// exception is IsDir("") on the root, which always reports true even
// though the root itself never appears in any parent listing.
func (f *FTP) Exists(ctx context.Context, p string) (bool, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return false, err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// IsDir reports whether p resolves to a directory.
func (f *FTP) IsDir(ctx context.Context, p string) (bool, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return false, err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return false, err
	}
	return e != nil && e.Type == ftp.EntryTypeFolder, nil
}

// IsFile reports whether p resolves to a file.
func (f *FTP) IsFile(ctx context.Context, p string) (bool, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return false, err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return false, err
	}
	return e != nil && e.Type != ftp.EntryTypeFolder, nil
}

// GetModTime returns the modification time of an existing file or
// directory. When the server's listings aren't MLSD-precise, this
// falls back to the MDTM-backed GetTime command, mirroring the
// teacher's Object.ModTime lazy-refresh.
func (f *FTP) GetModTime(ctx context.Context, p string) (time.Time, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return time.Time{}, err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return time.Time{}, err
	}
	if e == nil {
		return time.Time{}, pathErr("getmtime", p, vfs.ErrNotExist)
	}
	precise, err := f.mlsdAvailable()
	if err != nil {
		return time.Time{}, err
	}
	if precise || remote == "" {
		return e.Time, nil
	}
	var mtime time.Time
	err = f.withConn(func(c *ftp.ServerConn) error {
		if !c.IsGetTimeSupported() {
			mtime = e.Time
			return nil
		}
		t, err := c.GetTime(wirePath(remote))
		if err != nil {
			return err
		}
		mtime = t
		return nil
	})
	return mtime, classify(err)
}

// GetSize returns the byte length of an existing file.
func (f *FTP) GetSize(ctx context.Context, p string) (int64, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return 0, err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, pathErr("getsize", p, vfs.ErrNotExist)
	}
	if e.Type == ftp.EntryTypeFolder {
		return 0, pathErr("getsize", p, vfs.ErrNotFile)
	}
	return int64(e.Size), nil
}

// Stat combines GetModTime and GetSize.
func (f *FTP) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return vfs.DefaultStat(ctx, f, p)
}

// ListDir lists p's children as full paths rooted at p. An FTP LIST
// against a directory that doesn't exist returns zero entries rather
// than an error on many servers, so a zero-length result is
// double-checked against IsDir before being trusted as "empty".
func (f *FTP) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := f.listDirInto(norm, recursive, &out, maxEntries); err != nil {
		return nil, err
	}
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

func (f *FTP) listDirInto(dir string, recursive bool, out *[]string, maxEntries int) error {
	remote, err := f.remotePath(dir)
	if err != nil {
		return err
	}
	var entries []*ftp.Entry
	err = f.withConn(func(c *ftp.ServerConn) error {
		es, err := c.List(wirePath(remote))
		if err != nil {
			return err
		}
		entries = es
		return nil
	})
	if err != nil {
		return classify(err)
	}
	if len(entries) == 0 && dir != "" {
		isDir, err := f.IsDir(context.Background(), dir)
		if err != nil {
			return err
		}
		if !isDir {
			return pathErr("listdir", dir, vfs.ErrNotDir)
		}
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childVp, err := vfs.Join(dir, e.Name)
		if err != nil {
			return err
		}
		*out = append(*out, childVp)
		if maxEntries > 0 && len(*out) >= maxEntries {
			return nil
		}
		if e.Type == ftp.EntryTypeFolder && recursive {
			if err := f.listDirInto(childVp, true, out, maxEntries); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListFiles returns the full paths of files whose path starts with prefix.
func (f *FTP) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, f, prefix)
}

// ListSubdirs returns the directory paths under p.
func (f *FTP) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, f, p, recursive)
}

// IterateFiles lazily walks files under prefix.
func (f *FTP) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, f, prefix, filter)
}

// Get returns the full contents of an existing file.
func (f *FTP) Get(ctx context.Context, p string) ([]byte, error) {
	var buf strings.Builder
	if err := f.retrInto(p, &buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// GetInto seeks stream to 0, then retrieves p's contents into it.
func (f *FTP) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	if err := vfs.RewindTo0(stream); err != nil {
		return err
	}
	return f.retrInto(p, stream)
}

func (f *FTP) retrInto(p string, w io.Writer) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	err = f.withConn(func(c *ftp.ServerConn) error {
		resp, err := c.RetrFrom(wirePath(remote), 0)
		if err != nil {
			return err
		}
		defer resp.Close()
		_, err = vfs.ChunkedCopy(w, resp, -1, 0)
		return err
	})
	return classify(err)
}

// Set uploads content to p, creating parent directories as needed.
// content must be []byte or a vfs.Seeker positioned at 0.
func (f *FTP) Set(ctx context.Context, p string, content any) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	if err := f.mkdirAll(parentOf(remote)); err != nil {
		return err
	}

	switch v := content.(type) {
	case []byte:
		// validated below per attempt
		_ = v
	case vfs.Seeker:
		if err := vfs.RequirePosition0(v); err != nil {
			return err
		}
	default:
		return pathErr("set", p, vfs.ErrInvalidContent)
	}

	err = f.withConn(func(c *ftp.ServerConn) error {
		var body io.Reader
		switch v := content.(type) {
		case []byte:
			body = strings.NewReader(string(v))
		case vfs.Seeker:
			if err := vfs.RewindTo0(v); err != nil {
				return err
			}
			body = vfs.NewCloseProtect(v)
		}
		return c.Stor(wirePath(remote), body)
	})
	return classify(err)
}

func parentOf(remote string) string {
	remote = strings.Trim(remote, "/")
	idx := strings.LastIndex(remote, "/")
	if idx < 0 {
		return ""
	}
	return remote[:idx]
}

// mkdirAll creates dir and every missing ancestor, mirroring the
// teacher's recursive mkdir that walks up until an existing directory
// is found.
func (f *FTP) mkdirAll(dir string) error {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	e, err := f.findEntry(dir)
	if err != nil && !vfs.IsNotExist(err) {
		return err
	}
	if e != nil {
		if e.Type != ftp.EntryTypeFolder {
			return pathErr("set", dir, vfs.ErrNotDir)
		}
		return nil
	}
	if err := f.mkdirAll(parentOf(dir)); err != nil {
		return err
	}
	err = f.withConn(func(c *ftp.ServerConn) error {
		return c.MakeDir(wirePath(dir))
	})
	if err != nil && !isAlreadyExists(err) {
		return classify(err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "exist")
}

// Rm removes a file, or an empty directory.
func (f *FTP) Rm(ctx context.Context, p string) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	e, err := f.findEntry(remote)
	if err != nil {
		return err
	}
	if e == nil {
		return pathErr("rm", p, vfs.ErrNotExist)
	}
	if e.Type == ftp.EntryTypeFolder {
		err = f.withConn(func(c *ftp.ServerConn) error {
			return c.RemoveDir(wirePath(remote))
		})
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "not empty") {
			return pathErr("rm", p, vfs.ErrDirNotEmpty)
		}
		return classify(err)
	}
	err = f.withConn(func(c *ftp.ServerConn) error {
		return c.Delete(wirePath(remote))
	})
	return classify(err)
}

var _ vfs.FileSystem = (*FTP)(nil)
