// Package sftp provides a FileSystem backed by a single persistent
// SFTP session over SSH. The teacher backend pools many SSH
// connections for concurrent transfer throughput; this module only
// needs one connection serialized by a mutex, since callers are
// expected to serialize their own access pattern.
package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/brindlefs/vfs"
)

// Options configures an SFTP backend.
type Options struct {
	Host       string
	Port       int // default 22
	User       string
	Password   string // used if PrivateKey is empty
	PrivateKey []byte // PEM-encoded; used in preference to Password
	RootPath   string

	DialTimeout time.Duration // default 10s
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = 22
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
}

func (o *Options) clientConfig() (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:            o.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         o.DialTimeout,
	}
	if len(o.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(o.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("sftp: parse private key: %w", err)
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	} else {
		cfg.Auth = append(cfg.Auth, ssh.Password(o.Password))
	}
	return cfg, nil
}

// SFTP is a FileSystem backed by one SSH transport and one SFTP
// session, reconnected transparently on transient failure.
type SFTP struct {
	opt Options

	mu    sync.Mutex
	sshC  *ssh.Client
	sftpC *sftp.Client
}

// New constructs an SFTP-backed FileSystem. The connection is
// established lazily on first use.
func New(opt Options) (*SFTP, error) {
	opt.setDefaults()
	if opt.Host == "" {
		return nil, fmt.Errorf("sftp: host is required")
	}
	return &SFTP{opt: opt}, nil
}

// String identifies this backend by host and root.
func (f *SFTP) String() string {
	return fmt.Sprintf("SFTP %s:%d/%s", f.opt.Host, f.opt.Port, f.opt.RootPath)
}

// IsReadOnly is always false for a plain SFTP backend.
func (f *SFTP) IsReadOnly() bool { return false }

// Close tears down the SFTP session and the underlying SSH transport,
// best-effort.
func (f *SFTP) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardownLocked()
}

func (f *SFTP) teardownLocked() {
	if f.sftpC != nil {
		_ = f.sftpC.Close()
		f.sftpC = nil
	}
	if f.sshC != nil {
		_ = f.sshC.Close()
		f.sshC = nil
	}
}

// getClient returns a live *sftp.Client, dialing a fresh SSH
// transport and opening a new SFTP session if none exists.
func (f *SFTP) getClient() (*sftp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sftpC != nil {
		if _, err := f.sftpC.Getwd(); err == nil {
			return f.sftpC, nil
		}
		f.teardownLocked()
	}
	cfg, err := f.opt.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", f.opt.Host, f.opt.Port)
	sshC, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial: %w", err)
	}
	sftpC, err := sftp.NewClient(sshC)
	if err != nil {
		_ = sshC.Close()
		return nil, fmt.Errorf("sftp: new client: %w", err)
	}
	f.sshC, f.sftpC = sshC, sftpC
	return sftpC, nil
}

func (f *SFTP) reconnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardownLocked()
}

func (f *SFTP) withClient(op func(c *sftp.Client) error) error {
	return vfs.Retry(vfs.DefaultMaxRetries, f.reconnect, func() (bool, error) {
		c, err := f.getClient()
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
	for _, sub := range []string{"connection", "broken pipe", "reset by peer", "use of closed", "eof"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func (f *SFTP) remotePath(p string) (string, error) {
	return vfs.Join(f.opt.RootPath, p)
}

func wirePath(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + p
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) || isSftpNotExist(err) {
		return fmt.Errorf("%v: %w", err, vfs.ErrNotExist)
	}
	return fmt.Errorf("%v: %w", err, vfs.ErrInaccessible)
}

func isSftpNotExist(err error) bool {
	se, ok := err.(*sftp.StatusError)
	if !ok {
		return false
	}
	return se.Code == uint32(sftp.ErrSSHFxNoSuchFile)
}

func pathErr(op, p string, sentinel error) error {
	return fmt.Errorf("%s %q: %w", op, p, sentinel)
}

// --- FileSystem surface ------------------------------------------------

// Exists reports whether p resolves to a file or directory.
func (f *SFTP) Exists(ctx context.Context, p string) (bool, error) {
	_, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsDir reports whether p resolves to a directory.
func (f *SFTP) IsDir(ctx context.Context, p string) (bool, error) {
	info, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// IsFile reports whether p resolves to a file.
func (f *SFTP) IsFile(ctx context.Context, p string) (bool, error) {
	info, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (f *SFTP) stat(p string) (os.FileInfo, error) {
	remote, err := f.remotePath(p)
	if err != nil {
		return nil, err
	}
	var info os.FileInfo
	err = f.withClient(func(c *sftp.Client) error {
		i, err := c.Stat(wirePath(remote))
		if err != nil {
			return err
		}
		info = i
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return info, nil
}

// GetModTime returns the modification time of an existing file or directory.
func (f *SFTP) GetModTime(ctx context.Context, p string) (time.Time, error) {
	info, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return time.Time{}, pathErr("getmtime", p, vfs.ErrNotExist)
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// GetSize returns the byte length of an existing file.
func (f *SFTP) GetSize(ctx context.Context, p string) (int64, error) {
	info, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return 0, pathErr("getsize", p, vfs.ErrNotExist)
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, pathErr("getsize", p, vfs.ErrNotFile)
	}
	return info.Size(), nil
}

// Stat combines GetModTime and GetSize.
func (f *SFTP) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return vfs.DefaultStat(ctx, f, p)
}

// ListDir lists p's children as full paths rooted at p.
func (f *SFTP) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
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

func (f *SFTP) listDirInto(dir string, recursive bool, out *[]string, maxEntries int) error {
	remote, err := f.remotePath(dir)
	if err != nil {
		return err
	}
	var infos []os.FileInfo
	err = f.withClient(func(c *sftp.Client) error {
		is, err := c.ReadDir(wirePath(remote))
		if err != nil {
			return err
		}
		infos = is
		return nil
	})
	if err != nil {
		return classify(err)
	}
	for _, info := range infos {
		childVp, err := vfs.Join(dir, info.Name())
		if err != nil {
			return err
		}
		*out = append(*out, childVp)
		if maxEntries > 0 && len(*out) >= maxEntries {
			return nil
		}
		if info.IsDir() && recursive {
			if err := f.listDirInto(childVp, true, out, maxEntries); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListFiles returns the full paths of files whose path starts with prefix.
func (f *SFTP) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, f, prefix)
}

// ListSubdirs returns the directory paths under p.
func (f *SFTP) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, f, p, recursive)
}

// IterateFiles lazily walks files under prefix.
func (f *SFTP) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, f, prefix, filter)
}

// Get returns the full contents of an existing file.
func (f *SFTP) Get(ctx context.Context, p string) ([]byte, error) {
	var buf strings.Builder
	if err := f.getInto(p, &buf); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// GetInto seeks stream to 0, then downloads p's contents into it.
func (f *SFTP) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	if err := vfs.RewindTo0(stream); err != nil {
		return err
	}
	return f.getInto(p, stream)
}

func (f *SFTP) getInto(p string, w io.Writer) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	err = f.withClient(func(c *sftp.Client) error {
		file, err := c.Open(wirePath(remote))
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = vfs.ChunkedCopy(w, file, -1, 0)
		return err
	})
	return classify(err)
}

// Set uploads content to p, creating parent directories as needed.
// content must be []byte or a vfs.Seeker positioned at 0.
func (f *SFTP) Set(ctx context.Context, p string, content any) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	if err := f.mkdirAll(parentOf(remote)); err != nil {
		return err
	}

	switch v := content.(type) {
	case []byte:
		_ = v
	case vfs.Seeker:
		if err := vfs.RequirePosition0(v); err != nil {
			return err
		}
	default:
		return pathErr("set", p, vfs.ErrInvalidContent)
	}

	err = f.withClient(func(c *sftp.Client) error {
		file, err := c.OpenFile(wirePath(remote), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		defer file.Close()
		switch v := content.(type) {
		case []byte:
			_, err = file.Write(v)
		case vfs.Seeker:
			if err := vfs.RewindTo0(v); err != nil {
				return err
			}
			_, err = io.Copy(file, vfs.NewCloseProtect(v))
		}
		return err
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

// mkdirAll creates dir and every missing ancestor.
func (f *SFTP) mkdirAll(dir string) error {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	err := f.withClient(func(c *sftp.Client) error {
		return c.MkdirAll(wirePath(dir))
	})
	return classify(err)
}

// Rm removes a file, or an empty directory.
func (f *SFTP) Rm(ctx context.Context, p string) error {
	remote, err := f.remotePath(p)
	if err != nil {
		return err
	}
	info, err := f.stat(p)
	if vfs.IsNotExist(err) {
		return pathErr("rm", p, vfs.ErrNotExist)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = f.withClient(func(c *sftp.Client) error {
			return c.RemoveDirectory(wirePath(remote))
		})
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "not empty") {
			return pathErr("rm", p, vfs.ErrDirNotEmpty)
		}
		return classify(err)
	}
	err = f.withClient(func(c *sftp.Client) error {
		return c.Remove(wirePath(remote))
	})
	return classify(err)
}

var _ vfs.FileSystem = (*SFTP)(nil)
