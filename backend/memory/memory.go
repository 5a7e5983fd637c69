// Package memory provides an in-process FileSystem backed by a tree
// of nodes, suitable for tests and as a fast front for wrap/cached.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/brindlefs/vfs"
)

// node is either a directory (children != nil) or a file (data set,
// children nil).
type node struct {
	mu       sync.RWMutex
	children map[string]*node // nil for files
	data     []byte
	modTime  time.Time
}

func newDirNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) isDir() bool {
	return n.children != nil
}

// root is a process-wide tree of nodes, so two Memory instances with
// the same rootPath address the same underlying storage. It is
// lazily initialized on first use.
var (
	globalMu   sync.Mutex
	globalRoot *node
)

func getGlobalRoot() *node {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRoot == nil {
		globalRoot = newDirNode()
	}
	return globalRoot
}

// randomSuffix mints a short random identifier used to anchor an
// unrooted Memory instance under its own /tmp/<random> subtree, so
// unrelated anonymous instances don't collide.
func randomSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// Memory is a tree-of-nodes FileSystem. A freshly constructed instance
// with no rootPath mints a random child under "/tmp" and anchors
// there; one constructed with an explicit rootPath addresses whatever
// already lives at that path in the process-wide tree.
type Memory struct {
	rootPath []string // components of the anchor, relative to the process-wide root
	owns     bool      // true if this instance minted its own anchor and should clear it on teardown
}

// New anchors a Memory backend at rootPath (relative to the
// process-wide tree). An empty rootPath mints a random anchor under
// "/tmp".
func New(rootPath string) (*Memory, error) {
	owns := false
	if rootPath == "" {
		rootPath = "tmp/" + randomSuffix()
		owns = true
	}
	parts, err := vfs.Split(rootPath)
	if err != nil {
		return nil, err
	}
	m := &Memory{rootPath: parts, owns: owns}
	if _, err := m.walk(parts, true); err != nil {
		return nil, err
	}
	return m, nil
}

// String identifies this backend by its anchor path.
func (m *Memory) String() string {
	return fmt.Sprintf("Memory root '%s'", joinParts(m.rootPath))
}

// IsReadOnly is always false for a plain Memory backend.
func (m *Memory) IsReadOnly() bool { return false }

// Close clears this instance's anchor subtree if it owns it (i.e. it
// was constructed without an explicit rootPath). Instances that
// address a caller-provided rootPath do not clear anything, since
// other instances may share that subtree.
func (m *Memory) Close() {
	if !m.owns {
		return
	}
	n, err := m.walk(m.rootPath[:len(m.rootPath)-1], false)
	if err != nil || n == nil {
		return
	}
	n.mu.Lock()
	delete(n.children, m.rootPath[len(m.rootPath)-1])
	n.mu.Unlock()
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += vfs.Separator
		}
		out += p
	}
	return out
}

// walk navigates from the process-wide root through the given
// absolute (relative-to-global-root) parts, returning the node found.
// If createAsWeGo is set, missing directory nodes are created lazily
// along the way (used by Set to materialize parent directories);
// otherwise a missing component returns (nil, nil).
func (m *Memory) walk(fullParts []string, createAsWeGo bool) (*node, error) {
	cur := getGlobalRoot()
	for _, name := range fullParts {
		cur.mu.Lock()
		if !cur.isDir() {
			cur.mu.Unlock()
			return nil, vfs.ErrNotDir
		}
		next, ok := cur.children[name]
		if !ok {
			if !createAsWeGo {
				cur.mu.Unlock()
				return nil, nil
			}
			next = newDirNode()
			cur.children[name] = next
		}
		cur.mu.Unlock()
		cur = next
	}
	return cur, nil
}

// resolve walks from this instance's anchor through p's components.
func (m *Memory) resolve(p string, createAsWeGo bool) (*node, error) {
	parts, err := vfs.Split(p)
	if err != nil {
		return nil, err
	}
	full := append(append([]string{}, m.rootPath...), parts...)
	return m.walk(full, createAsWeGo)
}

// Exists reports whether p resolves to a file or directory.
func (m *Memory) Exists(ctx context.Context, p string) (bool, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return false, err
	}
	return n != nil, nil
}

// IsDir reports whether p resolves to a directory.
func (m *Memory) IsDir(ctx context.Context, p string) (bool, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return false, err
	}
	return n != nil && n.isDir(), nil
}

// IsFile reports whether p resolves to a file.
func (m *Memory) IsFile(ctx context.Context, p string) (bool, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return false, err
	}
	return n != nil && !n.isDir(), nil
}

// GetModTime returns the modification time of an existing file or directory.
func (m *Memory) GetModTime(ctx context.Context, p string) (time.Time, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return time.Time{}, err
	}
	if n == nil {
		return time.Time{}, pathErr("getmtime", p, vfs.ErrNotExist)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.modTime, nil
}

// GetSize returns the byte length of an existing file.
func (m *Memory) GetSize(ctx context.Context, p string) (int64, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, pathErr("getsize", p, vfs.ErrNotExist)
	}
	if n.isDir() {
		return 0, pathErr("getsize", p, vfs.ErrNotFile)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(len(n.data)), nil
}

// Stat combines GetModTime and GetSize.
func (m *Memory) Stat(ctx context.Context, p string) (vfs.Info, error) {
	return vfs.DefaultStat(ctx, m, p)
}

// ListDir lists p's children as full paths rooted at p.
func (m *Memory) ListDir(ctx context.Context, p string, recursive bool, maxEntries int) ([]string, error) {
	norm, err := vfs.Normalize(p)
	if err != nil {
		return nil, err
	}
	n, err := m.resolve(norm, false)
	if err != nil {
		return nil, err
	}
	if n == nil || !n.isDir() {
		return nil, pathErr("listdir", p, vfs.ErrNotDir)
	}
	var out []string
	var walkDir func(base string, n *node) bool // returns false once truncated
	walkDir = func(base string, n *node) bool {
		n.mu.RLock()
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		children := n.children
		n.mu.RUnlock()
		sort.Strings(names)
		for _, name := range names {
			child := children[name]
			full, _ := vfs.Join(base, name)
			out = append(out, full)
			if maxEntries > 0 && len(out) >= maxEntries {
				return false
			}
			if child.isDir() && recursive {
				if !walkDir(full, child) {
					return false
				}
			}
		}
		return true
	}
	walkDir(norm, n)
	if maxEntries > 0 && len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

// ListFiles returns the full paths of files whose path starts with prefix.
func (m *Memory) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	return vfs.DefaultListFiles(ctx, m, prefix)
}

// ListSubdirs returns the directory paths under p.
func (m *Memory) ListSubdirs(ctx context.Context, p string, recursive bool) ([]string, error) {
	return vfs.DefaultListSubdirs(ctx, m, p, recursive)
}

// IterateFiles lazily walks files under prefix.
func (m *Memory) IterateFiles(ctx context.Context, prefix string, filter func(string) bool) (vfs.FileIterator, error) {
	return vfs.DefaultIterateFiles(ctx, m, prefix, filter)
}

// Get returns the full contents of an existing file.
func (m *Memory) Get(ctx context.Context, p string) ([]byte, error) {
	n, err := m.resolve(p, false)
	if err != nil {
		return nil, err
	}
	if n == nil || n.isDir() {
		return nil, pathErr("get", p, vfs.ErrNotExist)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// GetInto fills stream with the contents of p at the stream's current
// position. Unlike the disk/remote backends, which rewind to 0 first,
// this backend writes at whatever position the caller's stream is
// already at — a deliberate behavioral difference preserved from the
// source implementation (see Open Question in DESIGN.md).
func (m *Memory) GetInto(ctx context.Context, p string, stream vfs.Seeker) error {
	n, err := m.resolve(p, false)
	if err != nil {
		return err
	}
	if n == nil || n.isDir() {
		return pathErr("getinto", p, vfs.ErrNotExist)
	}
	n.mu.RLock()
	data := append([]byte{}, n.data...)
	n.mu.RUnlock()
	_, err = vfs.ChunkedCopy(stream, bytes.NewReader(data), -1, 0)
	return err
}

// Set creates or overwrites p with content, which must be []byte or a
// Seeker positioned at 0. Parent directories are created as needed.
func (m *Memory) Set(ctx context.Context, p string, content any) error {
	parts, err := vfs.Split(p)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return pathErr("set", p, vfs.ErrNotFile)
	}
	parentParts := parts[:len(parts)-1]
	name := parts[len(parts)-1]
	parentFull := append(append([]string{}, m.rootPath...), parentParts...)
	parent, err := m.walk(parentFull, true)
	if err != nil {
		return err
	}

	var data []byte
	switch v := content.(type) {
	case []byte:
		data = v
	case vfs.Seeker:
		if err := vfs.RequirePosition0(v); err != nil {
			return err
		}
		var buf bytes.Buffer
		if _, err := vfs.ChunkedCopy(&buf, v, -1, 0); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		return pathErr("set", p, vfs.ErrInvalidContent)
	}

	parent.mu.Lock()
	parent.children[name] = &node{data: data, modTime: time.Now()}
	parent.mu.Unlock()
	return nil
}

// Rm removes a file, or an empty directory.
func (m *Memory) Rm(ctx context.Context, p string) error {
	parts, err := vfs.Split(p)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return pathErr("rm", p, vfs.ErrNotExist)
	}
	parentParts := parts[:len(parts)-1]
	name := parts[len(parts)-1]
	parentFull := append(append([]string{}, m.rootPath...), parentParts...)
	parent, err := m.walk(parentFull, false)
	if err != nil {
		return err
	}
	if parent == nil {
		return pathErr("rm", p, vfs.ErrNotExist)
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	target, ok := parent.children[name]
	if !ok {
		return pathErr("rm", p, vfs.ErrNotExist)
	}
	if target.isDir() {
		target.mu.RLock()
		empty := len(target.children) == 0
		target.mu.RUnlock()
		if !empty {
			return pathErr("rm", p, vfs.ErrDirNotEmpty)
		}
	}
	delete(parent.children, name)
	return nil
}

func pathErr(op, p string, sentinel error) error {
	return fmt.Errorf("%s %q: %w", op, p, sentinel)
}

var _ vfs.FileSystem = (*Memory)(nil)
