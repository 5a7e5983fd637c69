package vfs

import (
	"context"
	"strings"
)

// DefaultStat combines GetModTime and GetSize, for backends with no
// cheaper combined call.
func DefaultStat(ctx context.Context, f FileSystem, p string) (Info, error) {
	mtime, err := f.GetModTime(ctx, p)
	if err != nil {
		return Info{}, err
	}
	size, err := f.GetSize(ctx, p)
	if err != nil {
		return Info{}, err
	}
	return Info{ModTime: mtime, Size: size}, nil
}

// DefaultListSubdirs filters ListDir down to directory entries, for
// backends with no cheaper directories-only listing.
func DefaultListSubdirs(ctx context.Context, f FileSystem, p string, recursive bool) ([]string, error) {
	entries, err := f.ListDir(ctx, p, recursive, 0)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		isDir, err := f.IsDir(ctx, e)
		if err != nil {
			return nil, err
		}
		if isDir {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// DefaultListFiles walks the directory containing prefix's last
// component (or the closest existing ancestor directory), lists it
// recursively, and keeps the entries that are files starting with
// prefix. This mirrors the teacher's default behavior for backends
// (like disk and memory) with no native prefix-scan primitive.
func DefaultListFiles(ctx context.Context, f FileSystem, prefix string) ([]string, error) {
	norm, err := Normalize(prefix)
	if err != nil {
		return nil, err
	}
	searchRoot, err := closestExistingAncestorDir(ctx, f, norm)
	if err != nil {
		return nil, err
	}
	entries, err := f.ListDir(ctx, searchRoot, true, 0)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !HasPrefixStr(e, norm) {
			continue
		}
		isFile, err := f.IsFile(ctx, e)
		if err != nil {
			return nil, err
		}
		if isFile {
			out = append(out, e)
		}
	}
	return out, nil
}

// HasPrefixStr is a plain string-prefix test (unlike path.HasPrefix,
// this one is deliberately not component-aware: ListFiles matches on
// textual prefix, e.g. "root/lvl1/f3.t" matches "root/lvl1/f3.txt").
func HasPrefixStr(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// closestExistingAncestorDir finds the closest existing ancestor
// directory of norm, walking up from its parent. Root ("") always
// qualifies.
func closestExistingAncestorDir(ctx context.Context, f FileSystem, norm string) (string, error) {
	dir, err := Dir(norm)
	if err != nil {
		return "", err
	}
	for {
		if dir == "" {
			return "", nil
		}
		isDir, err := f.IsDir(ctx, dir)
		if err != nil {
			return "", err
		}
		if isDir {
			return dir, nil
		}
		dir, err = Dir(dir)
		if err != nil {
			return "", err
		}
	}
}

// DefaultIterateFiles adapts ListFiles's batch result (optionally
// passed through filter) to a lazy FileIterator, for backends with no
// native streaming walk.
func DefaultIterateFiles(ctx context.Context, f FileSystem, prefix string, filter func(string) bool) (FileIterator, error) {
	paths, err := f.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		if filter != nil && !filter(p) {
			continue
		}
		info, err := f.Stat(ctx, p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, FileEntry{Path: p, ModTime: info.ModTime, Size: info.Size})
	}
	return NewSliceIterator(entries), nil
}
