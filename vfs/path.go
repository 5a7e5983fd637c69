package vfs

import (
	"strings"
)

// Normalize strips leading/trailing separators, collapses redundant
// separators and "." segments, and rejects any path that would
// resolve above the root. The empty string and "/" both normalize to
// "" (the root).
func Normalize(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", Separator)
	parts := strings.Split(p, Separator)
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", pathErr("normalize", p, ErrInvalidPath)
		default:
			out = append(out, part)
		}
	}
	result := strings.Join(out, Separator)
	if result == "." {
		result = ""
	}
	return result, nil
}

// Split normalizes p and returns its nonempty components in order. The
// root normalizes to an empty slice.
func Split(p string) ([]string, error) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, err
	}
	if norm == "" {
		return nil, nil
	}
	return strings.Split(norm, Separator), nil
}

// Join strips leading/trailing separators from each of parts,
// concatenates them onto root with Separator, and normalizes the
// result.
func Join(root string, parts ...string) (string, error) {
	pieces := make([]string, 0, len(parts)+1)
	if root != "" {
		pieces = append(pieces, strings.Trim(root, Separator))
	}
	for _, part := range parts {
		part = strings.Trim(part, Separator)
		if part == "" {
			continue
		}
		pieces = append(pieces, part)
	}
	return Normalize(strings.Join(pieces, Separator))
}

// Dir returns the parent path of p (normalized). The parent of the
// root, or of a single top-level component, is the root ("").
func Dir(p string) (string, error) {
	parts, err := Split(p)
	if err != nil {
		return "", err
	}
	if len(parts) <= 1 {
		return "", nil
	}
	return strings.Join(parts[:len(parts)-1], Separator), nil
}

// Base returns the last component of p, or "" for the root.
func Base(p string) (string, error) {
	parts, err := Split(p)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", nil
	}
	return parts[len(parts)-1], nil
}

// HasPrefix reports whether p starts with prefix at a component
// boundary, or is exactly equal to it. Both are assumed already
// normalized (callers normalize at the API boundary).
func HasPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+Separator)
}
