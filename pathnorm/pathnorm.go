// Package pathnorm canonicalizes the paths handed over by the
// driver into the single form used by the bridge and by the
// providers.
//
// A normalized path is slash separated, always rooted at "/",
// free of "." and ".." elements and duplicated separators, and
// ends with "/" when it refers to a directory. The root itself
// is "/" in both forms.
package pathnorm

import (
	"path"
	"strings"
)

// Separator is the canonical path separator.
const Separator = '/'

const root = "/"

// Normalize canonicalizes the raw path. It never fails, and
// the empty string is the root.
func Normalize(raw string, isDir bool) string {
	p := strings.ReplaceAll(raw, `\`, root)
	p = path.Clean(root + p)
	if isDir && p != root {
		p += root
	}
	return p
}

// Key is the directory-agnostic form of a normalized path,
// used for indexing files and directories in one namespace.
func Key(p string) string {
	return Normalize(p, false)
}

// TrimLeadingSeparator removes every leading separator.
func TrimLeadingSeparator(p string) string {
	return strings.TrimLeft(p, `/\`)
}

// TrimTrailingSeparator removes every trailing separator.
func TrimTrailingSeparator(p string) string {
	return strings.TrimRight(p, `/\`)
}

// LastSeparatorIndex returns the index of the last separator
// of the path, ignoring a trailing one, or -1 if none.
func LastSeparatorIndex(p string) int {
	return strings.LastIndexAny(TrimTrailingSeparator(p), `/\`)
}

// Parent returns the normalized directory containing p. The
// parent of the root is the root.
func Parent(p string) string {
	key := Key(p)
	if key == root {
		return root
	}
	return Normalize(key[:LastSeparatorIndex(key)], true)
}

// Base returns the last element of the path, or the empty
// string for the root.
func Base(p string) string {
	key := Key(p)
	if key == root {
		return ""
	}
	return key[LastSeparatorIndex(key)+1:]
}

// Join appends the name to the directory and normalizes it.
func Join(dir, name string, isDir bool) string {
	return Normalize(Key(dir)+root+name, isDir)
}

// IsChild tells whether the key is an immediate child of the
// directory. Both arguments are taken in any normalized form.
func IsChild(dir, p string) bool {
	parent, key := Key(dir), Key(p)
	if key == root || key == parent {
		return false
	}
	return Parent(key) == Normalize(parent, true)
}
