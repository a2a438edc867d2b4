package vfs

import (
	"fmt"
	"strings"
)

const (
	Separator  = "/"
	CurrentDir = "."
	ParentDir  = ".."
)

// Canonicalize turns raw into an absolute path with "." and ".." resolved.
// Relative paths are resolved against cwd. Ascending past the root clamps at
// the root. The result, and the number of segments, are bounded by maxLen and
// maxDepth; exceeding either fails with ENAMETOOLONG.
func Canonicalize(raw, cwd string, maxLen, maxDepth int) (string, error) {
	ring := NewRing[string](maxDepth)

	if !strings.HasPrefix(raw, Separator) {
		if err := pushSegments(ring, cwd); err != nil {
			return "", err
		}
	}
	if err := pushSegments(ring, raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(Separator)
	separate := false
	for {
		part, ok := ring.PopFront()
		if !ok {
			break
		}
		if separate {
			b.WriteString(Separator)
		}
		b.WriteString(part)
		// one byte is reserved for the terminator of the kernel buffer
		if b.Len() >= maxLen {
			return "", fmt.Errorf("%w: path exceeds %d bytes", ENAMETOOLONG, maxLen-1)
		}
		separate = true
	}
	return b.String(), nil
}

func pushSegments(ring *Ring[string], path string) error {
	for _, token := range strings.Split(path, Separator) {
		switch token {
		case "", CurrentDir:
			continue
		case ParentDir:
			ring.PopBack()
		default:
			if !ring.Push(token) {
				return fmt.Errorf("%w: more than %d path segments", ENAMETOOLONG, ring.Cap())
			}
		}
	}
	return nil
}

// splitLast splits a canonical path into its parent directory and final
// segment. The parent of a top-level entry is the root.
func splitLast(path string) (dir, name string) {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return "", path
	}
	dir, name = path[:i], path[i+1:]
	if dir == "" {
		dir = Separator
	}
	return dir, name
}

// canonicalize resolves raw against the caller's working directory using the
// configured limits.
func (v *VFS) canonicalize(c Caller, raw string) (string, error) {
	cwd := Separator
	if c != nil {
		cwd = c.Cwd()
	}
	return Canonicalize(raw, cwd, v.limits.MaxPathLength, v.limits.MaxPathDepth)
}
