package vfs

import (
	"fmt"
	"strings"

	"github.com/brettbedarf/kvfs/internal/util"
)

// MaxSymlinkTraversals bounds the number of symlinks followed by one lookup.
const MaxSymlinkTraversals = 40

// lookup walks a canonical path from the root. Mount stubs are replaced by
// the mounted root as soon as they are reached; symlinks are followed from
// the root when a path component has to be looked up beneath them. A
// trailing symlink is returned unresolved.
//
// The caller must hold v.mu.
func (v *VFS) lookup(path string) (*Node, error) {
	traversals := 0
	return v.lookupAt(path, &traversals)
}

func (v *VFS) lookupAt(path string, traversals *int) (*Node, error) {
	logger := util.GetLogger("VFS.lookup")
	logger.Trace().Str("path", path).Msg("lookup")

	if v.root == nil {
		return nil, fmt.Errorf("%w: root filesystem not mounted", EFAULT)
	}

	node := v.root
	for _, token := range strings.Split(path, Separator) {
		if token == "" {
			continue
		}

		var err error
		if node, err = v.followAt(node, traversals); err != nil {
			return nil, err
		}
		if !node.IsDir() || node.ops == nil {
			return nil, fmt.Errorf("%w: %s (at %q)", ENOTDIR, path, node.name)
		}

		child := node.ops.Lookup(node, token)
		if child == nil {
			return nil, fmt.Errorf("%w: %s", ENOENT, path)
		}
		if child.Kind() == KindMount {
			root, ok := child.MountedRoot()
			if !ok {
				return nil, fmt.Errorf("%w: dangling mount at %q", ENOENT, token)
			}
			child = root
		}
		node = child
	}
	return node, nil
}

// followAt resolves node while it is a symlink, sharing the traversal
// budget of the enclosing lookup. The caller must hold v.mu.
func (v *VFS) followAt(node *Node, traversals *int) (*Node, error) {
	for node.Kind() == KindSymlink {
		*traversals++
		if *traversals > MaxSymlinkTraversals {
			return nil, fmt.Errorf("%w: too many levels of symbolic links", ELOOP)
		}
		target, ok := node.SymlinkTarget()
		if !ok {
			return nil, fmt.Errorf("%w: symlink %q has no target", EINVAL, node.name)
		}
		next, err := v.lookupAt(target, traversals)
		if err != nil {
			return nil, err
		}
		node = next
	}
	return node, nil
}

// resolve looks up path and, when follow is set, dereferences a trailing
// symlink. The caller must hold v.mu.
func (v *VFS) resolve(path string, follow bool) (*Node, error) {
	traversals := 0
	node, err := v.lookupAt(path, &traversals)
	if err != nil || !follow {
		return node, err
	}
	return v.followAt(node, &traversals)
}
