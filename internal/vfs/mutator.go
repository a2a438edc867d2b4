package vfs

import (
	"fmt"
	"io"
	"time"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/google/uuid"
)

// Mount describes one filesystem instance attached to the namespace.
type Mount struct {
	ID        uuid.UUID
	Path      string
	Type      string
	Device    string
	MountedAt time.Time

	super Superblock
	root  *Node
}

// Root returns the root node of the mounted instance.
func (m *Mount) Root() *Node { return m.root }

// createNode links a new node at the canonical path. The parent may be
// reached through a symlink. The caller must hold v.mu.
func (v *VFS) createNode(path string, mode Mode, fops FileOps, payload any) (*Node, error) {
	logger := util.GetLogger("VFS.createNode")
	logger.Debug().Str("path", path).Stringer("mode", mode).Msg("create_vfs_node")

	if v.root == nil {
		return nil, fmt.Errorf("%w: root filesystem not mounted", EFAULT)
	}
	dir, name := splitLast(path)
	if name == "" {
		return nil, fmt.Errorf("%w: %q has no final segment", EINVAL, path)
	}

	parent, err := v.resolve(dir, true)
	if err != nil {
		return nil, err
	}
	if !parent.IsDir() || parent.ops == nil {
		return nil, fmt.Errorf("%w: %s", ENOTDIR, dir)
	}
	if parent.ops.Lookup(parent, name) != nil {
		return nil, fmt.Errorf("%w: %s", EEXIST, path)
	}
	return parent.ops.CreateNode(parent, name, mode, fops, payload)
}

// CreateNode is the generic node constructor used by device registration and
// other in-kernel producers of nodes.
func (v *VFS) CreateNode(c Caller, path string, mode Mode, fops FileOps, payload any) (*Node, error) {
	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.createNode(canonical, mode, fops, payload)
}

// Mkdir creates a directory.
func (v *VFS) Mkdir(c Caller, path string) error {
	logger := util.GetLogger("VFS.Mkdir")
	logger.Debug().Int("pid", pidOf(c)).Str("path", path).Msg("mkdir")

	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	_, err = v.createNode(canonical, ModeDir|0o755, nil, nil)
	return err
}

// Symlink creates a symlink at path pointing at target. The target is stored
// in canonical form, so the link does not depend on the working directory it
// was created from.
func (v *VFS) Symlink(c Caller, path, target string) error {
	logger := util.GetLogger("VFS.Symlink")
	logger.Debug().Int("pid", pidOf(c)).Str("path", path).Str("target", target).Msg("symlink")

	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return err
	}
	canonicalTarget, err := v.canonicalize(c, target)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	_, err = v.createNode(canonical, ModeSymlink|0o777, nil, canonicalTarget)
	return err
}

// MountFS mounts a new instance of the named filesystem type at path. The
// first mount onto "/" becomes the root; any later one fails with EBUSY.
func (v *VFS) MountFS(c Caller, path, fsType, device string) error {
	logger := util.GetLogger("VFS.MountFS")

	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fs := v.getFS(fsType)
	if fs == nil {
		return fmt.Errorf("%w: filesystem type %q not registered", ENOENT, fsType)
	}
	isRoot := canonical == Separator
	if isRoot && v.root != nil {
		return fmt.Errorf("%w: root already mounted", EBUSY)
	}
	if !isRoot && v.root == nil {
		return fmt.Errorf("%w: root filesystem not mounted", EFAULT)
	}

	super, err := fs.ReadSuper(device)
	if err != nil {
		return fmt.Errorf("read superblock of %s on %q: %w", fsType, device, err)
	}
	localRoot, err := super.Spawn(Separator, ModeDir|0o755)
	if err != nil {
		closeSuper(super)
		return err
	}

	if isRoot {
		v.root = localRoot
	} else if _, err := v.createNode(canonical, ModeMount|0o755, nil, localRoot); err != nil {
		closeSuper(super)
		return err
	}

	m := &Mount{
		ID:        uuid.New(),
		Path:      canonical,
		Type:      fsType,
		Device:    device,
		MountedAt: time.Now(),
		super:     super,
		root:      localRoot,
	}
	v.mounts.Set(canonical, m)
	logger.Info().Str("path", canonical).Str("type", fsType).Str("device", device).
		Str("id", m.ID.String()).Msg("Filesystem mounted")
	return nil
}

// Mounts returns the active mounts ordered by path.
func (v *VFS) Mounts() []Mount {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Mount, 0, v.mounts.Len())
	v.mounts.Scan(func(_ string, m *Mount) bool {
		out = append(out, *m)
		return true
	})
	return out
}

func closeSuper(super Superblock) {
	if c, ok := super.(io.Closer); ok {
		c.Close() // nolint:errcheck
	}
}
