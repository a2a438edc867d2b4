// Package tempfs is an in-memory filesystem. Directory entries live in a
// per-instance index keyed by parent inode and name; file contents are byte
// slices attached to the node.
package tempfs

import (
	"fmt"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// Name is the filesystem type name tempfs registers under.
const Name = "tempfs"

// FS is the tempfs filesystem type.
type FS struct{}

// New returns the tempfs filesystem type.
func New() *FS {
	return &FS{}
}

func (*FS) Name() string { return Name }

// ReadSuper returns a new empty instance. The device is ignored.
func (*FS) ReadSuper(device string) (vfs.Superblock, error) {
	logger := util.GetLogger("TempFS.ReadSuper")
	logger.Debug().Str("device", device).Msg("New tempfs instance")

	sb := &Superblock{index: xsync.NewMap[entryKey, *vfs.Node]()}
	sb.ops = &dirOps{sb: sb}
	return sb, nil
}

type entryKey struct {
	parent uint64
	name   string
}

// Superblock is one tempfs instance.
type Superblock struct {
	index *xsync.Map[entryKey, *vfs.Node]
	ops   *dirOps
}

// Spawn creates the instance root.
func (sb *Superblock) Spawn(name string, mode vfs.Mode) (*vfs.Node, error) {
	return vfs.NewNode(name, mode, sb.ops, nil, nil), nil
}

// Entries returns the number of nodes linked below the root.
func (sb *Superblock) Entries() int {
	return sb.index.Size()
}

type dirOps struct {
	sb *Superblock
}

func (o *dirOps) Lookup(parent *vfs.Node, name string) *vfs.Node {
	n, _ := o.sb.index.Load(entryKey{parent.Ino(), name})
	return n
}

// CreateNode links a new node under parent. Directories get tempfs
// directory operations; regular files created without file operations are
// backed by an in-memory blob.
func (o *dirOps) CreateNode(parent *vfs.Node, name string, mode vfs.Mode, fops vfs.FileOps, payload any) (*vfs.Node, error) {
	logger := util.GetLogger("TempFS.CreateNode")

	var ops vfs.NodeOps
	switch mode.Kind() {
	case vfs.KindDirectory:
		ops = o
	case vfs.KindFile:
		if fops == nil {
			fops = blobOps{}
			payload = &blob{}
		}
	}

	n := vfs.NewNode(name, mode, ops, fops, payload)
	if _, loaded := o.sb.index.LoadOrStore(entryKey{parent.Ino(), name}, n); loaded {
		return nil, fmt.Errorf("%w: %s", vfs.EEXIST, name)
	}
	parent.AddChild(n)

	logger.Trace().Str("name", name).Uint64("parent", parent.Ino()).Uint64("ino", n.Ino()).Msg("Node created")
	return n, nil
}
