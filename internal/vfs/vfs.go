package vfs

import (
	"io"
	"sync"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/tidwall/btree"
)

// Caller is the execution context a syscall runs on behalf of. It is owned
// by the process subsystem; the VFS only reads the working directory and
// reads/writes descriptor slots.
type Caller interface {
	PID() int
	Cwd() string
	SetCwd(path string)
	Files() *FileTable
}

// VFS is the unified namespace. A single mutex serializes every operation
// that resolves or mutates the node graph or the mount table; lookup and
// canonicalize never lock themselves.
type VFS struct {
	mu     sync.Mutex
	limits config.Limits
	types  []FilesystemType // fixed capacity, nil marks a free slot
	root   *Node
	mounts *btree.Map[string, *Mount]
}

// New returns an empty VFS with no registered filesystem types and no root.
func New(cfg *config.Config) *VFS {
	limits := cfg.Limits
	return &VFS{
		limits: limits,
		types:  make([]FilesystemType, limits.MaxFSTypes),
		mounts: btree.NewMap[string, *Mount](0),
	}
}

// Limits returns the limits the VFS was created with.
func (v *VFS) Limits() config.Limits {
	return v.limits
}

// NewFileTable returns a descriptor table sized for this VFS.
func (v *VFS) NewFileTable() *FileTable {
	return NewFileTable(v.limits.MaxOpenFiles)
}

// Root returns the root node, or nil before the first mount onto "/".
func (v *VFS) Root() *Node {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.root
}

// Shutdown releases superblocks holding external resources.
func (v *VFS) Shutdown() error {
	logger := util.GetLogger("VFS.Shutdown")

	v.mu.Lock()
	defer v.mu.Unlock()

	var firstErr error
	v.mounts.Reverse(func(path string, m *Mount) bool {
		if c, ok := m.super.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("Failed to close superblock")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return true
	})
	v.mounts.Clear()
	return firstErr
}

// noFiles stands in for the descriptor table of a nil caller.
var noFiles = NewFileTable(0)

func filesOf(c Caller) *FileTable {
	if c == nil {
		return noFiles
	}
	return c.Files()
}

func pidOf(c Caller) int {
	if c == nil {
		return 0
	}
	return c.PID()
}
