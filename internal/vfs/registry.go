package vfs

import (
	"fmt"

	"github.com/brettbedarf/kvfs/internal/util"
)

// FilesystemType is a driver registered under a unique name.
type FilesystemType interface {
	Name() string
	// ReadSuper opens one instance of the filesystem on device. The meaning
	// of device is driver specific and may be empty.
	ReadSuper(device string) (Superblock, error)
}

// Superblock is a driver's handle to one mounted instance. Superblocks that
// implement io.Closer are closed on Shutdown.
type Superblock interface {
	// Spawn materializes the instance's root node.
	Spawn(name string, mode Mode) (*Node, error)
}

// RegisterFS adds a filesystem type. Names must be unique and the registry is
// bounded by Limits.MaxFSTypes.
func (v *VFS) RegisterFS(fs FilesystemType) error {
	logger := util.GetLogger("VFS.RegisterFS")

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.getFS(fs.Name()) != nil {
		return fmt.Errorf("%w: filesystem type %q", EEXIST, fs.Name())
	}
	for i := range v.types {
		if v.types[i] == nil {
			v.types[i] = fs
			logger.Debug().Str("type", fs.Name()).Int("slot", i).Msg("Filesystem type registered")
			return nil
		}
	}
	return fmt.Errorf("%w: filesystem registry full (%d types)", ENOMEM, len(v.types))
}

// Filesystems returns the registered type names in registration order.
func (v *VFS) Filesystems() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.types))
	for _, fs := range v.types {
		if fs != nil {
			names = append(names, fs.Name())
		}
	}
	return names
}

// getFS must be called with v.mu held.
func (v *VFS) getFS(name string) FilesystemType {
	for _, fs := range v.types {
		if fs != nil && fs.Name() == name {
			return fs
		}
	}
	return nil
}
