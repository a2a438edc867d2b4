// Package fs collects the filesystem drivers shipped with the kernel.
package fs

import (
	"github.com/brettbedarf/kvfs/internal/fs/procfs"
	"github.com/brettbedarf/kvfs/internal/fs/sqlfs"
	"github.com/brettbedarf/kvfs/internal/fs/tempfs"
	"github.com/brettbedarf/kvfs/internal/vfs"
)

// Builtins returns the built-in filesystem types in registration order.
// procfs reports on kernel and procs.
func Builtins(kernel procfs.Kernel, procs procfs.Processes) []vfs.FilesystemType {
	return []vfs.FilesystemType{
		tempfs.New(),
		procfs.New(kernel, procs),
		sqlfs.New(),
	}
}
