package vfs_test

import (
	"testing"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/fs/tempfs"
	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/require"
)

// newVFS returns a VFS with tempfs mounted on "/" and a process to issue
// syscalls from. mutate may adjust the default config first.
func newVFS(t *testing.T, mutate func(*config.Config)) (*vfs.VFS, *process.Process) {
	t.Helper()

	cfg := config.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	v := vfs.New(cfg)
	require.NoError(t, v.RegisterFS(tempfs.New()))
	require.NoError(t, v.MountFS(nil, "/", tempfs.Name, ""))
	return v, process.NewTable(v).Spawn("test")
}

// writeFile creates path and writes data through a descriptor.
func writeFile(t *testing.T, v *vfs.VFS, p *process.Process, path string, data []byte) {
	t.Helper()

	fd, err := v.Open(p, path, vfs.OWrOnly|vfs.OCreat)
	require.NoError(t, err)
	n, err := v.Write(p, fd, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, v.Close(p, fd))
}
