package boot_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/boot"
	"github.com/brettbedarf/kvfs/internal/fs/devfs"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKernel(t *testing.T, mutate func(*config.Config)) (*boot.Kernel, *bytes.Buffer) {
	t.Helper()

	cfg := config.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	screen := &bytes.Buffer{}
	k, err := boot.NewKernel(cfg, devfs.Console{Screen: screen})
	require.NoError(t, err)
	t.Cleanup(func() { k.Shutdown() }) // nolint:errcheck
	return k, screen
}

func listNames(t *testing.T, k *boot.Kernel, path string) []string {
	t.Helper()

	entries, err := k.VFS.ReadDir(k.Init, path)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestNewKernel_DefaultLayout(t *testing.T) {
	t.Parallel()
	k, _ := newKernel(t, nil)

	assert.Equal(t, []string{"dev", "mount", "proc"}, listNames(t, k, "/"))
	assert.Equal(t, []string{"null", "zero", "urandom", "serial", "screen", "stat_mem"}, listNames(t, k, "/dev"))
	assert.Equal(t, []string{"tempfs", "procfs", "sqlfs"}, k.VFS.Filesystems())

	mounts := k.VFS.Mounts()
	require.Len(t, mounts, 2)
	assert.Equal(t, "/", mounts[0].Path)
	assert.Equal(t, config.DefaultRootFS, mounts[0].Type)
	assert.Equal(t, "/proc", mounts[1].Path)
	assert.Equal(t, "procfs", mounts[1].Type)
	assert.Equal(t, 1, k.Init.PID())
	assert.Equal(t, "init", k.Init.Name())
}

func TestNewKernel_ProcFiles(t *testing.T) {
	t.Parallel()
	k, _ := newKernel(t, nil)

	data, err := k.ReadFile("/proc/filesystems", 1024)
	require.NoError(t, err)
	assert.Equal(t, "tempfs\nprocfs\nsqlfs\n", string(data))

	data, err = k.ReadFile("/proc/mounts", 1024)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "none / tempfs "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "none /proc procfs "), lines[1])

	data, err = k.ReadFile("/proc/1/status", 1024)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Name:\tinit\n")
}

func TestNewKernel_CustomLayout(t *testing.T) {
	t.Parallel()
	k, _ := newKernel(t, func(c *config.Config) {
		c.Boot.RootFS = "sqlfs"
		c.Boot.Dirs = []string{"/dev", "/mount", "/mount/data", "/home"}
		c.Boot.Mounts = append(c.Boot.Mounts, config.MountSpec{Path: "/mount/data/tmp", Type: "tempfs"})
		c.Boot.Symlinks = []config.SymlinkSpec{
			{Path: "/tmp", Target: "/mount/data/tmp"},
			{Path: "/home/screen", Target: "/dev/screen"},
		}
	})

	assert.Equal(t, "sqlfs", k.VFS.Mounts()[0].Type)
	require.NoError(t, k.WriteFile("/tmp/note", []byte("scratch")))
	data, err := k.ReadFile("/mount/data/tmp/note", 64)
	require.NoError(t, err)
	assert.Equal(t, "scratch", string(data))

	target, err := k.VFS.Readlink(k.Init, "/home/screen")
	require.NoError(t, err)
	assert.Equal(t, "/dev/screen", target)
}

func TestNewKernel_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"unknown root type", func(c *config.Config) { c.Boot.RootFS = "ext2" }, vfs.ENOENT},
		{"duplicate dir", func(c *config.Config) { c.Boot.Dirs = []string{"/a", "/a"} }, vfs.EEXIST},
		{"mount below missing dir", func(c *config.Config) {
			c.Boot.Mounts = []config.MountSpec{{Path: "/missing/x", Type: "tempfs"}}
		}, vfs.ENOENT},
		{"second root", func(c *config.Config) {
			c.Boot.Mounts = []config.MountSpec{{Path: "/", Type: "tempfs"}}
		}, vfs.EBUSY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewDefaultConfig()
			tt.mutate(cfg)
			_, err := boot.NewKernel(cfg, devfs.Console{})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	cfg := config.NewDefaultConfig()
	cfg.Limits.MaxOpenFiles = 0
	_, err := boot.NewKernel(cfg, devfs.Console{})
	assert.ErrorContains(t, err, "max_open_files")
}

func TestKernel_Exec(t *testing.T) {
	t.Parallel()
	k, screen := newKernel(t, nil)

	hdr := elf.Header32{
		Type:    uint16(elf.ET_EXEC),
		Machine: uint16(elf.EM_386),
		Version: uint32(elf.EV_CURRENT),
		Entry:   0x8048000,
		Ehsize:  52,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	var image bytes.Buffer
	require.NoError(t, binary.Write(&image, binary.LittleEndian, hdr))
	require.NoError(t, k.WriteFile("/mount/dash", image.Bytes()))

	sh, err := k.Procs.Fork(k.Init)
	require.NoError(t, err)
	_, err = k.Loader.Exec(sh, "/mount/dash", []string{"-dash"})
	require.NoError(t, err)

	_, err = k.VFS.Write(sh, 2, []byte("ready\n"))
	require.NoError(t, err)
	assert.Equal(t, "ready\n", screen.String())
	assert.Equal(t, "dash", sh.Name())
}
