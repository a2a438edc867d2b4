package devfs_test

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/fs/devfs"
	"github.com/brettbedarf/kvfs/internal/fs/tempfs"
	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("line down") }

func setup(t *testing.T, console devfs.Console) (*vfs.VFS, *process.Process) {
	t.Helper()

	v := vfs.New(config.NewDefaultConfig())
	require.NoError(t, v.RegisterFS(tempfs.New()))
	require.NoError(t, v.MountFS(nil, "/", tempfs.Name, ""))
	p := process.NewTable(v).Spawn("dev")
	require.NoError(t, v.Mkdir(p, "/dev"))
	require.NoError(t, devfs.Install(v, p, "/dev", devfs.Devices(console)))
	return v, p
}

func open(t *testing.T, v *vfs.VFS, p *process.Process, path string, flags int) int {
	t.Helper()
	fd, err := v.Open(p, path, flags)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close(p, fd) }) // nolint:errcheck
	return fd
}

func TestInstall(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{})

	entries, err := v.ReadDir(p, "/dev")
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name)
		assert.Equal(t, vfs.ModeCharDevice, e.Mode&vfs.ModeTypeMask, e.Name)
	}
	assert.Equal(t, []string{"null", "zero", "urandom", "serial", "screen", "stat_mem"}, got)

	err = devfs.Install(v, p, "/dev", devfs.Devices(devfs.Console{}))
	assert.ErrorIs(t, err, vfs.EEXIST)
	err = devfs.Install(v, p, "/missing", devfs.Devices(devfs.Console{}))
	assert.ErrorIs(t, err, vfs.ENOENT)
}

func TestNull(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{})
	fd := open(t, v, p, "/dev/null", vfs.ORdWr)

	n, err := v.Read(p, fd, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = v.Write(p, fd, []byte("discard me"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestZero(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{})
	fd := open(t, v, p, "/dev/zero", vfs.ORdOnly)

	buf := []byte("garbage")
	n, err := v.Read(p, fd, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, make([]byte, len(buf)), buf)
}

func TestUrandom(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{})
	fd := open(t, v, p, "/dev/urandom", vfs.ORdOnly)

	a, b := make([]byte, 32), make([]byte, 32)
	n, err := v.Read(p, fd, a)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	_, err = v.Read(p, fd, b)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = v.Write(p, fd, []byte("x"))
	assert.ErrorIs(t, err, vfs.EPERM)
}

func TestScreen(t *testing.T) {
	t.Parallel()
	var screen bytes.Buffer
	v, p := setup(t, devfs.Console{Screen: &screen})

	fd := open(t, v, p, "/dev/screen", vfs.OWrOnly)
	dup, err := v.Fcntl(p, fd, vfs.FDupFD, 0)
	require.NoError(t, err)

	_, err = v.Write(p, fd, []byte("hello "))
	require.NoError(t, err)
	_, err = v.Write(p, dup, []byte("world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", screen.String())

	_, err = v.Read(p, fd, make([]byte, 4))
	assert.ErrorIs(t, err, vfs.EPERM)
}

func TestSerial_WriterError(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{Serial: failingWriter{}})
	fd := open(t, v, p, "/dev/serial", vfs.OWrOnly)

	_, err := v.Write(p, fd, []byte("x"))
	assert.ErrorIs(t, err, vfs.EIO)
	assert.ErrorContains(t, err, "line down")
}

func TestStatMem(t *testing.T) {
	t.Parallel()
	v, p := setup(t, devfs.Console{})
	fd := open(t, v, p, "/dev/stat_mem", vfs.ORdOnly)

	buf := make([]byte, 64)
	n, err := v.Read(p, fd, buf)
	require.NoError(t, err)
	line := string(buf[:n])
	require.True(t, strings.HasSuffix(line, "\n"))
	inuse, err := strconv.ParseUint(strings.TrimSpace(line), 10, 64)
	require.NoError(t, err)
	assert.Positive(t, inuse)
}
