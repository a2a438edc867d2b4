package vfs_test

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/internal/fs/tempfs"
	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeCounter counts close hooks.
type closeCounter struct {
	vfs.DefaultFileOps
	closes atomic.Int32
}

func (c *closeCounter) Close(*vfs.File) error {
	c.closes.Add(1)
	return nil
}

func newProcs(t *testing.T) (*vfs.VFS, *process.Table) {
	t.Helper()

	v := vfs.New(config.NewDefaultConfig())
	require.NoError(t, v.RegisterFS(tempfs.New()))
	require.NoError(t, v.MountFS(nil, "/", tempfs.Name, ""))
	return v, process.NewTable(v)
}

func TestClose_ForkedConcurrently(t *testing.T) {
	t.Parallel()
	v, procs := newProcs(t)
	parent := procs.Spawn("sh")

	ops := &closeCounter{}
	_, err := v.CreateNode(parent, "/counter", vfs.ModeCharDevice|0o666, ops, nil)
	require.NoError(t, err)

	const rounds = 500
	for i := 0; i < rounds; i++ {
		fd, err := v.Open(parent, "/counter", vfs.ORdOnly)
		require.NoError(t, err)
		child, err := procs.Fork(parent)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		for j, c := range []vfs.Caller{parent, child} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs[j] = v.Close(c, fd)
			}()
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		require.EqualValues(t, i+1, ops.closes.Load(), "round %d: close hook must run exactly once", i)
		require.NoError(t, procs.Exit(child))
	}
	assert.Zero(t, parent.Files().Occupied())
}

func TestMkdir_Concurrent(t *testing.T) {
	t.Parallel()
	v, p := newVFS(t, nil)

	const n = 32
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		exists  atomic.Int32
	)
	other := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := v.Mkdir(p, "/race")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, vfs.EEXIST):
				exists.Add(1)
			default:
				other <- err
			}
		}()
	}
	wg.Wait()
	close(other)

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, n-1, exists.Load())
	assert.Empty(t, other)

	entries, err := v.ReadDir(p, "/")
	require.NoError(t, err)
	names := 0
	for _, e := range entries {
		if e.Name == "race" {
			names++
		}
	}
	assert.Equal(t, 1, names)
}

func TestOpenClose_ConcurrentProcesses(t *testing.T) {
	t.Parallel()
	v, procs := newProcs(t)

	owner := procs.Spawn("owner")
	writeFile(t, v, owner, "/shared", []byte("shared"))

	const (
		workers = 16
		rounds  = 50
	)
	ps := make([]*process.Process, workers)
	for i := range ps {
		ps[i] = procs.Spawn(fmt.Sprintf("w%d", i))
	}

	var wg sync.WaitGroup
	for i, p := range ps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			own := fmt.Sprintf("/own%d", i)
			buf := make([]byte, 16)
			for r := 0; r < rounds; r++ {
				fd, err := v.Open(p, "/shared", vfs.ORdOnly)
				if !assert.NoError(t, err) {
					return
				}
				n, err := v.Read(p, fd, buf)
				assert.NoError(t, err)
				assert.Equal(t, "shared", string(buf[:n]))

				wfd, err := v.Open(p, own, vfs.OWrOnly|vfs.OCreat)
				if !assert.NoError(t, err) {
					return
				}
				_, err = v.Lseek(p, wfd, 0, io.SeekEnd)
				assert.NoError(t, err)
				_, err = v.Write(p, wfd, []byte{byte(r)})
				assert.NoError(t, err)

				assert.NoError(t, v.Close(p, wfd))
				assert.NoError(t, v.Close(p, fd))
			}
		}()
	}
	wg.Wait()

	for i, p := range ps {
		assert.Zero(t, p.Files().Occupied(), "process %d leaked descriptors", i)
		st, err := v.Stat(p, fmt.Sprintf("/own%d", i))
		require.NoError(t, err)
		assert.EqualValues(t, rounds, st.Size)
	}
}

func TestNilCaller(t *testing.T) {
	t.Parallel()
	v, p := newVFS(t, nil)
	writeFile(t, v, p, "/f", []byte("x"))

	require.NotPanics(t, func() {
		_, err := v.Open(nil, "/f", vfs.ORdOnly)
		assert.ErrorIs(t, err, vfs.EMFILE)

		_, err = v.Read(nil, 0, make([]byte, 1))
		assert.ErrorIs(t, err, vfs.EBADF)
		assert.ErrorIs(t, v.Close(nil, 0), vfs.EBADF)
		_, err = v.Fcntl(nil, 0, vfs.FGetFD, 0)
		assert.ErrorIs(t, err, vfs.EBADF)

		assert.ErrorIs(t, v.Chdir(nil, "/"), vfs.EPERM)
		assert.ErrorIs(t, v.Chdir(nil, "/missing"), vfs.ENOENT)

		_, err = v.Stat(nil, "/f")
		assert.NoError(t, err)
	})
}
