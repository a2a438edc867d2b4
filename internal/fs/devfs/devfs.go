// Package devfs provides character devices. Devices are not a filesystem
// type of their own: each one is a node created through the VFS in an
// existing directory, carrying the device's file operations.
package devfs

import (
	"crypto/rand"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
)

// Console is where the output devices write. Nil writers discard.
type Console struct {
	Screen io.Writer
	Serial io.Writer
}

// Device is a named set of file operations.
type Device struct {
	Name string
	Ops  vfs.FileOps
}

// Devices returns the standard device set writing to console.
func Devices(console Console) []Device {
	return []Device{
		{Name: "null", Ops: nullOps{}},
		{Name: "zero", Ops: zeroOps{}},
		{Name: "urandom", Ops: urandomOps{}},
		{Name: "serial", Ops: newWriterOps(console.Serial)},
		{Name: "screen", Ops: newWriterOps(console.Screen)},
		{Name: "stat_mem", Ops: statMemOps{}},
	}
}

// Install creates every device in devices under dir.
func Install(v *vfs.VFS, c vfs.Caller, dir string, devices []Device) error {
	logger := util.GetLogger("DevFS.Install")

	for _, d := range devices {
		path := dir + vfs.Separator + d.Name
		if _, err := v.CreateNode(c, path, vfs.ModeCharDevice|0o666, d.Ops, nil); err != nil {
			return fmt.Errorf("create device %s: %w", path, err)
		}
		logger.Debug().Str("path", path).Msg("Device created")
	}
	return nil
}

// nullOps reads nothing and discards writes.
type nullOps struct {
	vfs.DefaultFileOps
}

func (nullOps) Read(*vfs.File, []byte, *int64) (int, error) { return 0, nil }

func (nullOps) Write(_ *vfs.File, buf []byte, _ *int64) (int, error) { return len(buf), nil }

// zeroOps fills reads with zero bytes and discards writes.
type zeroOps struct {
	nullOps
}

func (zeroOps) Read(_ *vfs.File, buf []byte, _ *int64) (int, error) {
	clear(buf)
	return len(buf), nil
}

type urandomOps struct {
	vfs.DefaultFileOps
}

func (urandomOps) Read(_ *vfs.File, buf []byte, _ *int64) (int, error) {
	return rand.Read(buf)
}

// writerOps forwards writes to a shared writer. Reads are not permitted.
type writerOps struct {
	vfs.DefaultFileOps
	mu sync.Mutex
	w  io.Writer
}

func newWriterOps(w io.Writer) *writerOps {
	if w == nil {
		w = io.Discard
	}
	return &writerOps{w: w}
}

func (o *writerOps) Write(_ *vfs.File, buf []byte, off *int64) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n, err := o.w.Write(buf)
	*off += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	return n, nil
}

// statMemOps reports the bytes of heap in use as a decimal line, sampled on
// every read.
type statMemOps struct {
	vfs.DefaultFileOps
}

func (statMemOps) Read(_ *vfs.File, buf []byte, off *int64) (int, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	line := fmt.Appendf(nil, "%d\n", ms.HeapInuse)
	if *off >= int64(len(line)) {
		return 0, nil
	}
	n := copy(buf, line[*off:])
	*off += int64(n)
	return n, nil
}
