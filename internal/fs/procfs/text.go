package procfs

import (
	"bytes"
	"fmt"

	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/vfs"
)

// textOps serves a generated snapshot. The snapshot is taken on the first
// read of a descriptor and kept for the lifetime of the open file, so
// successive reads see consistent content.
type textOps struct {
	vfs.DefaultFileOps
	gen func() ([]byte, error)
}

func newText(name string, gen func() ([]byte, error)) *vfs.Node {
	return vfs.NewNode(name, vfs.ModeRegular|0o444, nil, &textOps{gen: gen}, nil)
}

func (o *textOps) Read(f *vfs.File, buf []byte, off *int64) (int, error) {
	data, ok := f.Private().([]byte)
	if !ok {
		var err error
		if data, err = o.gen(); err != nil {
			return 0, err
		}
		f.SetPrivate(data)
	}
	if *off >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[*off:])
	*off += int64(n)
	return n, nil
}

func (fs *FS) mounts() ([]byte, error) {
	var b bytes.Buffer
	for _, m := range fs.kernel.Mounts() {
		device := m.Device
		if device == "" {
			device = "none"
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", device, m.Path, m.Type, m.ID)
	}
	return b.Bytes(), nil
}

func (fs *FS) filesystems() ([]byte, error) {
	var b bytes.Buffer
	for _, name := range fs.kernel.Filesystems() {
		fmt.Fprintln(&b, name)
	}
	return b.Bytes(), nil
}

func fdsOf(p *process.Process) []byte {
	var b bytes.Buffer
	t := p.Files()
	for _, fd := range t.Descriptors() {
		f, err := t.Get(fd)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%d %s\n", fd, f.Node().Name())
	}
	return b.Bytes()
}

func statusOf(p *process.Process) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Name:\t%s\n", p.Name())
	fmt.Fprintf(&b, "Pid:\t%d\n", p.PID())
	fmt.Fprintf(&b, "PPid:\t%d\n", p.PPID())
	fmt.Fprintf(&b, "Cwd:\t%s\n", p.Cwd())
	fmt.Fprintf(&b, "FDSize:\t%d\n", p.Files().Size())
	fmt.Fprintf(&b, "FDs:\t%d\n", p.Files().Occupied())
	return b.Bytes()
}
