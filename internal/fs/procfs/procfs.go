// Package procfs synthesizes a read-only view of the kernel: one directory
// per live process plus the mount and filesystem tables. Contents are
// generated when a descriptor is first read, never during lookup.
package procfs

import (
	"strconv"

	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// Name is the filesystem type name procfs registers under.
const Name = "procfs"

// Kernel is the namespace state procfs reports on. *vfs.VFS implements it.
type Kernel interface {
	Mounts() []vfs.Mount
	Filesystems() []string
}

// Processes is the process table procfs reports on.
type Processes interface {
	Get(pid int) (*process.Process, bool)
	List() []*process.Process
}

// FS is the procfs filesystem type.
type FS struct {
	kernel Kernel
	procs  Processes
}

// New returns the procfs filesystem type reporting on kernel and procs.
func New(kernel Kernel, procs Processes) *FS {
	return &FS{kernel: kernel, procs: procs}
}

func (*FS) Name() string { return Name }

// ReadSuper returns a new instance. The device is ignored.
func (fs *FS) ReadSuper(string) (vfs.Superblock, error) {
	sb := &Superblock{
		fs:   fs,
		pids: xsync.NewMap[int, *pidDir](),
	}
	sb.ops = &dirOps{sb: sb}
	return sb, nil
}

// Superblock is one procfs instance.
type Superblock struct {
	fs     *FS
	ops    *dirOps
	root   *vfs.Node
	static []*vfs.Node
	pids   *xsync.Map[int, *pidDir]
}

// Spawn creates the instance root and its static entries.
func (sb *Superblock) Spawn(name string, mode vfs.Mode) (*vfs.Node, error) {
	sb.root = vfs.NewNode(name, mode, sb.ops, nil, nil)
	sb.static = []*vfs.Node{
		newText("mounts", sb.fs.mounts),
		newText("filesystems", sb.fs.filesystems),
	}
	return sb.root, nil
}

type pidDir struct {
	proc    *process.Process
	node    *vfs.Node
	entries []*vfs.Node
}

func (sb *Superblock) newPidDir(p *process.Process) *pidDir {
	d := &pidDir{proc: p}
	d.node = vfs.NewNode(strconv.Itoa(p.PID()), vfs.ModeDir|0o555, sb.ops, nil, d)
	d.entries = []*vfs.Node{
		newText("cwd", func() ([]byte, error) { return []byte(p.Cwd() + "\n"), nil }),
		newText("fds", func() ([]byte, error) { return fdsOf(p), nil }),
		newText("status", func() ([]byte, error) { return statusOf(p), nil }),
	}
	return d
}

// pidDirFor returns the cached directory of a live process. Entries of
// exited processes, or of a recycled pid, are dropped.
func (sb *Superblock) pidDirFor(pid int) *pidDir {
	p, ok := sb.fs.procs.Get(pid)
	if !ok {
		sb.pids.Delete(pid)
		return nil
	}
	d, _ := sb.pids.Compute(pid, func(old *pidDir, loaded bool) (*pidDir, xsync.ComputeOp) {
		if loaded && old.proc == p {
			return old, xsync.CancelOp
		}
		return sb.newPidDir(p), xsync.UpdateOp
	})
	return d
}

type dirOps struct {
	vfs.DefaultNodeOps
	sb *Superblock
}

func (o *dirOps) Lookup(parent *vfs.Node, name string) *vfs.Node {
	logger := util.GetLogger("ProcFS.Lookup")
	logger.Trace().Str("parent", parent.Name()).Str("name", name).Msg("lookup")

	if d, ok := parent.Payload().(*pidDir); ok {
		return findNode(d.entries, name)
	}
	if n := findNode(o.sb.static, name); n != nil {
		return n
	}
	pid, err := strconv.Atoi(name)
	if err != nil {
		return nil
	}
	if d := o.sb.pidDirFor(pid); d != nil {
		return d.node
	}
	return nil
}

// List reports the static entries followed by one directory per live
// process in pid order.
func (o *dirOps) List(dir *vfs.Node) []*vfs.Node {
	if d, ok := dir.Payload().(*pidDir); ok {
		return d.entries
	}
	out := append([]*vfs.Node(nil), o.sb.static...)
	live := make(map[int]bool)
	for _, p := range o.sb.fs.procs.List() {
		live[p.PID()] = true
		if d := o.sb.pidDirFor(p.PID()); d != nil {
			out = append(out, d.node)
		}
	}
	o.sb.pids.Range(func(pid int, _ *pidDir) bool {
		if !live[pid] {
			o.sb.pids.Delete(pid)
		}
		return true
	})
	return out
}

func findNode(nodes []*vfs.Node, name string) *vfs.Node {
	for _, n := range nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}
