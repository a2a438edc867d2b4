// Package process keeps the table of processes the VFS runs syscalls for.
// A process owns a working directory and a descriptor table; fork shares
// the open files of the parent and exit closes every descriptor.
package process

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/puzpuzpuz/xsync/v4"
)

// Process is the syscall context of one running program.
type Process struct {
	pid   int
	ppid  int
	files *vfs.FileTable

	mu   sync.RWMutex
	name string
	cwd  string
}

func (p *Process) PID() int { return p.pid }

// PPID returns the pid of the parent, 0 for processes spawned by the kernel.
func (p *Process) PPID() int { return p.ppid }

func (p *Process) Files() *vfs.FileTable { return p.files }

func (p *Process) Cwd() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cwd
}

func (p *Process) SetCwd(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cwd = path
}

// Name returns the program name, updated on exec.
func (p *Process) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Process) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Table tracks live processes by pid.
type Table struct {
	v       *vfs.VFS
	procs   *xsync.Map[int, *Process]
	lastPID atomic.Int64
}

// NewTable returns an empty table whose processes run against v.
func NewTable(v *vfs.VFS) *Table {
	return &Table{
		v:     v,
		procs: xsync.NewMap[int, *Process](),
	}
}

// Spawn creates a process with an empty descriptor table rooted at "/".
func (t *Table) Spawn(name string) *Process {
	return t.spawn(name, t.v.NewFileTable())
}

// SpawnWithFiles is Spawn with a descriptor table of size slots instead of
// the VFS default.
func (t *Table) SpawnWithFiles(name string, size int) *Process {
	return t.spawn(name, vfs.NewFileTable(size))
}

func (t *Table) spawn(name string, files *vfs.FileTable) *Process {
	logger := util.GetLogger("Process.Spawn")

	p := &Process{
		pid:   int(t.lastPID.Add(1)),
		files: files,
		name:  name,
		cwd:   vfs.Separator,
	}
	t.procs.Store(p.pid, p)
	logger.Debug().Int("pid", p.pid).Str("name", name).Int("files", files.Size()).Msg("Process spawned")
	return p
}

// Fork creates a child sharing the parent's open files. Descriptor flags
// and the working directory are copied.
func (t *Table) Fork(parent *Process) (*Process, error) {
	logger := util.GetLogger("Process.Fork")

	if _, ok := t.procs.Load(parent.pid); !ok {
		return nil, fmt.Errorf("%w: pid %d is not running", vfs.EINVAL, parent.pid)
	}
	child := &Process{
		pid:   int(t.lastPID.Add(1)),
		ppid:  parent.pid,
		files: parent.files.Clone(),
		name:  parent.Name(),
		cwd:   parent.Cwd(),
	}
	t.procs.Store(child.pid, child)
	logger.Debug().Int("pid", child.pid).Int("ppid", parent.pid).Msg("Process forked")
	return child, nil
}

// Exit closes every descriptor of p and removes it from the table.
func (t *Table) Exit(p *Process) error {
	logger := util.GetLogger("Process.Exit")

	if _, ok := t.procs.LoadAndDelete(p.pid); !ok {
		return fmt.Errorf("%w: pid %d is not running", vfs.EINVAL, p.pid)
	}
	err := t.v.CloseAll(p)
	if err != nil {
		logger.Warn().Err(err).Int("pid", p.pid).Msg("Descriptors left open on exit")
	}
	logger.Debug().Int("pid", p.pid).Msg("Process exited")
	return err
}

// Get returns the live process with the given pid.
func (t *Table) Get(pid int) (*Process, bool) {
	return t.procs.Load(pid)
}

// List returns the live processes ordered by pid.
func (t *Table) List() []*Process {
	out := make([]*Process, 0, t.procs.Size())
	t.procs.Range(func(_ int, p *Process) bool {
		out = append(out, p)
		return true
	})
	slices.SortFunc(out, func(a, b *Process) int { return a.pid - b.pid })
	return out
}
