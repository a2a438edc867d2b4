// Package bridge exposes the VFS namespace on the host through FUSE. Every
// request is executed as a syscall of a dedicated kernel process, so the
// host sees exactly what a process inside the kernel would see.
package bridge

import (
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// entryTimeout is kept short since procfs content changes underneath the
// host's caches.
const entryTimeout = time.Second

// FuseRaw implements the low-level FUSE wire protocol on top of the VFS.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	v    *vfs.VFS
	proc *process.Process

	// FUSE node ids to canonical paths. The root is FUSE_ROOT_ID; any other
	// node uses its inode number plus one.
	paths *xsync.Map[uint64, string]

	// serializes seek+transfer pairs on shared descriptors
	ioMu sync.Mutex

	server *fuse.Server
}

// NewFuseRaw returns a FUSE filesystem executing requests as proc.
func NewFuseRaw(v *vfs.VFS, proc *process.Process) *FuseRaw {
	r := &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		v:             v,
		proc:          proc,
		paths:         xsync.NewMap[uint64, string](),
	}
	r.paths.Store(fuse.FUSE_ROOT_ID, vfs.Separator)
	return r
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "kvfs"
}

func toStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(vfs.ToErrno(err))
}

func nodeIDFor(path string, ino uint64) uint64 {
	if path == vfs.Separator {
		return fuse.FUSE_ROOT_ID
	}
	return ino + 1
}

func childPath(dir, name string) string {
	if dir == vfs.Separator {
		return dir + name
	}
	return dir + vfs.Separator + name
}

func (r *FuseRaw) pathOf(nodeID uint64) (string, fuse.Status) {
	p, ok := r.paths.Load(nodeID)
	if !ok {
		return "", fuse.ENOENT
	}
	return p, fuse.OK
}

func fillAttr(st vfs.Stat, nodeID uint64, out *fuse.Attr) {
	out.Ino = nodeID
	out.Size = uint64(st.Size)
	out.Blocks = uint64(st.Blocks)
	out.Blksize = uint32(st.BlockSize)
	out.Mode = fuseMode(st.Mode)
	out.Nlink = 1
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

func fuseMode(m vfs.Mode) uint32 {
	if m.Kind() == vfs.KindMount {
		return uint32(vfs.ModeDir | m.Perm())
	}
	return uint32(m & (vfs.ModeTypeMask | vfs.ModePerm))
}

// entry stats path and registers its node id.
func (r *FuseRaw) entry(path string, out *fuse.EntryOut) fuse.Status {
	st, err := r.v.Stat(r.proc, path)
	if err != nil {
		return toStatus(err)
	}
	id := nodeIDFor(path, st.Ino)
	r.paths.Store(id, path)

	out.NodeId = id
	fillAttr(st, id, &out.Attr)
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(entryTimeout)
	return fuse.OK
}

// Lookup resolves name under the parent node and registers the child.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	dir, st := r.pathOf(header.NodeId)
	if !st.Ok() {
		return st
	}
	return r.entry(childPath(dir, name), out)
}

// Forget drops the path mapping. The kernel looks the node up again
// before using it.
func (r *FuseRaw) Forget(nodeID, nlookup uint64) {
	if nodeID != fuse.FUSE_ROOT_ID {
		r.paths.Delete(nodeID)
	}
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	path, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	stat, err := r.v.Stat(r.proc, path)
	if err != nil {
		return toStatus(err)
	}
	fillAttr(stat, input.NodeId, &out.Attr)
	out.SetTimeout(entryTimeout)
	return fuse.OK
}

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	dir, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	path := childPath(dir, name)
	if err := r.v.Mkdir(r.proc, path); err != nil {
		return toStatus(err)
	}
	return r.entry(path, out)
}

func (r *FuseRaw) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	dir, st := r.pathOf(header.NodeId)
	if !st.Ok() {
		return st
	}
	path := childPath(dir, linkName)
	target := pointedTo
	if len(target) == 0 || target[0] != '/' {
		target = childPath(dir, pointedTo)
	}
	if err := r.v.Symlink(r.proc, path, target); err != nil {
		return toStatus(err)
	}
	return r.entry(path, out)
}

func (r *FuseRaw) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	path, st := r.pathOf(header.NodeId)
	if !st.Ok() {
		return nil, st
	}
	target, err := r.v.Readlink(r.proc, path)
	if err != nil {
		return nil, toStatus(err)
	}
	return []byte(target), fuse.OK
}

// accessMode keeps the O_ACCMODE bits the VFS understands.
func accessMode(flags uint32) int {
	return int(flags & syscall.O_ACCMODE)
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	dir, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	path := childPath(dir, name)
	fd, err := r.v.Open(r.proc, path, accessMode(input.Flags)|vfs.OCreat|vfs.OExcl)
	if err != nil {
		return toStatus(err)
	}
	if st := r.entry(path, &out.EntryOut); !st.Ok() {
		r.v.Close(r.proc, fd) // nolint:errcheck
		return st
	}
	out.Fh = uint64(fd)
	return fuse.OK
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")

	path, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	fd, err := r.v.Open(r.proc, path, accessMode(input.Flags))
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("Open failed")
		return toStatus(err)
	}
	out.Fh = uint64(fd)
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	fd := int(input.Fh)
	if _, err := r.v.Lseek(r.proc, fd, int64(input.Offset), io.SeekStart); err != nil {
		return nil, toStatus(err)
	}
	n, err := r.v.Read(r.proc, fd, buf[:min(len(buf), int(input.Size))])
	if err != nil {
		return nil, toStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	r.ioMu.Lock()
	defer r.ioMu.Unlock()

	fd := int(input.Fh)
	if _, err := r.v.Lseek(r.proc, fd, int64(input.Offset), io.SeekStart); err != nil {
		return 0, toStatus(err)
	}
	n, err := r.v.Write(r.proc, fd, data)
	if err != nil {
		return uint32(n), toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	logger := util.GetLogger("Fuse.Release")
	if err := r.v.Close(r.proc, int(input.Fh)); err != nil {
		logger.Warn().Err(err).Uint64("fh", input.Fh).Msg("Release failed")
	}
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	path, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	stat, err := r.v.Stat(r.proc, path)
	if err != nil {
		return toStatus(err)
	}
	if !stat.Mode.IsDir() {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

// ReadDir lists the directory on every call and skips the entries the
// kernel has already consumed.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Trace().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	path, st := r.pathOf(input.NodeId)
	if !st.Ok() {
		return st
	}
	entries, err := r.v.ReadDir(r.proc, path)
	if err != nil {
		return toStatus(err)
	}
	for i := int(input.Offset); i < len(entries); i++ {
		e := entries[i]
		if !out.AddDirEntry(fuse.DirEntry{
			Name: e.Name,
			Mode: fuseMode(e.Mode),
			Ino:  e.Ino + 1,
			Off:  uint64(i + 1),
		}) {
			// buffer full, the kernel will call again from the last offset
			break
		}
	}
	return fuse.OK
}
