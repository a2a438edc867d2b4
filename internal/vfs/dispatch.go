package vfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/brettbedarf/kvfs/internal/util"
)

// Open flags understood by Open.
const (
	ORdOnly = 0x0
	OWrOnly = 0x1
	ORdWr   = 0x2
	OCreat  = 0o100
	OExcl   = 0o200
)

// Open resolves path, following a trailing symlink, and installs a new open
// file in the lowest free descriptor of the caller. With OCreat a missing
// regular file is created through the parent's driver first.
func (v *VFS) Open(c Caller, path string, flags int) (int, error) {
	logger := util.GetLogger("VFS.Open")
	logger.Debug().Int("pid", pidOf(c)).Str("path", path).Int("flags", flags).Msg("open")

	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return -1, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	node, err := v.resolve(canonical, true)
	switch {
	case err == nil && flags&(OCreat|OExcl) == OCreat|OExcl:
		return -1, fmt.Errorf("%w: %s", EEXIST, canonical)
	case errors.Is(err, ENOENT) && flags&OCreat != 0:
		node, err = v.createNode(canonical, ModeRegular|0o644, nil, nil)
	}
	if err != nil {
		return -1, err
	}

	fd, err := filesOf(c).install(func() (*File, error) {
		f := newFile(node, pidOf(c), flags)
		if f.ops != nil {
			if err := f.ops.Open(f, flags); err != nil {
				return nil, err
			}
		}
		return f, nil
	})
	if err != nil {
		return -1, err
	}
	logger.Debug().Int("pid", pidOf(c)).Str("path", canonical).Int("fd", fd).Msg("Opened")
	return fd, nil
}

// Read transfers up to len(buf) bytes from the descriptor's cursor.
func (v *VFS) Read(c Caller, fd int, buf []byte) (int, error) {
	f, err := filesOf(c).Get(fd)
	if err != nil {
		return 0, err
	}
	if f.ops == nil {
		return 0, fmt.Errorf("%w: read on %q", EPERM, f.node.name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops.Read(f, buf, &f.pos)
}

// Write transfers buf at the descriptor's cursor.
func (v *VFS) Write(c Caller, fd int, buf []byte) (int, error) {
	f, err := filesOf(c).Get(fd)
	if err != nil {
		return 0, err
	}
	if f.ops == nil {
		return 0, fmt.Errorf("%w: write on %q", EPERM, f.node.name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops.Write(f, buf, &f.pos)
}

// Close frees the descriptor. The driver's close hook runs when the last
// descriptor sharing the file goes away; if it fails the slot stays open.
func (v *VFS) Close(c Caller, fd int) error {
	logger := util.GetLogger("VFS.Close")
	logger.Debug().Int("pid", pidOf(c)).Int("fd", fd).Msg("close")

	return filesOf(c).release(fd)
}

// Fcntl commands.
const (
	FDupFD        = 0
	FGetFD        = 1
	FSetFD        = 2
	FGetFL        = 3
	FDupFDCloexec = 1030
)

// Fcntl duplicates descriptors and reads or updates descriptor flags.
func (v *VFS) Fcntl(c Caller, fd, cmd, arg int) (int, error) {
	t := filesOf(c)
	switch cmd {
	case FDupFD:
		return t.dup(fd, arg, 0)
	case FDupFDCloexec:
		return t.dup(fd, arg, FDCloexec)
	case FGetFD:
		return t.fdFlags(fd)
	case FSetFD:
		return 0, t.setFDFlags(fd, arg)
	case FGetFL:
		f, err := t.Get(fd)
		if err != nil {
			return -1, err
		}
		return f.flags, nil
	default:
		logger := util.GetLogger("VFS.Fcntl")
		logger.Debug().Int("cmd", cmd).Msg("Unknown fcntl command")
		return -1, fmt.Errorf("%w: fcntl command %d", EINVAL, cmd)
	}
}

// Lseek repositions the descriptor's cursor.
func (v *VFS) Lseek(c Caller, fd int, offset int64, whence int) (int64, error) {
	f, err := filesOf(c).Get(fd)
	if err != nil {
		return -1, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = f.node.Size()
	default:
		return -1, fmt.Errorf("%w: whence %d", EINVAL, whence)
	}
	if base+offset < 0 {
		return -1, fmt.Errorf("%w: negative offset", EINVAL)
	}
	f.pos = base + offset
	return f.pos, nil
}

// Stat is the metadata record reported by Stat and Fstat.
type Stat struct {
	Ino       uint64
	Mode      Mode
	Size      int64
	BlockSize int64
	Blocks    int64
}

func (v *VFS) statNode(n *Node) Stat {
	bs := int64(v.limits.BlockSize)
	size := n.Size()
	return Stat{
		Ino:       n.ino,
		Mode:      n.mode,
		Size:      size,
		BlockSize: bs,
		Blocks:    (size + bs - 1) / bs,
	}
}

// Stat reports on path without following a trailing symlink.
func (v *VFS) Stat(c Caller, path string) (Stat, error) {
	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return Stat{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	node, err := v.lookup(canonical)
	if err != nil {
		return Stat{}, err
	}
	return v.statNode(node), nil
}

// Fstat reports on the node behind an open descriptor.
func (v *VFS) Fstat(c Caller, fd int) (Stat, error) {
	f, err := filesOf(c).Get(fd)
	if err != nil {
		return Stat{}, err
	}
	return v.statNode(f.node), nil
}

// Readlink returns the canonical target stored in the symlink at path.
func (v *VFS) Readlink(c Caller, path string) (string, error) {
	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	node, err := v.lookup(canonical)
	if err != nil {
		return "", err
	}
	target, ok := node.SymlinkTarget()
	if !ok {
		return "", fmt.Errorf("%w: %s is not a symlink", EINVAL, canonical)
	}
	return target, nil
}

// Chdir makes path, which must resolve to a directory, the caller's working
// directory. The canonical form is stored.
func (v *VFS) Chdir(c Caller, path string) error {
	logger := util.GetLogger("VFS.Chdir")
	logger.Debug().Int("pid", pidOf(c)).Str("path", path).Msg("chdir")

	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	node, err := v.resolve(canonical, true)
	if err != nil {
		return err
	}
	if !node.IsDir() {
		return fmt.Errorf("%w: %s", ENOTDIR, canonical)
	}
	if c == nil {
		return fmt.Errorf("%w: chdir without a process", EPERM)
	}
	c.SetCwd(canonical)
	return nil
}

// DirEntry is one child reported by ReadDir.
type DirEntry struct {
	Name string
	Mode Mode
	Ino  uint64
}

// ReadDir lists the children of the directory at path.
func (v *VFS) ReadDir(c Caller, path string) ([]DirEntry, error) {
	canonical, err := v.canonicalize(c, path)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	node, err := v.resolve(canonical, true)
	if err != nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, fmt.Errorf("%w: %s", ENOTDIR, canonical)
	}
	children := listChildren(node)
	entries := make([]DirEntry, 0, len(children))
	for _, ch := range children {
		entries = append(entries, DirEntry{Name: ch.name, Mode: ch.mode, Ino: ch.ino})
	}
	return entries, nil
}

// CloseOnExec closes every descriptor flagged FDCloexec.
func (v *VFS) CloseOnExec(c Caller) error {
	return v.closeWhere(c, func(flags int) bool { return flags&FDCloexec != 0 })
}

// CloseAll closes every open descriptor of the caller.
func (v *VFS) CloseAll(c Caller) error {
	return v.closeWhere(c, func(int) bool { return true })
}

func (v *VFS) closeWhere(c Caller, match func(flags int) bool) error {
	logger := util.GetLogger("VFS.closeWhere")

	var errs []error
	t := filesOf(c)
	for _, fd := range t.Descriptors() {
		flags, err := t.fdFlags(fd)
		if err != nil || !match(flags) {
			continue
		}
		if err := t.release(fd); err != nil {
			logger.Warn().Err(err).Int("pid", pidOf(c)).Int("fd", fd).Msg("Failed to close descriptor")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
