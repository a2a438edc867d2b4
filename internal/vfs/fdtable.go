package vfs

import (
	"fmt"
	"sync"
)

// FDCloexec is the descriptor flag closing a slot on exec.
const FDCloexec = 1

type fdSlot struct {
	file  *File
	flags int
}

// FileTable maps small integer descriptors to open files. A nil file marks a
// free slot; the table size is fixed at creation.
type FileTable struct {
	mu    sync.Mutex
	slots []fdSlot
}

// NewFileTable returns a table with size free slots.
func NewFileTable(size int) *FileTable {
	return &FileTable{slots: make([]fdSlot, size)}
}

// Size returns the number of slots.
func (t *FileTable) Size() int {
	return len(t.slots)
}

// Get returns the file installed at fd.
func (t *FileTable) Get(fd int) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.slotLocked(fd)
	if err != nil {
		return nil, err
	}
	return s.file, nil
}

// Occupied returns the number of slots in use.
func (t *FileTable) Occupied() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s.file != nil {
			n++
		}
	}
	return n
}

// Descriptors returns the open descriptors in ascending order.
func (t *FileTable) Descriptors() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fds := make([]int, 0, len(t.slots))
	for i, s := range t.slots {
		if s.file != nil {
			fds = append(fds, i)
		}
	}
	return fds
}

// Clone returns a copy of the table sharing every open file, as done on fork.
func (t *FileTable) Clone() *FileTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &FileTable{slots: make([]fdSlot, len(t.slots))}
	for i, s := range t.slots {
		if s.file != nil {
			s.file.refs.Add(1)
			c.slots[i] = s
		}
	}
	return c
}

// slotLocked validates fd. The caller must hold t.mu.
func (t *FileTable) slotLocked(fd int) (*fdSlot, error) {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd].file == nil {
		return nil, fmt.Errorf("%w: %d", EBADF, fd)
	}
	return &t.slots[fd], nil
}

// freeLocked returns the first free slot at or above lowest. The caller must
// hold t.mu.
func (t *FileTable) freeLocked(lowest int) (int, error) {
	if lowest < 0 {
		lowest = 0
	}
	for i := lowest; i < len(t.slots); i++ {
		if t.slots[i].file == nil {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: descriptor table full (%d slots)", EMFILE, len(t.slots))
}

// install places a file built by open into the lowest free slot. The table
// stays locked while open runs so the slot cannot be taken concurrently;
// nothing is installed when open fails.
func (t *FileTable) install(open func() (*File, error)) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := t.freeLocked(0)
	if err != nil {
		return -1, err
	}
	f, err := open()
	if err != nil {
		return -1, err
	}
	t.slots[fd] = fdSlot{file: f}
	return fd, nil
}

// release clears fd. When fd holds the last reference to its file, the
// driver's close hook runs first and a failure leaves the slot in place.
func (t *FileTable) release(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotLocked(fd)
	if err != nil {
		return err
	}
	f := s.file
	if f.refs.Add(-1) == 0 && f.ops != nil {
		if err := f.ops.Close(f); err != nil {
			f.refs.Add(1)
			return err
		}
	}
	t.slots[fd] = fdSlot{}
	return nil
}

// dup installs the file at fd into the first free slot at or above lowest.
func (t *FileTable) dup(fd, lowest, flags int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotLocked(fd)
	if err != nil {
		return -1, err
	}
	nfd, err := t.freeLocked(lowest)
	if err != nil {
		return -1, err
	}
	s.file.refs.Add(1)
	t.slots[nfd] = fdSlot{file: s.file, flags: flags}
	return nfd, nil
}

func (t *FileTable) fdFlags(fd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotLocked(fd)
	if err != nil {
		return -1, err
	}
	return s.flags, nil
}

func (t *FileTable) setFDFlags(fd, flags int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotLocked(fd)
	if err != nil {
		return err
	}
	s.flags = flags
	return nil
}
