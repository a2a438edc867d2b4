// Package loader implements the VFS side of exec: the program image is read
// through the caller's descriptors, the argument block is size checked,
// close-on-exec descriptors are swept and the standard descriptors are
// opened on the console device.
package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/brettbedarf/kvfs/internal/process"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/brettbedarf/kvfs/internal/vfs"
)

const (
	// ArgMax bounds the argument block: the strings with their terminators
	// plus the pointer table.
	ArgMax = 0x1000
	// argPointerSize is the width of one entry of the pointer table.
	argPointerSize = 4
	// maxImageSize stops reads from devices that never report end of file.
	maxImageSize = 64 << 20
)

// Image describes a program accepted by Exec.
type Image struct {
	Path    string
	Argv    []string
	Entry   uint64
	Class   elf.Class
	Machine elf.Machine
}

// Loader execs programs stored in the VFS.
type Loader struct {
	v       *vfs.VFS
	console string
}

// New returns a loader opening standard descriptors on console.
func New(v *vfs.VFS, console string) *Loader {
	return &Loader{v: v, console: console}
}

// Exec replaces the program of p with the image at path. Nothing about p
// changes when the image or the arguments are rejected.
func (l *Loader) Exec(p *process.Process, imagePath string, argv []string) (*Image, error) {
	logger := util.GetLogger("Loader.Exec")
	logger.Debug().Int("pid", p.PID()).Str("path", imagePath).Strs("argv", argv).Msg("exec")

	img, err := l.readImage(p, imagePath)
	if err != nil {
		return nil, err
	}
	if err := CheckArgs(argv); err != nil {
		return nil, err
	}
	img.Argv = argv

	if err := l.v.CloseOnExec(p); err != nil {
		return nil, err
	}
	if err := l.openStd(p); err != nil {
		return nil, err
	}
	p.SetName(path.Base(imagePath))

	logger.Info().Int("pid", p.PID()).Str("path", imagePath).
		Str("entry", fmt.Sprintf("%#x", img.Entry)).Msg("Program loaded")
	return img, nil
}

// CheckArgs fails with E2BIG when argv does not fit in one page.
func CheckArgs(argv []string) error {
	size := argPointerSize * len(argv)
	for _, a := range argv {
		size += len(a) + 1
	}
	if size > ArgMax {
		return fmt.Errorf("%w: argument block of %d bytes", vfs.E2BIG, size)
	}
	return nil
}

func (l *Loader) readImage(p *process.Process, imagePath string) (*Image, error) {
	fd, err := l.v.Open(p, imagePath, vfs.ORdOnly)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(io.LimitReader(vfs.NewReader(l.v, p, fd), maxImageSize+1))
	if err := l.v.Close(p, fd); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return nil, readErr
	}

	if len(data) > maxImageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", vfs.ENOEXEC, imagePath, maxImageSize)
	}
	if !bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		return nil, fmt.Errorf("%w: %s is not an ELF image", vfs.ENOEXEC, imagePath)
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vfs.ENOEXEC, imagePath, err)
	}
	if f.Type != elf.ET_EXEC || f.Entry == 0 {
		return nil, fmt.Errorf("%w: %s is not executable", vfs.ENOEXEC, imagePath)
	}
	return &Image{
		Path:    imagePath,
		Entry:   f.Entry,
		Class:   f.Class,
		Machine: f.Machine,
	}, nil
}

// openStd makes sure descriptors 0 to 2 are open on the console. Lower
// descriptors are opened first so each lands on its own number.
func (l *Loader) openStd(p *process.Process) error {
	t := p.Files()
	for fd := 0; fd <= 2; fd++ {
		if _, err := t.Get(fd); err == nil {
			continue
		}
		flags := vfs.OWrOnly
		if fd == 0 {
			flags = vfs.ORdOnly
		}
		got, err := l.v.Open(p, l.console, flags)
		if err != nil {
			return fmt.Errorf("open std descriptor %d on %s: %w", fd, l.console, err)
		}
		if got != fd {
			return errors.Join(
				fmt.Errorf("%w: std descriptor %d opened as %d", vfs.EBADF, fd, got),
				l.v.Close(p, got),
			)
		}
	}
	return nil
}
