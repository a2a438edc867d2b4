package vfs

import (
	"fmt"
	"syscall"
)

// Mode is a node's kind bits plus permission bits.
type Mode uint32

const (
	ModeTypeMask   Mode = syscall.S_IFMT
	ModeDir        Mode = syscall.S_IFDIR
	ModeRegular    Mode = syscall.S_IFREG
	ModeSymlink    Mode = syscall.S_IFLNK
	ModeCharDevice Mode = syscall.S_IFCHR
	ModePerm       Mode = 0o7777

	// ModeMountFlag marks a mount stub. Stubs carry ModeDir as well so they
	// are traversable.
	ModeMountFlag Mode = 1 << 16
	ModeMount          = ModeDir | ModeMountFlag
)

// Kind is the variant of a node as seen by the resolver.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDirectory
	KindFile
	KindSymlink
	KindMount
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "dir"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindMount:
		return "mount"
	default:
		return "unknown"
	}
}

// Kind decodes the variant encoded in the mode bits.
func (m Mode) Kind() Kind {
	if m&ModeMountFlag != 0 {
		return KindMount
	}
	switch m & ModeTypeMask {
	case ModeDir:
		return KindDirectory
	case ModeRegular, ModeCharDevice:
		return KindFile
	case ModeSymlink:
		return KindSymlink
	default:
		return KindUnknown
	}
}

// IsDir reports whether the directory bit is set. Mount stubs report true.
func (m Mode) IsDir() bool {
	return m&ModeTypeMask == ModeDir
}

// Perm returns the permission bits.
func (m Mode) Perm() Mode {
	return m & ModePerm
}

func (m Mode) String() string {
	return fmt.Sprintf("%s|%04o", m.Kind(), uint32(m.Perm()))
}
