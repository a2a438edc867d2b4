package vfs

import (
	"sync"
	"sync/atomic"
)

// FileOps is the operation set bound to a descriptor when a node is opened.
// Read and Write receive the descriptor's cursor and advance it by the
// number of bytes transferred.
type FileOps interface {
	Open(f *File, flags int) error
	Read(f *File, buf []byte, off *int64) (int, error)
	Write(f *File, buf []byte, off *int64) (int, error)
	Close(f *File) error
}

// DefaultFileOps can be embedded by drivers implementing a subset of
// FileOps. Open and Close succeed; Read and Write are not permitted.
type DefaultFileOps struct{}

func (DefaultFileOps) Open(*File, int) error { return nil }

func (DefaultFileOps) Read(*File, []byte, *int64) (int, error) { return 0, EPERM }

func (DefaultFileOps) Write(*File, []byte, *int64) (int, error) { return 0, EPERM }

func (DefaultFileOps) Close(*File) error { return nil }

// File is one open instance of a node. Descriptors duplicated with fcntl
// share the File and therefore its cursor.
type File struct {
	ops   FileOps
	node  *Node
	pid   int
	flags int

	mu      sync.Mutex // serializes transfers on the cursor
	pos     int64
	private any

	refs atomic.Int32 // descriptor slots referring to this file
}

func newFile(node *Node, pid, flags int) *File {
	f := &File{
		ops:   node.fileOps,
		node:  node,
		pid:   pid,
		flags: flags,
	}
	f.refs.Store(1)
	return f
}

// Node returns the node the file was opened from.
func (f *File) Node() *Node { return f.node }

// PID returns the id of the process that opened the file.
func (f *File) PID() int { return f.pid }

// Flags returns the flags passed to open.
func (f *File) Flags() int { return f.flags }

// Private returns driver state attached with SetPrivate.
func (f *File) Private() any { return f.private }

// SetPrivate attaches per-open driver state.
func (f *File) SetPrivate(v any) { f.private = v }

// Pos returns the cursor.
func (f *File) Pos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}
