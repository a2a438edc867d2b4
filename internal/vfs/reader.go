package vfs

import "io"

// maxTransfer caps a single driver read issued through Reader.
const maxTransfer = 4096

// Reader adapts an open descriptor to io.Reader. A driver read returning no
// bytes is reported as io.EOF.
type Reader struct {
	v  *VFS
	c  Caller
	fd int
}

// NewReader returns a reader over fd of caller c. The descriptor stays open;
// closing it is left to the caller.
func NewReader(v *VFS, c Caller, fd int) *Reader {
	return &Reader{v: v, c: c, fd: fd}
}

func (r *Reader) Read(buf []byte) (int, error) {
	if len(buf) > maxTransfer {
		buf = buf[:maxTransfer]
	}
	n, err := r.v.Read(r.c, r.fd, buf)
	if err != nil {
		return n, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, nil
}
