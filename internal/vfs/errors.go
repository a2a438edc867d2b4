package vfs

import (
	"errors"
	"syscall"
)

// Error numbers returned by VFS operations. Every failure surfaced by this
// package unwraps to one of these.
const (
	EPERM        = syscall.EPERM
	ENOENT       = syscall.ENOENT
	E2BIG        = syscall.E2BIG
	ENOEXEC      = syscall.ENOEXEC
	EBADF        = syscall.EBADF
	ENOMEM       = syscall.ENOMEM
	EFAULT       = syscall.EFAULT
	EBUSY        = syscall.EBUSY
	EEXIST       = syscall.EEXIST
	ENOTDIR      = syscall.ENOTDIR
	EISDIR       = syscall.EISDIR
	EINVAL       = syscall.EINVAL
	EMFILE       = syscall.EMFILE
	ENAMETOOLONG = syscall.ENAMETOOLONG
	ELOOP        = syscall.ELOOP
	EIO          = syscall.EIO
)

// ToErrno extracts the error number carried by err. Errors that do not wrap
// a syscall.Errno are reported as EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return EIO
}

// Ret converts a (value, error) pair into the integer convention of the
// syscall surface: n on success, the negated error number on failure.
func Ret(n int, err error) int {
	if err != nil {
		return -int(ToErrno(err))
	}
	return n
}
