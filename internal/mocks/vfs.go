package mocks

import (
	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/mock"
)

// MockFileOps implements vfs.FileOps for testing across packages
type MockFileOps struct {
	mock.Mock
}

func (m *MockFileOps) Open(f *vfs.File, flags int) error {
	args := m.Called(f, flags)
	return args.Error(0)
}

func (m *MockFileOps) Read(f *vfs.File, buf []byte, off *int64) (int, error) {
	args := m.Called(f, buf, off)

	// Handle function return types (for tests filling buf or moving the cursor)
	if fn, ok := args.Get(0).(func(*vfs.File, []byte, *int64) int); ok {
		return fn(f, buf, off), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockFileOps) Write(f *vfs.File, buf []byte, off *int64) (int, error) {
	args := m.Called(f, buf, off)

	if fn, ok := args.Get(0).(func(*vfs.File, []byte, *int64) int); ok {
		return fn(f, buf, off), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

func (m *MockFileOps) Close(f *vfs.File) error {
	args := m.Called(f)
	return args.Error(0)
}

// MockFilesystemType implements vfs.FilesystemType for testing across packages
type MockFilesystemType struct {
	mock.Mock
}

func (m *MockFilesystemType) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockFilesystemType) ReadSuper(device string) (vfs.Superblock, error) {
	args := m.Called(device)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(vfs.Superblock), args.Error(1)
}

// MockSuperblock implements vfs.Superblock and io.Closer for testing across
// packages
type MockSuperblock struct {
	mock.Mock
}

func (m *MockSuperblock) Spawn(name string, mode vfs.Mode) (*vfs.Node, error) {
	args := m.Called(name, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vfs.Node), args.Error(1)
}

func (m *MockSuperblock) Close() error {
	args := m.Called()
	return args.Error(0)
}
