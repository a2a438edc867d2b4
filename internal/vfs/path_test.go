package vfs_test

import (
	"strings"
	"testing"

	"github.com/brettbedarf/kvfs/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMaxLen   = 256
	testMaxDepth = 32
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		cwd  string
		want string
	}{
		{"relative with parent", "a/b/../c", "/x", "/x/a/c"},
		{"ascent past root clamps", "../../x", "/", "/x"},
		{"absolute ignores cwd", "/a/b", "/x/y", "/a/b"},
		{"root", "/", "/x", "/"},
		{"empty is cwd", "", "/x/y", "/x/y"},
		{"dot segments", "/./a/./b/.", "/", "/a/b"},
		{"repeated separators", "//a///b//", "/", "/a/b"},
		{"parent of root", "/..", "/x", "/"},
		{"relative ascent through cwd", "../../../z", "/a/b", "/z"},
		{"dotdot only", "..", "/a/b", "/a"},
		{"dot names are kept", "/.hidden/..x", "/", "/.hidden/..x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := vfs.Canonicalize(tt.raw, tt.cwd, testMaxLen, testMaxDepth)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"a/b/../c", "../../x", "//a/./b//..", "/", "", "x/y/z/../../w", "/.."}
	for _, raw := range inputs {
		once, err := vfs.Canonicalize(raw, "/cwd/dir", testMaxLen, testMaxDepth)
		require.NoError(t, err)
		twice, err := vfs.Canonicalize(once, "/somewhere/else", testMaxLen, testMaxDepth)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "canonicalize(%q) must be a fixed point", raw)
	}
}

func TestCanonicalize_Limits(t *testing.T) {
	t.Parallel()

	t.Run("too many segments", func(t *testing.T) {
		t.Parallel()
		_, err := vfs.Canonicalize("/a/b/c", "/", testMaxLen, 2)
		assert.ErrorIs(t, err, vfs.ENAMETOOLONG)
	})
	t.Run("segments popped before overflow", func(t *testing.T) {
		t.Parallel()
		got, err := vfs.Canonicalize("/a/b/../c", "/", testMaxLen, 2)
		require.NoError(t, err)
		assert.Equal(t, "/a/c", got)
	})
	t.Run("cwd counts toward depth", func(t *testing.T) {
		t.Parallel()
		_, err := vfs.Canonicalize("c", "/a/b", testMaxLen, 2)
		assert.ErrorIs(t, err, vfs.ENAMETOOLONG)
	})
	t.Run("too long", func(t *testing.T) {
		t.Parallel()
		_, err := vfs.Canonicalize("/"+strings.Repeat("x", 10), "/", 8, testMaxDepth)
		assert.ErrorIs(t, err, vfs.ENAMETOOLONG)
	})
	t.Run("fits with terminator", func(t *testing.T) {
		t.Parallel()
		// 7 bytes of path plus the terminator
		got, err := vfs.Canonicalize("/abcdef", "/", 8, testMaxDepth)
		require.NoError(t, err)
		assert.Equal(t, "/abcdef", got)

		_, err = vfs.Canonicalize("/abcdefg", "/", 8, testMaxDepth)
		assert.ErrorIs(t, err, vfs.ENAMETOOLONG)
	})
}

func TestToErrno(t *testing.T) {
	t.Parallel()

	assert.Equal(t, vfs.ENOENT, vfs.ToErrno(vfs.ENOENT))
	_, err := vfs.Canonicalize("/a/b/c", "/", testMaxLen, 1)
	assert.Equal(t, vfs.ENAMETOOLONG, vfs.ToErrno(err))
	assert.Equal(t, vfs.EIO, vfs.ToErrno(assert.AnError))
	assert.Zero(t, vfs.ToErrno(nil))

	assert.Equal(t, 3, vfs.Ret(3, nil))
	assert.Equal(t, -int(vfs.ENOENT), vfs.Ret(3, vfs.ENOENT))
}
