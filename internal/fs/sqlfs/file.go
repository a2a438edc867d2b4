package sqlfs

import (
	"fmt"

	"github.com/brettbedarf/kvfs/internal/vfs"
)

// fileOps reads and writes the content column of a stored file.
type fileOps struct {
	vfs.DefaultFileOps
	sb *Superblock
}

func (o *fileOps) Read(f *vfs.File, buf []byte, off *int64) (int, error) {
	id, ok := idOf(f.Node())
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a sqlfs file", vfs.EIO, f.Node().Name())
	}
	if len(buf) == 0 {
		return 0, nil
	}

	var data []byte
	err := o.sb.db.QueryRow(
		"SELECT substr(content, ?, ?) FROM kvfs_entries WHERE id = ?",
		*off+1, len(buf), id,
	).Scan(&data)
	if err != nil {
		return 0, fmt.Errorf("%w: read %q: %w", vfs.EIO, f.Node().Name(), err)
	}
	n := copy(buf, data)
	*off += int64(n)
	return n, nil
}

func (o *fileOps) Write(f *vfs.File, buf []byte, off *int64) (int, error) {
	id, ok := idOf(f.Node())
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a sqlfs file", vfs.EIO, f.Node().Name())
	}

	tx, err := o.sb.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	defer tx.Rollback() // nolint:errcheck

	var content []byte
	if err := tx.QueryRow("SELECT content FROM kvfs_entries WHERE id = ?", id).Scan(&content); err != nil {
		return 0, fmt.Errorf("%w: write %q: %w", vfs.EIO, f.Node().Name(), err)
	}
	end := *off + int64(len(buf))
	if end > int64(len(content)) {
		grown := make([]byte, end)
		copy(grown, content)
		content = grown
	}
	n := copy(content[*off:], buf)

	if _, err := tx.Exec("UPDATE kvfs_entries SET content = ? WHERE id = ?", content, id); err != nil {
		return 0, fmt.Errorf("%w: write %q: %w", vfs.EIO, f.Node().Name(), err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %w", vfs.EIO, err)
	}
	*off += int64(n)
	f.Node().SetSize(int64(len(content)))
	return n, nil
}
