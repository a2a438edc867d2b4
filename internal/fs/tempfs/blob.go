package tempfs

import (
	"fmt"
	"sync"

	"github.com/brettbedarf/kvfs/internal/vfs"
)

type blob struct {
	mu   sync.RWMutex
	data []byte
}

// blobOps reads and writes the blob payload of a tempfs file.
type blobOps struct {
	vfs.DefaultFileOps
}

func blobOf(f *vfs.File) (*blob, error) {
	b, ok := f.Node().Payload().(*blob)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no tempfs payload", vfs.EIO, f.Node().Name())
	}
	return b, nil
}

func (blobOps) Read(f *vfs.File, buf []byte, off *int64) (int, error) {
	b, err := blobOf(f)
	if err != nil {
		return 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if *off >= int64(len(b.data)) {
		return 0, nil
	}
	n := copy(buf, b.data[*off:])
	*off += int64(n)
	return n, nil
}

func (blobOps) Write(f *vfs.File, buf []byte, off *int64) (int, error) {
	b, err := blobOf(f)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	end := *off + int64(len(buf))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.data))))
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	n := copy(b.data[*off:], buf)
	*off += int64(n)
	f.Node().SetSize(int64(len(b.data)))
	return n, nil
}
