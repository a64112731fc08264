package storage

import (
	"fmt"
	"io"
)

// Region exposes a window of a larger device, aligned to its erase blocks.
type Region struct {
	dev    BlockDevice
	offset int64
	size   int64
}

var _ BlockDevice = (*Region)(nil)

// NewRegion returns the blocks erase blocks of dev starting at erase block
// start.
func NewRegion(dev BlockDevice, start, blocks int64) (*Region, error) {
	eb := dev.EraseBlockSize()
	if start < 0 || blocks <= 0 || (start+blocks)*eb > dev.Size() {
		return nil, fmt.Errorf("region %d+%d blocks does not fit a %d byte device", start, blocks, dev.Size())
	}
	return &Region{dev: dev, offset: start * eb, size: blocks * eb}, nil
}

func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.size {
		return 0, io.EOF
	}
	return r.dev.ReadAt(p, r.offset+off)
}

func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.size {
		return 0, io.ErrShortWrite
	}
	return r.dev.WriteAt(p, r.offset+off)
}

func (r *Region) Size() int64           { return r.size }
func (r *Region) WriteBlockSize() int64 { return r.dev.WriteBlockSize() }
func (r *Region) EraseBlockSize() int64 { return r.dev.EraseBlockSize() }

func (r *Region) EraseBlocks(start, n int64) error {
	if start < 0 || (start+n)*r.dev.EraseBlockSize() > r.size {
		return fmt.Errorf("erase %d+%d blocks outside region", start, n)
	}
	return r.dev.EraseBlocks(r.offset/r.dev.EraseBlockSize()+start, n)
}
