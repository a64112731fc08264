package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const (
	// DefaultFileSize is the size of a file-backed region.
	DefaultFileSize = 16 * 1024
	// FileEraseBlock mirrors a typical flash sector size.
	FileEraseBlock = 4096
	// FileWriteBlock mirrors a typical flash word size.
	FileWriteBlock = 4
)

var _ BlockDevice = (*File)(nil)

// File emulates a flash partition with a regular file. Fresh space reads as
// erased (0xFF).
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens or creates a region of size bytes, rounded up to whole
// erase blocks.
func OpenFile(path string, size int64) (*File, error) {
	if size <= 0 {
		size = DefaultFileSize
	}
	size = (size + FileEraseBlock - 1) / FileEraseBlock * FileEraseBlock

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat storage file: %w", err)
	}

	if have := info.Size(); have < size {
		fill := bytes.Repeat([]byte{erased}, int(size-have))
		if _, err := f.WriteAt(fill, have); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to extend storage file: %w", err)
		}
	}

	return &File{f: f, size: size}, nil
}

func (d *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, io.EOF
	}
	return d.f.ReadAt(p, off)
}

func (d *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, fmt.Errorf("write of %d bytes at %d exceeds %d byte region", len(p), off, d.size)
	}
	return d.f.WriteAt(p, off)
}

func (d *File) Size() int64           { return d.size }
func (d *File) WriteBlockSize() int64 { return FileWriteBlock }
func (d *File) EraseBlockSize() int64 { return FileEraseBlock }

func (d *File) EraseBlocks(start, n int64) error {
	if start < 0 || n < 0 || (start+n)*FileEraseBlock > d.size {
		return fmt.Errorf("erase of blocks [%d, %d) out of range", start, start+n)
	}
	blank := bytes.Repeat([]byte{erased}, FileEraseBlock)
	for b := start; b < start+n; b++ {
		if _, err := d.f.WriteAt(blank, b*FileEraseBlock); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes the file to disk.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close closes the underlying file.
func (d *File) Close() error {
	return d.f.Close()
}
