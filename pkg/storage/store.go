// Package storage keeps a small versioned key-value region on a block device
// (on-chip flash on the firmware, a file on the host).
//
// Layout: a header {magic "GSKV", version u16, reserved u16} followed by
// append-only records {keyLen u8, valLen u16, key, value}, each padded to the
// device write block with 0xFF. An erased byte (0xFF) where a record would
// start marks the end of the log. The latest record for a key wins.
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Version is the current on-device format version.
const Version = 1

const (
	headerLen = 8
	recordHdr = 3
	erased    = 0xFF
	maxKeyLen = erased - 1
	maxValLen = 0xFFFF
)

var magic = [4]byte{'G', 'S', 'K', 'V'}

var (
	// ErrCorrupt is returned when the region holds data that is not a valid log.
	ErrCorrupt = errors.New("storage: corrupt")
	// ErrVersionMismatch is returned when the region was written by another format version.
	ErrVersionMismatch = errors.New("storage: incompatible version")
	// ErrNoFreeSpace is returned when a record does not fit even after compaction.
	ErrNoFreeSpace = errors.New("storage: no free space")
	// ErrNotInitialized is returned by operations on a store before Init succeeds.
	ErrNotInitialized = errors.New("storage: not initialized")
)

// BlockDevice is the storage medium. TinyGo's machine.Flash satisfies it.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, len int64) error
}

// Store is a key-value log on a BlockDevice. It is not safe for concurrent use.
type Store struct {
	dev    BlockDevice
	index  map[string][]byte
	tail   int64
	ready  bool
	erased bool
}

// New wraps dev without touching it.
func New(dev BlockDevice) *Store {
	return &Store{dev: dev}
}

// InitOrErase initializes the store on dev. A corrupt region, or one written
// by another format version, is erased and initialized again. Any error that
// remains is unrecoverable.
func InitOrErase(dev BlockDevice) (*Store, error) {
	s := New(dev)

	err := s.Init()
	if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrVersionMismatch) {
		if eraseErr := s.Erase(); eraseErr != nil {
			return nil, fmt.Errorf("failed to erase storage after %v: %w", err, eraseErr)
		}
		err = s.Init()
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Init validates the header and loads the record log. A blank (erased) region
// is formatted.
func (s *Store) Init() error {
	s.ready = false
	s.index = make(map[string][]byte)

	if s.dev.Size() < s.align(headerLen)+s.align(recordHdr+1) {
		return fmt.Errorf("%w: device too small (%d bytes)", ErrNoFreeSpace, s.dev.Size())
	}

	hdr := make([]byte, headerLen)
	if err := s.read(hdr, 0); err != nil {
		return err
	}

	switch {
	case isErased(hdr):
		if err := s.format(); err != nil {
			return err
		}
	case !bytes.Equal(hdr[:4], magic[:]):
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, hdr[:4])
	default:
		if v := binary.LittleEndian.Uint16(hdr[4:6]); v != Version {
			return fmt.Errorf("%w: found %d, want %d", ErrVersionMismatch, v, Version)
		}
		if err := s.scan(); err != nil {
			return err
		}
	}

	s.ready = true
	return nil
}

// Erase wipes the whole device. Init must be called again afterwards.
func (s *Store) Erase() error {
	s.ready = false
	s.index = nil

	blocks := s.dev.Size() / s.dev.EraseBlockSize()
	if err := s.dev.EraseBlocks(0, blocks); err != nil {
		return fmt.Errorf("failed to erase storage: %w", err)
	}
	s.erased = true
	return nil
}

// Erased reports whether Erase has been called on this store.
func (s *Store) Erased() bool {
	return s.erased
}

// Get returns the latest value stored for key.
func (s *Store) Get(key string) ([]byte, bool) {
	if !s.ready {
		return nil, false
	}
	v, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Put appends a record for key, compacting the log when the device is full.
func (s *Store) Put(key string, value []byte) error {
	if !s.ready {
		return ErrNotInitialized
	}
	if len(key) == 0 || len(key) > maxKeyLen {
		return fmt.Errorf("invalid key length %d", len(key))
	}
	if len(value) > maxValLen {
		return fmt.Errorf("value too large: %d bytes", len(value))
	}

	if s.tail+s.recordSize(key, value) > s.dev.Size() {
		if err := s.compact(key, value); err != nil {
			return err
		}
		s.index[key] = append([]byte(nil), value...)
		return nil
	}

	if err := s.append(key, value); err != nil {
		return err
	}
	s.index[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) format() error {
	hdr := s.pad(headerLen)
	copy(hdr, magic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], Version)
	hdr[6], hdr[7] = 0, 0

	if err := s.write(hdr, 0); err != nil {
		return fmt.Errorf("failed to format storage: %w", err)
	}
	s.tail = int64(len(hdr))
	return nil
}

func (s *Store) scan() error {
	size := s.dev.Size()
	off := s.align(headerLen)
	rec := make([]byte, recordHdr)

	for off+recordHdr <= size {
		if err := s.read(rec, off); err != nil {
			return err
		}
		if rec[0] == erased {
			break
		}

		keyLen := int64(rec[0])
		valLen := int64(binary.LittleEndian.Uint16(rec[1:3]))
		if keyLen == 0 || off+recordHdr+keyLen+valLen > size {
			return fmt.Errorf("%w: bad record at offset %d", ErrCorrupt, off)
		}

		body := make([]byte, keyLen+valLen)
		if err := s.read(body, off+recordHdr); err != nil {
			return err
		}
		s.index[string(body[:keyLen])] = body[keyLen:]

		off += s.align(recordHdr + keyLen + valLen)
	}

	s.tail = off
	return nil
}

// compact rewrites the live records plus the pending one into a freshly
// erased device.
func (s *Store) compact(key string, value []byte) error {
	live := make(map[string][]byte, len(s.index)+1)
	for k, v := range s.index {
		live[k] = v
	}
	live[key] = value

	need := s.align(headerLen)
	for k, v := range live {
		need += s.recordSize(k, v)
	}
	if need > s.dev.Size() {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrNoFreeSpace, need, s.dev.Size())
	}

	keys := make([]string, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	erasedBefore := s.erased
	if err := s.Erase(); err != nil {
		return err
	}
	s.erased = erasedBefore
	if err := s.format(); err != nil {
		return err
	}
	s.index = make(map[string][]byte, len(live))
	for _, k := range keys {
		if err := s.append(k, live[k]); err != nil {
			return err
		}
		s.index[k] = live[k]
	}
	s.ready = true
	return nil
}

func (s *Store) append(key string, value []byte) error {
	size := s.recordSize(key, value)
	buf := s.pad(size)
	buf[0] = byte(len(key))
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(value)))
	copy(buf[recordHdr:], key)
	copy(buf[recordHdr+len(key):], value)

	if err := s.write(buf, s.tail); err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}
	s.tail += size
	return nil
}

func (s *Store) recordSize(key string, value []byte) int64 {
	return s.align(int64(recordHdr + len(key) + len(value)))
}

func (s *Store) align(n int64) int64 {
	wbs := s.dev.WriteBlockSize()
	if wbs <= 1 {
		return n
	}
	return (n + wbs - 1) / wbs * wbs
}

// pad returns an erased buffer of n bytes rounded up to the write block.
func (s *Store) pad(n int64) []byte {
	buf := make([]byte, s.align(n))
	for i := range buf {
		buf[i] = erased
	}
	return buf
}

func (s *Store) read(p []byte, off int64) error {
	if _, err := s.dev.ReadAt(p, off); err != nil {
		return fmt.Errorf("failed to read storage at %d: %w", off, err)
	}
	return nil
}

func (s *Store) write(p []byte, off int64) error {
	if _, err := s.dev.WriteAt(p, off); err != nil {
		return err
	}
	return nil
}

func isErased(p []byte) bool {
	for _, b := range p {
		if b != erased {
			return false
		}
	}
	return true
}

// Increment adds one to the little-endian uint32 counter stored under key and
// returns the new value. A missing or malformed value counts from zero.
func (s *Store) Increment(key string) (uint32, error) {
	var n uint32
	if v, ok := s.Get(key); ok && len(v) == 4 {
		n = binary.LittleEndian.Uint32(v)
	}
	n++

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	if err := s.Put(key, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", key, err)
	}
	return n, nil
}
