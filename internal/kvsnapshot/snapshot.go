// Package kvsnapshot implements an optional, read-only, mmap-backed snapshot
// of a Store's sorted keys and values, written by Build to its own binary
// file (it does not read the text format): a supplemental feature (not
// required by the core specification) for the "observed workload" of very
// large stores, where paying to load and re-sort the whole text file on every
// process start is wasteful if most processes only ever read a handful of keys.
//
// The on-disk layout and the bounds-checked binary search are adapted from
// the corpus's mmap'd sorted-index idiom (a fixed-size index section
// pointing into a variable-length data section, validated once at open
// time, searched with a panic-recovering lookup thereafter).
package kvsnapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/keyval/internal/kvstore"
	"github.com/calvinalkan/keyval/internal/pathorder"
)

const (
	magic          = "KVS1"
	headerSize     = 16 // magic(4) + version(2) + reserved(2) + entryCount(4) + reserved(4)
	indexEntrySize = 16 // keyOffset(4) keyLen(4) valOffset(4) valLen(4)
	formatVersion  = 1
	sep            = "::"
)

// Sentinel errors for snapshot validation failures.
var (
	ErrInvalidMagic    = errors.New("kvsnapshot: invalid magic")
	ErrVersionMismatch = errors.New("kvsnapshot: version mismatch")
	ErrTruncated       = errors.New("kvsnapshot: file too small")
	ErrCorrupt         = errors.New("kvsnapshot: corrupt index")
)

// Build renders store's sorted key/value pairs into a snapshot file at
// path, replacing it atomically.
func Build(store *kvstore.Store, path string) error {
	keys := store.GetAllKeys()

	var dataBuf bytes.Buffer

	type offsets struct {
		keyOff, keyLen, valOff, valLen uint32
	}

	positions := make([]offsets, len(keys))

	for i, k := range keys {
		v, _ := store.Get(k)

		positions[i].keyOff = uint32(dataBuf.Len())
		positions[i].keyLen = uint32(len(k))
		dataBuf.Write(k)

		positions[i].valOff = uint32(dataBuf.Len())
		positions[i].valLen = uint32(len(v))
		dataBuf.Write(v)
	}

	indexSize := len(keys) * indexEntrySize
	total := headerSize + indexSize + dataBuf.Len()
	buf := make([]byte, total)

	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(keys)))

	for i, pos := range positions {
		off := headerSize + i*indexEntrySize
		binary.LittleEndian.PutUint32(buf[off:off+4], pos.keyOff+uint32(headerSize+indexSize))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], pos.keyLen)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], pos.valOff+uint32(headerSize+indexSize))
		binary.LittleEndian.PutUint32(buf[off+12:off+16], pos.valLen)
	}

	copy(buf[headerSize+indexSize:], dataBuf.Bytes())

	return atomic.WriteFile(path, bytes.NewReader(buf))
}

// Snapshot is an opened, mmap'd, read-only index. It is safe for concurrent
// reads (unlike kvstore.Store) because it is never mutated after Open.
type Snapshot struct {
	data       []byte
	entryCount int
}

// Open mmaps path and validates its header and index bounds.
func Open(path string) (*Snapshot, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("kvsnapshot: open %s: %w", path, err)
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("kvsnapshot: stat %s: %w", path, err)
	}

	size := info.Size()
	if size < headerSize {
		return nil, ErrTruncated
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("kvsnapshot: mmap %s: %w", path, err)
	}

	if string(data[0:4]) != magic {
		_ = syscall.Munmap(data)

		return nil, ErrInvalidMagic
	}

	if binary.LittleEndian.Uint16(data[4:6]) != formatVersion {
		_ = syscall.Munmap(data)

		return nil, ErrVersionMismatch
	}

	entryCount := int(binary.LittleEndian.Uint32(data[8:12]))

	indexEnd := headerSize + entryCount*indexEntrySize
	if int(size) < indexEnd {
		_ = syscall.Munmap(data)

		return nil, ErrTruncated
	}

	fileSize := uint32(size)

	for i := 0; i < entryCount; i++ {
		off := headerSize + i*indexEntrySize
		keyOff := binary.LittleEndian.Uint32(data[off : off+4])
		keyLen := binary.LittleEndian.Uint32(data[off+4 : off+8])
		valOff := binary.LittleEndian.Uint32(data[off+8 : off+12])
		valLen := binary.LittleEndian.Uint32(data[off+12 : off+16])

		if keyOff > fileSize || keyLen > fileSize-keyOff || valOff > fileSize || valLen > fileSize-valOff {
			_ = syscall.Munmap(data)

			return nil, ErrCorrupt
		}
	}

	return &Snapshot{data: data, entryCount: entryCount}, nil
}

// Close unmaps the snapshot. The Snapshot must not be used afterward.
func (s *Snapshot) Close() error {
	if s.data == nil {
		return nil
	}

	err := syscall.Munmap(s.data)
	s.data = nil

	return err
}

func (s *Snapshot) keyAt(i int) []byte {
	off := headerSize + i*indexEntrySize
	keyOff := binary.LittleEndian.Uint32(s.data[off : off+4])
	keyLen := binary.LittleEndian.Uint32(s.data[off+4 : off+8])

	return s.data[keyOff : keyOff+keyLen]
}

func (s *Snapshot) valueAt(i int) []byte {
	off := headerSize + i*indexEntrySize
	valOff := binary.LittleEndian.Uint32(s.data[off+8 : off+12])
	valLen := binary.LittleEndian.Uint32(s.data[off+12 : off+16])

	return s.data[valOff : valOff+valLen]
}

// find returns the index of key via binary search, or -1. Recovers from
// any panic caused by an (already-validated, but defensively distrusted)
// corrupt mmap region.
func (s *Snapshot) find(key []byte) (idx int) {
	lo := s.findIdealIndex(key)
	if lo < 0 {
		return -1
	}

	if lo < s.entryCount && bytes.Equal(s.keyAt(lo), key) {
		return lo
	}

	return -1
}

// findIdealIndex returns the lower-bound insertion point for key -- the
// index of the first stored key not less than key, or s.entryCount if none.
// Returns -1 if a panic was recovered (an already-validated, but
// defensively distrusted, corrupt mmap region).
func (s *Snapshot) findIdealIndex(key []byte) (idx int) {
	defer func() {
		if recover() != nil {
			idx = -1
		}
	}()

	lo, hi := 0, s.entryCount

	for lo < hi {
		mid := (lo + hi) / 2

		if pathorder.Compare(s.keyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// Get returns a copy of the value stored under key, or (nil, false).
func (s *Snapshot) Get(key []byte) ([]byte, bool) {
	idx := s.find(key)
	if idx < 0 {
		return nil, false
	}

	v := s.valueAt(idx)
	out := make([]byte, len(v))
	copy(out, v)

	return out, true
}

// HasValue reports whether key is stored as a leaf.
func (s *Snapshot) HasValue(key []byte) bool {
	return s.find(key) >= 0
}

// HasKeys reports whether any stored key has the form path + "::" + rest.
// An exact match on path itself does not count -- path must have at least
// one descendant. Mirrors kvstore.Store.HasKeys.
func (s *Snapshot) HasKeys(path []byte) bool {
	idx := s.findIdealIndex(path)
	if idx < 0 {
		return false
	}

	if idx < s.entryCount && bytes.Equal(s.keyAt(idx), path) {
		idx++
	}

	if idx >= s.entryCount {
		return false
	}

	return hasPrefixSep(s.keyAt(idx), path)
}

// hasPrefixSep reports whether key equals path + "::" + (at least one more
// byte).
func hasPrefixSep(key, path []byte) bool {
	if len(key) <= len(path)+len(sep) {
		return false
	}

	if !bytes.HasPrefix(key, path) {
		return false
	}

	return key[len(path)] == ':' && key[len(path)+1] == ':'
}
