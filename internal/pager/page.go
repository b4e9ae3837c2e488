// Package pager implements the on-disk page layer for chidb: a
// single-file, fixed-page-size store with a write-back page cache
// (spec §4.1). Page 0 is the database header; every other page holds
// either a B-tree node or (once the catalog grows) sits unused.
//
// How: the teacher's storage/pager package (internal/storage/pager in
// SimonWaldherr-tinySQL) layers a WAL, CRC32 checksums, and an overflow
// chain on top of this same idea; this package keeps the teacher's
// typed-id-plus-marshal-helpers shape but drops WAL/CRC/overflow, which
// spec.md's Non-goals exclude (no crash recovery via write-ahead log).
package pager

import (
	"encoding/binary"

	"github.com/chidb-go/chidb/internal/chidberr"
)

const (
	// Magic is the 8-byte signature stored at the start of page 0.
	Magic = "chidb\x00\x00\x00"

	// FormatVersion is the only on-disk format version this package writes.
	FormatVersion uint32 = 1

	// DefaultPageSize is used when a caller opens a new database without
	// specifying one.
	DefaultPageSize uint32 = 4096

	// MinPageSize is the smallest page size the format allows.
	MinPageSize uint32 = 512

	// HeaderSize is the number of meaningful bytes at the start of page 0:
	// magic(8) + page-size(4) + format-version(4) + page-count(4) +
	// reserved free-list head(4).
	HeaderSize = 8 + 4 + 4 + 4 + 4
)

// Header is the decoded contents of page 0.
type Header struct {
	PageSize      uint32
	FormatVersion uint32
	PageCount     uint32
	FreeListHead  uint32
}

// MarshalHeader writes h into the first HeaderSize bytes of buf, which
// must be at least one full page.
func MarshalHeader(h Header, buf []byte) {
	copy(buf[0:8], Magic)
	binary.BigEndian.PutUint32(buf[8:12], h.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], h.FormatVersion)
	binary.BigEndian.PutUint32(buf[16:20], h.PageCount)
	binary.BigEndian.PutUint32(buf[20:24], h.FreeListHead)
}

// UnmarshalHeader parses page 0's header, failing with CorruptFormat if
// the magic is wrong or the buffer is too short.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, chidberr.New(chidberr.CorruptFormat, "header too short: %d bytes", len(buf))
	}
	if string(buf[0:8]) != Magic {
		return Header{}, chidberr.New(chidberr.CorruptFormat, "bad magic number")
	}
	h := Header{
		PageSize:      binary.BigEndian.Uint32(buf[8:12]),
		FormatVersion: binary.BigEndian.Uint32(buf[12:16]),
		PageCount:     binary.BigEndian.Uint32(buf[16:20]),
		FreeListHead:  binary.BigEndian.Uint32(buf[20:24]),
	}
	if h.PageSize < MinPageSize || h.PageSize&(h.PageSize-1) != 0 {
		return Header{}, chidberr.New(chidberr.CorruptFormat, "impossible page size %d", h.PageSize)
	}
	return h, nil
}

// validPageSize reports whether size is a power of two >= MinPageSize.
func validPageSize(size uint32) bool {
	return size >= MinPageSize && size&(size-1) == 0
}
