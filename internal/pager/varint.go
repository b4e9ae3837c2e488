package pager

import "github.com/chidb-go/chidb/internal/chidberr"

// PutVarint encodes a non-negative integer as a little-endian base-128
// varint (spec §3 Varint): each byte carries seven payload bits: the
// high bit set means "continue". It returns the number of bytes written.
func PutVarint(buf []byte, v uint64) int {
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v&0x7f) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	n++
	return n
}

// VarintLen returns the number of bytes PutVarint would write for v.
func VarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Varint decodes a varint starting at offset, returning the value and
// the number of bytes consumed. It fails with CorruptFormat if the
// buffer runs out before a terminating byte is found.
func Varint(buf []byte, offset int) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := offset; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i - offset + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, chidberr.New(chidberr.CorruptFormat, "varint too long at offset %d", offset)
		}
	}
	return 0, 0, chidberr.New(chidberr.CorruptFormat, "truncated varint at offset %d", offset)
}
