// Package record implements the self-describing typed-tuple codec
// used for every row chidb stores, including catalog entries (spec
// §3 Record, §4.2).
//
// How: grounded on original_source/chidb/record.py's DataType enum and
// header layout, adapted to the teacher's explicit Encode/Decode
// function shape (internal/storage/pager/row_codec.go in the teacher
// returns a consumed byte count alongside the decoded value; this
// package does the same).
package record

import (
	"encoding/binary"
	"math"

	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/pager"
)

// Type is a record column's type code (spec §3).
type Type uint8

const (
	TypeNull    Type = 0
	TypeInteger Type = 1
	TypeFloat   Type = 2
	TypeText    Type = 3
	TypeBlob    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a single typed column value. Only the field matching Type
// is meaningful; boolean values are represented as TypeInteger 0/1
// (spec §9 "duck-typed record values").
type Value struct {
	Type  Type
	Int   int64
	Float float64
	Text  string
	Blob  []byte
}

func Null() Value       { return Value{Type: TypeNull} }
func Int(v int64) Value { return Value{Type: TypeInteger, Int: v} }
func Bool(v bool) Value {
	if v {
		return Int(1)
	}
	return Int(0)
}
func Float64(v float64) Value { return Value{Type: TypeFloat, Float: v} }
func Text(v string) Value     { return Value{Type: TypeText, Text: v} }
func Blob(v []byte) Value     { return Value{Type: TypeBlob, Blob: v} }

// Equal reports whether two values have the same type and content.
// Float comparisons use IEEE-754 equality (spec §8 invariant 2).
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeInteger:
		return v.Int == o.Int
	case TypeFloat:
		return v.Float == o.Float
	case TypeText:
		return v.Text == o.Text
	case TypeBlob:
		return string(v.Blob) == string(o.Blob)
	}
	return false
}

// Encode serializes values into the layout from spec §3: header-length,
// column-count, type-code[i], then column data in order.
func Encode(values []Value) []byte {
	n := len(values)
	typeCodeBytes := make([]byte, 0, n*2)
	tmp := make([]byte, 10)
	for _, v := range values {
		w := pager.PutVarint(tmp, uint64(v.Type))
		typeCodeBytes = append(typeCodeBytes, tmp[:w]...)
	}
	countLen := pager.VarintLen(uint64(n))

	// header-length counts itself; fixed-point over its own varint width.
	hlBytes := 1
	var headerLen int
	for {
		headerLen = hlBytes + countLen + len(typeCodeBytes)
		need := pager.VarintLen(uint64(headerLen))
		if need == hlBytes {
			break
		}
		hlBytes = need
	}

	buf := make([]byte, 0, headerLen+64)
	hlBuf := make([]byte, hlBytes)
	w := pager.PutVarint(hlBuf, uint64(headerLen))
	buf = append(buf, hlBuf[:w]...)
	cBuf := make([]byte, countLen)
	pager.PutVarint(cBuf, uint64(n))
	buf = append(buf, cBuf...)
	buf = append(buf, typeCodeBytes...)

	for _, v := range values {
		buf = append(buf, encodeValue(v)...)
	}
	return buf
}

func encodeValue(v Value) []byte {
	switch v.Type {
	case TypeNull:
		return nil
	case TypeInteger:
		if v.Int < 0 {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(int32(v.Int)))
			return b
		}
		b := make([]byte, 10)
		w := pager.PutVarint(b, uint64(v.Int))
		return b[:w]
	case TypeFloat:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Float))
		return b
	case TypeText:
		s := []byte(v.Text)
		lb := make([]byte, 10)
		w := pager.PutVarint(lb, uint64(len(s)))
		out := append([]byte{}, lb[:w]...)
		return append(out, s...)
	case TypeBlob:
		lb := make([]byte, 10)
		w := pager.PutVarint(lb, uint64(len(v.Blob)))
		out := append([]byte{}, lb[:w]...)
		return append(out, v.Blob...)
	}
	return nil
}

// Decode parses a record starting at offset in buf, returning the
// decoded values and the number of bytes consumed. Decode fails with
// CorruptRecord (CorruptFormat) on an invalid type code or truncated
// input.
//
// Negative INTEGER columns are decoded by first attempting a varint
// parse and falling back to the fixed 4-byte form only when the varint
// parse runs off the end of buf without terminating — this mirrors
// original_source/chidb/record.py's decode exactly, including its
// limitation: the fallback fires only when the negative integer is the
// record's last column and every one of its four bytes has the high
// bit set (for example -1 through -128). Any other negative integer
// (such as -129, whose last byte is 0x7f, or one followed by further
// columns) is read back as a terminated varint and decodes to a
// different, non-negative value.
func Decode(buf []byte, offset int) ([]Value, int, error) {
	start := offset
	headerLen, n, err := pager.Varint(buf, offset)
	if err != nil {
		return nil, 0, chidberr.Wrap(chidberr.CorruptFormat, err, "record header length")
	}
	headerEnd := offset + int(headerLen)
	if headerEnd > len(buf) {
		return nil, 0, chidberr.New(chidberr.CorruptFormat, "record header length %d exceeds buffer", headerLen)
	}
	offset += n

	colCount, n, err := pager.Varint(buf, offset)
	if err != nil {
		return nil, 0, chidberr.Wrap(chidberr.CorruptFormat, err, "record column count")
	}
	offset += n

	types := make([]Type, colCount)
	for i := range types {
		tc, n, err := pager.Varint(buf, offset)
		if err != nil {
			return nil, 0, chidberr.Wrap(chidberr.CorruptFormat, err, "record type code %d", i)
		}
		if tc > uint64(TypeBlob) {
			return nil, 0, chidberr.New(chidberr.CorruptFormat, "invalid type code %d", tc)
		}
		types[i] = Type(tc)
		offset += n
	}
	if offset != headerEnd {
		return nil, 0, chidberr.New(chidberr.CorruptFormat, "record header size mismatch: at %d, expected %d", offset, headerEnd)
	}

	values := make([]Value, colCount)
	for i, t := range types {
		v, consumed, err := decodeValue(buf, offset, t)
		if err != nil {
			return nil, 0, err
		}
		values[i] = v
		offset += consumed
	}
	return values, offset - start, nil
}

func decodeValue(buf []byte, offset int, t Type) (Value, int, error) {
	switch t {
	case TypeNull:
		return Null(), 0, nil
	case TypeInteger:
		if v, n, err := pager.Varint(buf, offset); err == nil {
			return Int(int64(v)), n, nil
		}
		if offset+4 > len(buf) {
			return Value{}, 0, chidberr.New(chidberr.CorruptFormat, "truncated integer at offset %d", offset)
		}
		u := binary.BigEndian.Uint32(buf[offset : offset+4])
		return Int(int64(int32(u))), 4, nil
	case TypeFloat:
		if offset+8 > len(buf) {
			return Value{}, 0, chidberr.New(chidberr.CorruptFormat, "truncated float at offset %d", offset)
		}
		bits := binary.BigEndian.Uint64(buf[offset : offset+8])
		return Float64(math.Float64frombits(bits)), 8, nil
	case TypeText:
		length, n, err := pager.Varint(buf, offset)
		if err != nil {
			return Value{}, 0, chidberr.Wrap(chidberr.CorruptFormat, err, "text length")
		}
		start := offset + n
		end := start + int(length)
		if end > len(buf) {
			return Value{}, 0, chidberr.New(chidberr.CorruptFormat, "truncated text at offset %d", offset)
		}
		return Text(string(buf[start:end])), n + int(length), nil
	case TypeBlob:
		length, n, err := pager.Varint(buf, offset)
		if err != nil {
			return Value{}, 0, chidberr.Wrap(chidberr.CorruptFormat, err, "blob length")
		}
		start := offset + n
		end := start + int(length)
		if end > len(buf) {
			return Value{}, 0, chidberr.New(chidberr.CorruptFormat, "truncated blob at offset %d", offset)
		}
		b := make([]byte, length)
		copy(b, buf[start:end])
		return Blob(b), n + int(length), nil
	}
	return Value{}, 0, chidberr.New(chidberr.CorruptFormat, "invalid type code %d", t)
}
