package pager

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chidb-go/chidb/internal/chidberr"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, size := range []uint32{512, 1024, 2048, 4096, 8192} {
		buf := make([]byte, size)
		MarshalHeader(Header{PageSize: size, FormatVersion: FormatVersion, PageCount: 1}, buf)
		h, err := UnmarshalHeader(buf)
		if err != nil {
			t.Fatalf("size %d: unmarshal: %v", size, err)
		}
		if h.PageSize != size || h.PageCount != 1 {
			t.Fatalf("size %d: got %+v", size, h)
		}
	}
}

func TestUnmarshalHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, "garbage!")
	if _, err := UnmarshalHeader(buf); !chidberr.Is(err, chidberr.CorruptFormat) {
		t.Fatalf("expected CorruptFormat, got %v", err)
	}
}

func TestOpenCreatesFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, DefaultPageSize, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if p.PageCount() != 1 {
		t.Fatalf("expected page count 1, got %d", p.PageCount())
	}
	if p.PageSize() != DefaultPageSize {
		t.Fatalf("expected page size %d, got %d", DefaultPageSize, p.PageSize())
	}
}

func TestReopenAdoptsStoredPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, 1024, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := Open(path, 4096, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	if p2.PageSize() != 1024 {
		t.Fatalf("expected stored page size 1024, got %d", p2.PageSize())
	}
}

func TestAllocateAndReadWritePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, DefaultPageSize, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	id, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first allocated page to be 1, got %d", id)
	}
	if p.PageCount() != 2 {
		t.Fatalf("expected page count 2, got %d", p.PageCount())
	}

	buf, err := p.ReadPage(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	buf[0] = 0x7f
	if err := p.WritePage(id, buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := p.ReadPage(id)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got[0] != 0x7f {
		t.Fatalf("expected mutation to stick, got %v", got[0])
	}
}

func TestReadPageOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, DefaultPageSize, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if _, err := p.ReadPage(99); !errors.Is(err, chidberr.ErrOutOfRange) {
		t.Fatalf("expected OutOfRange, got %v", err)
	}
}

func TestFlushPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	p, err := Open(path, DefaultPageSize, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	buf, err := p.ReadPage(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	copy(buf, "hello world")
	if err := p.WritePage(id, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := Open(path, DefaultPageSize, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	got, err := p2.ReadPage(id)
	if err != nil {
		t.Fatalf("read after reopen: %v", err)
	}
	if string(got[:11]) != "hello world" {
		t.Fatalf("expected persisted data, got %q", got[:11])
	}
}

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16384, 1<<32 - 1, 1<<63 - 1}
	buf := make([]byte, 10)
	for _, v := range cases {
		n := PutVarint(buf, v)
		if n != VarintLen(v) {
			t.Fatalf("value %d: PutVarint wrote %d bytes, VarintLen says %d", v, n, VarintLen(v))
		}
		got, consumed, err := Varint(buf, 0)
		if err != nil {
			t.Fatalf("value %d: decode: %v", v, err)
		}
		if got != v || consumed != n {
			t.Fatalf("value %d: got (%d, %d)", v, got, consumed)
		}
	}
}

func TestVarintTruncated(t *testing.T) {
	buf := []byte{0x80, 0x80}
	if _, _, err := Varint(buf, 0); !chidberr.Is(err, chidberr.CorruptFormat) {
		t.Fatalf("expected CorruptFormat, got %v", err)
	}
}
