package pager

import (
	"fmt"
	"os"

	"github.com/chidb-go/chidb/internal/chidberr"
)

// Logger is the handle-scoped sink pager diagnostics are written to
// (spec §9 "Global loggers... replace with a handle-scoped log sink
// passed via construction"). *log.Logger satisfies this.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Pager mediates every read/write to the database file through a
// write-back page cache (spec §4.1). It is not reentrant: one Pager
// serves exactly one database handle.
type Pager struct {
	file      *os.File
	pageSize  uint32
	pageCount uint32
	cache     map[uint32][]byte
	dirty     map[uint32]bool
	log       Logger

	cacheLimit int      // 0 means unbounded
	lru        []uint32 // least-recently-used first; page 0 never appears here
}

// Open opens path for read-write access, creating it if it doesn't
// exist. If the file already holds data, its stored page size is
// adopted and requestedPageSize is ignored (spec §4.1 open). A nil
// logger is replaced with a no-op sink.
func Open(path string, requestedPageSize uint32, logger Logger) (*Pager, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	if requestedPageSize == 0 {
		requestedPageSize = DefaultPageSize
	}
	if !validPageSize(requestedPageSize) {
		return nil, chidberr.New(chidberr.IOError, "page size %d must be a power of two >= %d", requestedPageSize, MinPageSize)
	}

	info, statErr := os.Stat(path)
	exists := statErr == nil && info.Size() > 0

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, chidberr.Wrap(chidberr.IOError, err, "open %s", path)
	}

	p := &Pager{
		file:  file,
		cache: make(map[uint32][]byte),
		dirty: make(map[uint32]bool),
		log:   logger,
	}

	if exists {
		if err := p.loadExisting(); err != nil {
			file.Close()
			return nil, err
		}
		p.log.Printf("pager: opened %s with %d pages of %d bytes", path, p.pageCount, p.pageSize)
		return p, nil
	}

	if err := p.createNew(requestedPageSize); err != nil {
		file.Close()
		return nil, err
	}
	p.log.Printf("pager: created %s with page size %d", path, p.pageSize)
	return p, nil
}

func (p *Pager) loadExisting() error {
	buf := make([]byte, HeaderSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return chidberr.Wrap(chidberr.CorruptFormat, err, "read header")
	}
	h, err := UnmarshalHeader(buf)
	if err != nil {
		return err
	}
	p.pageSize = h.PageSize
	p.pageCount = h.PageCount
	return nil
}

func (p *Pager) createNew(pageSize uint32) error {
	p.pageSize = pageSize
	p.pageCount = 1

	page0 := make([]byte, pageSize)
	MarshalHeader(Header{
		PageSize:      pageSize,
		FormatVersion: FormatVersion,
		PageCount:     1,
		FreeListHead:  0,
	}, page0)

	p.cache[0] = page0
	p.dirty[0] = true
	return p.Flush()
}

// SetCacheLimit bounds the number of non-header pages kept resident at
// once. When exceeded, the least-recently-touched page is evicted,
// flushing it first if dirty. A limit of 0 leaves the cache unbounded
// (the default), matching spec §4.1's baseline write-back cache with no
// eviction policy.
func (p *Pager) SetCacheLimit(n int) {
	p.cacheLimit = n
	p.evict()
}

func (p *Pager) touch(id uint32) {
	if id == 0 {
		return
	}
	for i, v := range p.lru {
		if v == id {
			p.lru = append(p.lru[:i], p.lru[i+1:]...)
			break
		}
	}
	p.lru = append(p.lru, id)
	p.evict()
}

func (p *Pager) evict() {
	if p.cacheLimit <= 0 {
		return
	}
	for len(p.lru) > p.cacheLimit {
		victim := p.lru[0]
		p.lru = p.lru[1:]
		if p.dirty[victim] {
			buf := p.cache[victim]
			off := int64(victim) * int64(p.pageSize)
			if _, err := p.file.WriteAt(buf, off); err != nil {
				p.log.Printf("pager: eviction flush failed for page %d: %v", victim, err)
				continue
			}
			delete(p.dirty, victim)
		}
		delete(p.cache, victim)
	}
}

// PageSize returns the page size in effect for this database.
func (p *Pager) PageSize() uint32 { return p.pageSize }

// PageCount returns the number of allocated pages, including page 0.
func (p *Pager) PageCount() uint32 { return p.pageCount }

// ReadPage returns the buffer for page id, reading through to disk on
// a cache miss. The returned slice is the live cached buffer: callers
// that mutate it in place must still call WritePage to mark it dirty
// (spec §4.1 policy).
func (p *Pager) ReadPage(id uint32) ([]byte, error) {
	if id >= p.pageCount {
		return nil, chidberr.New(chidberr.OutOfRange, "page %d out of range [0,%d)", id, p.pageCount)
	}
	if buf, ok := p.cache[id]; ok {
		p.touch(id)
		return buf, nil
	}
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return nil, chidberr.Wrap(chidberr.IOError, err, "read page %d", id)
	}
	p.cache[id] = buf
	p.touch(id)
	return buf, nil
}

// WritePage overwrites the cached buffer for id and marks it dirty.
// buf's length must equal the page size.
func (p *Pager) WritePage(id uint32, buf []byte) error {
	if id >= p.pageCount {
		return chidberr.New(chidberr.OutOfRange, "page %d out of range [0,%d)", id, p.pageCount)
	}
	if uint32(len(buf)) != p.pageSize {
		return chidberr.New(chidberr.IOError, "write page %d: buffer length %d != page size %d", id, len(buf), p.pageSize)
	}
	p.cache[id] = buf
	p.dirty[id] = true
	p.touch(id)
	return nil
}

// AllocatePage appends a new zeroed page and returns its id. The
// header's page-count field is updated and page 0 is marked dirty.
func (p *Pager) AllocatePage() (uint32, error) {
	id := p.pageCount
	p.pageCount++
	p.cache[id] = make([]byte, p.pageSize)
	p.dirty[id] = true
	p.touch(id)

	page0, err := p.ReadPage(0)
	if err != nil {
		return 0, err
	}
	h, err := UnmarshalHeader(page0)
	if err != nil {
		return 0, err
	}
	h.PageCount = p.pageCount
	MarshalHeader(h, page0)
	p.dirty[0] = true

	p.log.Printf("pager: allocated page %d (total %d)", id, p.pageCount)
	return id, nil
}

// Flush writes every dirty page to its file offset and fsyncs.
func (p *Pager) Flush() error {
	for id := range p.dirty {
		buf := p.cache[id]
		off := int64(id) * int64(p.pageSize)
		if _, err := p.file.WriteAt(buf, off); err != nil {
			return chidberr.Wrap(chidberr.IOError, err, "flush page %d", id)
		}
	}
	if err := p.file.Sync(); err != nil {
		return chidberr.Wrap(chidberr.IOError, err, "fsync")
	}
	for id := range p.dirty {
		delete(p.dirty, id)
	}
	return nil
}

// Close flushes pending writes and releases the file.
func (p *Pager) Close() error {
	if err := p.Flush(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return chidberr.Wrap(chidberr.IOError, err, "close")
	}
	return nil
}

// String implements fmt.Stringer for debugging.
func (p *Pager) String() string {
	return fmt.Sprintf("Pager{pageSize=%d, pageCount=%d, dirty=%d}", p.pageSize, p.pageCount, len(p.dirty))
}
