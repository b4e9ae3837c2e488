package btree

import "github.com/chidb-go/chidb/internal/chidberr"

// Cursor is a stateful iterator over a Tree's entries in ascending key
// order (spec §3 Cursor), the shape the VM's OPEN_READ/OPEN_WRITE,
// REWIND, NEXT, SEEK, KEY and DATA opcodes operate on.
//
// A cursor materializes its tree's entries at Rewind/Seek time rather
// than walking pages lazily; spec's Non-goals exclude execution-time
// performance, and original_source/chidb/dbm.py's Cursor takes the
// same shortcut (it builds its row list from BTree.scan() up front).
type Cursor struct {
	tree     *Tree
	writable bool
	entries  []KV
	pos      int
	valid    bool
}

// NewCursor opens a cursor over tree. writable must match how the
// caller intends to use it: OPEN_WRITE cursors may Insert and Delete,
// OPEN_READ cursors may not (spec §4.7 OPEN_READ/OPEN_WRITE).
func NewCursor(tree *Tree, writable bool) *Cursor {
	return &Cursor{tree: tree, writable: writable}
}

// Rewind positions the cursor at the first entry, re-reading the tree.
func (c *Cursor) Rewind() error {
	entries, err := c.tree.Scan()
	if err != nil {
		return err
	}
	c.entries = entries
	c.pos = 0
	c.valid = len(entries) > 0
	return nil
}

// Next advances the cursor. It is a no-op once the cursor is exhausted.
func (c *Cursor) Next() {
	if !c.valid {
		return
	}
	c.pos++
	if c.pos >= len(c.entries) {
		c.valid = false
	}
}

// Valid reports whether Key/Data may be called.
func (c *Cursor) Valid() bool { return c.valid }

// Seek re-reads the tree and positions the cursor at the first entry
// whose key is >= key (spec §4.7 SEEK).
func (c *Cursor) Seek(key uint64) error {
	entries, err := c.tree.Scan()
	if err != nil {
		return err
	}
	c.entries = entries
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	c.pos = lo
	c.valid = lo < len(entries)
	return nil
}

// Key returns the current entry's key. Valid must be true.
func (c *Cursor) Key() (uint64, error) {
	if !c.valid {
		return 0, chidberr.New(chidberr.VmError, "cursor not positioned on a row")
	}
	return c.entries[c.pos].Key, nil
}

// Data returns the current entry's payload. Valid must be true.
func (c *Cursor) Data() ([]byte, error) {
	if !c.valid {
		return nil, chidberr.New(chidberr.VmError, "cursor not positioned on a row")
	}
	return c.entries[c.pos].Payload, nil
}

// Insert writes key/payload to the underlying tree. The cursor's
// materialized entry list is stale afterward; callers must Rewind or
// Seek again before continuing to iterate (spec §4.7 INSERT).
func (c *Cursor) Insert(key uint64, payload []byte) error {
	if !c.writable {
		return chidberr.New(chidberr.VmError, "insert on a read-only cursor")
	}
	return c.tree.Insert(key, payload)
}

// Delete removes the entry the cursor is currently positioned on.
// Rather than rebalancing, the cursor simply drops it from its own
// materialized list and advances, matching the tree's
// delete-without-rebalancing semantics (spec §4.7 DELETE).
func (c *Cursor) Delete() error {
	if !c.writable {
		return chidberr.New(chidberr.VmError, "delete on a read-only cursor")
	}
	if !c.valid {
		return chidberr.New(chidberr.VmError, "delete with cursor not positioned on a row")
	}
	key := c.entries[c.pos].Key
	if _, err := c.tree.Delete(key); err != nil {
		return err
	}
	c.entries = append(c.entries[:c.pos], c.entries[c.pos+1:]...)
	if c.pos >= len(c.entries) {
		c.valid = false
	}
	return nil
}
