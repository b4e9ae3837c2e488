package btree

import (
	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/pager"
)

// KV is one leaf entry yielded by Scan, in ascending key order.
type KV struct {
	Key     uint64
	Payload []byte
}

// Tree is a disk-resident B-tree rooted at a known page id. Multiple
// Trees over the same Pager share its page cache, so a Tree is cheap
// to construct and does not itself cache anything beyond its root id
// (spec §3 Tree, §9 "Node caching").
type Tree struct {
	p    *pager.Pager
	root uint32
}

// New allocates a fresh empty leaf page and returns a Tree rooted there.
func New(p *pager.Pager) (*Tree, error) {
	id, err := p.AllocatePage()
	if err != nil {
		return nil, err
	}
	if _, err := initLeaf(p, id); err != nil {
		return nil, err
	}
	return &Tree{p: p, root: id}, nil
}

// Open wraps an existing root page as a Tree, e.g. a table's root page
// id as recorded in the catalog.
func Open(p *pager.Pager, root uint32) *Tree {
	return &Tree{p: p, root: root}
}

// Root returns the tree's current root page id. Splitting the root
// allocates a new page and changes this value, so callers that persist
// a tree's root (the catalog, each table's schema row) must re-read it
// after every mutating call.
func (t *Tree) Root() uint32 { return t.root }

// Search looks up key and returns its payload and true, or (nil, false)
// if no such key exists.
func (t *Tree) Search(key uint64) ([]byte, bool, error) {
	return t.searchRecursive(t.root, key)
}

func (t *Tree) searchRecursive(pageID uint32, key uint64) ([]byte, bool, error) {
	n, err := loadNode(t.p, pageID)
	if err != nil {
		return nil, false, err
	}
	idx, err := n.findIndex(key)
	if err != nil {
		return nil, false, err
	}
	if n.isLeaf() {
		if idx < n.keyCount() {
			k, payload, err := n.readLeaf(idx)
			if err != nil {
				return nil, false, err
			}
			if k == key {
				return payload, true, nil
			}
		}
		return nil, false, nil
	}
	child, err := t.descend(n, idx, key)
	if err != nil {
		return nil, false, err
	}
	return t.searchRecursive(child, key)
}

func (t *Tree) childAt(n *node, idx int) (uint32, error) {
	if idx < n.keyCount() {
		_, child, err := n.readInternal(idx)
		return child, err
	}
	return n.rightChild(), nil
}

// descend picks the child to follow toward key, given idx = n.findIndex(key).
// A cell's child pointer holds keys strictly less than the cell's key; a
// promoted separator is the minimum key of the child that sits to the
// cell's right, so an exact match on keys[idx] must continue into the
// next child (idx+1, or rightChild) rather than the matched cell's own
// child, or that key would never be found.
func (t *Tree) descend(n *node, idx int, key uint64) (uint32, error) {
	if idx < n.keyCount() {
		k, err := n.keyAt(idx)
		if err != nil {
			return 0, err
		}
		if k == key {
			return t.childAt(n, idx+1)
		}
	}
	return t.childAt(n, idx)
}

// Insert adds or updates key's payload (spec §3 "unique keys; re-insert
// with an existing key updates"). An existing key's value is replaced
// by deleting and reinserting the leaf cell, matching the update
// semantics the rest of the system relies on for UPDATE statements.
func (t *Tree) Insert(key uint64, payload []byte) error {
	promoted, newPage, split, err := t.insertRecursive(t.root, key, payload)
	if err != nil {
		return err
	}
	if !split {
		return nil
	}
	newRootID, err := t.p.AllocatePage()
	if err != nil {
		return err
	}
	if _, err := initInternal(t.p, newRootID, newPage); err != nil {
		return err
	}
	newRoot, err := loadNode(t.p, newRootID)
	if err != nil {
		return err
	}
	if err := newRoot.insertCellAt(0, internalCellBytes(promoted, t.root)); err != nil {
		return err
	}
	t.root = newRootID
	return nil
}

func (t *Tree) insertRecursive(pageID uint32, key uint64, payload []byte) (promoted uint64, newPage uint32, split bool, err error) {
	n, err := loadNode(t.p, pageID)
	if err != nil {
		return 0, 0, false, err
	}
	if n.isLeaf() {
		return t.insertIntoLeaf(n, key, payload)
	}

	idx, err := n.findIndex(key)
	if err != nil {
		return 0, 0, false, err
	}
	child, err := t.descend(n, idx, key)
	if err != nil {
		return 0, 0, false, err
	}
	pk, newChild, childSplit, err := t.insertRecursive(child, key, payload)
	if err != nil {
		return 0, 0, false, err
	}
	if !childSplit {
		return 0, 0, false, nil
	}
	return t.insertSplitIntoInternal(n, pk, newChild)
}

func (t *Tree) insertIntoLeaf(n *node, key uint64, payload []byte) (promoted uint64, newPage uint32, split bool, err error) {
	idx, err := n.findIndex(key)
	if err != nil {
		return 0, 0, false, err
	}
	if idx < n.keyCount() {
		existing, _, err := n.readLeaf(idx)
		if err != nil {
			return 0, 0, false, err
		}
		if existing == key {
			if err := n.deleteCellAt(idx); err != nil {
				return 0, 0, false, err
			}
		}
	}

	cell := leafCellBytes(key, payload)
	needsSplit, err := n.needsSplit(len(cell))
	if err != nil {
		return 0, 0, false, err
	}
	if needsSplit {
		return t.splitLeaf(n, key, payload, idx)
	}
	if err := n.insertCellAt(idx, cell); err != nil {
		return 0, 0, false, err
	}
	return 0, 0, false, nil
}

type leafEntry struct {
	key     uint64
	payload []byte
}

// splitLeaf rebuilds n and a freshly allocated sibling from n's cells
// plus the pending insertion, split evenly (spec §4.3 "Leaf split").
// The sibling's first key is promoted to the parent and retained in
// the sibling, per the redundant-separator policy spec §3 specifies.
func (t *Tree) splitLeaf(n *node, key uint64, payload []byte, insertIdx int) (promoted uint64, newPage uint32, split bool, err error) {
	count := n.keyCount()
	entries := make([]leafEntry, 0, count+1)
	for i := 0; i < count; i++ {
		if i == insertIdx {
			entries = append(entries, leafEntry{key, payload})
		}
		k, v, err := n.readLeaf(i)
		if err != nil {
			return 0, 0, false, err
		}
		entries = append(entries, leafEntry{k, v})
	}
	if insertIdx == count {
		entries = append(entries, leafEntry{key, payload})
	}

	mid := len(entries) / 2

	if err := n.resetCells(); err != nil {
		return 0, 0, false, err
	}
	for i := 0; i < mid; i++ {
		if err := n.insertCellAt(i, leafCellBytes(entries[i].key, entries[i].payload)); err != nil {
			return 0, 0, false, err
		}
	}

	newID, err := t.p.AllocatePage()
	if err != nil {
		return 0, 0, false, err
	}
	sibling, err := initLeaf(t.p, newID)
	if err != nil {
		return 0, 0, false, err
	}
	for i := mid; i < len(entries); i++ {
		if err := sibling.insertCellAt(i-mid, leafCellBytes(entries[i].key, entries[i].payload)); err != nil {
			return 0, 0, false, err
		}
	}

	return entries[mid].key, newID, true, nil
}

type internalEntry struct {
	key   uint64
	child uint32
}

// insertSplitIntoInternal inserts the separator promoted from a child
// split. The child that split already occupies a pointer slot in n —
// either cell(idx)'s own child (idx < keyCount) or n's right pointer
// (idx == keyCount, the rightmost child) — and that slot's page id is
// now the split's lower half, since splitLeaf/splitInternal rebuild the
// split node in place and hand back only the upper half as a new page.
// A new cell (key, lowerHalf) is inserted at idx, and the existing slot
// itself (the old cell, now at idx+1 and keeping its key, or the right
// pointer) is repointed to the upper half, matching the "cell's child
// holds keys less than its key" convention descend relies on.
func (t *Tree) insertSplitIntoInternal(n *node, key uint64, newChild uint32) (promoted uint64, newPage uint32, split bool, err error) {
	idx, err := n.findIndex(key)
	if err != nil {
		return 0, 0, false, err
	}
	rightmost := idx >= n.keyCount()
	var oldKey uint64
	var oldChild uint32
	if rightmost {
		oldChild = n.rightChild()
	} else {
		oldKey, oldChild, err = n.readInternal(idx)
		if err != nil {
			return 0, 0, false, err
		}
	}

	cell := internalCellBytes(key, oldChild)
	needsSplit, err := n.needsSplit(len(cell))
	if err != nil {
		return 0, 0, false, err
	}
	if needsSplit {
		return t.splitInternal(n, key, oldChild, newChild, idx, rightmost)
	}
	if err := n.insertCellAt(idx, cell); err != nil {
		return 0, 0, false, err
	}
	if rightmost {
		n.setRightChild(newChild)
		return 0, 0, false, t.p.WritePage(n.id, n.buf)
	}
	if err := n.deleteCellAt(idx + 1); err != nil {
		return 0, 0, false, err
	}
	if err := n.insertCellAt(idx+1, internalCellBytes(oldKey, newChild)); err != nil {
		return 0, 0, false, err
	}
	return 0, 0, false, nil
}

// splitInternal rebuilds n and a freshly allocated sibling from n's
// cells plus the pending separator, split at the middle entry, which is
// promoted to the parent and not retained in either half (spec §4.3
// "Internal split"). insertIdx/rightmost describe where the pending
// separator (key, oldChild) lands and which existing slot gets
// repointed to newChild, per insertSplitIntoInternal's convention.
//
// Correction relative to original_source/chidb/btree.py's
// _split_internal: that implementation leaves both halves' right-child
// pointer untouched (n's old pointer stays on n, and the sibling gets a
// zero right pointer), which silently drops the subtree that used to
// hang off n's right side from every later search and scan. Here n's
// right pointer becomes the promoted entry's child (everything between
// the last retained left key and the promoted key) and the sibling's
// right pointer becomes n's original right pointer (or newChild, if the
// split child was rightmost), so both halves keep every subtree
// reachable.
func (t *Tree) splitInternal(n *node, key uint64, oldChild, newChild uint32, insertIdx int, rightmost bool) (promoted uint64, newPage uint32, split bool, err error) {
	count := n.keyCount()
	entries := make([]internalEntry, 0, count+1)
	for i := 0; i < count; i++ {
		if i == insertIdx {
			entries = append(entries, internalEntry{key, oldChild})
		}
		k, c, err := n.readInternal(i)
		if err != nil {
			return 0, 0, false, err
		}
		if i == insertIdx {
			c = newChild
		}
		entries = append(entries, internalEntry{k, c})
	}

	oldRight := n.rightChild()
	if rightmost {
		entries = append(entries, internalEntry{key, oldChild})
		oldRight = newChild
	}

	mid := len(entries) / 2

	if err := n.resetCells(); err != nil {
		return 0, 0, false, err
	}
	for i := 0; i < mid; i++ {
		if err := n.insertCellAt(i, internalCellBytes(entries[i].key, entries[i].child)); err != nil {
			return 0, 0, false, err
		}
	}
	n.setRightChild(entries[mid].child)
	if err := t.p.WritePage(n.id, n.buf); err != nil {
		return 0, 0, false, err
	}

	newID, err := t.p.AllocatePage()
	if err != nil {
		return 0, 0, false, err
	}
	sibling, err := initInternal(t.p, newID, oldRight)
	if err != nil {
		return 0, 0, false, err
	}
	for i := mid + 1; i < len(entries); i++ {
		if err := sibling.insertCellAt(i-mid-1, internalCellBytes(entries[i].key, entries[i].child)); err != nil {
			return 0, 0, false, err
		}
	}

	return entries[mid].key, newID, true, nil
}

// Delete removes key's cell if present, reporting whether it was
// found. No merging or rebalancing follows a deletion (spec §9 "Delete
// without rebalancing" is an accepted limitation, not a bug).
func (t *Tree) Delete(key uint64) (bool, error) {
	return t.deleteRecursive(t.root, key)
}

func (t *Tree) deleteRecursive(pageID uint32, key uint64) (bool, error) {
	n, err := loadNode(t.p, pageID)
	if err != nil {
		return false, err
	}
	idx, err := n.findIndex(key)
	if err != nil {
		return false, err
	}
	if n.isLeaf() {
		if idx < n.keyCount() {
			k, _, err := n.readLeaf(idx)
			if err != nil {
				return false, err
			}
			if k == key {
				return true, n.deleteCellAt(idx)
			}
		}
		return false, nil
	}
	child, err := t.descend(n, idx, key)
	if err != nil {
		return false, err
	}
	return t.deleteRecursive(child, key)
}

// Update replaces key's payload, equivalent to Insert on an existing
// key (spec §3 "UPDATE (semantically delete+reinsert)"). It reports
// whether the key previously existed.
func (t *Tree) Update(key uint64, payload []byte) (bool, error) {
	_, existed, err := t.Search(key)
	if err != nil {
		return false, err
	}
	if err := t.Insert(key, payload); err != nil {
		return false, err
	}
	return existed, nil
}

// Scan returns every entry in ascending key order (spec §3 Cursor
// "ascending key order" invariant; spec §8 invariant 4).
func (t *Tree) Scan() ([]KV, error) {
	var out []KV
	if err := t.scanRecursive(t.root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) scanRecursive(pageID uint32, out *[]KV) error {
	n, err := loadNode(t.p, pageID)
	if err != nil {
		return err
	}
	if n.isLeaf() {
		for i := 0; i < n.keyCount(); i++ {
			k, v, err := n.readLeaf(i)
			if err != nil {
				return err
			}
			*out = append(*out, KV{Key: k, Payload: v})
		}
		return nil
	}
	for i := 0; i < n.keyCount(); i++ {
		_, child, err := n.readInternal(i)
		if err != nil {
			return err
		}
		if err := t.scanRecursive(child, out); err != nil {
			return err
		}
	}
	return t.scanRecursive(n.rightChild(), out)
}

// Depth walks the left-most spine and returns the tree's height in
// pages, mainly useful for tests asserting a split occurred (1 = a
// single leaf root).
func (t *Tree) Depth() (int, error) {
	depth := 1
	pageID := t.root
	for {
		n, err := loadNode(t.p, pageID)
		if err != nil {
			return 0, err
		}
		if n.isLeaf() {
			return depth, nil
		}
		if n.keyCount() == 0 {
			return 0, chidberr.New(chidberr.CorruptFormat, "internal node %d has no keys", pageID)
		}
		_, child, err := n.readInternal(0)
		if err != nil {
			return 0, err
		}
		pageID = child
		depth++
	}
}
