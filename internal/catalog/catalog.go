// Package catalog implements the table-metadata type and its encoding
// as entries in the system catalog B-tree (spec §3 "Table metadata",
// "System catalog", §4.10).
//
// How: grounded on original_source/chidb/api.py's TableMetadata
// dataclass and its to_dict/from_dict JSON round-trip, adapted to the
// teacher's internal/storage/catalog.go struct shape (exported fields,
// no getters). Unlike the Python prototype's separate JSON blob file,
// chidb keeps every catalog entry as an ordinary single-column TEXT
// record stored through the same record codec user tables use (spec.md
// §3 only requires "any stable encoding... as long as it round-trips").
package catalog

import (
	"encoding/json"
	"hash/fnv"

	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/record"
	"github.com/chidb-go/chidb/internal/sqlfront"
)

// Key derives the catalog B-tree key for a table name. Catalog entries
// are keyed by name hash rather than an arbitrary counter so a table's
// entry can be found, updated, or replaced without keeping a separate
// name-to-key index next to the metadata map.
func Key(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// Column is one column's declared shape, persisted as part of a
// table's metadata entry.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"pk"`
}

// Table is one table's full metadata (spec §3 "Table metadata").
type Table struct {
	Name          string   `json:"name"`
	Columns       []Column `json:"columns"`
	PrimaryKeyIdx int      `json:"pk_index"` // -1 when no declared PK
	AutoIncrement uint64   `json:"auto_increment"`
	RootPage      uint32   `json:"root_page"`
}

// ColumnIndex resolves a column name to its position, for use by
// internal/vm's code generator and the controller's own WHERE
// evaluator.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// FromColumnDefs builds a Table's column list and primary-key index
// from a parsed CREATE TABLE statement.
func FromColumnDefs(name string, defs []sqlfront.ColumnDef, rootPage uint32) *Table {
	t := &Table{Name: name, PrimaryKeyIdx: -1, RootPage: rootPage}
	for i, d := range defs {
		t.Columns = append(t.Columns, Column{Name: d.Name, Type: d.Type, PrimaryKey: d.PrimaryKey})
		if d.PrimaryKey {
			t.PrimaryKeyIdx = i
		}
	}
	return t
}

// Encode serializes t as the single-column TEXT record stored in the
// catalog B-tree's leaf cell.
func Encode(t *Table) ([]byte, error) {
	blob, err := json.Marshal(t)
	if err != nil {
		return nil, chidberr.Wrap(chidberr.CorruptFormat, err, "encoding catalog entry for %q", t.Name)
	}
	return record.Encode([]record.Value{record.Text(string(blob))}), nil
}

// Decode parses a catalog B-tree cell payload back into a Table.
func Decode(payload []byte) (*Table, error) {
	values, _, err := record.Decode(payload, 0)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 || values[0].Type != record.TypeText {
		return nil, chidberr.New(chidberr.CorruptFormat, "malformed catalog entry")
	}
	var t Table
	if err := json.Unmarshal([]byte(values[0].Text), &t); err != nil {
		return nil, chidberr.Wrap(chidberr.CorruptFormat, err, "decoding catalog entry")
	}
	return &t, nil
}
