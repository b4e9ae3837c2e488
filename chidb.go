// Package chidb is the embeddable top-level facade: open a database
// file, execute SQL against it, and close it (spec §4.10, §6).
//
// How: grounded on original_source/chidb/api.py's ChiDB class (open,
// execute dispatch, root-page bookkeeping after insert, close rewrites
// the catalog) and the teacher's tinysql.go re-export layer for the
// shape of a small facade package sitting on top of internal packages.
package chidb

import (
	"sort"

	"github.com/chidb-go/chidb/internal/btree"
	"github.com/chidb-go/chidb/internal/catalog"
	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/pager"
	"github.com/chidb-go/chidb/internal/record"
	"github.com/chidb-go/chidb/internal/sqlfront"
	"github.com/chidb-go/chidb/internal/vm"
)

// DefaultPageSize is used when creating a new database file.
const DefaultPageSize = 4096

// DB is an open database handle: a pager, the system catalog tree, and
// the in-memory table-metadata map reconstructed from it (spec §4.10).
type DB struct {
	p       *pager.Pager
	catalog *btree.Tree
	tables  map[string]*catalog.Table
	log     pager.Logger
}

// Open opens path, creating it with DefaultPageSize if it doesn't
// exist, and reconstructs the table-metadata map from the catalog tree
// rooted at page 1 (spec §4.10 "On open").
func Open(path string) (*DB, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger is Open with an explicit Logger (nil discards output),
// for embedders wiring chidb's diagnostics into their own log sink.
func OpenWithLogger(path string, logger pager.Logger) (*DB, error) {
	return OpenWithOptions(path, OpenOptions{Logger: logger})
}

// OpenOptions configures Open beyond its defaults, typically loaded via
// chidbconfig.Load rather than populated by hand.
type OpenOptions struct {
	// PageSize is used only when path doesn't already exist; an
	// existing database keeps its stored page size (spec §4.1).
	PageSize uint32
	// CachePageLimit bounds resident pages via LRU eviction. Zero
	// leaves the pager's cache unbounded.
	CachePageLimit int
	// Logger receives pager/controller diagnostics. Nil discards them.
	Logger pager.Logger
}

// OpenWithOptions is Open with explicit OpenOptions.
func OpenWithOptions(path string, opts OpenOptions) (*DB, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	p, err := pager.Open(path, pageSize, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.CachePageLimit > 0 {
		p.SetCacheLimit(opts.CachePageLimit)
	}
	db := &DB{p: p, tables: make(map[string]*catalog.Table), log: opts.Logger}

	if p.PageCount() <= 1 {
		cat, err := btree.New(p)
		if err != nil {
			return nil, err
		}
		db.catalog = cat
		return db, nil
	}

	db.catalog = btree.Open(p, 1)
	entries, err := db.catalog.Scan()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		t, err := catalog.Decode(e.Payload)
		if err != nil {
			return nil, err
		}
		db.tables[t.Name] = t
	}
	return db, nil
}

// TableNames returns every known table's name.
func (db *DB) TableNames() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableExists reports whether name is a known table.
func (db *DB) TableExists(name string) bool {
	_, ok := db.tables[name]
	return ok
}

// Flush writes every dirty page to disk without closing the handle, for
// embedders that schedule flushes between statements (spec §5
// Durability: "implementation may flush more aggressively").
func (db *DB) Flush() error {
	return db.p.Flush()
}

// Close rewrites every table's metadata (persisting auto-increment
// counters and schema edits), then flushes and closes the pager (spec
// §4.10 "On close").
func (db *DB) Close() error {
	for _, t := range db.tables {
		if err := db.writeCatalogEntry(t); err != nil {
			return err
		}
	}
	return db.p.Close()
}

func (db *DB) writeCatalogEntry(t *catalog.Table) error {
	payload, err := catalog.Encode(t)
	if err != nil {
		return err
	}
	if _, err := db.catalog.Update(catalog.Key(t.Name), payload); err != nil {
		return err
	}
	return nil
}

// Execute runs one SQL statement and returns its result rows. Mutating
// statements return nil rows (spec §6 "Public API").
func (db *DB) Execute(sql string) ([][]record.Value, error) {
	stmt, err := sqlfront.Parse(sql)
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case *sqlfront.CreateTableStatement:
		return nil, db.execCreateTable(s)
	case *sqlfront.DropTableStatement:
		return nil, db.execDropTable(s)
	case *sqlfront.AlterTableAddStatement:
		return nil, db.execAlterTableAdd(s)
	case *sqlfront.UpdateStatement:
		return nil, db.execUpdate(s)
	case *sqlfront.DeleteStatement:
		return nil, db.execDelete(s)
	case *sqlfront.SelectStatement:
		if needsControllerPath(s) {
			return db.execAdvancedSelect(s)
		}
		return db.execSelect(s)
	case *sqlfront.InsertStatement:
		return nil, db.execInsert(s)
	}
	return nil, chidberr.New(chidberr.ParseError, "unsupported statement type %T", stmt)
}

// needsControllerPath reports whether a SELECT carries any of the
// advanced clauses spec §4.10 step 3 routes around the VM.
func needsControllerPath(s *sqlfront.SelectStatement) bool {
	return len(s.OrderBy) > 0 || s.Limit != nil || s.Offset != nil || s.Distinct
}

func (db *DB) lookupTable(name string) (*catalog.Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, chidberr.New(chidberr.SchemaError, "unknown table %q", name)
	}
	return t, nil
}

func (db *DB) execCreateTable(s *sqlfront.CreateTableStatement) error {
	if _, exists := db.tables[s.Table]; exists {
		return chidberr.New(chidberr.SchemaError, "table %q already exists", s.Table)
	}
	tr, err := btree.New(db.p)
	if err != nil {
		return err
	}
	t := catalog.FromColumnDefs(s.Table, s.Columns, tr.Root())
	db.tables[s.Table] = t
	return db.writeCatalogEntry(t)
}

func (db *DB) execDropTable(s *sqlfront.DropTableStatement) error {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return err
	}
	if _, err := db.catalog.Delete(catalog.Key(t.Name)); err != nil {
		return err
	}
	delete(db.tables, s.Table)
	return nil
}

func (db *DB) execAlterTableAdd(s *sqlfront.AlterTableAddStatement) error {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return err
	}
	t.Columns = append(t.Columns, catalog.Column{
		Name: s.Column.Name, Type: s.Column.Type, PrimaryKey: s.Column.PrimaryKey,
	})
	if s.Column.PrimaryKey {
		t.PrimaryKeyIdx = len(t.Columns) - 1
	}
	return db.writeCatalogEntry(t)
}

func (db *DB) execInsert(s *sqlfront.InsertStatement) error {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return err
	}
	values := make([]record.Value, len(s.Values))
	for i, expr := range s.Values {
		lit, ok := expr.(*sqlfront.Literal)
		if !ok {
			return chidberr.New(chidberr.ParseError, "INSERT values must be literals")
		}
		values[i] = literalToValue(lit)
	}

	key, err := db.resolveInsertKey(t, values)
	if err != nil {
		return err
	}

	machine := vm.New(db.p, db.log)
	prog := vm.GenerateInsert(t.RootPage, key, values)
	if _, err := machine.Execute(prog); err != nil {
		return err
	}
	if newRoot, ok := machine.CurrentRoot(t.RootPage); ok {
		return db.syncRoot(t, newRoot)
	}
	return nil
}

// resolveInsertKey substitutes a key when the primary-key column is
// NULL or absent entirely (spec §4.10 "Auto-key assignment"). A
// declared PK column that's NULL draws from the table's persisted
// per-table counter; a table with no declared PK at all gets
// max(existing key)+1 from a scan of its tree, with no counter kept in
// the catalog entry (mirroring original_source/chidb/sql/codegen.py's
// next_auto_key fallback, which lives in the code generator rather than
// the table's catalog entry — see DESIGN.md "Auto-key counter scope when
// no PK is declared").
func (db *DB) resolveInsertKey(t *catalog.Table, values []record.Value) (uint64, error) {
	if t.PrimaryKeyIdx >= 0 && t.PrimaryKeyIdx < len(values) {
		v := values[t.PrimaryKeyIdx]
		if v.Type != record.TypeNull {
			return uint64(v.Int), nil
		}
		t.AutoIncrement++
		key := t.AutoIncrement
		values[t.PrimaryKeyIdx] = record.Int(int64(key))
		return key, nil
	}

	tr := btree.Open(db.p, t.RootPage)
	entries, err := tr.Scan()
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range entries {
		if e.Key > max {
			max = e.Key
		}
	}
	return max + 1, nil
}

func literalToValue(lit *sqlfront.Literal) record.Value {
	switch lit.Kind {
	case sqlfront.LiteralNull:
		return record.Null()
	case sqlfront.LiteralInt:
		return record.Int(lit.Int)
	case sqlfront.LiteralFloat:
		return record.Float64(lit.Flt)
	case sqlfront.LiteralString:
		return record.Text(lit.Str)
	case sqlfront.LiteralBool:
		return record.Bool(lit.Bool)
	}
	return record.Null()
}

// syncRoot persists t's metadata entry when newRoot differs from the
// table's recorded root, i.e. a root split happened during this
// statement (spec §4.10 step 5).
func (db *DB) syncRoot(t *catalog.Table, newRoot uint32) error {
	if newRoot == t.RootPage {
		return nil
	}
	t.RootPage = newRoot
	return db.writeCatalogEntry(t)
}

func (db *DB) execSelect(s *sqlfront.SelectStatement) ([][]record.Value, error) {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return nil, err
	}
	optimized := sqlfront.Optimize(s).(*sqlfront.SelectStatement)

	machine := vm.New(db.p, db.log)
	prog := vm.GenerateSelect(optimized, t.RootPage, t.ColumnIndex)
	rows, err := machine.Execute(prog)
	if err != nil {
		return nil, err
	}
	return projectColumns(t, s.Columns, rows)
}

// projectColumns narrows each full row down to the requested column
// names, matching by name against the table's declared column list
// (spec §6 "Result contract").
func projectColumns(t *catalog.Table, columns []string, rows [][]record.Value) ([][]record.Value, error) {
	if len(columns) == 1 && columns[0] == "*" {
		return rows, nil
	}
	indexes := make([]int, len(columns))
	for i, name := range columns {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			return nil, chidberr.New(chidberr.SchemaError, "unknown column %q", name)
		}
		indexes[i] = idx
	}
	out := make([][]record.Value, len(rows))
	for r, row := range rows {
		projected := make([]record.Value, len(indexes))
		for i, idx := range indexes {
			if idx < len(row) {
				projected[i] = row[idx]
			}
		}
		out[r] = projected
	}
	return out, nil
}

func (db *DB) execUpdate(s *sqlfront.UpdateStatement) error {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return err
	}
	optimized := sqlfront.Optimize(s).(*sqlfront.UpdateStatement)

	tr := btree.Open(db.p, t.RootPage)
	entries, err := tr.Scan()
	if err != nil {
		return err
	}
	for _, e := range entries {
		values, _, err := record.Decode(e.Payload, 0)
		if err != nil {
			return err
		}
		if !evaluateWhere(optimized.Where, t, values) {
			continue
		}
		for _, a := range optimized.Assignments {
			idx, ok := t.ColumnIndex(a.Column)
			if !ok {
				return chidberr.New(chidberr.SchemaError, "unknown column %q", a.Column)
			}
			lit, ok := a.Value.(*sqlfront.Literal)
			if !ok {
				return chidberr.New(chidberr.ParseError, "SET values must be literals")
			}
			values[idx] = literalToValue(lit)
		}
		if _, err := tr.Update(e.Key, record.Encode(values)); err != nil {
			return err
		}
	}
	return db.syncRoot(t, tr.Root())
}

func (db *DB) execDelete(s *sqlfront.DeleteStatement) error {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return err
	}
	optimized := sqlfront.Optimize(s).(*sqlfront.DeleteStatement)

	tr := btree.Open(db.p, t.RootPage)
	entries, err := tr.Scan()
	if err != nil {
		return err
	}
	for _, e := range entries {
		values, _, err := record.Decode(e.Payload, 0)
		if err != nil {
			return err
		}
		if !evaluateWhere(optimized.Where, t, values) {
			continue
		}
		if _, err := tr.Delete(e.Key); err != nil {
			return err
		}
	}
	return db.syncRoot(t, tr.Root())
}

func (db *DB) execAdvancedSelect(s *sqlfront.SelectStatement) ([][]record.Value, error) {
	t, err := db.lookupTable(s.Table)
	if err != nil {
		return nil, err
	}
	optimized := sqlfront.Optimize(s).(*sqlfront.SelectStatement)

	tr := btree.Open(db.p, t.RootPage)
	entries, err := tr.Scan()
	if err != nil {
		return nil, err
	}

	var rows [][]record.Value
	for _, e := range entries {
		values, _, err := record.Decode(e.Payload, 0)
		if err != nil {
			return nil, err
		}
		if evaluateWhere(optimized.Where, t, values) {
			rows = append(rows, values)
		}
	}

	if len(optimized.OrderBy) > 0 {
		sortRows(rows, t, optimized.OrderBy)
	}
	if optimized.Distinct {
		rows = distinctRows(rows)
	}
	rows = applyLimitOffset(rows, optimized.Limit, optimized.Offset)

	return projectColumns(t, s.Columns, rows)
}

func sortRows(rows [][]record.Value, t *catalog.Table, order []sqlfront.OrderTerm) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range order {
			idx, ok := t.ColumnIndex(term.Column)
			if !ok {
				continue
			}
			cmp := compareValues(rows[i][idx], rows[j][idx])
			if cmp == 0 {
				continue
			}
			if term.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareValues(a, b record.Value) int {
	if a.Type == record.TypeText && b.Type == record.TypeText {
		switch {
		case a.Text < b.Text:
			return -1
		case a.Text > b.Text:
			return 1
		default:
			return 0
		}
	}
	af, aok := asOrderableFloat(a)
	bf, bok := asOrderableFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func asOrderableFloat(v record.Value) (float64, bool) {
	switch v.Type {
	case record.TypeInteger:
		return float64(v.Int), true
	case record.TypeFloat:
		return v.Float, true
	}
	return 0, false
}

func distinctRows(rows [][]record.Value) [][]record.Value {
	var out [][]record.Value
	for _, row := range rows {
		dup := false
		for _, seen := range out {
			if rowsEqual(row, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, row)
		}
	}
	return out
}

func rowsEqual(a, b []record.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func applyLimitOffset(rows [][]record.Value, limit, offset *int64) [][]record.Value {
	start := 0
	if offset != nil && *offset > 0 {
		start = int(*offset)
	}
	if start > len(rows) {
		return nil
	}
	rows = rows[start:]
	if limit != nil && *limit >= 0 && int(*limit) < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}

// evaluateWhere implements the controller's own `column OP literal`
// filter for UPDATE/DELETE/advanced SELECT, separate from but
// textually parallel to internal/vm/codegen.go's compileWhereFilter
// (spec §4.10 "WHERE evaluation for UPDATE/DELETE/advanced SELECT").
// A nil WHERE or any shape this can't evaluate defaults to true.
func evaluateWhere(where sqlfront.Expression, t *catalog.Table, values []record.Value) bool {
	if where == nil {
		return true
	}
	switch e := where.(type) {
	case *sqlfront.Literal:
		return e.Kind == sqlfront.LiteralBool && e.Bool
	case *sqlfront.BinaryOp:
		left, leftOK := resolveOperand(e.Left, t, values)
		right, rightOK := resolveOperand(e.Right, t, values)
		if !leftOK || !rightOK {
			return true
		}
		result, err := compareForWhere(left, e.Operator, right)
		if err != nil {
			return true
		}
		return result
	}
	return true
}

func resolveOperand(expr sqlfront.Expression, t *catalog.Table, values []record.Value) (record.Value, bool) {
	switch e := expr.(type) {
	case *sqlfront.Literal:
		return literalToValue(e), true
	case *sqlfront.Identifier:
		idx, ok := t.ColumnIndex(e.Name)
		if !ok || idx >= len(values) {
			return record.Value{}, false
		}
		return values[idx], true
	}
	return record.Value{}, false
}

func compareForWhere(left record.Value, op string, right record.Value) (bool, error) {
	switch op {
	case "=":
		return left.Equal(right), nil
	case "!=":
		return !left.Equal(right), nil
	}
	lf, lok := asOrderableFloat(left)
	rf, rok := asOrderableFloat(right)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	if left.Type == record.TypeText && right.Type == record.TypeText {
		switch op {
		case "<":
			return left.Text < right.Text, nil
		case "<=":
			return left.Text <= right.Text, nil
		case ">":
			return left.Text > right.Text, nil
		case ">=":
			return left.Text >= right.Text, nil
		}
	}
	return false, chidberr.New(chidberr.VmError, "cannot order %s and %s", left.Type, right.Type)
}
