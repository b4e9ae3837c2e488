package chidb

import (
	"path/filepath"
	"testing"

	"github.com/chidb-go/chidb/internal/record"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.chidb")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *DB, sql string) [][]record.Value {
	t.Helper()
	rows, err := db.Execute(sql)
	if err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
	return rows
}

func TestSmokeCreateInsertSelect(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear')")
	mustExec(t, db, "INSERT INTO widgets VALUES (2, 'bolt')")

	rows := mustExec(t, db, "SELECT * FROM widgets")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if !db.TableExists("widgets") {
		t.Fatal("expected widgets to exist")
	}
	names := db.TableNames()
	if len(names) != 1 || names[0] != "widgets" {
		t.Fatalf("got %+v", names)
	}
}

func TestAutoKeyAssignmentOnNullPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (NULL, 'first')")
	mustExec(t, db, "INSERT INTO widgets VALUES (NULL, 'second')")

	rows := mustExec(t, db, "SELECT * FROM widgets")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	seen := map[int64]bool{}
	for _, row := range rows {
		seen[row[0].Int] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected keys 1 and 2, got %+v", rows)
	}
}

func TestSplitSurvivesManyInserts(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	for i := 0; i < 300; i++ {
		mustExec(t, db, "INSERT INTO widgets VALUES (NULL, 'item')")
	}
	rows := mustExec(t, db, "SELECT * FROM widgets")
	if len(rows) != 300 {
		t.Fatalf("expected 300 rows, got %d", len(rows))
	}
}

func TestWhereWithConstantFold(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear')")
	rows := mustExec(t, db, "SELECT * FROM widgets WHERE 5 = 5")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for a folded-true WHERE, got %d", len(rows))
	}
	rows = mustExec(t, db, "SELECT * FROM widgets WHERE 1 = 2")
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows for a folded-false WHERE, got %d", len(rows))
	}
}

func TestUpdateMutatesMatchingRows(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear')")
	mustExec(t, db, "INSERT INTO widgets VALUES (2, 'bolt')")
	mustExec(t, db, "UPDATE widgets SET name = 'sprocket' WHERE id = 1")

	rows := mustExec(t, db, "SELECT * FROM widgets WHERE id = 1")
	if len(rows) != 1 || rows[0][1].Text != "sprocket" {
		t.Fatalf("got %+v", rows)
	}
	rows = mustExec(t, db, "SELECT * FROM widgets WHERE id = 2")
	if len(rows) != 1 || rows[0][1].Text != "bolt" {
		t.Fatalf("unaffected row changed: %+v", rows)
	}
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear')")
	mustExec(t, db, "INSERT INTO widgets VALUES (2, 'bolt')")
	mustExec(t, db, "DELETE FROM widgets WHERE id = 1")

	rows := mustExec(t, db, "SELECT * FROM widgets")
	if len(rows) != 1 || rows[0][0].Int != 2 {
		t.Fatalf("got %+v", rows)
	}
}

func TestColumnProjectionByName(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, weight INTEGER)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear', 3)")

	rows := mustExec(t, db, "SELECT name FROM widgets")
	if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0].Text != "gear" {
		t.Fatalf("got %+v", rows)
	}
}

func TestAdvancedSelectOrderByLimit(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, weight INTEGER)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 3)")
	mustExec(t, db, "INSERT INTO widgets VALUES (2, 1)")
	mustExec(t, db, "INSERT INTO widgets VALUES (3, 2)")

	rows := mustExec(t, db, "SELECT weight FROM widgets ORDER BY weight LIMIT 2")
	if len(rows) != 2 || rows[0][0].Int != 1 || rows[1][0].Int != 2 {
		t.Fatalf("got %+v", rows)
	}
}

func TestDropTableRemovesSchema(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY)")
	mustExec(t, db, "DROP TABLE widgets")
	if db.TableExists("widgets") {
		t.Fatal("expected widgets to be dropped")
	}
	if _, err := db.Execute("SELECT * FROM widgets"); err == nil {
		t.Fatal("expected SchemaError selecting a dropped table")
	}
}

func TestAlterTableAddColumn(t *testing.T) {
	db := openTestDB(t)
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY)")
	mustExec(t, db, "ALTER TABLE widgets ADD color TEXT")
	mustExec(t, db, "INSERT INTO widgets VALUES (1)")

	rows := mustExec(t, db, "SELECT * FROM widgets")
	if len(rows) != 1 {
		t.Fatalf("got %+v", rows)
	}
}

func TestCatalogSurvivesCloseAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.chidb")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustExec(t, db, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, db, "INSERT INTO widgets VALUES (1, 'gear')")
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.TableExists("widgets") {
		t.Fatal("expected widgets to survive reopen")
	}
	rows, err := reopened.Execute("SELECT * FROM widgets")
	if err != nil {
		t.Fatalf("select after reopen: %v", err)
	}
	if len(rows) != 1 || rows[0][1].Text != "gear" {
		t.Fatalf("got %+v", rows)
	}
}
