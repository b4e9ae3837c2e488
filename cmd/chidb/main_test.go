package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExecutesStatementsFromSQLFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.chidb")
	var out bytes.Buffer

	sql := "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT); " +
		"INSERT INTO widgets VALUES (1, 'gear'); " +
		"SELECT * FROM widgets"
	if err := run([]string{"-db", dbPath, "-sql", sql}, strings.NewReader(""), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "1\tgear" {
		t.Fatalf("got %q", got)
	}
}

func TestRunReadsStatementsFromStdinWhenNoSQLFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.chidb")
	var out bytes.Buffer

	stdin := strings.NewReader("CREATE TABLE widgets (id INTEGER PRIMARY KEY); SELECT * FROM widgets")
	if err := run([]string{"-db", dbPath}, stdin, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no rows for an empty table, got %q", out.String())
	}
}

func TestRunRequiresDBFlag(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, strings.NewReader(""), &out); err == nil {
		t.Fatal("expected an error when -db is omitted")
	}
}

func TestSplitStatementsIgnoresTrailingWhitespace(t *testing.T) {
	got := splitStatements("SELECT 1;  ; SELECT 2 ; ")
	if len(got) != 2 || got[0] != "SELECT 1" || got[1] != "SELECT 2" {
		t.Fatalf("got %+v", got)
	}
}
