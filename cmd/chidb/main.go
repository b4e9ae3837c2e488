// Command chidb is a thin demo CLI: argument parsing and result
// formatting live here as an external collaborator of the engine, never
// inside the engine itself (spec.md §1 "Out of scope: interactive
// shell/REPL formatting, argument parsing"). Grounded on the shape of
// the teacher's cmd/tinysql/main.go, scaled down to what a single-file
// demo needs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chidb-go/chidb"
	"github.com/chidb-go/chidb/internal/record"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chidb: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("chidb", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the database file (required)")
	sqlFlag := fs.String("sql", "", "SQL to run; reads semicolon-separated statements from stdin if omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("-db is required")
	}

	db, err := chidb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	source := *sqlFlag
	if source == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		source = string(data)
	}

	for _, stmt := range splitStatements(source) {
		rows, err := db.Execute(stmt)
		if err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
		printRows(stdout, rows)
	}
	return nil
}

func splitStatements(source string) []string {
	var stmts []string
	for _, part := range strings.Split(source, ";") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			stmts = append(stmts, trimmed)
		}
	}
	return stmts
}

func printRows(w io.Writer, rows [][]record.Value) {
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func formatValue(v record.Value) string {
	switch v.Type {
	case record.TypeNull:
		return "NULL"
	case record.TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case record.TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case record.TypeText:
		return v.Text
	case record.TypeBlob:
		return fmt.Sprintf("%x", v.Blob)
	}
	return ""
}
