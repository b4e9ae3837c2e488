// Package chidbconfig loads chidb.OpenOptions from a YAML file, letting
// an embedder check a `.chidb.yaml` into a repo instead of wiring flags
// (spec.md §9, SPEC_FULL.md §2.3).
package chidbconfig

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chidb-go/chidb"
	"github.com/chidb-go/chidb/internal/chidberr"
)

// fileConfig mirrors the on-disk YAML shape. Field names are snake_case
// to match the rest of the pack's config-file conventions.
type fileConfig struct {
	PageSize       uint32 `yaml:"page_size"`
	CachePageLimit int    `yaml:"cache_page_limit"`
	Verbose        bool   `yaml:"verbose"`
}

// Load reads path and converts its contents into chidb.OpenOptions. A
// missing or empty PageSize/CachePageLimit is left zero, matching
// chidb's own "zero means default" handling. Verbose, when true,
// attaches a logger writing to stderr; otherwise Logger is left nil.
func Load(path string) (chidb.OpenOptions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return chidb.OpenOptions{}, chidberr.Wrap(chidberr.IOError, err, "read config %s", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return chidb.OpenOptions{}, chidberr.Wrap(chidberr.ParseError, err, "parse config %s", path)
	}

	opts := chidb.OpenOptions{
		PageSize:       fc.PageSize,
		CachePageLimit: fc.CachePageLimit,
	}
	if fc.Verbose {
		opts.Logger = log.New(os.Stderr, "chidb: ", log.LstdFlags)
	}
	return opts, nil
}
