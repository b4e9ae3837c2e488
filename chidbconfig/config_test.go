package chidbconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFields(t *testing.T) {
	path := writeConfig(t, "page_size: 8192\ncache_page_limit: 64\nverbose: true\n")
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.PageSize != 8192 {
		t.Errorf("page size = %d, want 8192", opts.PageSize)
	}
	if opts.CachePageLimit != 64 {
		t.Errorf("cache page limit = %d, want 64", opts.CachePageLimit)
	}
	if opts.Logger == nil {
		t.Error("expected a logger when verbose is true")
	}
}

func TestLoadDefaultsWhenFieldsAbsent(t *testing.T) {
	path := writeConfig(t, "page_size: 4096\n")
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.CachePageLimit != 0 {
		t.Errorf("cache page limit = %d, want 0", opts.CachePageLimit)
	}
	if opts.Logger != nil {
		t.Error("expected no logger when verbose is absent")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	path := writeConfig(t, "page_size: [this is not a scalar\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
