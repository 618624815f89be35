package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintFile(t *testing.T) {
	dir := t.TempDir()
	a := writeGo(t, dir, "a.go", "package q\n\nconst QGood = `--sql 3f1a2b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b\nselect 1`\n\nconst QMissing = `select id from donations`\n\nconst Label = \"not sql\"\n")
	b := writeGo(t, dir, "b.go", "package q\n\nconst QDup = `--sql 3f1a2b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b\nupdate donations set status = 'EXPIRED'`\n")

	seen := make(map[string]string)
	vs, err := lintFile(a, seen)
	if err != nil {
		t.Fatalf("lint a: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QMissing" {
		t.Fatalf("unexpected violations in a.go: %+v", vs)
	}

	vs, err = lintFile(b, seen)
	if err != nil {
		t.Fatalf("lint b: %v", err)
	}
	if len(vs) != 1 || vs[0].name != "QDup" || !strings.Contains(vs[0].message, "already used") {
		t.Fatalf("expected duplicate marker violation, got %+v", vs)
	}
}

func TestRepositorySQLIsMarked(t *testing.T) {
	seen := make(map[string]string)
	for _, name := range []string{"donations.go", "ledger.go"} {
		vs, err := lintFile(filepath.Join("..", "..", "sqlinline", name), seen)
		if err != nil {
			t.Fatalf("lint %s: %v", name, err)
		}
		if len(vs) > 0 {
			t.Fatalf("violations in %s: %+v", name, vs)
		}
	}
}
