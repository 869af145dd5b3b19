package bridge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadBundleSourcePlainScript(t *testing.T) {
	dir := t.TempDir()
	src := "globalThis.__plain = 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "main.bundle"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loadBundleSource(dir, "main.bundle")
	if err != nil {
		t.Fatalf("loadBundleSource: %v", err)
	}
	if got != src {
		t.Error("plain script must be returned unmodified")
	}
}

func TestLoadBundleSourcePacksImports(t *testing.T) {
	dir := t.TempDir()
	lib := "export function answer() { return 42; }\n"
	entry := "import { answer } from './lib.js';\nglobalThis.__answer = answer();\n"
	if err := os.WriteFile(filepath.Join(dir, "lib.js"), []byte(lib), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.bundle"), []byte(entry), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loadBundleSource(dir, "main.bundle")
	if err != nil {
		t.Fatalf("loadBundleSource: %v", err)
	}
	if strings.Contains(got, "import ") {
		t.Error("packed output still contains import statements")
	}
	if !strings.Contains(got, "__answer") {
		t.Error("packed output lost the entry point code")
	}
}

func TestLoadBundleSourceMissingFile(t *testing.T) {
	if _, err := loadBundleSource(t.TempDir(), "absent.bundle"); err == nil {
		t.Error("missing bundle should error")
	}
}

func TestLoadBundleSourceAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.bundle")
	if err := os.WriteFile(path, []byte("1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadBundleSource("/somewhere/else", path); err != nil {
		t.Errorf("absolute paths must bypass the root: %v", err)
	}
}

func TestNeedsPacking(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"var x = 1;", false},
		{"import { a } from './a.js';", true},
		{"const m = require('m');", true},
		{"export default {};", true},
		{"// importantly, a comment", false},
	}
	for _, c := range cases {
		if got := needsPacking(c.src); got != c.want {
			t.Errorf("needsPacking(%q) = %v, want %v", c.src, got, c.want)
		}
	}
}

// End-to-end: an instance loads an import-using bundle through esbuild and
// the top-level code runs in the VM.
func TestInstanceLoadsPackedBundle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.js"),
		[]byte("export function answer() { return 42; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeBundle(t, dir, "main.bundle",
		"import { answer } from './lib.js';\nglobalThis.__answer = answer();\n")

	inst := newTestInstance(t, dir, nil, NoopInstanceCallback{})
	inst.LoadBundle("main.bundle")

	waitForLoaded(t, inst)
	waitForScript(t, inst, "String(globalThis.__answer)", "42")
}
