package contents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeContentsFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestParseLineSplitsOnLastWhitespaceRun(t *testing.T) {
	path, pkgs, ok := parseLine("usr/bin/gcc   devel/gcc,devel/gcc-12")
	if !ok {
		t.Fatal("expected ok")
	}
	if path != "usr/bin/gcc" {
		t.Fatalf("path = %q", path)
	}
	if pkgs != "devel/gcc,devel/gcc-12" {
		t.Fatalf("pkgs = %q", pkgs)
	}
}

func TestParseLineNoWhitespaceIsRejected(t *testing.T) {
	if _, _, ok := parseLine("no-separator-here"); ok {
		t.Fatal("expected not ok")
	}
}

func TestFilesModeSingleMatch(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_Contents-amd64", "usr/bin/gcc devel/gcc\nusr/lib/libc.so libs/glibc\n")

	matches, err := Search(context.Background(), dir, "gcc", Files, []string{"amd64"}, Internal, "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", matches)
	}
	if matches[0] != (Match{Package: "gcc", Path: "/usr/bin/gcc"}) {
		t.Fatalf("unexpected match: %+v", matches[0])
	}
}

func TestProvidesModeMultiPackageNoDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_Contents-amd64",
		"opt/32/libexec devel/gcc+32,devel/llvm+32,gnome/gconf+32,libs/gdk-pixbuf+32\n")

	matches, err := Search(context.Background(), dir, "libexec", Provides, []string{"amd64"}, Internal, "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("expected 4 matches, got %d: %v", len(matches), matches)
	}

	seen := make(map[Match]bool)
	for _, m := range matches {
		if m.Path != "/opt/32/libexec" {
			t.Fatalf("unexpected path: %+v", m)
		}
		if seen[m] {
			t.Fatalf("duplicate match: %+v", m)
		}
		seen[m] = true
	}
	wantPkgs := map[string]bool{"gcc+32": true, "llvm+32": true, "gconf+32": true, "gdk-pixbuf+32": true}
	for _, m := range matches {
		if !wantPkgs[m.Package] {
			t.Fatalf("unexpected package: %s", m.Package)
		}
	}
}

func TestBinaryModeRestrictsToPrefix(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_BinContents-amd64",
		"usr/bin/ls devel/coreutils\nusr/share/doc/ls.txt devel/coreutils\n")

	matches, err := Search(context.Background(), dir, "ls", Binary, []string{"amd64"}, Internal, "", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "/usr/bin/ls" {
		t.Fatalf("expected only the /usr/bin match, got %v", matches)
	}
}

func TestBinaryModeExcludesSourceVariant(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_BinContents-amd64", "usr/bin/ls devel/coreutils\n")
	writeContentsFile(t, dir, "main-source_BinContents-amd64", "usr/bin/ls devel/coreutils-src\n")

	files, err := SelectFiles(dir, Binary, []string{"amd64"})
	if err != nil {
		t.Fatalf("SelectFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected source variant excluded, got %v", files)
	}
}

func TestSearchNoMatchesReturnsNoResult(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_Contents-amd64", "usr/bin/gcc devel/gcc\n")

	_, err := Search(context.Background(), dir, "nonexistent-package", Files, []string{"amd64"}, Internal, "", nil)
	if err != ErrNoResult {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestSearchEmptyDirReturnsNoResult(t *testing.T) {
	dir := t.TempDir()
	_, err := Search(context.Background(), dir, "anything", Files, []string{"amd64"}, Internal, "", nil)
	if err != ErrNoResult {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestSelectFilesMatchesArchSuffix(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "main_Contents-amd64", "x\n")
	writeContentsFile(t, dir, "main_Contents-arm64", "x\n")
	writeContentsFile(t, dir, "main_Contents-amd64.gz", "x\n")

	files, err := SelectFiles(dir, Files, []string{"amd64"})
	if err != nil {
		t.Fatalf("SelectFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 amd64 files (plain + .gz), got %v", files)
	}
}

func TestProgressCallbackFiresPerFile(t *testing.T) {
	dir := t.TempDir()
	writeContentsFile(t, dir, "a_Contents-amd64", "usr/bin/a pkg/a\n")
	writeContentsFile(t, dir, "b_Contents-amd64", "usr/bin/b pkg/b\n")

	count := 0
	_, err := Search(context.Background(), dir, "a", Files, []string{"amd64"}, Internal, "", func(n int) { count += n })
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected progress called once per file (2), got %d", count)
	}
}
