package release

import (
	"strings"
	"testing"
)

const sampleRelease = `Suite: stable
Codename: bullseye
Components: main contrib
Architectures: amd64 arm64
Acquire-By-Hash: yes
SHA256:
 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 1000 main/binary-amd64/Packages
 bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb 400 main/binary-amd64/Packages.gz
 cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc 300 main/binary-amd64/Packages.xz
 dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd 1000 main/i18n/Translation-en
`

func mustParse(t *testing.T, content string) *Record {
	t.Helper()
	rec, err := ParseRelease(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ParseRelease: %v", err)
	}
	return rec
}

func TestParseReleaseFields(t *testing.T) {
	rec := mustParse(t, sampleRelease)
	if rec.Suite != "stable" || rec.Codename != "bullseye" {
		t.Fatalf("unexpected header fields: %+v", rec)
	}
	if !rec.AcquireByHash {
		t.Fatal("expected AcquireByHash true")
	}
	if len(rec.Entries) != 4 {
		t.Fatalf("expected 4 deduplicated entries, got %d", len(rec.Entries))
	}
}

func TestSelectIndicesPrefersCompressed(t *testing.T) {
	rec := mustParse(t, sampleRelease)
	tree := DefaultIndexTargetTemplates()

	selected := rec.SelectIndices("amd64", []string{"amd64"}, []string{"main"}, tree)

	foundPackages := false
	for _, item := range selected {
		if strings.HasPrefix(item.Name, "main/binary-amd64/Packages") {
			foundPackages = true
			if item.Name != "main/binary-amd64/Packages.xz" {
				t.Fatalf("expected .xz preferred over .gz/uncompressed, got %s", item.Name)
			}
		}
	}
	if !foundPackages {
		t.Fatal("expected a Packages entry to be selected")
	}
}

func TestSelectIndicesStableUnderReorder(t *testing.T) {
	rec1 := mustParse(t, sampleRelease)
	tree := DefaultIndexTargetTemplates()
	sel1 := rec1.SelectIndices("amd64", []string{"amd64"}, []string{"main"}, tree)

	// Reverse entry order and reparse equivalent content manually.
	reversed := Record{
		Suite: rec1.Suite, Codename: rec1.Codename,
		Components: rec1.Components, Architectures: rec1.Architectures,
		AcquireByHash: rec1.AcquireByHash,
	}
	for i := len(rec1.Entries) - 1; i >= 0; i-- {
		reversed.Entries = append(reversed.Entries, rec1.Entries[i])
	}
	sel2 := reversed.SelectIndices("amd64", []string{"amd64"}, []string{"main"}, tree)

	names1 := map[string]bool{}
	for _, e := range sel1 {
		names1[e.Name] = true
	}
	names2 := map[string]bool{}
	for _, e := range sel2 {
		names2[e.Name] = true
	}
	if len(names1) != len(names2) {
		t.Fatalf("selection set differs in size under reorder: %v vs %v", names1, names2)
	}
	for n := range names1 {
		if !names2[n] {
			t.Fatalf("selection not stable under reorder: %s missing after reversal", n)
		}
	}
}

func TestByHashPath(t *testing.T) {
	rec := mustParse(t, sampleRelease)
	name, ok := rec.ByHashPath(0, strings.Repeat("a", 64))
	if !ok || name != "main/binary-amd64/Packages" {
		t.Fatalf("ByHashPath lookup failed: %s %v", name, ok)
	}
}
