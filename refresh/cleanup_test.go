package refresh

import (
	"testing"

	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/omalog"
)

func TestCleanupOrphansRemovesUnreferencedIndices(t *testing.T) {
	fs := omafs.NewMemFileSystem()
	src := Source{Name: "main", BaseURL: "https://repo.example/main", Dist: "stable"}
	dir := "/var/lib/apt/lists/" + sourceDirName(src) + "/dists/stable"

	write := func(rel string) {
		w, err := fs.Create(dir + "/" + rel)
		if err != nil {
			t.Fatalf("seed %s: %v", rel, err)
		}
		if _, err := w.Write([]byte("data")); err != nil {
			t.Fatalf("seed %s: %v", rel, err)
		}
		w.Close()
	}

	write("InRelease")
	write("main/binary-amd64/Packages.xz")
	write("main/binary-amd64/Packages")  // decompressed sibling of a current fetch
	write("main/binary-amd64/Contents")  // leftover from a prior distribution layout
	write("by-hash/SHA256/deadbeef")     // must survive regardless of current validity

	report := Report{Results: []Result{
		{
			Source:  src,
			State:   Done,
			Fetched: []string{"main/binary-amd64/Packages.xz"},
		},
	}}

	logger := omalog.NewRecording()
	if err := CleanupOrphans(fs, "/var/lib/apt/lists", report, logger); err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}

	if _, err := fs.Stat(dir + "/InRelease"); err != nil {
		t.Error("expected InRelease to survive cleanup")
	}
	if _, err := fs.Stat(dir + "/main/binary-amd64/Packages.xz"); err != nil {
		t.Error("expected the fetched index to survive cleanup")
	}
	if _, err := fs.Stat(dir + "/main/binary-amd64/Packages"); err != nil {
		t.Error("expected the decompressed sibling to survive cleanup")
	}
	if _, err := fs.Stat(dir + "/by-hash/SHA256/deadbeef"); err != nil {
		t.Error("expected by-hash entries to never be pruned")
	}
	if _, err := fs.Stat(dir + "/main/binary-amd64/Contents"); err == nil {
		t.Error("expected the unreferenced Contents file to be removed")
	}
	if logger.Count("info") == 0 {
		t.Error("expected an info log entry for the removed file")
	}
}

func TestCleanupOrphansSkipsSourcesNotDone(t *testing.T) {
	fs := omafs.NewMemFileSystem()
	report := Report{Results: []Result{
		{Source: Source{Name: "broken", Dist: "stable"}, State: Failed},
	}}
	if err := CleanupOrphans(fs, "/var/lib/apt/lists", report, omalog.NewRecording()); err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
}
