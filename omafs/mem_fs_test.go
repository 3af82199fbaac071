package omafs

import (
	"io/fs"
	"os"
	"testing"
)

func TestMemFileSystemCreateReadRoundTrip(t *testing.T) {
	mfs := NewMemFileSystem()
	w, err := mfs.Create("/a/b.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Write([]byte("hello"))
	w.Close()

	data, err := mfs.ReadFile("/a/b.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q want hello", data)
	}
}

func TestMemFileSystemOpenAppendResumes(t *testing.T) {
	mfs := NewMemFileSystem()
	w, _ := mfs.Create("/part.bin")
	w.Write([]byte("first-"))
	w.Close()

	aw, err := mfs.OpenAppend("/part.bin")
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	aw.Write([]byte("second"))
	aw.Close()

	data, _ := mfs.ReadFile("/part.bin")
	if string(data) != "first-second" {
		t.Fatalf("got %q want first-second", data)
	}
}

func TestMemFileSystemRenameAndLink(t *testing.T) {
	mfs := NewMemFileSystem()
	w, _ := mfs.Create("/src.bin")
	w.Write([]byte("content"))
	w.Close()

	if err := mfs.Rename("/src.bin", "/dst.bin"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := mfs.Stat("/src.bin"); err == nil {
		t.Fatal("expected src.bin to be gone after rename")
	}

	if err := mfs.Link("/dst.bin", "/hardlink.bin"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	data, _ := mfs.ReadFile("/hardlink.bin")
	if string(data) != "content" {
		t.Fatalf("got %q want content", data)
	}
}

func TestMemFileSystemWalkDir(t *testing.T) {
	mfs := NewMemFileSystem()
	mfs.MkdirAll("/pool/main", 0o755)
	w, _ := mfs.Create("/pool/main/a.deb")
	w.Write([]byte("x"))
	w.Close()
	w2, _ := mfs.Create("/pool/main/b.deb")
	w2.Write([]byte("y"))
	w2.Close()

	var found []string
	err := mfs.WalkDir("/pool", func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 files, got %v", found)
	}
}

func TestMemFileSystemOpenMissing(t *testing.T) {
	mfs := NewMemFileSystem()
	_, err := mfs.Open("/missing")
	if !os.IsNotExist(err) {
		t.Fatalf("expected IsNotExist, got %v", err)
	}
}
