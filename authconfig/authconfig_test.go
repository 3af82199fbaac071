package authconfig

import (
	"os"
	"path/filepath"
	"testing"
)

// TestTwoAuthEntries implements spec scenario 1: a directory containing one
// file with two records; find("A") and find("B") each return their entry,
// find("C") returns nothing.
func TestTwoAuthEntries(t *testing.T) {
	dir := t.TempDir()
	content := "machine A login u1 password p1\nmachine B login u2 password p2\n"
	if err := os.WriteFile(filepath.Join(dir, "oma.conf"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a, ok := cfg.Find("A")
	if !ok || a != (AuthEntry{Host: "A", User: "u1", Password: "p1"}) {
		t.Fatalf("find(A) = %+v, %v", a, ok)
	}
	b, ok := cfg.Find("B")
	if !ok || b != (AuthEntry{Host: "B", User: "u2", Password: "p2"}) {
		t.Fatalf("find(B) = %+v, %v", b, ok)
	}
	if _, ok := cfg.Find("C"); ok {
		t.Fatal("find(C) should be absent")
	}
}

func TestLoadTokenOrderInsensitive(t *testing.T) {
	dir := t.TempDir()
	content := "password p1 machine A login u1\n"
	if err := os.WriteFile(filepath.Join(dir, "oma.conf"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, ok := cfg.Find("A")
	if !ok || a.User != "u1" || a.Password != "p1" {
		t.Fatalf("find(A) = %+v, %v", a, ok)
	}
}

func TestLoadTolerantOfComments(t *testing.T) {
	dir := t.TempDir()
	content := "# standalone comment\n" +
		"machine A login u1 password p1 # trailing comment\n" +
		"   \n"
	if err := os.WriteFile(filepath.Join(dir, "oma.conf"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Entries()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(cfg.Entries()))
	}
}

func TestLoadMissingField(t *testing.T) {
	dir := t.TempDir()
	content := "machine A login u1\n"
	if err := os.WriteFile(filepath.Join(dir, "oma.conf"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected missing-field error")
	}
	var mf *ErrMissingField
	if e, ok := err.(*ErrMissingField); ok {
		mf = e
	}
	if mf == nil || mf.Which != "password" {
		t.Fatalf("expected missing password field, got %v", err)
	}
}
