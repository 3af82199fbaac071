package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestParseHexRoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	hexStr := hex.EncodeToString(sum[:])

	c, err := ParseHex(SHA256, hexStr)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if c.Hex() != hexStr {
		t.Fatalf("hex round-trip mismatch: got %s want %s", c.Hex(), hexStr)
	}
}

func TestParseHexBadLength(t *testing.T) {
	_, err := ParseHex(SHA256, "aabb")
	var badLen *ErrBadLength
	if err == nil {
		t.Fatal("expected error for short digest")
	}
	if !asBadLength(err, &badLen) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func asBadLength(err error, target **ErrBadLength) bool {
	if e, ok := err.(*ErrBadLength); ok {
		*target = e
		return true
	}
	return false
}

func TestParseHexNotHex(t *testing.T) {
	_, err := ParseHex(SHA256, "not-hex-at-all-zz")
	if _, ok := err.(*ErrNotHex); !ok {
		t.Fatalf("expected ErrNotHex, got %v (%T)", err, err)
	}
}

func TestValidatorFinishIsIdempotent(t *testing.T) {
	sum := sha256.Sum256([]byte("streaming data"))
	expected := Checksum{Algo: SHA256, Digest: sum[:]}

	v := NewValidator(expected)
	v.Update([]byte("streaming "))
	v.Update([]byte("data"))

	if !v.Finish() {
		t.Fatal("expected Finish to succeed")
	}
	// Calling Finish again must not mutate state or change the result.
	if !v.Finish() {
		t.Fatal("Finish is not idempotent")
	}
}

func TestValidatorFinishMismatch(t *testing.T) {
	expected := Checksum{Algo: SHA256, Digest: make([]byte, sha256.Size)}
	v := NewValidator(expected)
	v.Update([]byte("anything"))
	if v.Finish() {
		t.Fatal("expected mismatch to fail")
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte("the quick brown fox")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	want := sha256.Sum256(content)
	got, err := FromFile(SHA256, path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if hex.EncodeToString(got.Digest) != hex.EncodeToString(want[:]) {
		t.Fatalf("digest mismatch: got %x want %x", got.Digest, want)
	}
}

func TestAlgoStronger(t *testing.T) {
	if !SHA512.Stronger(SHA256) {
		t.Fatal("SHA512 should be stronger than SHA256")
	}
	if !SHA256.Stronger(MD5) {
		t.Fatal("SHA256 should be stronger than MD5")
	}
	if MD5.Stronger(SHA512) {
		t.Fatal("MD5 should not be stronger than SHA512")
	}
}
