package refresh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/aosc-dev/omacore/omaconfig"
	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/trust"
)

func newSigningEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	ent, err := openpgp.NewEntity("repo signer", "", "signer@example.test", nil)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	return ent
}

func writeTrustedDir(t *testing.T, ents ...*openpgp.Entity) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "etc/apt/trusted.gpg.d")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	var buf bytes.Buffer
	for _, ent := range ents {
		if err := ent.Serialize(&buf); err != nil {
			t.Fatalf("Serialize: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "test.gpg"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return root
}

func clearSign(t *testing.T, ent *openpgp.Entity, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, ent.PrivateKey, nil)
	if err != nil {
		t.Fatalf("clearsign.Encode: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

// testRepo builds an httptest.Server serving a clear-signed InRelease and a
// single uncompressed Packages index, signed by ent, along with the
// Release's own declared digest of that index.
type testRepo struct {
	srv             *httptest.Server
	packagesContent string
}

func newTestRepo(t *testing.T, ent *openpgp.Entity, validUntil string) *testRepo {
	t.Helper()
	packages := "Package: foo\nVersion: 1.0\nFilename: pool/foo_1.0.deb\n\n"
	sum := sha256.Sum256([]byte(packages))
	digestHex := hex.EncodeToString(sum[:])

	releaseText := fmt.Sprintf(
		"Suite: stable\nCodename: stable\nComponents: main\nArchitectures: amd64\nDate: Mon, 01 Jan 2024 00:00:00 UTC\n%sSHA256:\n %s %d main/binary-amd64/Packages\n",
		validUntil, digestHex, len(packages),
	)
	signed := clearSign(t, ent, releaseText)

	mux := http.NewServeMux()
	mux.HandleFunc("/dists/stable/InRelease", func(w http.ResponseWriter, r *http.Request) {
		w.Write(signed)
	})
	mux.HandleFunc("/dists/stable/main/binary-amd64/Packages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(packages))
	})
	return &testRepo{srv: httptest.NewServer(mux), packagesContent: packages}
}

func TestRefreshSuccessPublishesIndex(t *testing.T) {
	ent := newSigningEntity(t)
	rootfs := writeTrustedDir(t, ent)
	repo := newTestRepo(t, ent, "")
	defer repo.srv.Close()

	fs := omafs.NewMemFileSystem()
	p := NewPipeline(fs, trust.NewStore(rootfs), omaconfig.Paths{DownloadRoot: "/lists"}, "amd64")

	src := Source{Name: "test", BaseURL: repo.srv.URL, Dist: "stable", Components: []string{"main"}, Architectures: []string{"amd64"}}
	report, err := p.Refresh(context.Background(), []Source{src})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(report.Results))
	}
	res := report.Results[0]
	if res.State != Done {
		t.Fatalf("expected Done, got %s (err=%v)", res.State, res.Err)
	}
	if len(res.Fetched) != 1 || res.Fetched[0] != "main/binary-amd64/Packages" {
		t.Fatalf("expected to have fetched the Packages index, got %v", res.Fetched)
	}

	localDir := filepath.Join("/lists", sourceDirName(src), "dists", "stable")
	data, err := fs.ReadFile(filepath.Join(localDir, "main/binary-amd64/Packages"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != repo.packagesContent {
		t.Fatalf("unexpected published content: %q", data)
	}
}

func TestRefreshIncrementalSkip(t *testing.T) {
	ent := newSigningEntity(t)
	rootfs := writeTrustedDir(t, ent)
	repo := newTestRepo(t, ent, "")
	defer repo.srv.Close()

	fs := omafs.NewMemFileSystem()
	p := NewPipeline(fs, trust.NewStore(rootfs), omaconfig.Paths{DownloadRoot: "/lists"}, "amd64")
	src := Source{Name: "test", BaseURL: repo.srv.URL, Dist: "stable", Components: []string{"main"}, Architectures: []string{"amd64"}}

	if _, err := p.Refresh(context.Background(), []Source{src}); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	var hitCount int
	repo.srv.Config.Handler = countingMiddleware(repo.srv.Config.Handler, &hitCount, "main/binary-amd64/Packages")

	report, err := p.Refresh(context.Background(), []Source{src})
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	res := report.Results[0]
	if res.State != Done {
		t.Fatalf("expected Done, got %s (err=%v)", res.State, res.Err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "main/binary-amd64/Packages" {
		t.Fatalf("expected the index to be skipped as already up to date, got fetched=%v skipped=%v", res.Fetched, res.Skipped)
	}
	if hitCount != 0 {
		t.Fatalf("expected the already-current index not to be refetched, got %d hits", hitCount)
	}
}

func countingMiddleware(next http.Handler, count *int, suffix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) >= len(suffix) && r.URL.Path[len(r.URL.Path)-len(suffix):] == suffix {
			*count++
		}
		next.ServeHTTP(w, r)
	})
}

func TestRefreshExpiredReleaseFails(t *testing.T) {
	ent := newSigningEntity(t)
	rootfs := writeTrustedDir(t, ent)
	past := time.Now().Add(-24 * time.Hour).UTC().Format("Mon, 02 Jan 2006 15:04:05 MST")
	repo := newTestRepo(t, ent, "Valid-Until: "+past+"\n")
	defer repo.srv.Close()

	fs := omafs.NewMemFileSystem()
	p := NewPipeline(fs, trust.NewStore(rootfs), omaconfig.Paths{DownloadRoot: "/lists"}, "amd64")
	src := Source{Name: "test", BaseURL: repo.srv.URL, Dist: "stable", Components: []string{"main"}, Architectures: []string{"amd64"}}

	report, err := p.Refresh(context.Background(), []Source{src})
	if err == nil {
		t.Fatalf("Refresh should fail the whole operation when its only source is expired")
	}
	if report.Results[0].State != Failed {
		t.Fatalf("expected Failed for an expired Release, got %s", report.Results[0].State)
	}
}

func TestRefreshIsolatesFailuresAcrossSources(t *testing.T) {
	ent := newSigningEntity(t)
	rootfs := writeTrustedDir(t, ent)
	good := newTestRepo(t, ent, "")
	defer good.srv.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	fs := omafs.NewMemFileSystem()
	p := NewPipeline(fs, trust.NewStore(rootfs), omaconfig.Paths{DownloadRoot: "/lists"}, "amd64")

	sources := []Source{
		{Name: "good", BaseURL: good.srv.URL, Dist: "stable", Components: []string{"main"}, Architectures: []string{"amd64"}},
		{Name: "bad", BaseURL: bad.URL, Dist: "stable", Components: []string{"main"}, Architectures: []string{"amd64"}},
	}
	report, err := p.Refresh(context.Background(), sources)
	if err != nil {
		t.Fatalf("Refresh should not fail the whole operation when only one source fails: %v", err)
	}

	var gotDone, gotFailed bool
	for _, res := range report.Results {
		switch res.Source.Name {
		case "good":
			gotDone = res.State == Done
		case "bad":
			gotFailed = res.State == Failed
		}
	}
	if !gotDone || !gotFailed {
		t.Fatalf("expected one Done and one Failed result, got %+v", report.Results)
	}
}
