package mirror

import (
	"strings"
	"testing"

	"github.com/aosc-dev/omacore/omafs"
)

const testCatalog = `
origin:
  desc: Primary origin server
  url: https://repo.example.org/origin/
mirror-a:
  desc: Mirror A
  url: https://mirror-a.example.org/aosc/
mirror-b:
  desc: Mirror B
  url: https://mirror-b.example.org/aosc/
`

func newTestManager(t *testing.T) (*Manager, omafs.FileSystem) {
	t.Helper()
	fs := omafs.NewMemFileSystem()
	w, err := fs.Create("/usr/share/aosc-os/mirrors.yml")
	if err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	if _, err := w.Write([]byte(testCatalog)); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	w.Close()

	m := NewManager(fs, "/var/lib/apt/gen/status.json", "/usr/share/aosc-os/mirrors.yml", "/etc/apt/sources.list")
	m.Status.Branch = "stable"
	return m, fs
}

func TestAddRemoveRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	added, err := m.Add("origin")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Fatal("expected first Add to report added=true")
	}

	added, err = m.Add("origin")
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if added {
		t.Fatal("expected second Add to be idempotent (added=false)")
	}
	if len(m.Status.Mirror) != 1 {
		t.Fatalf("expected 1 enabled mirror, got %d", len(m.Status.Mirror))
	}

	if !m.Remove("origin") {
		t.Fatal("expected Remove to report true for an enabled mirror")
	}
	if m.Remove("origin") {
		t.Fatal("expected second Remove to report false")
	}
	if len(m.Status.Mirror) != 0 {
		t.Fatalf("expected no enabled mirrors after Remove, got %d", len(m.Status.Mirror))
	}
}

func TestAddUnknownMirrorFails(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Add("nonexistent"); err == nil {
		t.Fatal("expected an error for an unknown mirror name")
	}
}

func TestSetPreservesOrderAndRejectsUnknown(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Set([]string{"mirror-b", "origin", "mirror-a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(m.Status.Mirror) != 3 {
		t.Fatalf("expected 3 enabled mirrors, got %d", len(m.Status.Mirror))
	}
	names := []string{m.Status.Mirror[0].Name, m.Status.Mirror[1].Name, m.Status.Mirror[2].Name}
	want := []string{"mirror-b", "origin", "mirror-a"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}

	before := append([]enabledMirror(nil), m.Status.Mirror...)
	if err := m.Set([]string{"origin", "nonexistent"}); err == nil {
		t.Fatal("expected Set to reject an unknown mirror name")
	}
	if len(m.Status.Mirror) != len(before) {
		t.Fatal("expected a rejected Set to leave the existing selection untouched")
	}
}

func TestReorder(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Set([]string{"origin", "mirror-a", "mirror-b"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := m.Reorder([]int{2, 0, 1}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	names := []string{m.Status.Mirror[0].Name, m.Status.Mirror[1].Name, m.Status.Mirror[2].Name}
	want := []string{"mirror-b", "origin", "mirror-a"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected reordered %v, got %v", want, names)
		}
	}

	if err := m.Reorder([]int{5}); err == nil {
		t.Fatal("expected Reorder to reject an out-of-range index")
	}
}

func TestWriteGeneratesStatusAndSourcesList(t *testing.T) {
	m, fs := newTestManager(t)
	if err := m.Set([]string{"origin"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := m.Write(""); err != nil {
		t.Fatalf("Write: %v", err)
	}

	status, err := fs.ReadFile("/var/lib/apt/gen/status.json")
	if err != nil {
		t.Fatalf("ReadFile status: %v", err)
	}
	if len(status) == 0 {
		t.Fatal("expected a non-empty status file")
	}

	list, err := fs.ReadFile("/etc/apt/sources.list")
	if err != nil {
		t.Fatalf("ReadFile sources list: %v", err)
	}
	text := string(list)
	wantLine := "deb https://repo.example.org/origin/debs stable main\n"
	if !strings.Contains(text, wantLine) {
		t.Fatalf("expected line %q, got:\n%s", wantLine, text)
	}
	if !strings.HasPrefix(text, "# Generated by oma-mirror") {
		t.Fatalf("expected default banner, got:\n%s", text)
	}

	reloaded := NewManager(fs, "/var/lib/apt/gen/status.json", "/usr/share/aosc-os/mirrors.yml", "/etc/apt/sources.list")
	if len(reloaded.Status.Mirror) != 1 || reloaded.Status.Mirror[0].Name != "origin" {
		t.Fatalf("expected persisted status to round-trip, got %+v", reloaded.Status)
	}
	if reloaded.Status.Branch != "stable" {
		t.Fatalf("expected branch to round-trip, got %q", reloaded.Status.Branch)
	}
}

func TestWriteUsesTemplateComponentsWhenStatusComponentEmpty(t *testing.T) {
	m, fs := newTestManager(t)
	w, err := fs.Create("/etc/oma/mirrors.toml")
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	if _, err := w.Write([]byte("[[config]]\ncomponents = [\"main\", \"main-restricted\"]\n")); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	w.Close()
	m.TemplatePath = "/etc/oma/mirrors.toml"
	if err := m.LoadTemplate(); err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}

	if err := m.Set([]string{"origin"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Write(""); err != nil {
		t.Fatalf("Write: %v", err)
	}

	list, err := fs.ReadFile("/etc/apt/sources.list")
	if err != nil {
		t.Fatalf("ReadFile sources list: %v", err)
	}
	wantLine := "deb https://repo.example.org/origin/debs stable main main-restricted\n"
	if !strings.Contains(string(list), wantLine) {
		t.Fatalf("expected line %q, got:\n%s", wantLine, list)
	}
}

func TestMirrorsIterReturnsFullCatalog(t *testing.T) {
	m, _ := newTestManager(t)
	catalog, err := m.MirrorsIter()
	if err != nil {
		t.Fatalf("MirrorsIter: %v", err)
	}
	if len(catalog) != 3 {
		t.Fatalf("expected 3 catalog entries, got %d", len(catalog))
	}
	if catalog["origin"].Desc != "Primary origin server" {
		t.Fatalf("expected origin's desc to round-trip, got %q", catalog["origin"].Desc)
	}
}
