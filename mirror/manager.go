package mirror

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aosc-dev/omacore/omaerr"
	"github.com/aosc-dev/omacore/omafs"
)

const defaultSourcesListTips = "# Generated by oma-mirror, do not edit.\n"

// Manager holds the enabled-mirror ordered set and lazily-loaded known-mirror
// catalog, persisting both to a sysroot-relative status file and a generated
// apt sources list.
type Manager struct {
	FS              omafs.FileSystem
	StatusPath      string
	CatalogPath     string
	TemplatePath    string
	SourcesListPath string

	Status Status

	catalog  map[string]Mirror
	template *MirrorsConfigTemplate
}

// NewManager loads the persisted Status, treating a missing or empty file as
// the zero-value Status (no branch, no components, nothing enabled) rather
// than an error, since a fresh sysroot has no status file yet.
func NewManager(fs omafs.FileSystem, statusPath, catalogPath, sourcesListPath string) *Manager {
	m := &Manager{
		FS:              fs,
		StatusPath:      statusPath,
		CatalogPath:     catalogPath,
		SourcesListPath: sourcesListPath,
	}
	raw, err := fs.ReadFile(statusPath)
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		return m
	}
	var s Status
	if err := json.Unmarshal(raw, &s); err != nil {
		return m
	}
	m.Status = s
	return m
}

// loadCatalog lazily parses and caches the YAML known-mirror catalog.
func (m *Manager) loadCatalog() (map[string]Mirror, error) {
	if m.catalog != nil {
		return m.catalog, nil
	}
	raw, err := m.FS.ReadFile(m.CatalogPath)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to read mirror catalog "+m.CatalogPath, err)
	}
	var catalog map[string]Mirror
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, omaerr.Wrap(omaerr.ConfigParse, "failed to parse mirror catalog "+m.CatalogPath, err)
	}
	m.catalog = catalog
	return catalog, nil
}

// LoadTemplate parses the TOML mirror config template (MirrorsConfigTemplate),
// used by Write to pick a default component list when Status.Component is
// empty. A missing template is not an error: Write then falls back to "main".
func (m *Manager) LoadTemplate() error {
	if m.TemplatePath == "" {
		return nil
	}
	raw, err := m.FS.ReadFile(m.TemplatePath)
	if err != nil {
		return nil
	}
	var tpl MirrorsConfigTemplate
	if _, err := toml.Decode(string(raw), &tpl); err != nil {
		return omaerr.Wrap(omaerr.ConfigParse, "failed to parse mirror config template "+m.TemplatePath, err)
	}
	m.template = &tpl
	return nil
}

// MirrorsIter returns the full known-mirror catalog.
func (m *Manager) MirrorsIter() (map[string]Mirror, error) {
	return m.loadCatalog()
}

// EnabledMirrors returns the currently enabled mirrors as name->url, in
// insertion order.
func (m *Manager) EnabledMirrors() []struct{ Name, URL string } {
	out := make([]struct{ Name, URL string }, 0, len(m.Status.Mirror))
	for _, e := range m.Status.Mirror {
		out = append(out, struct{ Name, URL string }{e.Name, e.URL})
	}
	return out
}

// Add enables a mirror by name, looking it up in the catalog. Idempotent:
// returns (false, nil) if the mirror is already enabled. Errors if the name
// is not present in the catalog.
func (m *Manager) Add(name string) (bool, error) {
	catalog, err := m.loadCatalog()
	if err != nil {
		return false, err
	}
	mir, ok := catalog[name]
	if !ok {
		return false, omaerr.New(omaerr.NotFound, "mirror does not exist: "+name)
	}
	for _, e := range m.Status.Mirror {
		if e.Name == name {
			return false, nil
		}
	}
	m.Status.Mirror = append(m.Status.Mirror, enabledMirror{Name: name, URL: mir.URL})
	return true, nil
}

// Remove disables a mirror by name, preserving the relative order of the
// remaining enabled mirrors. Reports whether it had been enabled.
func (m *Manager) Remove(name string) bool {
	for i, e := range m.Status.Mirror {
		if e.Name == name {
			m.Status.Mirror = append(m.Status.Mirror[:i], m.Status.Mirror[i+1:]...)
			return true
		}
	}
	return false
}

// Set replaces the enabled-mirror set with exactly the named mirrors, in the
// given order. It validates every name exists in the catalog first, so a
// single unknown name leaves the existing selection untouched.
func (m *Manager) Set(names []string) error {
	catalog, err := m.loadCatalog()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := catalog[name]; !ok {
			return omaerr.New(omaerr.NotFound, "mirror does not exist: "+name)
		}
	}

	m.Status.Mirror = nil
	for _, name := range names {
		if _, err := m.Add(name); err != nil {
			return err
		}
	}
	return nil
}

// Reorder rebuilds the enabled-mirror set by indexing into the current order
// at each position named in order, mirroring the source project's set_order.
func (m *Manager) Reorder(order []int) error {
	old := m.Status.Mirror
	next := make([]enabledMirror, 0, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(old) {
			return omaerr.New(omaerr.InvalidArgument, fmt.Sprintf("mirror reorder index %d out of range", idx))
		}
		next = append(next, old[idx])
	}
	m.Status.Mirror = next
	return nil
}

// defaultComponents picks the component list to render into the generated
// sources list: Status.Component if set, else the loaded template's first
// entry, else a hardcoded "main".
func (m *Manager) defaultComponents() []string {
	if len(m.Status.Component) > 0 {
		return m.Status.Component
	}
	if m.template != nil && len(m.template.Config) > 0 && len(m.template.Config[0].Components) > 0 {
		return m.template.Config[0].Components
	}
	return []string{"main"}
}

// Write persists Status as JSON and regenerates the apt sources list: a
// tips banner followed by one "deb <url>debs <branch> <components...>" line
// per enabled mirror, in order. An empty tips uses the default banner.
func (m *Manager) Write(tips string) error {
	raw, err := json.Marshal(m.Status)
	if err != nil {
		return omaerr.Wrap(omaerr.ConfigParse, "failed to encode mirror status", err)
	}
	sw, err := m.FS.Create(m.StatusPath)
	if err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write mirror status", err)
	}
	defer sw.Close()
	if _, err := sw.Write(raw); err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write mirror status", err)
	}

	if tips == "" {
		tips = defaultSourcesListTips
	} else if !strings.HasSuffix(tips, "\n") {
		tips += "\n"
	}

	components := strings.Join(m.defaultComponents(), " ")
	var b strings.Builder
	b.WriteString(tips)
	for _, e := range m.Status.Mirror {
		url := e.URL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		fmt.Fprintf(&b, "deb %sdebs %s %s\n", url, m.Status.Branch, components)
	}

	lw, err := m.FS.Create(m.SourcesListPath)
	if err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write generated sources list", err)
	}
	defer lw.Close()
	if _, err := lw.Write([]byte(b.String())); err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write generated sources list", err)
	}
	return nil
}
