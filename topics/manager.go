package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aosc-dev/omacore/omaerr"
	"github.com/aosc-dev/omacore/omafs"
)

// Manager holds the enabled/all topic state and persists it at a
// sysroot-relative path, generalizing the source project's TopicManager.
type Manager struct {
	FS              omafs.FileSystem
	HTTPClient      *http.Client
	StatePath       string
	SourcesListPath string

	Enabled []Topic
	All     []Topic
}

// NewManager loads the persisted enabled-topic set (treating a missing or
// unparseable file as "no topics enabled yet", matching the source
// project's unwrap_or(vec![]) tolerance).
func NewManager(fs omafs.FileSystem, statePath, sourcesListPath string) *Manager {
	m := &Manager{
		FS:              fs,
		HTTPClient:      http.DefaultClient,
		StatePath:       statePath,
		SourcesListPath: sourcesListPath,
	}
	raw, err := fs.ReadFile(statePath)
	if err != nil {
		return m
	}
	var disk []diskTopic
	if err := json.Unmarshal(raw, &disk); err != nil {
		return m
	}
	for _, d := range disk {
		m.Enabled = append(m.Enabled, fromDisk(d))
	}
	return m
}

// RefreshAll fetches debs/manifest/topics.json from every mirror and
// merges the results into All by name, later mirrors winning on conflict.
// It satisfies refresh.TopicsProvider so the refresh pipeline can trigger
// it as a best-effort pre-step.
func (m *Manager) RefreshAll(ctx context.Context, mirrors []string) error {
	byName := make(map[string]Topic)
	var order []string

	for _, mirror := range mirrors {
		topics, err := m.fetchManifest(ctx, mirror)
		if err != nil {
			return err
		}
		for _, t := range topics {
			if _, seen := byName[t.Name]; !seen {
				order = append(order, t.Name)
			}
			byName[t.Name] = t
		}
	}

	all := make([]Topic, 0, len(order))
	for _, name := range order {
		all = append(all, byName[name])
	}
	m.All = all
	return nil
}

func manifestURL(mirror string) string {
	if strings.HasSuffix(mirror, "/") {
		return mirror + "debs/manifest/topics.json"
	}
	return mirror + "/debs/manifest/topics.json"
}

func (m *Manager) fetchManifest(ctx context.Context, mirror string) ([]Topic, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL(mirror), nil)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Network, "failed to build topics manifest request", err)
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, omaerr.Wrap(omaerr.Network, "failed to fetch topics manifest from "+mirror, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, omaerr.New(omaerr.HTTPStatus, fmt.Sprintf("topics manifest fetch from %s returned %d", mirror, resp.StatusCode))
	}

	var topics []Topic
	if err := json.NewDecoder(resp.Body).Decode(&topics); err != nil {
		return nil, omaerr.Wrap(omaerr.ConfigParse, "failed to parse topics manifest from "+mirror, err)
	}
	return topics, nil
}

// OptIn enables a topic by name, looking it up in All (case-insensitively)
// and requiring it match the given native architecture. Idempotent: opting
// into an already-enabled topic is a no-op.
func (m *Manager) OptIn(name, nativeArch string) error {
	var found *Topic
	for i := range m.All {
		if strings.EqualFold(m.All[i].Name, name) && topicMatchesArch(m.All[i], nativeArch) {
			found = &m.All[i]
			break
		}
	}
	if found == nil {
		return omaerr.New(omaerr.NotFound, "cannot find topic: "+name)
	}

	for _, e := range m.Enabled {
		if strings.EqualFold(e.Name, found.Name) {
			return nil
		}
	}
	m.Enabled = append(m.Enabled, *found)
	return nil
}

// topicMatchesArch reports whether a topic is eligible for the given
// native architecture: no restriction at all, the literal "native"/"all"
// markers, or an explicit match on the caller's architecture.
func topicMatchesArch(t Topic, nativeArch string) bool {
	if matchesArch(t) {
		return true
	}
	for _, a := range t.Arch {
		if a == nativeArch {
			return true
		}
	}
	return false
}

// OptOut disables a topic by name and returns the package names it owned,
// so the caller can mark them for removal.
func (m *Manager) OptOut(name string) ([]string, error) {
	for i, e := range m.Enabled {
		if strings.EqualFold(e.Name, name) {
			m.Enabled = append(m.Enabled[:i], m.Enabled[i+1:]...)
			return e.Packages, nil
		}
	}
	return nil, omaerr.New(omaerr.NotFound, "failed to opt out of topic: "+name)
}

// Write persists the enabled-topic set to StatePath.
func (m *Manager) Write() error {
	disk := make([]diskTopic, 0, len(m.Enabled))
	for _, t := range m.Enabled {
		disk = append(disk, toDisk(t))
	}
	raw, err := json.Marshal(disk)
	if err != nil {
		return omaerr.Wrap(omaerr.ConfigParse, "failed to encode topic state", err)
	}
	w, err := m.FS.Create(m.StatePath)
	if err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write topic state", err)
	}
	defer w.Close()
	if _, err := w.Write(raw); err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write topic state", err)
	}
	return nil
}

// WriteSourcesList materializes the enabled topics into a sources list
// file: one "deb <mirror>debs <topic> main" line per (enabled topic,
// mirror) pair, banner-commented as machine-generated.
func (m *Manager) WriteSourcesList(mirrors []string) error {
	var b strings.Builder
	b.WriteString("# Generated by oma, do not edit.\n")
	for _, t := range m.Enabled {
		b.WriteString(fmt.Sprintf("# Topic `%s`\n", t.Name))
		for _, mirror := range mirrors {
			prefix := mirror
			if !strings.HasSuffix(prefix, "/") {
				prefix += "/"
			}
			fmt.Fprintf(&b, "deb %sdebs %s main\n", prefix, t.Name)
		}
	}

	w, err := m.FS.Create(m.SourcesListPath)
	if err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write topics sources list", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte(b.String())); err != nil {
		return omaerr.Wrap(omaerr.Io, "failed to write topics sources list", err)
	}
	return nil
}

// ScanClosed reports which currently-enabled topics no longer appear in
// the refreshed All set (e.g. the maintainers closed them), so the caller
// can opt them out automatically.
func (m *Manager) ScanClosed() []string {
	var closed []string
	for _, e := range m.Enabled {
		found := false
		for _, a := range m.All {
			if a.Name == e.Name {
				found = true
				break
			}
		}
		if !found {
			closed = append(closed, e.Name)
		}
	}
	return closed
}
