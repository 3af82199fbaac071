// Package mirror implements the mirror manager (C12): a known-mirror
// catalog loaded from YAML paired with an enabled-mirror ordered set
// persisted as JSON, generalizing the source project's MirrorManager.
package mirror

// Mirror describes one entry in the known-mirror catalog.
type Mirror struct {
	Desc string `yaml:"desc"`
	URL  string `yaml:"url"`
}

// enabledMirror is one entry of the ordered enabled-mirror set. Status.Mirror
// is a slice rather than a map because encoding/json does not preserve map
// key order and insertion order is an invariant (spec.md's enabled preserves
// insertion order).
type enabledMirror struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Status is the persisted mirror selection: which branch, which components,
// and which mirrors are enabled and in what order.
type Status struct {
	Branch    string          `json:"branch"`
	Component []string        `json:"component"`
	Mirror    []enabledMirror `json:"mirror"`
}

// MirrorConfig is one entry of a mirror config template, describing the
// default branch/component layout a given mirror actually serves.
type MirrorConfig struct {
	Components    []string `toml:"components"`
	SignedBy      []string `toml:"signed-by"`
	Architectures []string `toml:"architectures"`
	AlwaysTrusted bool     `toml:"always-trusted"`
}

// MirrorsConfigTemplate pairs the YAML mirror catalog with the default
// branch/component layout, from oma-mirror/src/parser.rs. Supplements the
// catalog: without it, Write falls back to a hardcoded "main" component.
type MirrorsConfigTemplate struct {
	Config []MirrorConfig `toml:"config"`
}
