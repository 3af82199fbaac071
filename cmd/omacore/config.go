package main

import (
	_ "embed"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/aosc-dev/omacore/refresh"
)

//go:embed config.default.toml
var defaultConfig []byte

const (
	configPathEnv = "OMACORE_CONFIG_PATH"
	sysrootEnv    = "OMACORE_SYSROOT"
	nativeArchEnv = "OMACORE_NATIVE_ARCH"
)

// sourceConfig is one [[sources]] table entry: a TOML-friendly mirror of
// refresh.Source (refresh.Source's Signer field has no flat TOML shape, so
// it is left at its zero value and resolved against the rootfs trust store).
type sourceConfig struct {
	Name          string   `toml:"name"`
	BaseURL       string   `toml:"base_url"`
	Dist          string   `toml:"dist"`
	Components    []string `toml:"components"`
	Architectures []string `toml:"architectures"`
	Trusted       bool     `toml:"trusted"`
	AuthUser      string   `toml:"auth_user"`
	AuthPassword  string   `toml:"auth_password"`
}

func (s sourceConfig) toSource() refresh.Source {
	return refresh.Source{
		Name:          s.Name,
		BaseURL:       s.BaseURL,
		Dist:          s.Dist,
		Components:    s.Components,
		Architectures: s.Architectures,
		Trusted:       s.Trusted,
		AuthUser:      s.AuthUser,
		AuthPassword:  s.AuthPassword,
	}
}

// config is the top-level TOML document driving cmd/omacore, generalizing
// the teacher's flat DittoConfig (one repository, one download path) into a
// multi-source document, since a refresh pipeline run is defined over
// refresh.Source slices rather than one repo URL.
type config struct {
	Sysroot      string         `toml:"sysroot"`
	NativeArch   string         `toml:"native_arch"`
	FetchWorkers int            `toml:"fetch_workers"`
	RetryBudget  int            `toml:"retry_budget"`
	Sources      []sourceConfig `toml:"sources"`
}

// loadConfig resolves a config the same way the teacher's main.go resolves
// DittoConfig: an explicit path (flag, then env var) wins; otherwise fall
// back to the embedded default, generalized from JSON to TOML per
// SPEC_FULL.md's ambient-stack configuration section. Environment variable
// overrides for sysroot/native arch follow, matching the teacher's
// env-then-flag override layering.
func loadConfig(explicitPath string) (config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	var raw []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, err
		}
		raw = data
	} else {
		raw = defaultConfig
	}

	var cfg config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return config{}, err
	}

	if v := os.Getenv(sysrootEnv); v != "" {
		cfg.Sysroot = v
	}
	if v := os.Getenv(nativeArchEnv); v != "" {
		cfg.NativeArch = v
	}
	if cfg.Sysroot == "" {
		cfg.Sysroot = "/"
	}
	return cfg, nil
}

func (c config) sources() []refresh.Source {
	out := make([]refresh.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, s.toSource())
	}
	return out
}

