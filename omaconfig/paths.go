// Package omaconfig holds the process-wide Paths snapshot that replaces the
// global sysroot-relative constants the source project keeps as singletons.
package omaconfig

import "path/filepath"

// Paths is computed once from a sysroot and threaded through every
// component constructor, per the "Global singletons" design note.
type Paths struct {
	Sysroot string

	VarLibApt    string
	VarLogOma    string
	RunDir       string
	DownloadRoot string

	HistoryDB         string
	TopicsStateFile   string
	TopicsSourcesList string
	AptGenList        string
	MirrorCatalog     string
	SourcesList       string
	LockFile          string
	AuthConfigDir     string
	TrustedGpgDDir    string
	TrustedGpgFile    string
	KeyringsDir       string
}

// New computes a Paths value from a sysroot root, mirroring the layout the
// source project hardcodes relative to "/".
func New(sysroot string) Paths {
	if sysroot == "" {
		sysroot = "/"
	}
	join := func(parts ...string) string {
		return filepath.Join(append([]string{sysroot}, parts...)...)
	}
	return Paths{
		Sysroot:           sysroot,
		VarLibApt:         join("var", "lib", "apt"),
		VarLogOma:         join("var", "log", "oma"),
		RunDir:            join("run"),
		DownloadRoot:      join("var", "lib", "apt", "lists"),
		HistoryDB:         join("var", "log", "oma", "history.db"),
		TopicsStateFile:   join("var", "lib", "atm", "state"),
		TopicsSourcesList: join("etc", "apt", "sources.list.d", "atm.list"),
		AptGenList:        join("var", "lib", "apt", "gen", "status.json"),
		MirrorCatalog:     join("usr", "share", "aosc-os", "mirrors.yml"),
		SourcesList:       join("etc", "apt", "sources.list"),
		LockFile:          join("run", "lock", "oma.lock"),
		AuthConfigDir:     join("etc", "apt", "auth.conf.d"),
		TrustedGpgDDir:    join("etc", "apt", "trusted.gpg.d"),
		TrustedGpgFile:    join("etc", "apt", "trusted.gpg"),
		KeyringsDir:       join("etc", "apt", "keyrings"),
	}
}

// Config is the process-wide tunable configuration, generalizing the
// teacher's flat DittoConfig into the Paths-threaded form this system uses.
type Config struct {
	Paths Paths

	NativeArch     string
	Archs          []string
	Components     []string
	Languages      []string
	FetchWorkers   int
	RetryBudget    int
	TopicsEnabled  bool
	ContentsBinary string // distribution bin prefix override, default /usr/bin
}

const defaultFetchWorkers = 4
const defaultRetryBudget = 3

// WithDefaults returns a copy of c with zero-valued tunables replaced by
// their documented defaults (fan-out 4, retry budget 3 per spec.md §4.4/§9).
func (c Config) WithDefaults() Config {
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = defaultFetchWorkers
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = defaultRetryBudget
	}
	if c.ContentsBinary == "" {
		c.ContentsBinary = "/usr/bin"
	}
	return c
}
