// Package authconfig parses netrc-like credential files (C2), grounded on
// the source project's apt-auth-config crate: records of the form
// "machine HOST login USER password PASS [# comment]", tokens in any order,
// comments introduced by '#' either trailing or standalone.
package authconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AuthEntry is one credential record.
type AuthEntry struct {
	Host     string
	User     string
	Password string
}

// AuthConfig is an ordered list of entries; Find returns the first match.
type AuthConfig struct {
	entries []AuthEntry
}

// Find returns the first entry whose Host matches exactly.
func (c *AuthConfig) Find(host string) (AuthEntry, bool) {
	for _, e := range c.entries {
		if e.Host == host {
			return e, true
		}
	}
	return AuthEntry{}, false
}

// Entries returns a copy of the ordered entry list.
func (c *AuthConfig) Entries() []AuthEntry {
	out := make([]AuthEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ErrMissingField is returned when a record lacks one of the three
// mandatory tokens.
type ErrMissingField struct {
	Which string
	Line  int
	File  string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("%s:%d: missing field %q", e.File, e.Line, e.Which)
}

// Load reads every file in dir (non-recursive, sorted by name for
// deterministic ordering) and parses each as a sequence of netrc-like
// records.
func Load(dir string) (*AuthConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read auth config dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	cfg := &AuthConfig{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		recs, err := parseFile(path, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		cfg.entries = append(cfg.entries, recs...)
	}
	return cfg, nil
}

// parseFile tokenizes one auth-config file. Each non-blank, non-comment-only
// line is a record; '#' starts a comment that runs to end of line (trailing
// or standalone), and fields may appear in any order.
func parseFile(path string, r *os.File) ([]AuthEntry, error) {
	var out []AuthEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		tokens := map[string]string{}
		for i := 0; i+1 < len(fields); i += 2 {
			key := fields[i]
			val := fields[i+1]
			switch key {
			case "machine", "login", "password":
				tokens[key] = val
			}
		}

		entry := AuthEntry{}
		for _, req := range []string{"machine", "login", "password"} {
			v, ok := tokens[req]
			if !ok {
				return nil, &ErrMissingField{Which: req, Line: lineNo, File: path}
			}
			switch req {
			case "machine":
				entry.Host = v
			case "login":
				entry.User = v
			case "password":
				entry.Password = v
			}
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

// stripComment removes a '#'-introduced comment, whether it trails content
// on the line or stands alone.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}
