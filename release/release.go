// Package release parses RFC-822-like Release/InRelease stanzas into a
// typed ReleaseRecord (C5) and selects which index files to download given
// a config tree, the native architecture, and the configured
// architectures/components.
package release

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aosc-dev/omacore/checksum"
)

// ChecksumItem is one entry from a SHA256:/SHA512:/MD5Sum: block.
type ChecksumItem struct {
	Name   string
	Size   int64
	Digest checksum.Checksum
}

// Record is the typed view of a parsed Release/InRelease file.
type Record struct {
	Suite         string
	Codename      string
	Components    []string
	Architectures []string
	Date          time.Time
	ValidUntil    *time.Time
	AcquireByHash bool

	Entries []ChecksumItem

	// byHash maps digest hex -> entry name, populated only when
	// AcquireByHash is true, per the data-model invariant in spec.md §3.
	byHash map[string]string
}

// ByHashPath returns the name of the entry whose digest is digestHex, if the
// release enables acquire-by-hash. algo is not consulted: the lookup is by
// digest hex alone.
func (r *Record) ByHashPath(algo checksum.Algo, digestHex string) (string, bool) {
	if !r.AcquireByHash || r.byHash == nil {
		return "", false
	}
	name, ok := r.byHash[digestHex]
	return name, ok
}

const dateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// ParseRelease parses a Release or InRelease (already de-clear-signed)
// stream into a Record.
func ParseRelease(r io.Reader) (*Record, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	rec := &Record{}
	byName := map[string]checksum.Algo{} // tracks the strongest algo seen per name, for dedup

	var currentBlock checksum.Algo
	inBlock := false

	for scanner.Scan() {
		line := scanner.Text()

		if inBlock {
			if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
				item, err := parseChecksumLine(currentBlock, strings.TrimSpace(line))
				if err != nil {
					continue
				}
				if existing, seen := byName[item.Name]; seen && !currentBlock.Stronger(existing) {
					continue
				}
				byName[item.Name] = currentBlock
				rec.upsertEntry(item)
				continue
			}
			inBlock = false
		}

		switch {
		case strings.HasPrefix(line, "Suite:"):
			rec.Suite = strings.TrimSpace(strings.TrimPrefix(line, "Suite:"))
		case strings.HasPrefix(line, "Codename:"):
			rec.Codename = strings.TrimSpace(strings.TrimPrefix(line, "Codename:"))
		case strings.HasPrefix(line, "Components:"):
			rec.Components = strings.Fields(strings.TrimPrefix(line, "Components:"))
		case strings.HasPrefix(line, "Architectures:"):
			rec.Architectures = strings.Fields(strings.TrimPrefix(line, "Architectures:"))
		case strings.HasPrefix(line, "Date:"):
			if t, err := time.Parse(dateLayout, strings.TrimSpace(strings.TrimPrefix(line, "Date:"))); err == nil {
				rec.Date = t
			}
		case strings.HasPrefix(line, "Valid-Until:"):
			if t, err := time.Parse(dateLayout, strings.TrimSpace(strings.TrimPrefix(line, "Valid-Until:"))); err == nil {
				rec.ValidUntil = &t
			}
		case strings.HasPrefix(line, "Acquire-By-Hash:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "Acquire-By-Hash:"))
			rec.AcquireByHash = strings.EqualFold(v, "yes")
		case strings.HasPrefix(line, "SHA256:"):
			currentBlock = checksum.SHA256
			inBlock = true
		case strings.HasPrefix(line, "SHA512:"):
			currentBlock = checksum.SHA512
			inBlock = true
		case strings.HasPrefix(line, "MD5Sum:"):
			currentBlock = checksum.MD5
			inBlock = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan release: %w", err)
	}

	if rec.AcquireByHash {
		rec.byHash = make(map[string]string, len(rec.Entries))
		for _, e := range rec.Entries {
			rec.byHash[e.Digest.Hex()] = e.Name
		}
	}

	return rec, nil
}

// upsertEntry inserts or replaces an entry by name, maintaining the
// "entries deduplicated by name" invariant.
func (r *Record) upsertEntry(item ChecksumItem) {
	for i, e := range r.Entries {
		if e.Name == item.Name {
			r.Entries[i] = item
			return
		}
	}
	r.Entries = append(r.Entries, item)
}

func parseChecksumLine(algo checksum.Algo, line string) (ChecksumItem, error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return ChecksumItem{}, fmt.Errorf("malformed checksum line: %q", line)
	}
	digest, err := checksum.ParseHex(algo, parts[0])
	if err != nil {
		return ChecksumItem{}, err
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ChecksumItem{}, fmt.Errorf("bad size in checksum line %q: %w", line, err)
	}
	name := strings.Join(parts[2:], " ")
	return ChecksumItem{Name: name, Size: size, Digest: digest}, nil
}

// ConfigTree abstracts the APT configuration tree the source's
// oma-apt-config crate walks to enumerate IndexTargets::deb::*::MetaKey
// templates. Keys use "::"-separated APT option names.
type ConfigTree interface {
	// Entries returns every (key, value) leaf pair in the tree.
	Entries() []ConfigEntry
}

type ConfigEntry struct {
	Key   string
	Value string
}

// MapConfigTree is a simple ConfigTree backed by a flat slice, sufficient
// for tests and for a default set of MetaKey templates.
type MapConfigTree struct {
	entries []ConfigEntry
}

func NewMapConfigTree(entries ...ConfigEntry) *MapConfigTree {
	return &MapConfigTree{entries: entries}
}

func (t *MapConfigTree) Entries() []ConfigEntry { return t.entries }

// DefaultIndexTargetTemplates returns the MetaKey templates APT ships by
// default for the "deb" index target type, used when no explicit config
// tree is supplied.
func DefaultIndexTargetTemplates() *MapConfigTree {
	return NewMapConfigTree(
		ConfigEntry{Key: "APT::Acquire::IndexTargets::deb::Packages::MetaKey", Value: "$(COMPONENT)/binary-$(ARCHITECTURE)/Packages"},
		ConfigEntry{Key: "APT::Acquire::IndexTargets::deb::Translations::MetaKey", Value: "$(COMPONENT)/i18n/Translation-en"},
	)
}

var compressionRank = map[string]int{".zst": 3, ".xz": 2, ".gz": 1}

func isCompressed(name string) bool {
	_, ok := compressionRank[suffixOf(name)]
	return ok
}

func suffixOf(name string) string {
	for _, ext := range []string{".zst", ".xz", ".gz"} {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return ""
}

// SelectIndices implements the selection policy in spec.md §4.5.
func (r *Record) SelectIndices(nativeArch string, configuredArchs, components []string, tree ConfigTree) []ChecksumItem {
	archs := append(append([]string{}, configuredArchs...), "all")

	var templates []string
	for _, e := range tree.Entries() {
		if strings.HasPrefix(e.Key, "APT::Acquire::IndexTargets::deb::") && strings.HasSuffix(e.Key, "::MetaKey") {
			for _, a := range archs {
				for _, c := range components {
					s := strings.ReplaceAll(e.Value, "$(COMPONENT)", c)
					s = strings.ReplaceAll(s, "$(ARCHITECTURE)", a)
					if a == nativeArch {
						s = strings.ReplaceAll(s, "$(NATIVE_ARCHITECTURE)", a)
					}
					templates = append(templates, s)
				}
			}
		}
	}

	best := map[string]ChecksumItem{}
	var order []string
	for _, item := range r.Entries {
		var matched string
		for _, tmpl := range templates {
			if strings.HasPrefix(item.Name, tmpl) {
				matched = tmpl
				break
			}
		}
		if matched == "" {
			continue
		}
		existing, seen := best[matched]
		if !seen {
			best[matched] = item
			order = append(order, matched)
			continue
		}
		if preferOver(item, existing) {
			best[matched] = item
		}
	}

	out := make([]ChecksumItem, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// preferOver reports whether candidate should replace current under the
// "prefer compressed, then .zst > .xz > .gz" rule.
func preferOver(candidate, current ChecksumItem) bool {
	candComp := isCompressed(candidate.Name)
	curComp := isCompressed(current.Name)
	if candComp != curComp {
		return candComp
	}
	if !candComp {
		return false
	}
	return compressionRank[suffixOf(candidate.Name)] > compressionRank[suffixOf(current.Name)]
}
