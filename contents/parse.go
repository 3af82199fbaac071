package contents

import "strings"

// parseLine splits a Contents-file line into its path and raw package-list
// field. The separator is the last whitespace run in the line that is not
// itself part of the trailing newline, so a path containing embedded spaces
// (rare, but not forbidden) is still handled correctly: everything up to
// that last run is the path, everything after is the comma-separated
// package list.
func parseLine(line string) (path, pkgList string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", "", false
	}

	n := len(line)
	j := n
	for j > 0 && !isSpaceByte(line[j-1]) {
		j--
	}
	if j == 0 || j == n {
		// No whitespace at all, or the line ends in whitespace: no
		// package-list field to split off.
		return "", "", false
	}
	pkgList = line[j:]

	i := j
	for i > 0 && isSpaceByte(line[i-1]) {
		i--
	}
	if i == 0 {
		return "", "", false
	}
	path = line[:i]
	return path, pkgList, true
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t'
}

// packageName returns the last '/'-component of a "section/pkgname" token,
// per the Contents-file format's section/package encoding.
func packageName(token string) string {
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		return token[idx+1:]
	}
	return token
}

// splitPackages splits a raw comma-separated package-list field into
// individual package names, resolving each "section/pkg" token down to its
// package name.
func splitPackages(pkgList string) []string {
	parts := strings.Split(pkgList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, packageName(p))
	}
	return out
}

// matchLine evaluates one already-split Contents line against a query and
// mode, returning the matches it produces (zero, one, or many — Provides
// mode returns one Match per package on a matching line).
func matchLine(rawPath, pkgList, query string, mode Mode, binPrefix string) []Match {
	pkgs := splitPackages(pkgList)
	path := "/" + rawPath

	switch mode {
	case Files:
		for _, pkg := range pkgs {
			if pkg == query {
				return []Match{{Package: pkg, Path: path}}
			}
		}
		return nil
	case Provides, Binary:
		if mode == Binary && !strings.HasPrefix(path, binPrefix) {
			return nil
		}
		if !strings.Contains(path, query) {
			return nil
		}
		out := make([]Match, 0, len(pkgs))
		for _, pkg := range pkgs {
			out = append(out, Match{Package: pkg, Path: path})
		}
		return out
	default:
		return nil
	}
}
