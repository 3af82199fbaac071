package contents

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/aosc-dev/omacore/omaerr"
)

// externalBackend shells out to ripgrep, generalizing the teacher's
// preference for delegating bulk text search to a battle-tested external
// tool rather than a hand-rolled scanner.
type externalBackend struct{}

func (externalBackend) search(ctx context.Context, files []string, query string, mode Mode, binPrefix string, progress func(int)) ([]Match, error) {
	if len(files) == 0 {
		return nil, nil
	}

	args := append([]string{"-N", "-I", "--search-zip", "-e", regexp.QuoteMeta(query)}, files...)
	cmd := exec.CommandContext(ctx, "rg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, omaerr.Wrap(omaerr.ExternalToolMissing, "failed to start rg", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, omaerr.Wrap(omaerr.ExternalToolMissing, "failed to start rg", err)
	}

	var all []Match
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		all = append(all, matchRgLine(sc.Text(), query, mode, binPrefix)...)
		if progress != nil {
			progress(1)
		}
	}
	scanErr := sc.Err()

	waitErr := cmd.Wait()
	if waitErr != nil && len(all) > 0 {
		return nil, omaerr.Wrap(omaerr.ExternalToolFailed, "rg exited with an error after producing output", waitErr)
	}
	if scanErr != nil {
		return nil, omaerr.Wrap(omaerr.Io, "failed to read rg output", scanErr)
	}
	// A non-zero exit with no output is rg's normal "no matches" signal,
	// not a failure; Search translates an empty result into ErrNoResult.
	return dedupe(all), nil
}

// matchRgLine strips the "<file>:" prefix ripgrep adds when searching
// multiple paths, then reuses the same line-format parser as the internal
// backend so both stay functionally equivalent.
func matchRgLine(line, query string, mode Mode, binPrefix string) []Match {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return nil
	}
	content := line[idx+1:]
	p, pkgs, ok := parseLine(content)
	if !ok {
		return nil
	}
	return matchLine(p, pkgs, query, mode, binPrefix)
}
