package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aosc-dev/omacore/checksum"
	"github.com/aosc-dev/omacore/fetch"
	"github.com/aosc-dev/omacore/omaconfig"
	"github.com/aosc-dev/omacore/omaerr"
	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/omalog"
	"github.com/aosc-dev/omacore/release"
	"github.com/aosc-dev/omacore/trust"
)

// TopicsProvider is the slice of topics.Manager the refresh pipeline
// depends on, kept as a local interface so refresh does not have to import
// the topics package (which in turn wants to trigger refreshes).
type TopicsProvider interface {
	RefreshAll(ctx context.Context, mirrors []string) error
}

// Pipeline drives Source refreshes: fetch release metadata, verify its
// signature, parse it, select and fetch indices, verify and decompress
// them, and publish atomically, generalizing the teacher's
// mirrorDistribution into the full ten-state machine.
type Pipeline struct {
	Fetcher    *fetch.Engine
	Verifier   *trust.Store
	Topics     TopicsProvider
	NativeArch string
	Paths      omaconfig.Paths
	ConfigTree release.ConfigTree
	Logger     omalog.Logger
}

// NewPipeline wires a Pipeline with the documented defaults (the default
// APT::Acquire::IndexTargets::deb MetaKey templates).
func NewPipeline(fs omafs.FileSystem, verifier *trust.Store, paths omaconfig.Paths, nativeArch string) *Pipeline {
	return &Pipeline{
		Fetcher:    fetch.NewEngine(fs),
		Verifier:   verifier,
		NativeArch: nativeArch,
		Paths:      paths,
		ConfigTree: release.DefaultIndexTargetTemplates(),
		Logger:     omalog.New(),
	}
}

// Refresh runs the per-source pipeline for every source, isolating
// failures: one source failing never aborts the others. Refresh itself
// returns a non-nil error only when every source ends in Failed.
func (p *Pipeline) Refresh(ctx context.Context, sources []Source) (Report, error) {
	if p.Topics != nil {
		mirrors := make([]string, 0, len(sources))
		for _, s := range sources {
			mirrors = append(mirrors, s.BaseURL)
		}
		if err := p.Topics.RefreshAll(ctx, mirrors); err != nil {
			p.logger().Warn("topics refresh failed", "err", err.Error())
		}
	}

	results := make([]Result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.refreshOne(ctx, src)
		}()
	}
	wg.Wait()

	report := Report{Results: results}
	if report.AllFailed() {
		return report, omaerr.New(omaerr.Unknown, "refresh failed for every configured source")
	}
	return report, nil
}

func (p *Pipeline) logger() omalog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return omalog.New()
}

func (p *Pipeline) fail(res Result, err error) Result {
	res.State = Failed
	res.Err = err
	return res
}

func (p *Pipeline) refreshOne(ctx context.Context, src Source) Result {
	res := Result{Source: src, State: Discover}

	base := strings.TrimRight(src.BaseURL, "/")
	distURL := fmt.Sprintf("%s/dists/%s", base, src.Dist)
	localDir := filepath.Join(p.Paths.DownloadRoot, sourceDirName(src), "dists", src.Dist)

	// FetchRelease: prefer InRelease; fall back to Release + Release.gpg.
	res.State = FetchRelease
	useInRelease := true
	entries := []fetch.DownloadEntry{
		{
			Sources:  []fetch.DownloadSource{downloadSource(src, distURL+"/InRelease")},
			Filename: "InRelease",
			Dir:      localDir,
		},
	}
	summary, err := p.Fetcher.Run(ctx, entries, nil)
	if err != nil || len(summary.Failed) > 0 {
		useInRelease = false
		entries = []fetch.DownloadEntry{
			{
				Sources:  []fetch.DownloadSource{downloadSource(src, distURL+"/Release")},
				Filename: "Release",
				Dir:      localDir,
			},
			{
				Sources:  []fetch.DownloadSource{downloadSource(src, distURL+"/Release.gpg")},
				Filename: "Release.gpg",
				Dir:      localDir,
			},
		}
		summary, err = p.Fetcher.Run(ctx, entries, nil)
		if err != nil {
			return p.fail(res, err)
		}
		if len(summary.Failed) > 0 {
			return p.fail(res, fmt.Errorf("could not fetch Release metadata for %s: %v", src.Name, summary.Failed[0].Err))
		}
	}

	// VerifyRelease: recover the plaintext Release stanza.
	res.State = VerifyRelease
	var plaintext []byte
	if useInRelease {
		raw, err := p.Fetcher.FS.ReadFile(filepath.Join(localDir, "InRelease"))
		if err != nil {
			return p.fail(res, err)
		}
		plaintext, err = p.Verifier.VerifyClearSigned(raw, src.Signer, src.Trusted)
		if err != nil {
			return p.fail(res, err)
		}
	} else {
		release, err := p.Fetcher.FS.ReadFile(filepath.Join(localDir, "Release"))
		if err != nil {
			return p.fail(res, err)
		}
		sig, err := p.Fetcher.FS.ReadFile(filepath.Join(localDir, "Release.gpg"))
		if err != nil {
			return p.fail(res, err)
		}
		if err := p.Verifier.VerifyDetached(release, sig, src.Signer, src.Trusted); err != nil {
			return p.fail(res, err)
		}
		plaintext = release
	}

	// ParseRelease
	res.State = ParseRelease
	rec, err := release.ParseRelease(strings.NewReader(string(plaintext)))
	if err != nil {
		return p.fail(res, omaerr.Wrap(omaerr.ReleaseParse, "failed to parse Release", err))
	}
	if rec.ValidUntil != nil && rec.ValidUntil.Before(now()) {
		return p.fail(res, omaerr.New(omaerr.ReleaseExpired, fmt.Sprintf("%s's Release expired at %s", src.Name, rec.ValidUntil.Format(time.RFC1123))))
	}
	res.Record = rec

	// PlanIndices
	res.State = PlanIndices
	targets := rec.SelectIndices(p.nativeArch(), src.Architectures, src.Components, p.configTree())

	// FetchIndices (+ incremental skip, + Decompress via Extract, + VerifyIndices
	// folded into the fetch engine's own checksum validation).
	res.State = FetchIndices
	var downloadEntries []fetch.DownloadEntry
	for _, t := range targets {
		localPath := filepath.Join(localDir, filepath.FromSlash(t.Name))
		if existing, err := digestOfExisting(p.Fetcher.FS, localPath, t.Digest.Algo); err == nil && existing.Hex() == t.Digest.Hex() {
			res.Skipped = append(res.Skipped, t.Name)
			continue
		}
		hash := t.Digest
		entry := fetch.DownloadEntry{
			Sources:  []fetch.DownloadSource{downloadSource(src, distURL+"/"+t.Name)},
			Filename: filepath.Base(t.Name),
			Dir:      filepath.Dir(localPath),
			Hash:     &hash,
			Extract:  decompressExtract(t.Name, localPath),
		}
		if t.Size > 0 {
			size := uint64(t.Size)
			entry.TotalHint = &size
		}
		downloadEntries = append(downloadEntries, entry)
		res.Fetched = append(res.Fetched, t.Name)
	}

	if len(downloadEntries) > 0 {
		res.State = VerifyIndices
		isummary, err := p.Fetcher.Run(ctx, downloadEntries, nil)
		if err != nil {
			return p.fail(res, err)
		}
		if len(isummary.Failed) > 0 {
			return p.fail(res, fmt.Errorf("%d index file(s) failed for %s: %v", len(isummary.Failed), src.Name, isummary.Failed[0].Err))
		}
	}

	// Publish: acquire-by-hash hardlinks, generalizing the teacher's
	// createByHashLink onto omafs.
	res.State = Publish
	if rec.AcquireByHash {
		for _, t := range targets {
			localPath := filepath.Join(localDir, filepath.FromSlash(t.Name))
			if err := publishByHash(p.Fetcher.FS, localPath, t.Digest); err != nil {
				p.logger().Warn("by-hash publish failed", "file", t.Name, "err", err.Error())
			}
		}
	}

	res.State = Done
	return res
}

// digestOfExisting computes the digest of an already-published index
// through the injected filesystem, so the incremental-skip check works
// against the same fake filesystem the fetch engine writes to in tests,
// not always the real OS.
func digestOfExisting(fs omafs.FileSystem, path string, algo checksum.Algo) (checksum.Checksum, error) {
	r, err := fs.Open(path)
	if err != nil {
		return checksum.Checksum{}, err
	}
	defer r.Close()

	v := checksum.NewValidator(checksum.Checksum{Algo: algo})
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			v.Update(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return checksum.Checksum{}, rerr
		}
	}
	return v.Sum(), nil
}

func (p *Pipeline) nativeArch() string {
	if p.NativeArch != "" {
		return p.NativeArch
	}
	return "amd64"
}

func (p *Pipeline) configTree() release.ConfigTree {
	if p.ConfigTree != nil {
		return p.ConfigTree
	}
	return release.DefaultIndexTargetTemplates()
}

func downloadSource(src Source, url string) fetch.DownloadSource {
	return fetch.DownloadSource{
		URL:          url,
		Kind:         fetch.SourceHTTP,
		AuthUser:     src.AuthUser,
		AuthPassword: src.AuthPassword,
		HasAuth:      src.AuthUser != "",
	}
}

// sourceDirName derives a filesystem-safe directory name for a source,
// avoiding collisions between sources that share a dist name.
func sourceDirName(src Source) string {
	h := sha256.Sum256([]byte(src.BaseURL))
	return src.Name + "-" + hex.EncodeToString(h[:])[:8]
}

// decompressExtract returns an Extract descriptor that decompresses name's
// chosen compressed variant to its canonical uncompressed sibling path, or
// nil when name isn't compressed (nothing to extract).
func decompressExtract(name, localPath string) *fetch.Extract {
	var format fetch.ExtractFormat
	var bareName string
	switch {
	case strings.HasSuffix(name, ".gz"):
		format, bareName = fetch.ExtractGzip, strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".xz"):
		format, bareName = fetch.ExtractXz, strings.TrimSuffix(name, ".xz")
	case strings.HasSuffix(name, ".zst"):
		format, bareName = fetch.ExtractZstd, strings.TrimSuffix(name, ".zst")
	case strings.HasSuffix(name, ".lz4"):
		format, bareName = fetch.ExtractLz4, strings.TrimSuffix(name, ".lz4")
	default:
		return nil
	}
	target := filepath.Join(filepath.Dir(localPath), filepath.Base(bareName))
	return &fetch.Extract{Format: format, TargetPath: target}
}
