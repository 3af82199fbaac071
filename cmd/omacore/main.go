// Command omacore is a thin demonstration harness: it reads a TOML config,
// builds an omaconfig.Paths, and drives one refresh pass end-to-end (lock ->
// fetch -> verify -> publish -> orphan cleanup -> topics bookkeeping ->
// history append), generalizing the teacher's flag/env-driven main.go from a
// single-repository mirror run into the full component graph. It is not the
// real command-line front end: flag parsing, the TUI, and dpkg invocation
// are all out of scope (spec.md §1), so this exists only to exercise the
// library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aosc-dev/omacore/history"
	"github.com/aosc-dev/omacore/lock"
	"github.com/aosc-dev/omacore/omaconfig"
	"github.com/aosc-dev/omacore/omafs"
	"github.com/aosc-dev/omacore/omalog"
	"github.com/aosc-dev/omacore/operation"
	"github.com/aosc-dev/omacore/refresh"
	"github.com/aosc-dev/omacore/topics"
	"github.com/aosc-dev/omacore/trust"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "omacore",
		Short: "Demonstration harness driving the omacore refresh pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (overrides config.default.toml)")
	root.AddCommand(refreshCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch, verify, and publish every configured source once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context())
		},
	}
}

func runRefresh(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := omalog.New()
	paths := omaconfig.New(cfg.Sysroot)
	fs := omafs.NewOsFileSystem()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, cancelling refresh")
		cancel()
	}()

	l, err := lock.Acquire(paths.LockFile)
	if err != nil {
		return fmt.Errorf("ERROR: failed to acquire process lock\nDUE TO: %w", err)
	}
	defer l.Release()

	sources := cfg.sources()
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured")
	}

	topicsMgr := topics.NewManager(fs, paths.TopicsStateFile, paths.TopicsSourcesList)
	pipeline := refresh.NewPipeline(fs, trust.NewStore(paths.Sysroot), paths, cfg.NativeArch)
	pipeline.Logger = logger
	pipeline.Topics = topicsMgr

	report, err := pipeline.Refresh(ctx, sources)
	if err != nil {
		return fmt.Errorf("refresh failed for every source: %w", err)
	}
	for _, res := range report.Results {
		if res.State == refresh.Failed {
			logger.Warn("source refresh failed", "source", res.Source.Name, "err", res.Err.Error())
			continue
		}
		logger.Info("source refreshed", "source", res.Source.Name, "fetched", len(res.Fetched), "skipped", len(res.Skipped))
	}

	if err := refresh.CleanupOrphans(fs, paths.DownloadRoot, report, logger); err != nil {
		logger.Warn("orphan cleanup failed", "err", err.Error())
	}

	closed := topicsMgr.ScanClosed()
	var changes []history.TopicChange
	for _, name := range closed {
		if _, err := topicsMgr.OptOut(name); err != nil {
			continue
		}
		changes = append(changes, history.TopicChange{Topic: name, Enable: false})
	}
	if len(changes) > 0 {
		if err := topicsMgr.Write(); err != nil {
			logger.Warn("failed to persist topics state", "err", err.Error())
		}
		if err := appendTopicsHistory(paths.Sysroot, changes); err != nil {
			logger.Warn("failed to append history entry", "err", err.Error())
		}
	}

	logger.Info("refresh complete")
	return nil
}

// appendTopicsHistory records a TopicsChanged entry for topics the upstream
// manifest closed and this run auto-opted-out of, demonstrating the history
// store's write path the same way a real opt-out command would.
func appendTopicsHistory(sysroot string, changes []history.TopicChange) error {
	store, err := history.Open(sysroot)
	if err != nil {
		return err
	}
	defer store.Close()

	cmdline := "oma topics --opt-out " + changes[0].Topic
	for _, c := range changes[1:] {
		cmdline += "," + c.Topic
	}
	_, err = store.Append(cmdline, history.SummaryTopicsChanged, operation.OmaOperation{}, true, false, false, changes, time.Now().Unix())
	return err
}
