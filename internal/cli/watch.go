package cli

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// newWatchCommand creates the "watch" subcommand: redeploy whenever the app
// sources change on disk.
func newWatchCommand(opts *Options) *cobra.Command {
	var (
		debounce time.Duration
		noHooks  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source directory and redeploy on change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			deployTimeout, err := resolveDeployTimeout(proj.cfg, "", false)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watchAndDeploy(ctx, logger, proj, opts, cmd, watchConfig{
				debounce:      debounce,
				noHooks:       noHooks,
				deployTimeout: deployTimeout,
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period after the last change before redeploying")
	cmd.Flags().BoolVar(&noHooks, "no-hooks", false, "Skip pre/post deploy hooks on each redeploy")
	addVarsFlags(cmd)

	return cmd
}

type watchConfig struct {
	debounce      time.Duration
	noHooks       bool
	deployTimeout time.Duration
}

// watchAndDeploy blocks until ctx is cancelled. Every batch of relevant file
// events triggers one deploy; deploy failures log and the watch continues.
func watchAndDeploy(ctx context.Context, logger *slog.Logger, proj *project, opts *Options, cmd *cobra.Command, wc watchConfig) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	root := proj.sourceDir()
	if err := addWatchTree(watcher, root); err != nil {
		return err
	}
	logger.Info("watching for changes", "dir", root, "debounce", wc.debounce)

	deployOnce := func() {
		// Reload the project each round so config edits take effect.
		fresh, err := loadProject(opts, cmd)
		if err != nil {
			logger.Error("config reload failed; keeping previous target", "error", err)
			fresh = proj
		}

		runCtx, cancel := context.WithTimeout(ctx, wc.deployTimeout)
		defer cancel()

		outcome, err := runDeploy(runCtx, logger, fresh, deployParams{noHooks: wc.noHooks})
		recordHistory(runCtx, logger, fresh, outcome, err)
		if err != nil {
			logger.Error("deploy failed; still watching", "error", err)
			return
		}
		proj = fresh
	}

	// Deploy immediately so the stage reflects the working tree before the
	// first edit.
	deployOnce()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantWatchEvent(event) {
				continue
			}
			logger.Debug("source changed", "path", event.Name, "op", event.Op.String())

			// New directories need their own watch before files land in them.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addWatchTree(watcher, event.Name)
				}
			}

			if timer == nil {
				timer = time.NewTimer(wc.debounce)
				timerC = timer.C
			} else {
				timer.Reset(wc.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			deployOnce()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

// addWatchTree registers root and all non-hidden subdirectories.
func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// relevantWatchEvent keeps writes, creates, removes and renames of app
// source files; editor temp files and hidden paths are ignored.
func relevantWatchEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return true
	}

	switch strings.ToLower(filepath.Ext(base)) {
	case ".py", ".yaml", ".yml", ".toml", ".txt", ".csv", ".json":
		return true
	}
	return false
}
