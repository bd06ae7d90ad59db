package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/history"
	"github.com/snowstage/stagectl/internal/ui"
)

// newHistoryCommand creates the "history" command group over the local
// release database.
func newHistoryCommand(opts *Options) *cobra.Command {
	cmd := newGroupCommand("history", "Inspect the local release history")
	cmd.AddCommand(newHistoryListCommand(opts))
	cmd.AddCommand(newHistoryPruneCommand(opts))
	return cmd
}

func newHistoryListCommand(opts *Options) *cobra.Command {
	var (
		limit  int
		envArg string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded releases, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistoryStore(opts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			filterEnv := envArg
			if filterEnv == "" {
				filterEnv = opts.Env
			}
			releases, err := store.List(ctx, history.Filter{Env: filterEnv, Limit: limit})
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return printHistoryJSON(releases)
			case "", "text":
				printHistoryTable(releases)
				return nil
			default:
				return fmt.Errorf("unknown history format %q (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of releases to show (default 50)")
	cmd.Flags().StringVar(&envArg, "env-filter", "", "Only show releases for this environment (defaults to --env)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")
	addVarsFlags(cmd)

	return cmd
}

func newHistoryPruneCommand(opts *Options) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest releases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			store, err := openHistoryStore(opts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			deleted, err := store.Prune(ctx, keep)
			if err != nil {
				return err
			}
			logger.Info("pruned release history", "deleted", deleted, "kept", keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "Number of newest releases to keep")
	addVarsFlags(cmd)

	return cmd
}

// openHistoryStore resolves the database path from the project config.
func openHistoryStore(opts *Options, cmd *cobra.Command) (*history.Store, error) {
	proj, err := loadProject(opts, cmd)
	if err != nil {
		return nil, err
	}
	if proj.cfg.History.Disabled {
		return nil, fmt.Errorf("history is disabled in %s", opts.ConfigPath)
	}
	path, err := proj.cfg.History.ResolvedPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

func printHistoryTable(releases []history.Release) {
	if len(releases) == 0 {
		fmt.Println("No releases recorded yet.")
		return
	}

	fmt.Printf("%s\n", ui.White.Render(fmt.Sprintf("%-10s  %-8s  %-24s  %-8s  %6s  %9s  %s",
		"WHEN", "ENV", "APP", "STATUS", "FILES", "BYTES", "RELEASE")))
	for _, r := range releases {
		status := ui.Green.Render(r.Status)
		if r.Status == history.StatusFailed {
			status = ui.Red.Render(r.Status)
		}
		env := r.Env
		if env == "" {
			env = "-"
		}
		fmt.Printf("%-10s  %-8s  %-24s  %-17s  %6d  %9d  %s\n",
			r.StartedAt.Local().Format("Jan 02 15:04"), env, r.App, status,
			r.FilesUploaded, r.BytesUploaded, ui.Dim.Render(shortID(r.ID)))
		if r.Error != "" {
			fmt.Printf("    %s\n", ui.Red.Render(r.Error))
		}
	}
}

func printHistoryJSON(releases []history.Release) error {
	type releaseJSON struct {
		ID            string    `json:"id"`
		Project       string    `json:"project,omitempty"`
		Env           string    `json:"env,omitempty"`
		App           string    `json:"app"`
		Status        string    `json:"status"`
		Error         string    `json:"error,omitempty"`
		FilesUploaded int       `json:"filesUploaded"`
		FilesRemoved  int       `json:"filesRemoved"`
		BytesUploaded int64     `json:"bytesUploaded"`
		StartedAt     time.Time `json:"startedAt"`
		FinishedAt    time.Time `json:"finishedAt"`
	}

	out := make([]releaseJSON, 0, len(releases))
	for _, r := range releases {
		out = append(out, releaseJSON{
			ID:            r.ID,
			Project:       r.Project,
			Env:           r.Env,
			App:           r.App,
			Status:        r.Status,
			Error:         r.Error,
			FilesUploaded: r.FilesUploaded,
			FilesRemoved:  r.FilesRemoved,
			BytesUploaded: r.BytesUploaded,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
