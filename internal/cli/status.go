package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/differ"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/snowflake"
	"github.com/snowstage/stagectl/internal/ui"
)

// newStatusCommand creates the "status" subcommand: report the live app
// object, the last release, and drift between local files, the manifest,
// and the stage listing.
func newStatusCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the live app, last release, and drift against the stage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			client, err := proj.connect(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			t := proj.target

			info, err := client.ShowStreamlit(ctx, t.Database, t.Schema, t.AppName)
			switch {
			case snowflake.IsNotFound(err):
				fmt.Printf("%s %s\n", ui.Red.Render("App:"), "not registered")
			case err != nil:
				return err
			default:
				fmt.Printf("%s %s\n", ui.White.Render("App:"), ui.Green.Render(info.Name))
				fmt.Printf("  owner: %s\n", info.Owner)
				fmt.Printf("  warehouse: %s\n", info.QueryWarehouse)
				if info.Title != "" {
					fmt.Printf("  title: %s\n", info.Title)
				}
				if info.URLID != "" {
					fmt.Printf("  url_id: %s\n", info.URLID)
				}
			}

			manifests := manifest.NewStore(client)
			remote, err := manifests.Load(ctx, t.StageDir())
			if manifest.IsNotFound(err) {
				fmt.Printf("\n%s no manifest on stage; run deploy first\n", ui.Yellow.Render("Release:"))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("\n%s %s\n", ui.White.Render("Last release:"), remote.ReleaseID)
			fmt.Printf("  deployed: %s", remote.DeployedAt.Format(time.RFC3339))
			if remote.DeployedBy != "" {
				fmt.Printf(" by %s", remote.DeployedBy)
			}
			fmt.Printf("\n  files: %d\n", len(remote.Files))

			printLocalDrift(proj, remote)

			entries, err := client.ListStage(ctx, t.StageDir())
			if err != nil {
				return err
			}
			printStageDrift(t.StageDir(), remote, entries)

			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}

// printLocalDrift diffs the working tree against the manifest.
func printLocalDrift(proj *project, remote *manifest.Manifest) {
	bundle, err := proj.discoverBundle()
	if err != nil {
		fmt.Printf("\n%s cannot read local sources: %v\n", ui.Red.Render("Local drift:"), err)
		return
	}

	var local, recorded []differ.FileRecord
	for _, f := range bundle.Files {
		local = append(local, differ.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}
	for _, f := range remote.Files {
		recorded = append(recorded, differ.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}

	result := differ.Compare(local, recorded)
	if result.Clean() {
		fmt.Printf("\n%s local sources match the last release\n", ui.Green.Render("Local drift:"))
		return
	}

	s := result.Summary
	fmt.Printf("\n%s %d added, %d modified, %d removed since the last release\n",
		ui.Yellow.Render("Local drift:"), s.Added, s.Modified, s.Removed)
	for _, e := range result.Diff.Added {
		fmt.Printf("  %s %s\n", ui.Green.Render("+"), e.Path)
	}
	for _, e := range result.Diff.Modified {
		fmt.Printf("  %s %s\n", ui.Yellow.Render("~"), e.Path)
	}
	for _, e := range result.Diff.Removed {
		fmt.Printf("  %s %s\n", ui.Red.Render("-"), e.Path)
	}
}

// printStageDrift cross-checks the stage listing against the manifest to
// surface out-of-band uploads or removals.
func printStageDrift(stageDir string, remote *manifest.Manifest, entries []snowflake.StageEntry) {
	recorded := make(map[string]struct{}, len(remote.Files))
	for _, f := range remote.Files {
		recorded[f.Path] = struct{}{}
	}

	staged := make(map[string]struct{}, len(entries))
	var unexpected []string
	for _, e := range entries {
		path := stageRelativePath(stageDir, e.Name)
		if path == "" || strings.HasPrefix(path, manifest.Dir+"/") {
			continue
		}
		staged[path] = struct{}{}
		if _, ok := recorded[path]; !ok {
			unexpected = append(unexpected, path)
		}
	}

	var missing []string
	for _, f := range remote.Files {
		if _, ok := staged[f.Path]; !ok {
			missing = append(missing, f.Path)
		}
	}

	if len(unexpected) == 0 && len(missing) == 0 {
		fmt.Printf("%s stage matches the manifest\n", ui.Green.Render("Stage drift:"))
		return
	}
	fmt.Printf("%s\n", ui.Yellow.Render("Stage drift:"))
	for _, p := range unexpected {
		fmt.Printf("  %s %s (on stage, not in manifest)\n", ui.Yellow.Render("?"), p)
	}
	for _, p := range missing {
		fmt.Printf("  %s %s (in manifest, missing from stage)\n", ui.Red.Render("!"), p)
	}
}

// stageRelativePath strips the stage name and prefix from an LS entry. LS
// reports names like "stage/prefix/pages/file.py" relative to the stage's
// parent.
func stageRelativePath(stageDir, entryName string) string {
	// stageDir is DB.SCHEMA.STAGE/prefix; LS names start at the bare
	// stage name.
	parts := strings.SplitN(stageDir, "/", 2)
	stageName := parts[0]
	if idx := strings.LastIndex(stageName, "."); idx >= 0 {
		stageName = stageName[idx+1:]
	}
	prefix := strings.ToLower(stageName) + "/"
	if len(parts) == 2 {
		prefix += parts[1] + "/"
	}

	lower := strings.ToLower(entryName)
	lowerPrefix := strings.ToLower(prefix)
	if !strings.HasPrefix(lower, lowerPrefix) {
		return ""
	}
	return entryName[len(prefix):]
}
