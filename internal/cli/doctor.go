package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/history"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// newDoctorCommand creates the "doctor" subcommand that runs preflight
// checks for a deployment target.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run deployment preflight checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			var fatal int
			check := func(name string, err error) {
				if err != nil {
					logger.Error("doctor check failed", "check", name, "error", err)
					fatal++
					return
				}
				logger.Info("doctor check ok", "check", name)
			}

			proj, err := loadProject(opts, cmd)
			check("config", err)
			if err != nil {
				return fmt.Errorf("doctor found %d fatal issue(s); see log for details", fatal)
			}

			check("target", proj.target.Validate())

			bundle, err := proj.discoverBundle()
			check("bundle", err)
			if bundle != nil {
				logger.Info("bundle discovered", "files", len(bundle.Files), "bytes", bundle.TotalSize())
			}

			connCfg, err := snowflake.ParseConnConfig(os.Environ())
			if err == nil {
				connCfg = connCfg.WithTarget(proj.target.Database, proj.target.Schema, proj.target.Warehouse, proj.target.Role)
				err = connCfg.Validate()
			}
			check("credentials", err)
			if err != nil {
				return fmt.Errorf("doctor found %d fatal issue(s); see log for details", fatal)
			}

			client, err := snowflake.Connect(ctx, connCfg, logger)
			check("connect", err)
			if err != nil {
				return fmt.Errorf("doctor found %d fatal issue(s); see log for details", fatal)
			}
			defer func() { _ = client.Close() }()

			session, err := client.CurrentSession(ctx)
			check("session", err)
			if err == nil {
				logger.Info("session info",
					"user", session.User,
					"role", session.Role,
					"warehouse", session.Warehouse,
					"database", session.Database,
					"schema", session.Schema,
					"version", session.Version,
				)
			}

			// Informational: deploy creates the stage on first run.
			stageListable := false
			if _, err := client.ListStage(ctx, proj.target.StageDir()); err != nil {
				logger.Warn("stage not listable yet; deploy creates it", "location", proj.target.RootLocation(), "error", err)
			} else {
				stageListable = true
				logger.Info("doctor check ok", "check", "stage access")
			}

			// Informational: a missing app just means deploy has not run yet.
			_, err = client.ShowStreamlit(ctx, proj.target.Database, proj.target.Schema, proj.target.AppName)
			switch {
			case snowflake.IsNotFound(err):
				logger.Info("app not registered yet", "app", proj.target.QualifiedApp())
			case err != nil:
				check("app lookup", err)
			default:
				logger.Info("app registered", "app", proj.target.QualifiedApp())
			}

			if stageListable {
				if _, err := manifest.NewStore(client).Load(ctx, proj.target.StageDir()); err != nil && !manifest.IsNotFound(err) {
					check("manifest", err)
				} else {
					check("manifest", nil)
				}
			}

			check("history", checkHistoryWritable(proj))

			if fatal > 0 {
				return fmt.Errorf("doctor found %d fatal issue(s); see log for details", fatal)
			}
			logger.Info("doctor checks completed successfully", "env", opts.Env)
			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}

// checkHistoryWritable opens (creating if needed) the history database.
func checkHistoryWritable(proj *project) error {
	if proj.cfg.History.Disabled {
		return nil
	}
	path, err := proj.cfg.History.ResolvedPath()
	if err != nil {
		return err
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	return store.Close()
}
