package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/snowflake"
)

// newDestroyCommand creates the "destroy" subcommand that drops the app and
// removes its staged files.
func newDestroyCommand(opts *Options) *cobra.Command {
	var (
		yes       bool
		dropStage bool
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Drop the app object and remove its staged files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}
			t := proj.target

			if !yes {
				confirmed, err := confirmDestroy(t.QualifiedApp())
				if err != nil {
					return err
				}
				if !confirmed {
					logger.Info("destroy cancelled")
					return nil
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			client, err := proj.connect(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			logger.Info("dropping app", "app", t.QualifiedApp())
			if err := client.DropStreamlit(ctx, t.Database, t.Schema, t.AppName); err != nil {
				return err
			}

			logger.Info("removing staged files", "location", t.RootLocation())
			if err := client.RemoveStagePath(ctx, t.StageDir()); err != nil {
				return err
			}

			if dropStage {
				stmt := fmt.Sprintf("DROP STAGE IF EXISTS %s", snowflake.QualifiedName(t.Database, t.Schema, t.Stage))
				logger.Info("dropping stage", "stage", t.Stage)
				if err := client.Exec(ctx, stmt); err != nil {
					return err
				}
			}

			logger.Info("destroy complete", "app", t.QualifiedApp())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Do not prompt for confirmation (required outside a terminal)")
	cmd.Flags().BoolVar(&dropStage, "drop-stage", false, "Also drop the stage itself, not just the app files")
	addVarsFlags(cmd)

	return cmd
}

// confirmDestroy asks on the terminal; without a terminal, --yes is required.
func confirmDestroy(app string) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false, fmt.Errorf("refusing to destroy %s without --yes in a non-interactive session", app)
	}
	fmt.Printf("Drop %s and remove its staged files? [y/N]: ", app)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false, nil
	}
	return answer == "y" || answer == "Y" || answer == "yes", nil
}
