package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/ghoutput"
)

// newCICommand creates the "ci" command group: non-interactive variants of
// deploy and plan whose inputs also resolve from STAGECTL_* env vars.
func newCICommand(opts *Options) *cobra.Command {
	cmd := newGroupCommand("ci", "CI-friendly deploy and plan")
	cmd.AddCommand(newCIDeployCommand(opts))
	cmd.AddCommand(newCIPlanCommand(opts))
	return cmd
}

// ciDeploySettings is the effective input after merging flags and env vars.
type ciDeploySettings struct {
	retries int
	backoff time.Duration
	force   bool
	noHooks bool
	timeout string
}

func newCIDeployCommand(opts *Options) *cobra.Command {
	var (
		retries int
		backoff time.Duration
		force   bool
		noHooks bool
		timeout string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy with retries; parameters fall back to STAGECTL_* env vars",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			settings, err := resolveCIDeploySettings(cmd, ciDeploySettings{
				retries: retries,
				backoff: backoff,
				force:   force,
				noHooks: noHooks,
				timeout: timeout,
			})
			if err != nil {
				return err
			}

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			deployTimeout, err := resolveDeployTimeout(proj.cfg, settings.timeout, settings.timeout != "")
			if err != nil {
				return err
			}

			var outcome *deployOutcome
			var deployErr error
			attempts := 0
			wait := settings.backoff

			for attempt := 0; attempt <= settings.retries; attempt++ {
				if attempt > 0 {
					logger.Warn("deploy attempt failed; retrying",
						"attempt", attempt, "of", settings.retries, "backoff", wait, "error", deployErr)
					select {
					case <-time.After(wait):
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					}
					wait *= 2
				}
				attempts++

				ctx, cancel := context.WithTimeout(cmd.Context(), deployTimeout)
				outcome, deployErr = runDeploy(ctx, logger, proj, deployParams{
					force:   settings.force,
					noHooks: settings.noHooks,
				})
				cancel()
				if deployErr == nil {
					break
				}
			}

			recordHistory(cmd.Context(), logger, proj, outcome, deployErr)

			if outcome != nil && outcome.result != nil {
				emitDeployOutputs(logger, proj, outcome)
			}
			if err := ghoutput.Write(map[string]string{"attempts": strconv.Itoa(attempts)}); err != nil {
				logger.Warn("cannot write GitHub outputs", "error", err)
			}

			if deployErr != nil {
				return fmt.Errorf("deploy failed after %d attempt(s): %w", attempts, deployErr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 2, "Retry count after the first failed attempt (env: STAGECTL_RETRIES)")
	cmd.Flags().DurationVar(&backoff, "backoff", 5*time.Second, "Initial retry backoff, doubled per attempt (env: STAGECTL_BACKOFF)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-upload every file and re-issue the app statement (env: STAGECTL_FORCE)")
	cmd.Flags().BoolVar(&noHooks, "no-hooks", false, "Skip pre/post deploy hooks (env: STAGECTL_NO_HOOKS)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Per-attempt deploy timeout (env: STAGECTL_TIMEOUT)")
	addVarsFlags(cmd)

	return cmd
}

// resolveCIDeploySettings lets env vars stand in for flags the pipeline did
// not pass explicitly. An explicit flag always wins.
func resolveCIDeploySettings(cmd *cobra.Command, fromFlags ciDeploySettings) (ciDeploySettings, error) {
	var fromEnv ciEnv
	if err := parseEnv(&fromEnv); err != nil {
		return ciDeploySettings{}, fmt.Errorf("parse STAGECTL_* environment: %w", err)
	}

	settings := fromFlags

	if !cmd.Flags().Changed("retries") && envPresent("STAGECTL_RETRIES") {
		settings.retries = fromEnv.Retries
	}
	if settings.retries < 0 {
		return ciDeploySettings{}, fmt.Errorf("retries must not be negative (got %d)", settings.retries)
	}

	if !cmd.Flags().Changed("backoff") && envPresent("STAGECTL_BACKOFF") {
		d, err := time.ParseDuration(fromEnv.Backoff)
		if err != nil {
			return ciDeploySettings{}, fmt.Errorf("parse STAGECTL_BACKOFF: %w", err)
		}
		settings.backoff = d
	}
	if settings.backoff <= 0 {
		settings.backoff = 5 * time.Second
	}

	if !cmd.Flags().Changed("force") && envPresent("STAGECTL_FORCE") {
		settings.force = fromEnv.Force
	}
	if !cmd.Flags().Changed("no-hooks") && envPresent("STAGECTL_NO_HOOKS") {
		settings.noHooks = fromEnv.NoHooks
	}
	if !cmd.Flags().Changed("timeout") && envPresent("STAGECTL_TIMEOUT") {
		settings.timeout = fromEnv.Timeout
	}

	return settings, nil
}

func newCIPlanCommand(opts *Options) *cobra.Command {
	var (
		format  string
		offline bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan for pipelines; emits changed=true|false to GITHUB_OUTPUT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			plan, err := buildPlanForCommand(cmd, logger, proj, planInputs{
				offline: offline,
				force:   force,
			})
			if err != nil {
				return err
			}

			switch format {
			case "", "json":
				if err := printPlanJSON(plan); err != nil {
					return err
				}
			case "text":
				printPlanText(plan)
			default:
				return fmt.Errorf("unknown plan format %q (supported: text, json)", format)
			}

			changed := !plan.Clean()
			if err := ghoutput.Write(map[string]string{"changed": strconv.FormatBool(changed)}); err != nil {
				logger.Warn("cannot write GitHub outputs", "error", err)
			}
			logger.Info("plan computed", "changed", changed, "app", proj.target.QualifiedApp())
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Output format: json|text")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the remote manifest read; every file shows as added")
	cmd.Flags().BoolVar(&force, "force", false, "Plan as if --force were passed to deploy")
	addVarsFlags(cmd)

	return cmd
}
