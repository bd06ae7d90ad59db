package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/user"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/engine"
	"github.com/snowstage/stagectl/internal/ghoutput"
	"github.com/snowstage/stagectl/internal/history"
	"github.com/snowstage/stagectl/internal/hooks"
	"github.com/snowstage/stagectl/internal/manifest"
)

// newDeployCommand creates the "deploy" subcommand: upload changed files to
// the stage and register the app object.
func newDeployCommand(opts *Options) *cobra.Command {
	var (
		dryRun  bool
		force   bool
		only    string
		skip    string
		timeout string
		noHooks bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload changed app files to the stage and register the app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			deployTimeout, err := resolveDeployTimeout(proj.cfg, timeout, cmd.Flags().Changed("timeout"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), deployTimeout)
			defer cancel()

			outcome, err := runDeploy(ctx, logger, proj, deployParams{
				dryRun:  dryRun,
				force:   force,
				only:    splitList(only),
				skip:    splitList(skip),
				noHooks: noHooks,
			})
			if dryRun {
				return err
			}

			recordHistory(ctx, logger, proj, outcome, err)

			if outcome != nil && outcome.result != nil {
				emitDeployOutputs(logger, proj, outcome)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without executing anything")
	cmd.Flags().BoolVar(&force, "force", false, "Re-upload every file and re-issue the app statement")
	cmd.Flags().StringVar(&only, "only", "", "Only deploy files whose path matches one of these comma-separated fragments")
	cmd.Flags().StringVar(&skip, "skip", "", "Skip files whose path matches one of these comma-separated fragments")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Overall deploy timeout (default from config, fallback 10m)")
	cmd.Flags().BoolVar(&noHooks, "no-hooks", false, "Skip pre/post deploy hooks")
	addVarsFlags(cmd)

	return cmd
}

// deployParams tunes one deploy run.
type deployParams struct {
	dryRun  bool
	force   bool
	only    []string
	skip    []string
	noHooks bool
}

// deployOutcome is what a deploy run produced; result is nil for dry runs
// and for failures before execution started.
type deployOutcome struct {
	releaseID string
	plan      *engine.Plan
	result    *engine.Result
	startedAt time.Time
}

// runDeploy connects, plans, and (unless dry-run) executes. It is shared by
// deploy, ci deploy and watch.
func runDeploy(ctx context.Context, logger *slog.Logger, proj *project, params deployParams) (*deployOutcome, error) {
	outcome := &deployOutcome{
		releaseID: uuid.NewString(),
		startedAt: time.Now().UTC(),
	}

	bundle, err := proj.discoverBundle()
	if err != nil {
		return outcome, err
	}

	client, err := proj.connect(ctx, logger)
	if err != nil {
		return outcome, err
	}
	defer func() { _ = client.Close() }()

	manifests := manifest.NewStore(client)
	remote, err := manifests.Load(ctx, proj.target.StageDir())
	if err != nil && !manifest.IsNotFound(err) {
		return outcome, err
	}

	plan, err := engine.BuildPlan(bundle, remote, proj.target, engine.PlanOptions{
		Force:     params.force,
		Only:      params.only,
		Skip:      params.skip,
		NoHooks:   params.noHooks,
		PreHooks:  proj.cfg.Hooks.PreDeploy,
		PostHooks: proj.cfg.Hooks.PostDeploy,
	})
	if err != nil {
		return outcome, err
	}
	outcome.plan = plan

	if params.dryRun {
		printPlanText(plan)
		return outcome, nil
	}

	if plan.Clean() {
		logger.Info("nothing to deploy", "app", proj.target.QualifiedApp(), "env", proj.target.Env)
		outcome.result = &engine.Result{ReleaseID: outcome.releaseID}
		return outcome, nil
	}

	executor := engine.NewExecutor(client, hooks.NewExecutor(client, logger), manifests, logger)
	result, err := executor.Execute(ctx, plan, engine.ExecuteOptions{
		ReleaseID:  outcome.releaseID,
		DeployedBy: currentUserName(),
	})
	outcome.result = result
	if err != nil {
		return outcome, err
	}
	if result.PostHookError != nil {
		return outcome, result.PostHookError
	}

	logger.Info("deploy complete",
		"app", proj.target.QualifiedApp(),
		"release", outcome.releaseID,
		"uploaded", result.FilesUploaded,
		"removed", result.FilesRemoved,
		"bytes", result.BytesUploaded,
	)
	return outcome, nil
}

// recordHistory writes the release row. Failures log a warning and never
// fail the deploy. The write runs on a detached context so a deploy that
// died on its own timeout still gets recorded.
func recordHistory(ctx context.Context, logger *slog.Logger, proj *project, outcome *deployOutcome, deployErr error) {
	if proj.cfg.History.Disabled || outcome == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	path, err := proj.cfg.History.ResolvedPath()
	if err != nil {
		logger.Warn("history disabled for this run", "error", err)
		return
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn("cannot open history database", "path", path, "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	release := &history.Release{
		ID:         outcome.releaseID,
		Project:    proj.cfg.Project,
		Env:        proj.target.Env,
		App:        proj.target.AppName,
		Database:   proj.target.Database,
		Schema:     proj.target.Schema,
		Stage:      proj.target.Stage,
		Warehouse:  proj.target.Warehouse,
		Status:     history.StatusSuccess,
		StartedAt:  outcome.startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if outcome.result != nil {
		release.FilesUploaded = outcome.result.FilesUploaded
		release.FilesRemoved = outcome.result.FilesRemoved
		release.BytesUploaded = outcome.result.BytesUploaded
	}
	if deployErr != nil {
		release.Status = history.StatusFailed
		release.Error = deployErr.Error()
	}

	if err := store.Record(ctx, release); err != nil {
		logger.Warn("cannot record release history", "error", err)
	}
}

// emitDeployOutputs publishes release facts to GITHUB_OUTPUT when running
// in GitHub Actions.
func emitDeployOutputs(logger *slog.Logger, proj *project, outcome *deployOutcome) {
	err := ghoutput.Write(map[string]string{
		"release_id":     outcome.releaseID,
		"app":            proj.target.QualifiedApp(),
		"url_hint":       appURLHint(proj.target),
		"files_uploaded": strconv.Itoa(outcome.result.FilesUploaded),
	})
	if err != nil {
		logger.Warn("cannot write GitHub outputs", "error", err)
	}
}

// appURLHint names where to find the app in the warehouse UI; the exact URL
// carries an account-specific id that only SHOW reports.
func appURLHint(t engine.Target) string {
	return fmt.Sprintf("Streamlit app %s (Snowsight > Projects > Streamlit)", t.QualifiedApp())
}

// currentUserName is recorded in the manifest as the deploying operator.
func currentUserName() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}
