package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/engine"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/ui"
)

// newPlanCommand creates the "plan" subcommand that shows what deploy would do.
func newPlanCommand(opts *Options) *cobra.Command {
	var (
		format  string
		offline bool
		force   bool
		only    string
		skip    string
		noHooks bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what deploy would upload and which statements it would run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			plan, err := buildPlanForCommand(cmd, logger, proj, planInputs{
				offline: offline,
				force:   force,
				only:    splitList(only),
				skip:    splitList(skip),
				noHooks: noHooks,
			})
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return printPlanJSON(plan)
			case "", "text":
				printPlanText(plan)
				return nil
			default:
				return fmt.Errorf("unknown plan format %q (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the remote manifest read; every file shows as added")
	cmd.Flags().BoolVar(&force, "force", false, "Plan as if --force were passed to deploy")
	cmd.Flags().StringVar(&only, "only", "", "Only plan files whose path matches one of these comma-separated fragments")
	cmd.Flags().StringVar(&skip, "skip", "", "Skip files whose path matches one of these comma-separated fragments")
	cmd.Flags().BoolVar(&noHooks, "no-hooks", false, "Plan without pre/post deploy hooks")
	addVarsFlags(cmd)

	return cmd
}

type planInputs struct {
	offline bool
	force   bool
	only    []string
	skip    []string
	noHooks bool
}

// buildPlanForCommand is the shared plan construction used by plan and
// ci plan. Offline mode never opens a connection.
func buildPlanForCommand(cmd *cobra.Command, logger *slog.Logger, proj *project, in planInputs) (*engine.Plan, error) {
	bundle, err := proj.discoverBundle()
	if err != nil {
		return nil, err
	}

	var remote *manifest.Manifest
	if !in.offline {
		client, err := proj.connect(cmd.Context(), logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = client.Close() }()

		remote, err = manifest.NewStore(client).Load(cmd.Context(), proj.target.StageDir())
		if err != nil && !manifest.IsNotFound(err) {
			return nil, err
		}
		logger.Debug("remote manifest loaded", "found", remote != nil)
	}

	return engine.BuildPlan(bundle, remote, proj.target, engine.PlanOptions{
		Force:     in.force,
		Only:      in.only,
		Skip:      in.skip,
		NoHooks:   in.noHooks,
		PreHooks:  proj.cfg.Hooks.PreDeploy,
		PostHooks: proj.cfg.Hooks.PostDeploy,
	})
}

// printPlanText renders the colored diff and SQL preview.
func printPlanText(plan *engine.Plan) {
	t := plan.Target
	fmt.Printf("%s %s\n", ui.White.Render("App:"), ui.Cyan.Render(t.QualifiedApp()))
	fmt.Printf("%s %s\n", ui.White.Render("Root location:"), ui.Cyan.Render(t.RootLocation()))
	fmt.Printf("%s %s\n\n", ui.White.Render("Warehouse:"), ui.Cyan.Render(t.Warehouse))

	for _, action := range plan.Actions {
		switch action.Op {
		case engine.OpUpload:
			fmt.Printf("  %s %s (%s, %d bytes)\n", ui.Green.Render("+"), action.Path, action.Reason, action.Size)
		case engine.OpDelete:
			fmt.Printf("  %s %s\n", ui.Red.Render("-"), action.Path)
		case engine.OpSkip:
			fmt.Printf("  %s %s (%s)\n", ui.Dim.Render("="), ui.Dim.Render(action.Path), action.Reason)
		}
	}

	fmt.Println()
	if plan.RunApp {
		fmt.Printf("%s (%s)\n", ui.Yellow.Render("App statement will run"), plan.AppReason)
	} else {
		fmt.Printf("%s (%s)\n", ui.Dim.Render("App statement skipped"), plan.AppReason)
	}

	s := plan.Diff.Summary
	fmt.Printf("\n%s %d added, %d modified, %d removed, %d unchanged\n",
		ui.White.Render("Summary:"), s.Added, s.Modified, s.Removed, s.Unchanged)

	if plan.Clean() {
		fmt.Println(ui.Green.Render("Nothing to deploy."))
		return
	}

	// DDL here is not transactional: a failed deploy leaves earlier
	// statements applied.
	fmt.Printf("\n%s\n", ui.White.Render("Statements (in order):"))
	for _, stmt := range plan.Statements {
		fmt.Printf("%s\n\n", ui.Dim.Render(stmt+";"))
	}
}

// planJSON is the machine-readable plan shape.
type planJSON struct {
	App          string   `json:"app"`
	Env          string   `json:"env,omitempty"`
	RootLocation string   `json:"rootLocation"`
	Warehouse    string   `json:"warehouse"`
	Changed      bool     `json:"changed"`
	RunApp       bool     `json:"runApp"`
	AppReason    string   `json:"appReason"`
	Summary      struct { // mirrors differ.Summary
		Added     int `json:"added"`
		Removed   int `json:"removed"`
		Modified  int `json:"modified"`
		Unchanged int `json:"unchanged"`
	} `json:"summary"`
	Actions []planActionJSON `json:"actions"`
	SQL     []string         `json:"sql"`
}

type planActionJSON struct {
	Path   string `json:"path"`
	Op     string `json:"op"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func printPlanJSON(plan *engine.Plan) error {
	out := planJSON{
		App:          plan.Target.QualifiedApp(),
		Env:          plan.Target.Env,
		RootLocation: plan.Target.RootLocation(),
		Warehouse:    plan.Target.Warehouse,
		Changed:      !plan.Clean(),
		RunApp:       plan.RunApp,
		AppReason:    plan.AppReason,
		SQL:          plan.Statements,
	}
	out.Summary.Added = plan.Diff.Summary.Added
	out.Summary.Removed = plan.Diff.Summary.Removed
	out.Summary.Modified = plan.Diff.Summary.Modified
	out.Summary.Unchanged = plan.Diff.Summary.Unchanged
	for _, a := range plan.Actions {
		out.Actions = append(out.Actions, planActionJSON{Path: a.Path, Op: string(a.Op), Size: a.Size, Reason: a.Reason})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
