package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/engine"
)

// newRenderCommand creates the "render" subcommand: resolve the target and
// print the exact statements a full deploy would issue, without connecting.
func newRenderCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the resolved target and deploy statements without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			bundle, err := proj.discoverBundle()
			if err != nil {
				return err
			}

			// No manifest without a connection, so render shows the
			// first-deploy shape: every file uploads.
			plan, err := engine.BuildPlan(bundle, nil, proj.target, engine.PlanOptions{
				PreHooks:  proj.cfg.Hooks.PreDeploy,
				PostHooks: proj.cfg.Hooks.PostDeploy,
			})
			if err != nil {
				return err
			}

			rendered := renderPlanDocument(plan)

			if output == "" {
				_, err := fmt.Print(rendered)
				return err
			}

			if err := os.MkdirAll(output, 0o750); err != nil {
				return fmt.Errorf("create output directory %q: %w", output, err)
			}
			outPath := filepath.Join(output, "deploy.sql")
			if err := os.WriteFile(outPath, []byte(rendered), 0o640); err != nil {
				return fmt.Errorf("write rendered statements to %q: %w", outPath, err)
			}
			logger.Info("rendered deploy statements", "path", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory for rendered statements (if empty, prints to stdout)")
	addVarsFlags(cmd)

	return cmd
}

// renderPlanDocument formats the target, file list and SQL as one document.
func renderPlanDocument(plan *engine.Plan) string {
	t := plan.Target
	var b strings.Builder

	fmt.Fprintf(&b, "-- app: %s\n", t.QualifiedApp())
	if t.Env != "" {
		fmt.Fprintf(&b, "-- env: %s\n", t.Env)
	}
	fmt.Fprintf(&b, "-- root location: %s\n", t.RootLocation())
	fmt.Fprintf(&b, "-- warehouse: %s\n", t.Warehouse)
	fmt.Fprintf(&b, "-- files:\n")
	for _, f := range plan.Bundle.Files {
		fmt.Fprintf(&b, "--   %s (%d bytes, sha256 %s)\n", f.Path, f.Size, f.SHA256[:12])
	}
	b.WriteString("\n")

	for _, stmt := range plan.Statements {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String()
}
