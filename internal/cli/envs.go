package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/config"
	"github.com/snowstage/stagectl/internal/ui"
)

// newEnvsCommand creates the "envs" subcommand listing configured
// environments with their inheritance chains and resolved targets.
func newEnvsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envs",
		Short: "List configured environments and their resolved targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, err := loadProject(opts, cmd)
			if err != nil {
				return err
			}

			names := proj.cfg.EnvironmentNames()
			if len(names) == 0 {
				fmt.Println("No environments defined; deploys use the defaults block.")
				printResolvedTarget(proj.resolved)
				return nil
			}

			for i, name := range names {
				resolved, err := config.ResolveEnvironment(proj.cfg, name)
				if err != nil {
					return err
				}

				marker := " "
				if name == opts.Env {
					marker = ui.Green.Render("*")
				}
				fmt.Printf("%s %s%s\n", marker, ui.Cyan.Render(name), inheritanceSuffix(proj.cfg, name))
				printResolvedTarget(resolved)
				if i < len(names)-1 {
					fmt.Println()
				}
			}
			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}

// inheritanceSuffix formats the "from" chain, e.g. " (inherits staging < dev)".
func inheritanceSuffix(cfg *config.ProjectConfig, name string) string {
	var chain []string
	current := cfg.Environments[name].From
	for current != "" {
		chain = append(chain, current)
		current = cfg.Environments[current].From
	}
	if len(chain) == 0 {
		return ""
	}
	return ui.Dim.Render(" (inherits " + strings.Join(chain, " < ") + ")")
}

func printResolvedTarget(t config.ResolvedTarget) {
	fmt.Printf("    app:       %s.%s.%s\n", t.Database, t.Schema, t.AppName)
	fmt.Printf("    stage:     @%s.%s.%s/%s\n", t.Database, t.Schema, t.Stage, t.StagePrefix)
	fmt.Printf("    warehouse: %s\n", t.Warehouse)
	if t.Role != "" {
		fmt.Printf("    role:      %s\n", t.Role)
	}
	if t.Title != "" {
		fmt.Printf("    title:     %s\n", t.Title)
	}
}
