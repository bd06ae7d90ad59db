package cli

import (
	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/env"
)

// newGroupCommand builds a cobra.Command that groups subcommands.
func newGroupCommand(use, short string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	if len(subcommands) > 0 {
		cmd.AddCommand(subcommands...)
	}
	return cmd
}

// addVarsFlags registers the template variable flags shared by commands
// that load the project config.
func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Additional template variables in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to YAML/ENV file with additional template variables")
	cmd.Flags().String("env-file", "", "Path to an extra .env file loaded before rendering")
}

// parseInlineVarsAndFiles reads the shared variable flags from a command.
func parseInlineVarsAndFiles(cmd *cobra.Command) (env.Vars, []string, []string, error) {
	inlineVars, err := env.ParseInlineVars(cmd.Flag("vars").Value.String())
	if err != nil {
		return nil, nil, nil, err
	}

	var varFiles []string
	if varFile := cmd.Flag("var-file").Value.String(); varFile != "" {
		varFiles = append(varFiles, varFile)
	}

	var envFiles []string
	if envFile := cmd.Flag("env-file").Value.String(); envFile != "" {
		envFiles = append(envFiles, envFile)
	}

	return inlineVars, varFiles, envFiles, nil
}
