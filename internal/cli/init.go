package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/snowflake"
)

// initAnswers collects the wizard inputs for a new stagectl.yaml.
type initAnswers struct {
	Project   string
	AppName   string
	Title     string
	Database  string
	Schema    string
	Stage     string
	Warehouse string
	Envs      string
	Confirmed bool
}

// newInitCommand creates the "init" subcommand that scaffolds a project.
func newInitCommand(opts *Options) *cobra.Command {
	var (
		useDefaults bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold stagectl.yaml for a new dashboard project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			path := opts.ConfigPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}

			answers := initAnswers{
				Project:   "dashboard",
				AppName:   "DASHBOARD",
				Title:     "Dashboard",
				Database:  "MY_DB",
				Schema:    "PUBLIC",
				Stage:     "APP_STAGE",
				Warehouse: "MY_WH",
				Envs:      "dev,prod",
				Confirmed: true,
			}

			if !useDefaults {
				if err := runInitForm(&answers); err != nil {
					return err
				}
				if !answers.Confirmed {
					logger.Info("init cancelled")
					return nil
				}
			}

			if err := validateInitAnswers(answers); err != nil {
				return err
			}

			if err := os.WriteFile(path, []byte(renderInitConfig(answers)), 0o640); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			logger.Info("wrote project config", "path", path)

			if err := writeEnvExample(); err != nil {
				return err
			}
			if err := appendGitignoreEntry(logger); err != nil {
				return err
			}

			logger.Info("project initialized; fill in .env and run stagectl doctor")
			return nil
		},
	}

	cmd.Flags().BoolVar(&useDefaults, "defaults", false, "Write a default config without asking questions")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// runInitForm asks for the project coordinates interactively.
func runInitForm(answers *initAnswers) error {
	identifier := func(s string) error {
		return snowflake.ValidateIdentifier(strings.TrimSpace(s))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Description("Short slug used in logs and history.").
				Value(&answers.Project),
			huh.NewInput().
				Title("App object name").
				Description("Unquoted identifier for the Streamlit object.").
				Value(&answers.AppName).
				Validate(identifier),
			huh.NewInput().
				Title("App title").
				Value(&answers.Title),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Database").
				Value(&answers.Database).
				Validate(identifier),
			huh.NewInput().
				Title("Schema").
				Value(&answers.Schema).
				Validate(identifier),
			huh.NewInput().
				Title("Stage").
				Description("Named internal stage that receives the app files.").
				Value(&answers.Stage).
				Validate(identifier),
			huh.NewInput().
				Title("Query warehouse").
				Value(&answers.Warehouse).
				Validate(identifier),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Environments").
				Description("Comma-separated names, e.g. dev,prod.").
				Value(&answers.Envs),
			huh.NewConfirm().
				Title("Write stagectl.yaml?").
				Value(&answers.Confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("run init form: %w", err)
	}
	return nil
}

func validateInitAnswers(a initAnswers) error {
	for field, value := range map[string]string{
		"app name":  a.AppName,
		"database":  a.Database,
		"schema":    a.Schema,
		"stage":     a.Stage,
		"warehouse": a.Warehouse,
	} {
		if err := snowflake.ValidateIdentifier(strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// renderInitConfig produces the scaffolded stagectl.yaml content.
func renderInitConfig(a initAnswers) string {
	var b strings.Builder
	fmt.Fprintf(&b, "version: 1\n")
	fmt.Fprintf(&b, "project: %s\n\n", a.Project)
	fmt.Fprintf(&b, "app:\n")
	fmt.Fprintf(&b, "  name: %s\n", a.AppName)
	if a.Title != "" {
		fmt.Fprintf(&b, "  title: %q\n", a.Title)
	}
	fmt.Fprintf(&b, "  mainFile: Main.py\n")
	fmt.Fprintf(&b, "  include:\n")
	fmt.Fprintf(&b, "    - Main.py\n")
	fmt.Fprintf(&b, "    - pages/*.py\n\n")
	fmt.Fprintf(&b, "defaults:\n")
	fmt.Fprintf(&b, "  database: %s\n", a.Database)
	fmt.Fprintf(&b, "  schema: %s\n", a.Schema)
	fmt.Fprintf(&b, "  stage: %s\n", a.Stage)
	fmt.Fprintf(&b, "  warehouse: %s\n", a.Warehouse)

	envs := splitList(a.Envs)
	if len(envs) > 0 {
		fmt.Fprintf(&b, "\nenvironments:\n")
		for _, env := range envs {
			fmt.Fprintf(&b, "  %s:\n", env)
			if env == "dev" || env == "staging" {
				fmt.Fprintf(&b, "    titleSuffix: \" (%s)\"\n", env)
			} else {
				fmt.Fprintf(&b, "    {}\n")
			}
		}
	}
	return b.String()
}

// writeEnvExample scaffolds .env.example unless one exists.
func writeEnvExample() error {
	const path = ".env.example"
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := strings.Join([]string{
		"SNOWFLAKE_ACCOUNT=",
		"SNOWFLAKE_USER=",
		"SNOWFLAKE_PASSWORD=",
		"SNOWFLAKE_ROLE=",
		"SNOWFLAKE_WAREHOUSE=",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// appendGitignoreEntry makes sure .env never gets committed.
func appendGitignoreEntry(logger *slog.Logger) error {
	const path = ".gitignore"
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == ".env" {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(".env\n"); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	logger.Info("added .env to .gitignore")
	return nil
}
