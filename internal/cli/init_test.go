package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstage/stagectl/internal/config"
)

func defaultAnswers() initAnswers {
	return initAnswers{
		Project:   "dashboard",
		AppName:   "SALES_DASH",
		Title:     "Sales",
		Database:  "ANALYTICS",
		Schema:    "PUBLIC",
		Stage:     "APP_STAGE",
		Warehouse: "REPORTING_WH",
		Envs:      "dev,prod",
	}
}

func TestInitDefaultsWritesProject(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newInitCommand(&Options{ConfigPath: "stagectl.yaml"})
	cmd.SetArgs([]string{"--defaults"})
	require.NoError(t, cmd.Execute())

	raw, err := os.ReadFile("stagectl.yaml")
	require.NoError(t, err)
	cfg, err := config.ParseProjectConfig(raw)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "MY_DB", cfg.Defaults.Database)
	assert.Equal(t, "MY_WH", cfg.Defaults.Warehouse)

	_, err = os.Stat(".env.example")
	assert.NoError(t, err)
	ignore, err := os.ReadFile(".gitignore")
	require.NoError(t, err)
	assert.Contains(t, string(ignore), ".env")
}

func TestInitRefusesToOverwriteWithoutForce(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("stagectl.yaml", []byte("version: 1\n"), 0o640))

	cmd := newInitCommand(&Options{ConfigPath: "stagectl.yaml"})
	cmd.SetArgs([]string{"--defaults"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestRenderInitConfigParses(t *testing.T) {
	content := renderInitConfig(defaultAnswers())

	cfg, err := config.ParseProjectConfig([]byte(content))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "dashboard", cfg.Project)
	assert.Equal(t, "SALES_DASH", cfg.App.Name)
	assert.Equal(t, "Sales", cfg.App.Title)
	assert.Equal(t, "ANALYTICS", cfg.Defaults.Database)
	assert.Contains(t, cfg.Environments, "dev")
	assert.Contains(t, cfg.Environments, "prod")
	assert.Equal(t, " (dev)", cfg.Environments["dev"].TitleSuffix)
}

func TestRenderInitConfigWithoutEnvs(t *testing.T) {
	answers := defaultAnswers()
	answers.Envs = ""
	answers.Title = ""

	cfg, err := config.ParseProjectConfig([]byte(renderInitConfig(answers)))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Environments)
	assert.Empty(t, cfg.App.Title)
}

func TestValidateInitAnswers(t *testing.T) {
	assert.NoError(t, validateInitAnswers(defaultAnswers()))

	bad := defaultAnswers()
	bad.Database = "my-db"
	assert.Error(t, validateInitAnswers(bad))

	empty := defaultAnswers()
	empty.Warehouse = " "
	assert.Error(t, validateInitAnswers(empty))
}
