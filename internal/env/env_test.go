package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	out := Merge(
		Vars{"A": "1", "B": "1"},
		Vars{"B": "2", "C": "2"},
		nil,
		Vars{"C": "3"},
	)
	assert.Equal(t, Vars{"A": "1", "B": "2", "C": "3"}, out)
}

func TestParseInlineVars(t *testing.T) {
	out, err := ParseInlineVars("A=1, B = two ,C=x=y")
	require.NoError(t, err)
	assert.Equal(t, Vars{"A": "1", "B": "two", "C": "x=y"}, out)

	out, err = ParseInlineVars("  ")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = ParseInlineVars("novalue")
	assert.Error(t, err)
	_, err = ParseInlineVars("=missing")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOO=bar\n# comment\nBAZ=\"quoted value\"\n"), 0o600))

	vars, err := LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar", vars["FOO"])
	assert.Equal(t, "quoted value", vars["BAZ"])

	_, err = LoadEnvFile(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoadDefaultEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SNOWFLAKE_ACCOUNT=acme\n"), 0o600))

	vars, err := LoadDefaultEnvFile(dir)
	require.NoError(t, err)
	assert.Equal(t, "acme", vars["SNOWFLAKE_ACCOUNT"])
}

func TestLoadDefaultEnvFileMissingIsFine(t *testing.T) {
	vars, err := LoadDefaultEnvFile(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLoadEnvFilesMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.env"), []byte("K=first\nONLY_A=1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.env"), []byte("K=second\n"), 0o600))

	vars, err := LoadEnvFiles(dir, []string{"a.env", "", "b.env"})
	require.NoError(t, err)
	assert.Equal(t, "second", vars["K"])
	assert.Equal(t, "1", vars["ONLY_A"])
}

func TestLoadVarFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: eu\nowner: data-team\n"), 0o600))

	vars, err := LoadVarFile(path)
	require.NoError(t, err)
	assert.Equal(t, Vars{"region": "eu", "owner": "data-team"}, vars)
}

func TestLoadVarFileEnvStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.env")
	require.NoError(t, os.WriteFile(path, []byte("REGION=eu\n"), 0o600))

	vars, err := LoadVarFile(path)
	require.NoError(t, err)
	assert.Equal(t, "eu", vars["REGION"])
}

func TestLoadVarFileRejectsNonMappingYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	_, err := LoadVarFile(path)
	assert.Error(t, err)
}
