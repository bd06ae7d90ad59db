package ghoutput

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outputFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	t.Setenv("GITHUB_OUTPUT", path)
	return path
}

func TestWriteAppendsSortedKeys(t *testing.T) {
	path := outputFile(t)

	require.NoError(t, Write(map[string]string{
		"release_id": "rel-1",
		"app":        "DB.PUBLIC.APP",
	}))
	require.NoError(t, Write(map[string]string{"changed": "true"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "app=DB.PUBLIC.APP\nrelease_id=rel-1\nchanged=true\n", string(data))
}

func TestWriteNoopWithoutEnv(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")
	assert.NoError(t, Write(map[string]string{"key": "value"}))
}

func TestWriteSanitizesNewlines(t *testing.T) {
	path := outputFile(t)

	require.NoError(t, Write(map[string]string{"msg": "line1\nline2\rline3"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "msg=line1%0Aline2%0Dline3\n", string(data))
}

func TestWriteRejectsInvalidKeys(t *testing.T) {
	outputFile(t)

	assert.Error(t, Write(map[string]string{"bad key": "x"}))
	assert.Error(t, Write(map[string]string{"1leading": "x"}))
	assert.NoError(t, Write(map[string]string{"ok-key_2": "x"}))
}

func TestWriteEmptyMapIsNoop(t *testing.T) {
	path := outputFile(t)

	require.NoError(t, Write(nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
