package snowflake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"A", "APP_STAGE", "my_db", "_internal", "X$1", "Dashboard2"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "  ", "1abc", "my-db", "my db", `my"db`, "a.b", "db;DROP"}
	for _, name := range invalid {
		assert.Error(t, ValidateIdentifier(name), name)
	}
}

func TestValidateIdentifierLength(t *testing.T) {
	assert.NoError(t, ValidateIdentifier(strings.Repeat("A", 255)))
	assert.Error(t, ValidateIdentifier(strings.Repeat("A", 256)))
}

func TestValidateStagePath(t *testing.T) {
	assert.NoError(t, ValidateStagePath("streamlit"))
	assert.NoError(t, ValidateStagePath("apps/dashboard/v2"))
	assert.NoError(t, ValidateStagePath("a-b_c.d"))

	assert.Error(t, ValidateStagePath(""))
	assert.Error(t, ValidateStagePath("/rooted"))
	assert.Error(t, ValidateStagePath("trailing/"))
	assert.Error(t, ValidateStagePath("a/../b"))
	assert.Error(t, ValidateStagePath("a/./b"))
	assert.Error(t, ValidateStagePath("a/b c"))
	assert.Error(t, ValidateStagePath("a/'b"))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'plain'`, QuoteLiteral("plain"))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
	assert.Equal(t, `'a\\b'`, QuoteLiteral(`a\b`))
}

func TestStageLocation(t *testing.T) {
	require.Equal(t, "DB.PUBLIC.S/prefix", StageLocation("DB", "PUBLIC", "S", "prefix"))
	require.Equal(t, "DB.PUBLIC.S", StageLocation("DB", "PUBLIC", "S", ""))
}
