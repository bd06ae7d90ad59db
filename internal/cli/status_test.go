package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageRelativePath(t *testing.T) {
	// LS reports names relative to the stage's parent, starting with the
	// lower-cased stage name.
	assert.Equal(t, "Main.py",
		stageRelativePath("DB.PUBLIC.APP_STAGE/streamlit", "app_stage/streamlit/Main.py"))
	assert.Equal(t, "pages/01_sales.py",
		stageRelativePath("DB.PUBLIC.APP_STAGE/streamlit", "app_stage/streamlit/pages/01_sales.py"))
	assert.Equal(t, ".stagectl/manifest.json",
		stageRelativePath("DB.PUBLIC.APP_STAGE/streamlit", "app_stage/streamlit/.stagectl/manifest.json"))

	// No prefix component.
	assert.Equal(t, "Main.py", stageRelativePath("DB.PUBLIC.APP_STAGE", "app_stage/Main.py"))

	// Entries outside the app root resolve to empty.
	assert.Empty(t, stageRelativePath("DB.PUBLIC.APP_STAGE/streamlit", "app_stage/other/Main.py"))
	assert.Empty(t, stageRelativePath("DB.PUBLIC.APP_STAGE/streamlit", "unrelated/Main.py"))
}
