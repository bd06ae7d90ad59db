package snowflake

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AppSpec describes the Streamlit application object to register. It maps
// one-to-one onto the CREATE OR REPLACE STREAMLIT statement.
type AppSpec struct {
	Database       string
	Schema         string
	Name           string
	RootLocation   string // stage reference without the leading @, e.g. DB.SCHEMA.STAGE/prefix
	MainFile       string
	QueryWarehouse string
	Title          string
	Comment        string
}

// Validate checks the spec's identifiers before any SQL is composed.
func (s AppSpec) Validate() error {
	for field, value := range map[string]string{
		"database":  s.Database,
		"schema":    s.Schema,
		"name":      s.Name,
		"warehouse": s.QueryWarehouse,
	} {
		if err := ValidateIdentifier(value); err != nil {
			return fmt.Errorf("app %s: %w", field, err)
		}
	}
	if strings.TrimSpace(s.RootLocation) == "" {
		return fmt.Errorf("app root location is empty")
	}
	if strings.TrimSpace(s.MainFile) == "" {
		return fmt.Errorf("app main file is empty")
	}
	return nil
}

// QualifiedName returns the fully qualified app object name.
func (s AppSpec) QualifiedName() string {
	return QualifiedName(s.Database, s.Schema, s.Name)
}

// BuildCreateStreamlitStatement renders the single declarative statement that
// binds the staged files to the hosted app and its query warehouse.
func BuildCreateStreamlitStatement(spec AppSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE STREAMLIT %s\n", spec.QualifiedName())
	fmt.Fprintf(&b, "  ROOT_LOCATION = %s\n", QuoteLiteral("@"+spec.RootLocation))
	fmt.Fprintf(&b, "  MAIN_FILE = %s\n", QuoteLiteral(spec.MainFile))
	fmt.Fprintf(&b, "  QUERY_WAREHOUSE = %s", spec.QueryWarehouse)
	if spec.Title != "" {
		fmt.Fprintf(&b, "\n  TITLE = %s", QuoteLiteral(spec.Title))
	}
	if spec.Comment != "" {
		fmt.Fprintf(&b, "\n  COMMENT = %s", QuoteLiteral(spec.Comment))
	}
	return b.String(), nil
}

// BuildDropStreamlitStatement renders the statement removing the app object.
func BuildDropStreamlitStatement(database, schema, name string) (string, error) {
	for _, id := range []string{database, schema, name} {
		if err := ValidateIdentifier(id); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("DROP STREAMLIT IF EXISTS %s", QualifiedName(database, schema, name)), nil
}

// BuildShowStreamlitsStatement renders the lookup for a single app object.
// The LIKE pattern treats _ as a wildcard, so callers must still compare the
// returned names exactly.
func BuildShowStreamlitsStatement(database, schema, name string) (string, error) {
	for _, id := range []string{database, schema, name} {
		if err := ValidateIdentifier(id); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("SHOW STREAMLITS LIKE %s IN SCHEMA %s.%s", QuoteLiteral(name), database, schema), nil
}

// BuildCreateStageStatement renders the idempotent stage creation statement.
func BuildCreateStageStatement(database, schema, stage string) (string, error) {
	for _, id := range []string{database, schema, stage} {
		if err := ValidateIdentifier(id); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("CREATE STAGE IF NOT EXISTS %s", QualifiedName(database, schema, stage)), nil
}

// BuildPutStatement renders the upload of one local file into a stage
// directory. AUTO_COMPRESS is off because the app reads the raw .py sources;
// OVERWRITE is on because a re-deploy replaces files in place.
func BuildPutStatement(localAbsPath, stageLocation string) (string, error) {
	if !filepath.IsAbs(localAbsPath) {
		return "", fmt.Errorf("local path %q must be absolute", localAbsPath)
	}
	if strings.TrimSpace(stageLocation) == "" {
		return "", fmt.Errorf("stage location is empty")
	}
	fileURL := "file://" + filepath.ToSlash(localAbsPath)
	return fmt.Sprintf("PUT %s %s AUTO_COMPRESS = FALSE OVERWRITE = TRUE",
		QuoteLiteral(fileURL), QuoteLiteral("@"+stageLocation)), nil
}

// BuildGetStatement renders the download of one staged file into a local
// directory.
func BuildGetStatement(stagePath, localDirAbs string) (string, error) {
	if strings.TrimSpace(stagePath) == "" {
		return "", fmt.Errorf("stage path is empty")
	}
	if !filepath.IsAbs(localDirAbs) {
		return "", fmt.Errorf("local directory %q must be absolute", localDirAbs)
	}
	dirURL := "file://" + filepath.ToSlash(localDirAbs) + "/"
	return fmt.Sprintf("GET %s %s", QuoteLiteral("@"+stagePath), QuoteLiteral(dirURL)), nil
}

// BuildListStatement renders the stage listing for a location.
func BuildListStatement(location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", fmt.Errorf("stage location is empty")
	}
	return fmt.Sprintf("LS %s", QuoteLiteral("@"+location)), nil
}

// BuildRemoveStatement renders the removal of all files under a location.
func BuildRemoveStatement(location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", fmt.Errorf("stage location is empty")
	}
	return fmt.Sprintf("REMOVE %s", QuoteLiteral("@"+location)), nil
}
