package engine

import (
	"github.com/snowstage/stagectl/internal/config"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// Target is the fully resolved set of coordinates a deploy operates on.
type Target struct {
	Project     string
	Env         string
	Database    string
	Schema      string
	Stage       string
	StagePrefix string
	Warehouse   string
	Role        string
	AppName     string
	Title       string
	Comment     string
	MainFile    string
}

// TargetFromResolved builds a Target from a resolved environment.
func TargetFromResolved(project string, rt config.ResolvedTarget) Target {
	return Target{
		Project:     project,
		Env:         rt.Env,
		Database:    rt.Database,
		Schema:      rt.Schema,
		Stage:       rt.Stage,
		StagePrefix: rt.StagePrefix,
		Warehouse:   rt.Warehouse,
		Role:        rt.Role,
		AppName:     rt.AppName,
		Title:       rt.Title,
		Comment:     rt.Comment,
		MainFile:    rt.MainFile,
	}
}

// StageDir returns the stage location DB.SCHEMA.STAGE/prefix without the
// leading @, the form the statement builders expect.
func (t Target) StageDir() string {
	return snowflake.StageLocation(t.Database, t.Schema, t.Stage, t.StagePrefix)
}

// RootLocation returns the stage reference used as the app root location.
func (t Target) RootLocation() string {
	return "@" + t.StageDir()
}

// QualifiedApp returns the fully qualified app object name.
func (t Target) QualifiedApp() string {
	return snowflake.QualifiedName(t.Database, t.Schema, t.AppName)
}

// AppSpec translates the target into the declarative app statement input.
func (t Target) AppSpec() snowflake.AppSpec {
	return snowflake.AppSpec{
		Database:       t.Database,
		Schema:         t.Schema,
		Name:           t.AppName,
		RootLocation:   t.StageDir(),
		MainFile:       t.MainFile,
		QueryWarehouse: t.Warehouse,
		Title:          t.Title,
		Comment:        t.Comment,
	}
}

// Validate checks that every coordinate required for a deploy is present
// and a legal identifier.
func (t Target) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"database", t.Database},
		{"schema", t.Schema},
		{"stage", t.Stage},
		{"warehouse", t.Warehouse},
		{"app name", t.AppName},
	}
	for _, f := range fields {
		if err := snowflake.ValidateIdentifier(f.value); err != nil {
			return &TargetError{Field: f.name, Err: err}
		}
	}
	if t.StagePrefix != "" {
		if err := snowflake.ValidateStagePath(t.StagePrefix); err != nil {
			return &TargetError{Field: "stage prefix", Err: err}
		}
	}
	return nil
}

// TargetError reports which target coordinate failed validation.
type TargetError struct {
	Field string
	Err   error
}

func (e *TargetError) Error() string {
	return "target " + e.Field + ": " + e.Err.Error()
}

func (e *TargetError) Unwrap() error { return e.Err }
