// Package config contains the loader and strongly typed model for stagectl.yaml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snowstage/stagectl/internal/env"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// ProjectConfig represents the high-level description of a deployable
// dashboard project. It mirrors the structure of stagectl.yaml after
// template rendering.
type ProjectConfig struct {
	// Version is the config schema version; only 1 is supported.
	Version int `yaml:"version"`
	// Project is the short project name used in logs and history records.
	Project string `yaml:"project"`
	// EnvFiles lists .env files to load before rendering.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// App describes the Streamlit application sources and registration.
	App AppConfig `yaml:"app"`
	// Defaults holds the base warehouse object coordinates.
	Defaults TargetConfig `yaml:"defaults,omitempty"`
	// Environments contains per-environment overrides keyed by name.
	Environments map[string]EnvironmentConfig `yaml:"environments,omitempty"`
	// Hooks defines SQL statements run around a deploy.
	Hooks HooksConfig `yaml:"hooks,omitempty"`
	// History configures the local release history database.
	History HistoryConfig `yaml:"history,omitempty"`
	// Timeouts holds string-form durations for deploy operations.
	Timeouts TimeoutsConfig `yaml:"timeouts,omitempty"`
}

// AppConfig describes the Streamlit application to register.
type AppConfig struct {
	// Name is the Streamlit object name (unquoted identifier).
	Name string `yaml:"name"`
	// Title is the display title shown in the app listing.
	Title string `yaml:"title,omitempty"`
	// Comment is an optional COMMENT attached to the app object.
	Comment string `yaml:"comment,omitempty"`
	// MainFile is the entrypoint file uploaded to the stage root location.
	MainFile string `yaml:"mainFile,omitempty"`
	// SourceDir is the local directory holding the app sources.
	SourceDir string `yaml:"sourceDir,omitempty"`
	// Include lists glob patterns (relative to SourceDir) selecting files
	// to upload. Defaults to the main file plus pages/*.py.
	Include []string `yaml:"include,omitempty"`
}

// TargetConfig holds warehouse object coordinates for a deployment.
type TargetConfig struct {
	// Database is the target database name.
	Database string `yaml:"database,omitempty"`
	// Schema is the target schema name.
	Schema string `yaml:"schema,omitempty"`
	// Stage is the named internal stage receiving the app files.
	Stage string `yaml:"stage,omitempty"`
	// StagePrefix is the path under the stage used as the app root location.
	StagePrefix string `yaml:"stagePrefix,omitempty"`
	// Warehouse is the query warehouse bound to the app.
	Warehouse string `yaml:"warehouse,omitempty"`
	// Role is an optional role assumed for the connection.
	Role string `yaml:"role,omitempty"`
}

// EnvironmentConfig describes per-environment overrides.
type EnvironmentConfig struct {
	// From references another environment to inherit from.
	From string `yaml:"from,omitempty"`
	// TargetConfig fields override the inherited coordinates when set.
	TargetConfig `yaml:",inline"`
	// AppName overrides the registered app object name.
	AppName string `yaml:"appName,omitempty"`
	// TitleSuffix is appended to the app title (e.g. " (staging)").
	TitleSuffix string `yaml:"titleSuffix,omitempty"`
}

// HooksConfig defines SQL statements executed around a deploy.
type HooksConfig struct {
	// PreDeploy statements run before any file is uploaded.
	PreDeploy []string `yaml:"preDeploy,omitempty"`
	// PostDeploy statements run after the app object is registered.
	PostDeploy []string `yaml:"postDeploy,omitempty"`
}

// HistoryConfig configures the local release history database.
type HistoryConfig struct {
	// Path is the SQLite file location; "~" expands to the home directory.
	Path string `yaml:"path,omitempty"`
	// Disabled turns history recording off.
	Disabled bool `yaml:"disabled,omitempty"`
}

// TimeoutsConfig holds string-form durations for deploy operations.
// Empty values fall back to built-in defaults in the CLI.
type TimeoutsConfig struct {
	// Deploy is the overall timeout for a deploy run (e.g. "10m").
	Deploy string `yaml:"deploy,omitempty"`
}

// ResolvedTarget is the effective deployment target for one environment
// after Defaults and environment inheritance have been applied.
type ResolvedTarget struct {
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
	SourceDir   string
	Include     []string
}

// LoadOptions describes parameters that influence template rendering of stagectl.yaml.
type LoadOptions struct {
	// Env is the target environment name (may be empty for pure defaults).
	Env string
	// UserVars are inline variables for template rendering.
	UserVars env.Vars
	// VarFiles lists additional var-files to load.
	VarFiles []string
	// EnvFiles lists additional .env files beyond those named in the config.
	EnvFiles []string
}

// TemplateContext represents the data exposed to Go templates when
// rendering stagectl.yaml and hook statements.
type TemplateContext struct {
	// Env is the selected environment name.
	Env string
	// Project is the project identifier from the config header.
	Project string
	// ProjectRoot is the path to the directory containing the config file.
	ProjectRoot string
	// Now is the timestamp captured for template rendering.
	Now time.Time
	// UserVars contains inline user variables.
	UserVars env.Vars
	// EnvMap merges OS env, envFiles, var-files and user variables.
	EnvMap env.Vars
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	Project  string   `yaml:"project"`
	EnvFiles []string `yaml:"envFiles"`
}

// LoadAndRender reads stagectl.yaml, loads envFiles and user vars, and
// returns rendered YAML bytes together with the template context used.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if path == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	osVars := env.FromOS()

	// A .env next to the config is picked up automatically; listed
	// envFiles override it.
	defaultEnvVars, err := env.LoadDefaultEnvFile(baseDir)
	if err != nil {
		return nil, zeroCtx, err
	}

	envFileNames := append(append([]string{}, header.EnvFiles...), opts.EnvFiles...)
	envFileVars, err := env.LoadEnvFiles(baseDir, envFileNames)
	if err != nil {
		return nil, zeroCtx, err
	}

	varFileVars := make(env.Vars)
	for _, vf := range opts.VarFiles {
		if strings.TrimSpace(vf) == "" {
			continue
		}
		vp, err := env.LoadVarFile(vf)
		if err != nil {
			return nil, zeroCtx, fmt.Errorf("load var-file %q: %w", vf, err)
		}
		varFileVars = env.Merge(varFileVars, vp)
	}

	ctx := TemplateContext{
		Env:         opts.Env,
		Project:     header.Project,
		ProjectRoot: baseDir,
		Now:         time.Now().UTC(),
		UserVars:    opts.UserVars,
		EnvMap:      env.Merge(osVars, defaultEnvVars, envFileVars, varFileVars, opts.UserVars),
	}

	rendered, err := RenderTemplate(filepath.Base(absPath), rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}

	return rendered, ctx, nil
}

// LoadProjectConfig loads, templates, parses and validates stagectl.yaml.
func LoadProjectConfig(path string, opts LoadOptions) (*ProjectConfig, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	cfg, err := ParseProjectConfig(rendered)
	if err != nil {
		return nil, TemplateContext{}, fmt.Errorf("parse rendered %s: %w", filepath.Base(path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}

	return cfg, ctx, nil
}

// ParseProjectConfig strictly decodes rendered YAML into a ProjectConfig
// and applies field defaults. Unknown fields are rejected.
func ParseProjectConfig(rendered []byte) (*ProjectConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(rendered))
	dec.KnownFields(true)

	var cfg ProjectConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills optional fields with their documented defaults.
func (c *ProjectConfig) applyDefaults() {
	if c.App.MainFile == "" {
		c.App.MainFile = "Main.py"
	}
	if c.App.SourceDir == "" {
		c.App.SourceDir = "."
	}
	if len(c.App.Include) == 0 {
		c.App.Include = []string{c.App.MainFile, "pages/*.py"}
	}
	if c.Defaults.Schema == "" {
		c.Defaults.Schema = "PUBLIC"
	}
	if c.Defaults.StagePrefix == "" {
		c.Defaults.StagePrefix = "streamlit"
	}
	if c.History.Path == "" {
		c.History.Path = "~/.stagectl/history.db"
	}
}

// Validate checks the configuration for structural problems that would
// otherwise surface as malformed SQL much later.
func (c *ProjectConfig) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version %d (expected 1)", c.Version)
	}
	if strings.TrimSpace(c.App.Name) == "" {
		return fmt.Errorf("app.name must be set")
	}
	if strings.TrimSpace(c.App.MainFile) == "" {
		return fmt.Errorf("app.mainFile must not be empty")
	}

	if err := validateIdentifiers("app", map[string]string{"name": c.App.Name}); err != nil {
		return err
	}
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}

	for name, envCfg := range c.Environments {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("environments contains an entry with an empty name")
		}
		prefix := fmt.Sprintf("environments.%s", name)
		if err := envCfg.TargetConfig.validate(prefix); err != nil {
			return err
		}
		if envCfg.AppName != "" {
			if err := validateIdentifiers(prefix, map[string]string{"appName": envCfg.AppName}); err != nil {
				return err
			}
		}
		if envCfg.From != "" {
			if _, ok := c.Environments[envCfg.From]; !ok {
				return fmt.Errorf("%s.from references unknown environment %q", prefix, envCfg.From)
			}
		}
	}

	for i, stmt := range c.Hooks.PreDeploy {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("hooks.preDeploy[%d] is empty", i)
		}
	}
	for i, stmt := range c.Hooks.PostDeploy {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("hooks.postDeploy[%d] is empty", i)
		}
	}

	return nil
}

// validate checks the identifier fields of a TargetConfig block.
func (t TargetConfig) validate(prefix string) error {
	fields := map[string]string{
		"database":  t.Database,
		"schema":    t.Schema,
		"stage":     t.Stage,
		"warehouse": t.Warehouse,
		"role":      t.Role,
	}
	for field, value := range fields {
		if value == "" {
			continue
		}
		if err := snowflake.ValidateIdentifier(value); err != nil {
			return fmt.Errorf("%s.%s: %w", prefix, field, err)
		}
	}
	if t.StagePrefix != "" {
		if err := snowflake.ValidateStagePath(t.StagePrefix); err != nil {
			return fmt.Errorf("%s.stagePrefix: %w", prefix, err)
		}
	}
	return nil
}

func validateIdentifiers(prefix string, fields map[string]string) error {
	for field, value := range fields {
		if err := snowflake.ValidateIdentifier(value); err != nil {
			return fmt.Errorf("%s.%s: %w", prefix, field, err)
		}
	}
	return nil
}

// ResolveEnvironment returns the effective deployment target for the given
// environment name, following optional "from" links and applying overrides.
// An empty name resolves to the bare Defaults block.
func ResolveEnvironment(cfg *ProjectConfig, name string) (ResolvedTarget, error) {
	if cfg == nil {
		return ResolvedTarget{}, fmt.Errorf("project config is nil")
	}

	target := ResolvedTarget{
		Env:         name,
		Database:    cfg.Defaults.Database,
		Schema:      cfg.Defaults.Schema,
		Stage:       cfg.Defaults.Stage,
		StagePrefix: cfg.Defaults.StagePrefix,
		Warehouse:   cfg.Defaults.Warehouse,
		Role:        cfg.Defaults.Role,
		AppName:     cfg.App.Name,
		Title:       cfg.App.Title,
		Comment:     cfg.App.Comment,
		MainFile:    cfg.App.MainFile,
		SourceDir:   cfg.App.SourceDir,
		Include:     append([]string{}, cfg.App.Include...),
	}

	if name == "" {
		return target, nil
	}
	if len(cfg.Environments) == 0 {
		return ResolvedTarget{}, fmt.Errorf("environment %q requested but no environments are defined", name)
	}

	chain, err := environmentChain(cfg, name)
	if err != nil {
		return ResolvedTarget{}, err
	}

	for _, envCfg := range chain {
		target.apply(envCfg)
	}
	return target, nil
}

// environmentChain returns the inheritance chain for name ordered from the
// root ancestor to the named environment itself.
func environmentChain(cfg *ProjectConfig, name string) ([]EnvironmentConfig, error) {
	var chain []EnvironmentConfig
	visited := make(map[string]struct{})

	current := name
	for current != "" {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("environment inheritance cycle detected at %q", current)
		}
		visited[current] = struct{}{}

		envCfg, ok := cfg.Environments[current]
		if !ok {
			return nil, fmt.Errorf("environment %q not defined (known: %s)", current, knownEnvironments(cfg))
		}
		chain = append([]EnvironmentConfig{envCfg}, chain...)
		current = envCfg.From
	}
	return chain, nil
}

// apply overlays non-empty override fields onto the target.
func (t *ResolvedTarget) apply(envCfg EnvironmentConfig) {
	if envCfg.Database != "" {
		t.Database = envCfg.Database
	}
	if envCfg.Schema != "" {
		t.Schema = envCfg.Schema
	}
	if envCfg.Stage != "" {
		t.Stage = envCfg.Stage
	}
	if envCfg.StagePrefix != "" {
		t.StagePrefix = envCfg.StagePrefix
	}
	if envCfg.Warehouse != "" {
		t.Warehouse = envCfg.Warehouse
	}
	if envCfg.Role != "" {
		t.Role = envCfg.Role
	}
	if envCfg.AppName != "" {
		t.AppName = envCfg.AppName
	}
	if envCfg.TitleSuffix != "" {
		t.Title += envCfg.TitleSuffix
	}
}

// EnvironmentNames returns the configured environment names in sorted order.
func (c *ProjectConfig) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func knownEnvironments(cfg *ProjectConfig) string {
	names := cfg.EnvironmentNames()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// ResolvedPath expands a leading "~" in the history path.
func (h HistoryConfig) ResolvedPath() (string, error) {
	path := h.Path
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory for history path: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// RenderTemplate renders YAML or SQL content using the template context and helpers.
func RenderTemplate(name string, raw []byte, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(buildFuncMap(ctx)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

// buildFuncMap constructs the template functions available in stagectl.yaml and hooks.
func buildFuncMap(ctx TemplateContext) template.FuncMap {
	return template.FuncMap{
		"default":    funcDefault,
		"lower":      strings.ToLower,
		"upper":      strings.ToUpper,
		"slug":       funcSlug,
		"envOr":      funcEnvOr(ctx.EnvMap),
		"ternary":    funcTernary,
		"now":        func() time.Time { return ctx.Now },
		"join":       funcJoin,
		"trimPrefix": funcTrimPrefix,
	}
}

// funcDefault returns def when value is empty or whitespace, otherwise value.
func funcDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// funcSlug normalizes a value into a lower-case dash-separated slug.
func funcSlug(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "-")
	v = strings.ReplaceAll(v, "_", "-")
	return v
}

// funcEnvOr returns a function that looks up a key in envMap and falls back to def.
func funcEnvOr(envMap env.Vars) func(key, def string) string {
	return func(key, def string) string {
		if v, ok := envMap[key]; ok && v != "" {
			return v
		}
		return def
	}
}

// funcTernary returns a when cond is true, otherwise b.
func funcTernary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

// funcJoin joins a slice of strings with the given separator.
func funcJoin(values []string, sep string) string {
	return strings.Join(values, sep)
}

// funcTrimPrefix removes the prefix from value when present.
func funcTrimPrefix(value, prefix string) string {
	return strings.TrimPrefix(value, prefix)
}
