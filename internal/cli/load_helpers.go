package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/snowstage/stagectl/internal/config"
	"github.com/snowstage/stagectl/internal/engine"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// project bundles everything a command derives from stagectl.yaml for the
// selected environment.
type project struct {
	cfg      *config.ProjectConfig
	tmplCtx  config.TemplateContext
	resolved config.ResolvedTarget
	target   engine.Target
}

// loadProject reads and renders the config, resolves the selected
// environment, and builds the deployment target.
func loadProject(opts *Options, cmd *cobra.Command) (*project, error) {
	inlineVars, varFiles, envFiles, err := parseInlineVarsAndFiles(cmd)
	if err != nil {
		return nil, err
	}

	cfg, tmplCtx, err := config.LoadProjectConfig(opts.ConfigPath, config.LoadOptions{
		Env:      opts.Env,
		UserVars: inlineVars,
		VarFiles: varFiles,
		EnvFiles: envFiles,
	})
	if err != nil {
		return nil, err
	}

	resolved, err := config.ResolveEnvironment(cfg, opts.Env)
	if err != nil {
		return nil, err
	}

	return &project{
		cfg:      cfg,
		tmplCtx:  tmplCtx,
		resolved: resolved,
		target:   engine.TargetFromResolved(cfg.Project, resolved),
	}, nil
}

// sourceDir resolves the app source directory relative to the config file.
func (p *project) sourceDir() string {
	dir := p.resolved.SourceDir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(p.tmplCtx.ProjectRoot, dir)
	}
	return dir
}

// discoverBundle finds and hashes the local app sources.
func (p *project) discoverBundle() (*engine.Bundle, error) {
	return engine.DiscoverBundle(p.sourceDir(), p.resolved.MainFile, p.resolved.Include)
}

// connect parses SNOWFLAKE_* credentials, overlays the target coordinates,
// and opens a verified warehouse connection.
func (p *project) connect(ctx context.Context, logger *slog.Logger) (*snowflake.Client, error) {
	connCfg, err := snowflake.ParseConnConfig(os.Environ())
	if err != nil {
		return nil, err
	}
	connCfg = connCfg.WithTarget(p.target.Database, p.target.Schema, p.target.Warehouse, p.target.Role)
	return snowflake.Connect(ctx, connCfg, logger)
}
