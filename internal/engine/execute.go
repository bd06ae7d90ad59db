package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snowstage/stagectl/internal/hooks"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// StageClient is the slice of the warehouse client Execute needs. Tests
// swap in a recorder.
type StageClient interface {
	CreateStage(ctx context.Context, database, schema, stage string) error
	PutFile(ctx context.Context, localPath, stageLocation string) error
	RemoveStagePath(ctx context.Context, location string) error
	CreateOrReplaceStreamlit(ctx context.Context, spec snowflake.AppSpec) error
}

// ExecuteOptions carries the identity recorded in the manifest.
type ExecuteOptions struct {
	// ReleaseID identifies this deploy in the manifest and history.
	ReleaseID string
	// DeployedBy is the user recorded in the manifest.
	DeployedBy string
}

// Result summarizes what a deploy did.
type Result struct {
	ReleaseID       string
	FilesUploaded   int
	FilesRemoved    int
	BytesUploaded   int64
	AppStatementRan bool
	// PostHookError is set when the deploy succeeded but a post-deploy
	// hook failed afterwards; the app is live in that case.
	PostHookError error
}

// Executor runs a plan against the warehouse in a fixed order: ensure
// stage, pre-deploy hooks, uploads, deletes, app statement, manifest,
// post-deploy hooks. The warehouse DDL is not transactional, so the first
// error aborts with whatever already ran left in place.
type Executor struct {
	client    StageClient
	hooks     *hooks.Executor
	manifests *manifest.Store
	logger    *slog.Logger
}

// NewExecutor constructs an Executor. hookExec and manifests may be nil when
// the plan carries no hooks or no manifest should be written.
func NewExecutor(client StageClient, hookExec *hooks.Executor, manifests *manifest.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, hooks: hookExec, manifests: manifests, logger: logger}
}

// Execute runs the plan. It returns a Result on success; when a post-deploy
// hook fails the Result is still returned with PostHookError set, because
// the app statement has already run.
func (e *Executor) Execute(ctx context.Context, plan *Plan, opts ExecuteOptions) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	t := plan.Target

	if err := e.client.CreateStage(ctx, t.Database, t.Schema, t.Stage); err != nil {
		return nil, fmt.Errorf("ensure stage %s: %w", snowflake.QualifiedName(t.Database, t.Schema, t.Stage), err)
	}

	if len(plan.PreHooks) > 0 {
		if e.hooks == nil {
			return nil, fmt.Errorf("plan carries pre-deploy hooks but no hook executor is configured")
		}
		if err := e.hooks.RunPre(ctx, plan.PreHooks); err != nil {
			return nil, err
		}
	}

	result := &Result{ReleaseID: opts.ReleaseID}
	for _, action := range plan.Actions {
		switch action.Op {
		case OpUpload:
			e.logger.Info("uploading file", "path", action.Path, "size", action.Size, "reason", action.Reason)
			if err := e.client.PutFile(ctx, plan.Bundle.LocalPath(action.Path), uploadLocation(t, action.Path)); err != nil {
				return nil, fmt.Errorf("upload %q: %w", action.Path, err)
			}
			result.FilesUploaded++
			result.BytesUploaded += action.Size
		case OpDelete:
			e.logger.Info("removing staged file", "path", action.Path)
			if err := e.client.RemoveStagePath(ctx, t.StageDir()+"/"+action.Path); err != nil {
				return nil, fmt.Errorf("remove staged %q: %w", action.Path, err)
			}
			result.FilesRemoved++
		}
	}

	if plan.RunApp {
		e.logger.Info("registering app", "app", t.QualifiedApp(), "warehouse", t.Warehouse, "reason", plan.AppReason)
		if err := e.client.CreateOrReplaceStreamlit(ctx, t.AppSpec()); err != nil {
			return nil, fmt.Errorf("register app %s: %w", t.QualifiedApp(), err)
		}
		result.AppStatementRan = true
	} else {
		e.logger.Info("app statement skipped", "app", t.QualifiedApp(), "reason", plan.AppReason)
	}

	if e.manifests != nil {
		m := buildManifest(plan, opts)
		if err := e.manifests.Save(ctx, t.StageDir(), m); err != nil {
			return nil, err
		}
	}

	if len(plan.PostHooks) > 0 {
		if e.hooks == nil {
			return nil, fmt.Errorf("plan carries post-deploy hooks but no hook executor is configured")
		}
		if err := e.hooks.RunPost(ctx, plan.PostHooks); err != nil {
			result.PostHookError = err
			return result, nil
		}
	}

	return result, nil
}

// buildManifest records what is actually on the stage after this deploy:
// local digests for uploaded and unchanged files, the previous record for
// files a --only/--skip filter held back, and nothing for deleted files.
func buildManifest(plan *Plan, opts ExecuteOptions) *manifest.Manifest {
	t := plan.Target

	localByPath := make(map[string]File, len(plan.Bundle.Files))
	for _, f := range plan.Bundle.Files {
		localByPath[f.Path] = f
	}
	var remoteByPath map[string]manifest.FileRecord
	if plan.Remote != nil {
		remoteByPath = make(map[string]manifest.FileRecord, len(plan.Remote.Files))
		for _, f := range plan.Remote.Files {
			remoteByPath[f.Path] = f
		}
	}

	var files []manifest.FileRecord
	for _, action := range plan.Actions {
		switch action.Op {
		case OpUpload:
			f := localByPath[action.Path]
			files = append(files, manifest.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
		case OpSkip:
			if action.Reason == "filtered" {
				if prev, ok := remoteByPath[action.Path]; ok {
					files = append(files, prev)
				}
				continue
			}
			f := localByPath[action.Path]
			files = append(files, manifest.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
		}
	}

	return &manifest.Manifest{
		SchemaVersion: manifest.SchemaVersion,
		Project:       t.Project,
		Env:           t.Env,
		App:           t.AppName,
		ReleaseID:     opts.ReleaseID,
		DeployedAt:    time.Now().UTC(),
		DeployedBy:    opts.DeployedBy,
		Warehouse:     t.Warehouse,
		MainFile:      t.MainFile,
		Files:         files,
	}
}
