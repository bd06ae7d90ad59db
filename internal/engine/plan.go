package engine

import (
	"fmt"
	"strings"

	"github.com/snowstage/stagectl/internal/differ"
	"github.com/snowstage/stagectl/internal/manifest"
	"github.com/snowstage/stagectl/internal/snowflake"
)

// FileOp classifies what a deploy does with one file.
type FileOp string

const (
	// OpUpload uploads the local file to the stage.
	OpUpload FileOp = "upload"
	// OpDelete removes the staged file because it is gone locally.
	OpDelete FileOp = "delete"
	// OpSkip leaves the staged file untouched.
	OpSkip FileOp = "skip"
)

// FileAction is one planned file operation.
type FileAction struct {
	// Path is the slash-separated path relative to the app root.
	Path string
	// Op is what the deploy does with the file.
	Op FileOp
	// Size is the local file size in bytes (zero for deletes).
	Size int64
	// Reason explains the classification (added, modified, forced, ...).
	Reason string
}

// PlanOptions tune how a plan is built.
type PlanOptions struct {
	// Force re-uploads every file and re-issues the app statement.
	Force bool
	// Only restricts uploads to paths matching one of these fragments.
	Only []string
	// Skip excludes paths matching one of these fragments from upload.
	Skip []string
	// NoHooks drops pre/post deploy hooks from the plan.
	NoHooks bool
	// PreHooks and PostHooks are the rendered hook statements.
	PreHooks  []string
	PostHooks []string
}

// Plan is everything a deploy would do, built without touching the
// warehouse so dry runs and previews show the exact statements.
type Plan struct {
	Target  Target
	Bundle  *Bundle
	Remote  *manifest.Manifest
	Diff    differ.Result
	Actions []FileAction

	// RunApp reports whether the app statement must be issued.
	RunApp bool
	// AppReason explains why the app statement runs or is skipped.
	AppReason string

	PreHooks  []string
	PostHooks []string

	// Statements is the full SQL preview in execution order.
	Statements []string
}

// BuildPlan diffs the bundle against the remote manifest and derives the
// ordered set of operations a deploy would run. remote may be nil (first
// deploy).
func BuildPlan(bundle *Bundle, remote *manifest.Manifest, target Target, opts PlanOptions) (*Plan, error) {
	if bundle == nil {
		return nil, fmt.Errorf("bundle is nil")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	diff := differ.Compare(bundleRecords(bundle), manifestRecords(remote))

	plan := &Plan{
		Target: target,
		Bundle: bundle,
		Remote: remote,
		Diff:   diff,
	}
	if !opts.NoHooks {
		plan.PreHooks = append(plan.PreHooks, opts.PreHooks...)
		plan.PostHooks = append(plan.PostHooks, opts.PostHooks...)
	}

	filtered := func(path string) bool {
		return !pathSelected(path, opts.Only, opts.Skip)
	}

	appendUploads := func(entries []differ.Entry, reason string) {
		for _, e := range entries {
			if filtered(e.Path) {
				plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpSkip, Size: e.Size, Reason: "filtered"})
				continue
			}
			plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpUpload, Size: e.Size, Reason: reason})
		}
	}

	appendUploads(diff.Diff.Added, "added")
	appendUploads(diff.Diff.Modified, "modified")
	for _, e := range diff.Diff.Unchanged {
		if opts.Force && !filtered(e.Path) {
			plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpUpload, Size: e.Size, Reason: "forced"})
			continue
		}
		plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpSkip, Size: e.Size, Reason: "unchanged"})
	}
	for _, e := range diff.Diff.Removed {
		if filtered(e.Path) {
			plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpSkip, Size: e.Size, Reason: "filtered"})
			continue
		}
		plan.Actions = append(plan.Actions, FileAction{Path: e.Path, Op: OpDelete, Reason: "removed"})
	}

	plan.RunApp, plan.AppReason = appDecision(remote, target, opts.Force, plan.Uploads() > 0 || plan.Deletes() > 0)

	stmts, err := planStatements(plan)
	if err != nil {
		return nil, err
	}
	plan.Statements = stmts

	return plan, nil
}

// bundleRecords converts bundle files into differ input.
func bundleRecords(b *Bundle) []differ.FileRecord {
	out := make([]differ.FileRecord, 0, len(b.Files))
	for _, f := range b.Files {
		out = append(out, differ.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}
	return out
}

// manifestRecords converts manifest files into differ input.
func manifestRecords(m *manifest.Manifest) []differ.FileRecord {
	if m == nil {
		return nil
	}
	out := make([]differ.FileRecord, 0, len(m.Files))
	for _, f := range m.Files {
		out = append(out, differ.FileRecord{Path: f.Path, SHA256: f.SHA256, Size: f.Size})
	}
	return out
}

// Uploads counts planned uploads.
func (p *Plan) Uploads() int { return p.countOp(OpUpload) }

// Deletes counts planned stage removals.
func (p *Plan) Deletes() int { return p.countOp(OpDelete) }

func (p *Plan) countOp(op FileOp) int {
	n := 0
	for _, a := range p.Actions {
		if a.Op == op {
			n++
		}
	}
	return n
}

// UploadBytes sums the sizes of planned uploads.
func (p *Plan) UploadBytes() int64 {
	var total int64
	for _, a := range p.Actions {
		if a.Op == OpUpload {
			total += a.Size
		}
	}
	return total
}

// Clean reports whether the plan changes nothing.
func (p *Plan) Clean() bool {
	return p.Uploads() == 0 && p.Deletes() == 0 && !p.RunApp
}

// appDecision decides whether the app statement runs. The statement is
// cheap but not free, so unchanged deploys skip it unless forced.
func appDecision(remote *manifest.Manifest, target Target, force, filesChanged bool) (bool, string) {
	switch {
	case force:
		return true, "forced"
	case remote == nil:
		return true, "first deploy"
	case filesChanged:
		return true, "files changed"
	case appConfigChanged(remote, target):
		return true, "app configuration changed"
	default:
		return false, "up to date"
	}
}

// appConfigChanged reports whether the app statement inputs recorded at the
// last deploy differ from the current target.
func appConfigChanged(remote *manifest.Manifest, target Target) bool {
	if remote == nil {
		return true
	}
	return remote.App != target.AppName ||
		remote.Warehouse != target.Warehouse ||
		remote.MainFile != target.MainFile
}

// pathSelected applies --only/--skip fragments to a slash path. Matching is
// a case-insensitive substring test, which covers both full paths and bare
// file names like "Main.py".
func pathSelected(path string, only, skip []string) bool {
	lower := strings.ToLower(path)
	for _, frag := range skip {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" && strings.Contains(lower, frag) {
			return false
		}
	}
	if len(only) == 0 {
		return true
	}
	for _, frag := range only {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" && strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// planStatements renders the SQL preview in the order Execute issues it.
// The same builders back both paths, so the preview is byte-identical to
// what a deploy runs.
func planStatements(plan *Plan) ([]string, error) {
	t := plan.Target
	var stmts []string

	stmt, err := snowflake.BuildCreateStageStatement(t.Database, t.Schema, t.Stage)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, stmt)

	stmts = append(stmts, plan.PreHooks...)

	for _, action := range plan.Actions {
		switch action.Op {
		case OpUpload:
			put, err := snowflake.BuildPutStatement(plan.Bundle.LocalPath(action.Path), uploadLocation(t, action.Path))
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, put)
		case OpDelete:
			rm, err := snowflake.BuildRemoveStatement(t.StageDir() + "/" + action.Path)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, rm)
		}
	}

	if plan.RunApp {
		app, err := snowflake.BuildCreateStreamlitStatement(t.AppSpec())
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, app)
	}

	stmts = append(stmts, plan.PostHooks...)

	return stmts, nil
}

// uploadLocation returns the stage directory a file uploads into. PUT names
// files after their local base name, so nested paths keep their directory
// part in the location.
func uploadLocation(t Target, relPath string) string {
	dir := t.StageDir()
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		dir += "/" + relPath[:idx]
	}
	return dir
}
