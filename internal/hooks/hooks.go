// Package hooks runs the pre- and post-deploy SQL statements configured in
// stagectl.yaml. Statements arrive already template-rendered.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SQLRunner executes a single statement against the warehouse.
type SQLRunner interface {
	Exec(ctx context.Context, query string) error
}

// Executor runs hook statements in order.
type Executor struct {
	runner SQLRunner
	logger *slog.Logger
}

// NewExecutor constructs an Executor over the given runner.
func NewExecutor(runner SQLRunner, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, logger: logger}
}

// RunPre runs pre-deploy statements. The first failure aborts, so a failed
// pre-hook stops the deploy before any file moves.
func (e *Executor) RunPre(ctx context.Context, statements []string) error {
	return e.run(ctx, "pre-deploy", statements)
}

// RunPost runs post-deploy statements. Callers treat a failure here as a
// failed release even though the app statement has already run.
func (e *Executor) RunPost(ctx context.Context, statements []string) error {
	return e.run(ctx, "post-deploy", statements)
}

func (e *Executor) run(ctx context.Context, phase string, statements []string) error {
	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			return fmt.Errorf("%s hook %d is empty", phase, i+1)
		}
		e.logger.Info("running hook", "phase", phase, "index", i+1, "total", len(statements))
		if err := e.runner.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s hook %d: %w", phase, i+1, err)
		}
	}
	return nil
}
