package client

import (
	"context"
	"log/slog"
)

// stage is one step of an operation.
type stage struct {
	name string
	run  func(ctx context.Context) error
}

// runStages runs stages in order and stops at the first failure. The
// context is checked before each stage, so cancellation is reported
// against the stage that did not start.
func runStages(ctx context.Context, logger *slog.Logger, op string, stages ...stage) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Op: op, Stage: s.name, Err: err}
		}
		if err := s.run(ctx); err != nil {
			logger.Warn("stage failed", "op", op, "stage", s.name, "error", err)
			return &StageError{Op: op, Stage: s.name, Err: err}
		}
		logger.Debug("stage complete", "op", op, "stage", s.name)
	}
	return nil
}
