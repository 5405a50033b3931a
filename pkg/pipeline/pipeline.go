package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Stage is one retrieval pipeline step. Stages run sequentially; each sees
// every earlier stage's writes to the Context.
type Stage interface {
	// Name identifies the stage in logs and errors.
	Name() string

	// Run executes the stage against the shared per-query context.
	Run(ctx context.Context, p *Context) error
}

// Skippable is implemented by stages that can opt out for a given query.
type Skippable interface {
	ShouldSkip(p *Context) bool
}

// StageError wraps a stage failure. The pipeline aborts on the first one;
// partially built context is discarded by the caller.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline is an ordered stage list.
type Pipeline struct {
	stages []Stage
}

// New returns a pipeline over the given stages.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes the stages in order. A skipped stage logs and passes
// through; a failed stage aborts with a *StageError.
func (p *Pipeline) Run(ctx context.Context, pctx *Context) error {
	for _, stage := range p.stages {
		if s, ok := stage.(Skippable); ok && s.ShouldSkip(pctx) {
			slog.Debug("Skipping pipeline stage", "stage", stage.Name())
			continue
		}
		if err := stage.Run(ctx, pctx); err != nil {
			return &StageError{Stage: stage.Name(), Err: err}
		}
	}
	return nil
}
