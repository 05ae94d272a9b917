package engine

import (
	"context"

	"judgecore/internal/sandbox/result"
	"judgecore/internal/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunReport, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
