//go:build !linux

package engine

import (
	"context"

	"judgecore/internal/sandbox/result"
	"judgecore/internal/sandbox/spec"
	apperrors "judgecore/pkg/errors"
)

type stubEngine struct{}

// NewEngine on non-Linux hosts returns an engine that fails every Run call
// immediately, matching spec §6's "Missing primitives → Sandbox init fails
// fast with InternalError" requirement.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunReport, error) {
	return result.RunReport{}, apperrors.New(apperrors.JudgeSystemError).
		WithMessage("sandbox engine requires linux namespaces and cgroup v2")
}

func (s *stubEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return apperrors.New(apperrors.JudgeSystemError).
		WithMessage("sandbox engine requires linux namespaces and cgroup v2")
}
