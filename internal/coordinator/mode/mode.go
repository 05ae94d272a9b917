// Package mode implements the per-QuestionType verdict algorithm the
// Coordinator dispatches to once compilation succeeds. The three modes are
// a closed set (model.QuestionTypeName), so selection is a plain switch
// rather than a registry.
package mode

import (
	"context"
	"strings"

	"judgecore/internal/executor"
	"judgecore/internal/model"
	"judgecore/internal/sandbox/profile"
	"judgecore/internal/sandbox/result"
	appErr "judgecore/pkg/errors"
)

// runner abstracts the one sandboxed operation a mode executor needs, so
// tests can substitute a fake instead of a real *executor.Executor.
type runner interface {
	Run(ctx context.Context, req executor.RunRequest) (result.RunReport, error)
}

// Job carries everything a mode executor needs for one submission: the
// already-compiled artifact, the problem's limits, and its ordered test
// cases.
type Job struct {
	SubmissionID string
	ArtifactPath string
	SourceText   string
	Language     model.Language
	Problem      model.Problem
	TestCases    []model.TestCase
	WorkDir      string
	Profile      profile.TaskProfile
}

// Outcome is a mode executor's verdict: the submission-level verdict, the
// per-test rows to persist, and the aggregated time/memory per spec §4.5's
// numeric semantics.
type Outcome struct {
	Verdict           model.Verdict
	Results           []model.TestCaseResult
	ExecutionTimeMs   int64
	ExecutionMemoryKB int64
}

// Executor is the per-mode verdict algorithm.
type Executor interface {
	Execute(ctx context.Context, job Job) (Outcome, error)
}

// Select returns the Executor for name, dispatched with a plain switch
// since QuestionTypeName is a closed, fixed set.
func Select(name model.QuestionTypeName, run runner) (Executor, error) {
	switch name {
	case model.IoiStandard:
		return &IoiStandardExecutor{runner: run}, nil
	case model.OutputOnly:
		return &OutputOnlyExecutor{}, nil
	case model.Interactive:
		return &InteractiveExecutor{}, nil
	default:
		return nil, appErr.Newf(appErr.InvalidParams, "unknown question type: %s", name)
	}
}

// trim implements spec §4.5's comparison rule: strip trailing whitespace on
// each line and drop trailing blank lines; inner whitespace is significant.
func trim(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
