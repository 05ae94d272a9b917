package mode

import (
	"context"

	"github.com/google/uuid"

	"judgecore/internal/model"
)

// OutputOnlyExecutor implements the mode where the submitted source text
// IS the answer: no compile, no sandboxed run, just a trimmed-text compare
// against the problem's single test case.
type OutputOnlyExecutor struct{}

func (e *OutputOnlyExecutor) Execute(ctx context.Context, job Job) (Outcome, error) {
	outcome := Outcome{Verdict: model.VerdictWrongAnswer}
	if len(job.TestCases) == 0 {
		return outcome, nil
	}
	tc := job.TestCases[0]

	verdict := model.VerdictWrongAnswer
	if trim(job.SourceText) == trim(tc.ExpectedOutput) {
		verdict = model.VerdictAccepted
	}

	outcome.Verdict = verdict
	outcome.Results = []model.TestCaseResult{{
		ID:                uuid.NewString(),
		SubmissionID:      job.SubmissionID,
		TestCaseID:        tc.ID,
		Verdict:           verdict,
		ExecutionTimeMs:   0,
		ExecutionMemoryKB: 0,
	}}
	return outcome, nil
}
