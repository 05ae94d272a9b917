package mode

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"judgecore/internal/executor"
	"judgecore/internal/model"
	"judgecore/internal/sandbox/result"
	"judgecore/internal/sandbox/spec"
	appErr "judgecore/pkg/errors"
)

// IoiStandardExecutor implements the batch compile+run+exact-compare mode:
// run each test case in order, reclassify the sandbox outcome against the
// problem's limits, and stop at the first non-Accepted case.
type IoiStandardExecutor struct {
	runner runner
}

func (e *IoiStandardExecutor) Execute(ctx context.Context, job Job) (Outcome, error) {
	outcome := Outcome{Verdict: model.VerdictAccepted}

	for _, tc := range job.TestCases {
		stdinPath, err := writeTempInput(job.WorkDir, tc.ID, tc.Input)
		if err != nil {
			return outcome, err
		}

		runReport, err := e.runner.Run(ctx, executor.RunRequest{
			SubmissionID: job.SubmissionID,
			TestID:       tc.ID,
			WorkDir:      filepath.Join(job.WorkDir, tc.ID),
			ArtifactPath: job.ArtifactPath,
			Language:     job.Language,
			Profile:      job.Profile,
			StdinPath:    stdinPath,
			Limits: spec.ResourceLimit{
				WallTimeMs: job.Problem.TimeLimitMs,
				MemoryMB:   job.Problem.MemoryLimitKB / 1024,
			},
		})
		if err != nil {
			// SandboxInitFailed, not JudgeSystemError: this is the sandbox
			// failing to spawn (contention, transient namespace/cgroup
			// setup failure), which the Coordinator retries rather than
			// finalizing the submission.
			return outcome, appErr.Wrapf(err, appErr.SandboxInitFailed, "sandbox run failed for test %s", tc.ID)
		}

		verdict := classifyIoiStandard(runReport, job.Problem, tc)
		row := model.TestCaseResult{
			ID:                uuid.NewString(),
			SubmissionID:      job.SubmissionID,
			TestCaseID:        tc.ID,
			Verdict:           verdict,
			ExecutionTimeMs:   runReport.TimeUsedMs,
			ExecutionMemoryKB: runReport.MemoryUsedKB,
			Stdout:            runReport.Stdout,
			Stderr:            runReport.Stderr,
		}
		outcome.Results = append(outcome.Results, row)

		if runReport.MemoryUsedKB > outcome.ExecutionMemoryKB {
			outcome.ExecutionMemoryKB = runReport.MemoryUsedKB
		}

		if verdict != model.VerdictAccepted {
			// Non-Accepted path: execution_time_ms is the failing case's
			// own time, not a running sum, per spec's numeric semantics.
			outcome.Verdict = verdict
			outcome.ExecutionTimeMs = runReport.TimeUsedMs
			return outcome, nil
		}
		outcome.ExecutionTimeMs += runReport.TimeUsedMs
	}

	return outcome, nil
}

// classifyIoiStandard reclassifies one test's raw sandbox report into a
// judging verdict per spec §4.5's ioi-standard rule: runtime failure first,
// then explicit comparison against the problem's own limits (independent
// of whatever the sandbox's cgroup enforcement already decided), then an
// exact trimmed-output comparison.
func classifyIoiStandard(report result.RunReport, problem model.Problem, tc model.TestCase) model.Verdict {
	switch report.Classify() {
	case result.OutcomeRuntimeError, result.OutcomeInternalError:
		return model.VerdictRuntimeError
	}
	if report.TimeUsedMs > problem.TimeLimitMs {
		return model.VerdictTimeLimitExceeded
	}
	if report.MemoryUsedKB > problem.MemoryLimitKB {
		return model.VerdictMemoryLimitExceeded
	}
	if trim(report.Stdout) == trim(tc.ExpectedOutput) {
		return model.VerdictAccepted
	}
	return model.VerdictWrongAnswer
}

// writeTempInput materializes a test case's input text as a file the
// Executor can pipe to stdin.
func writeTempInput(workDir, testID, input string) (string, error) {
	dir := filepath.Join(workDir, testID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "create test workdir failed")
	}
	path := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(path, []byte(input), 0644); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "write test input failed")
	}
	return path, nil
}
