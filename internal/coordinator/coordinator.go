// Package coordinator owns the submission state machine: claim a queued
// job, compile it, dispatch to the test-case-judging mode for the
// problem's question type, and persist the terminal verdict. It is the
// worker process's single entry point per spec §4.5.
package coordinator

import (
	"context"
	"os"
	"path/filepath"

	"judgecore/internal/coordinator/mode"
	"judgecore/internal/executor"
	"judgecore/internal/model"
	"judgecore/internal/queue"
	"judgecore/internal/repository"
	"judgecore/internal/sandbox/profile"
	"judgecore/internal/sandbox/result"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

// Publisher emits the best-effort submission.judged lifecycle event. A nil
// Publisher is valid: event delivery never gates persistence or the queue
// ack decision.
type Publisher interface {
	PublishJudged(ctx context.Context, submissionID string, status model.Status, verdict model.Verdict) error
}

// Coordinator runs one judging job end to end.
type Coordinator struct {
	repo     repository.Repository
	exec     *executor.Executor
	profiles profile.Repository
	events   Publisher
	workDir  string
}

// New builds a Coordinator. events may be nil.
func New(repo repository.Repository, exec *executor.Executor, profiles profile.Repository, workDir string, events Publisher) *Coordinator {
	return &Coordinator{repo: repo, exec: exec, profiles: profiles, workDir: workDir, events: events}
}

// Handle runs one JudgingJob to completion. Its return value is the queue
// layer's ack/retry signal: nil means ack (the job is done, one way or
// another — including a permanent finalize-as-Error); a non-nil error means
// let the visibility timeout redeliver, bounded by the queue's max_retries.
func (c *Coordinator) Handle(ctx context.Context, job queue.JudgingJob) error {
	submission, err := c.repo.GetSubmission(ctx, job.SubmissionID)
	if err != nil {
		if err == repository.ErrNotFound {
			logger.Errorf(ctx, "dropping judging job for unknown submission %s", job.SubmissionID)
			return nil
		}
		return err
	}

	if submission.Status.Terminal() {
		logger.Infof(ctx, "submission %s already terminal (%s), skipping redelivered job", submission.ID, submission.Status)
		return nil
	}

	problem, lang, qtype, testCases, err := c.loadProblemContext(ctx, submission)
	if err != nil {
		if isPermanent(err) {
			return c.finalizeSystemError(ctx, submission.ID, err)
		}
		return err
	}

	if err := c.repo.UpdateSubmissionStatus(ctx, submission.ID, model.StatusCompiling); err != nil {
		return err
	}

	workRoot := filepath.Join(c.workDir, submission.ID)
	if err := os.MkdirAll(workRoot, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create submission work root failed")
	}
	defer os.RemoveAll(workRoot)

	sourcePath := filepath.Join(workRoot, "source"+sourceSuffix(lang))
	if err := os.WriteFile(sourcePath, []byte(submission.SourceText), 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write submitted source failed")
	}

	artifactPath, verdict, compileErr := c.compile(ctx, submission, lang, sourcePath, workRoot)
	if compileErr != nil {
		if isPermanent(compileErr) {
			return c.finalizeSystemError(ctx, submission.ID, compileErr)
		}
		return compileErr
	}
	if verdict != nil {
		return c.finalizeResult(ctx, submission.ID, model.StatusFinished, *verdict, nil, 0, 0)
	}

	if err := c.repo.UpdateSubmissionStatus(ctx, submission.ID, model.StatusRunning); err != nil {
		return err
	}

	runner := runnerAdapter{exec: c.exec}
	modeExecutor, err := mode.Select(qtype.Name, runner)
	if err != nil {
		return c.finalizeSystemError(ctx, submission.ID, err)
	}

	// Output-only judging never runs the program, so it needs no run profile.
	var runProfile profile.TaskProfile
	if qtype.Name != model.OutputOnly {
		runProfile, err = c.profiles.GetTaskProfile(ctx, profile.TaskTypeRun, lang.ID)
		if err != nil {
			return c.finalizeSystemError(ctx, submission.ID, err)
		}
	}

	outcome, err := modeExecutor.Execute(ctx, mode.Job{
		SubmissionID: submission.ID,
		ArtifactPath: artifactPath,
		SourceText:   submission.SourceText,
		Language:     *lang,
		Problem:      *problem,
		TestCases:    testCases,
		WorkDir:      workRoot,
		Profile:      runProfile,
	})
	if err != nil {
		if isPermanent(err) {
			return c.finalizeSystemError(ctx, submission.ID, err)
		}
		return err
	}

	return c.finalizeResult(ctx, submission.ID, model.StatusFinished, outcome.Verdict, outcome.Results, outcome.ExecutionTimeMs, outcome.ExecutionMemoryKB)
}

// loadProblemContext resolves everything about the submission's problem
// that the judging run needs. Any ErrNotFound here is a permanent data
// error: the referenced problem, language, question type or test cases do
// not exist, and no retry will change that.
func (c *Coordinator) loadProblemContext(ctx context.Context, submission *model.Submission) (*model.Problem, *model.Language, *model.QuestionType, []model.TestCase, error) {
	problem, err := c.repo.GetProblem(ctx, submission.ProblemID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAsPermanent(err, "problem")
	}
	lang, err := c.repo.GetLanguage(ctx, submission.LanguageID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAsPermanent(err, "language")
	}
	qtype, err := c.repo.GetQuestionType(ctx, problem.QuestionTypeID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAsPermanent(err, "question type")
	}
	testCases, err := c.repo.GetTestCases(ctx, problem.ID)
	if err != nil {
		return nil, nil, nil, nil, notFoundAsPermanent(err, "test cases")
	}
	if len(testCases) == 0 {
		return nil, nil, nil, nil, appErr.Newf(appErr.TestCaseNotFound, "problem %s has no test cases", problem.ID)
	}
	return problem, lang, qtype, testCases, nil
}

// compile runs the compile step when the language requires one. A non-nil
// verdict means compilation itself is the terminal outcome (CompilationError)
// and the caller should finalize immediately without running any test case.
// A non-nil error is left to the caller, which finalizes permanent ones as
// SystemError and returns transient ones for redelivery.
func (c *Coordinator) compile(ctx context.Context, submission *model.Submission, lang *model.Language, sourcePath, workRoot string) (artifactPath string, verdict *model.Verdict, err error) {
	if lang.Interpreted() {
		return sourcePath, nil, nil
	}

	compileProfile, perr := c.profiles.GetTaskProfile(ctx, profile.TaskTypeCompile, lang.ID)
	if perr != nil {
		return "", nil, appErr.Wrapf(perr, appErr.JudgeSystemError, "load compile profile for %s failed", lang.ID)
	}

	compileDir := filepath.Join(workRoot, "compile")
	report, cerr := c.exec.Compile(ctx, executor.CompileRequest{
		SubmissionID: submission.ID,
		WorkDir:      compileDir,
		SourcePath:   sourcePath,
		Language:     *lang,
		Profile:      compileProfile,
	})
	if cerr != nil {
		return "", nil, cerr
	}
	if !report.Success {
		ce := model.VerdictCompilationError
		return "", &ce, nil
	}
	return report.ArtifactPath, nil, nil
}

// finalizeResult persists the submission's terminal verdict, its per-test
// rows (if any) inside one transaction, so a crash between the two writes
// never leaves a Finished submission with no test rows, and then publishes a
// best-effort judged event after the transaction has committed.
func (c *Coordinator) finalizeResult(ctx context.Context, submissionID string, status model.Status, verdict model.Verdict, results []model.TestCaseResult, timeMs, memKB int64) error {
	err := c.repo.WithTx(ctx, func(tx repository.Repository) error {
		if err := tx.UpdateSubmissionResult(ctx, submissionID, status, verdict, timeMs, memKB); err != nil {
			return err
		}
		for _, r := range results {
			if err := tx.InsertTestCaseResult(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if c.events != nil {
		if err := c.events.PublishJudged(ctx, submissionID, status, verdict); err != nil {
			logger.Warnf(ctx, "publish judged event for %s failed: %v", submissionID, err)
		}
	}
	return nil
}

// finalizeSystemError finalizes a submission as Error/SystemError for a
// permanent condition: nothing about retrying would help, so this acks the
// queue message (returns nil) rather than propagating the error.
func (c *Coordinator) finalizeSystemError(ctx context.Context, submissionID string, cause error) error {
	logger.Errorf(ctx, "submission %s finalized as SystemError: %v", submissionID, cause)
	return c.finalizeResult(ctx, submissionID, model.StatusError, model.VerdictSystemError, nil, 0, 0)
}

// isPermanent reports whether err represents a condition retrying can never
// fix, per the Judging/System error taxonomy. Only errors explicitly typed
// and coded by this codebase can be permanent; an error that isn't our
// *errors.Error at all (a raw database driver error, a network error
// bubbling out of the repository or queue layers) is exactly the case spec
// §7 calls transient, so it defaults to retry rather than finalize.
func isPermanent(err error) bool {
	e, ok := err.(*appErr.Error)
	if !ok {
		return false
	}
	return !e.Code.Transient()
}

func notFoundAsPermanent(err error, what string) error {
	if err == repository.ErrNotFound {
		return appErr.Newf(appErr.NotFound, "%s not found", what)
	}
	return err
}

func sourceSuffix(lang *model.Language) string {
	if lang.FileExtension == "" {
		return ""
	}
	return "." + lang.FileExtension
}

// runnerAdapter adapts *executor.Executor to mode's narrow runner
// interface, so mode never imports the full executor surface.
type runnerAdapter struct {
	exec *executor.Executor
}

func (r runnerAdapter) Run(ctx context.Context, req executor.RunRequest) (result.RunReport, error) {
	return r.exec.Run(ctx, req)
}
