package repository

import (
	"context"
	"testing"

	"judgecore/internal/model"
)

func newFixtureRepo() *InMemoryRepository {
	repo := NewInMemoryRepository()
	repo.PutSubmission(model.Submission{ID: "sub-1", ProblemID: "prob-1", LanguageID: "cpp17", Status: model.StatusQueued})
	repo.PutProblem(model.Problem{ID: "prob-1", Title: "A+B", TimeLimitMs: 1000, MemoryLimitKB: 262144, QuestionTypeID: "qt-1"})
	repo.PutLanguage(model.Language{ID: "cpp17", DisplayName: "C++17", CompileCommand: "g++ -O2 -o {bin} {src}", RunCommand: "{bin}"})
	repo.PutQuestionType(model.QuestionType{ID: "qt-1", Name: model.IoiStandard})
	repo.PutTestCases("prob-1", []model.TestCase{
		{ID: "tc-2", ProblemID: "prob-1", OrderIndex: 2},
		{ID: "tc-1", ProblemID: "prob-1", OrderIndex: 1},
	})
	return repo
}

func TestInMemoryRepository_GetSubmission_NotFound(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.GetSubmission(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInMemoryRepository_GetSubmission_Found(t *testing.T) {
	repo := newFixtureRepo()
	sub, err := repo.GetSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if sub.Status != model.StatusQueued {
		t.Errorf("Status = %v, want Queued", sub.Status)
	}
}

func TestInMemoryRepository_UpdateSubmissionStatus_ValidTransition(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	if err := repo.UpdateSubmissionStatus(ctx, "sub-1", model.StatusCompiling); err != nil {
		t.Fatalf("UpdateSubmissionStatus() error = %v", err)
	}
	sub, _ := repo.GetSubmission(ctx, "sub-1")
	if sub.Status != model.StatusCompiling {
		t.Errorf("Status = %v, want Compiling", sub.Status)
	}
}

func TestInMemoryRepository_UpdateSubmissionStatus_InvalidTransition(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	err := repo.UpdateSubmissionStatus(ctx, "sub-1", model.StatusFinished)
	if err != ErrInvalidTransition {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestInMemoryRepository_UpdateSubmissionStatus_IdempotentRedelivery(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	if err := repo.UpdateSubmissionStatus(ctx, "sub-1", model.StatusQueued); err != nil {
		t.Fatalf("identity transition should always be legal, got %v", err)
	}
}

func TestInMemoryRepository_GetTestCases_OrderedByIndex(t *testing.T) {
	repo := newFixtureRepo()
	cases, err := repo.GetTestCases(context.Background(), "prob-1")
	if err != nil {
		t.Fatalf("GetTestCases() error = %v", err)
	}
	// The fixture intentionally inserts tc-2 before tc-1 to assert that
	// ordering is the repository's contract, not incidental insertion order.
	// InMemoryRepository sorts by OrderIndex; MySQLRepository sorts via
	// ORDER BY order_index ASC.
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2", len(cases))
	}
	if cases[0].ID != "tc-1" || cases[1].ID != "tc-2" {
		t.Errorf("order = [%s %s], want [tc-1 tc-2]", cases[0].ID, cases[1].ID)
	}
}

func TestInMemoryRepository_InsertTestCaseResult_UpsertByPair(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	result := model.TestCaseResult{ID: "r1", SubmissionID: "sub-1", TestCaseID: "tc-1", Verdict: model.VerdictAccepted}
	if err := repo.InsertTestCaseResult(ctx, result); err != nil {
		t.Fatalf("InsertTestCaseResult() error = %v", err)
	}
	// Redelivery of the same (submission, test case) pair overwrites rather
	// than duplicating.
	result.Verdict = model.VerdictWrongAnswer
	if err := repo.InsertTestCaseResult(ctx, result); err != nil {
		t.Fatalf("InsertTestCaseResult() second call error = %v", err)
	}
	if got := repo.results["sub-1|tc-1"].Verdict; got != model.VerdictWrongAnswer {
		t.Errorf("Verdict = %v, want WrongAnswer after redelivery", got)
	}
}

func TestInMemoryRepository_UpdateSubmissionResult(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	err := repo.UpdateSubmissionResult(ctx, "sub-1", model.StatusFinished, model.VerdictAccepted, 150, 4096)
	if err != nil {
		t.Fatalf("UpdateSubmissionResult() error = %v", err)
	}
	sub, _ := repo.GetSubmission(ctx, "sub-1")
	if sub.Status != model.StatusFinished || sub.Verdict == nil || *sub.Verdict != model.VerdictAccepted {
		t.Errorf("submission = %+v, want Finished/Accepted", sub)
	}
	if sub.ExecutionTimeMs != 150 || sub.ExecutionMemoryKB != 4096 {
		t.Errorf("time/memory = %d/%d, want 150/4096", sub.ExecutionTimeMs, sub.ExecutionMemoryKB)
	}
}

func TestInMemoryRepository_WithTx_Passthrough(t *testing.T) {
	repo := newFixtureRepo()
	ctx := context.Background()
	err := repo.WithTx(ctx, func(tx Repository) error {
		return tx.UpdateSubmissionStatus(ctx, "sub-1", model.StatusCompiling)
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	sub, _ := repo.GetSubmission(ctx, "sub-1")
	if sub.Status != model.StatusCompiling {
		t.Errorf("Status = %v, want Compiling after WithTx", sub.Status)
	}
}
