package repository

import (
	"context"
	"sort"
	"sync"

	"judgecore/internal/model"
)

// InMemoryRepository is a map-backed Repository test double. It applies the
// same transition validation and upsert semantics as MySQLRepository so
// tests exercise the real invariants without a database.
type InMemoryRepository struct {
	mu sync.Mutex

	submissions   map[string]model.Submission
	problems      map[string]model.Problem
	languages     map[string]model.Language
	questionTypes map[string]model.QuestionType
	testCases     map[string][]model.TestCase
	results       map[string]model.TestCaseResult
}

// NewInMemoryRepository returns an empty in-memory Repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		submissions:   make(map[string]model.Submission),
		problems:      make(map[string]model.Problem),
		languages:     make(map[string]model.Language),
		questionTypes: make(map[string]model.QuestionType),
		testCases:     make(map[string][]model.TestCase),
		results:       make(map[string]model.TestCaseResult),
	}
}

func (r *InMemoryRepository) PutSubmission(s model.Submission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions[s.ID] = s
}

func (r *InMemoryRepository) PutProblem(p model.Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems[p.ID] = p
}

func (r *InMemoryRepository) PutLanguage(l model.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[l.ID] = l
}

func (r *InMemoryRepository) PutQuestionType(q model.QuestionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questionTypes[q.ID] = q
}

func (r *InMemoryRepository) PutTestCases(problemID string, cases []model.TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.testCases[problemID] = cases
}

func (r *InMemoryRepository) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (r *InMemoryRepository) GetProblem(ctx context.Context, id string) (*model.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (r *InMemoryRepository) GetLanguage(ctx context.Context, id string) (*model.Language, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.languages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := l
	return &cp, nil
}

func (r *InMemoryRepository) GetQuestionType(ctx context.Context, id string) (*model.QuestionType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questionTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := q
	return &cp, nil
}

func (r *InMemoryRepository) GetTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cases := r.testCases[problemID]
	out := make([]model.TestCase, len(cases))
	copy(out, cases)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *InMemoryRepository) UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return ErrNotFound
	}
	if !model.CanTransition(s.Status, status) {
		return ErrInvalidTransition
	}
	s.Status = status
	r.submissions[id] = s
	return nil
}

func (r *InMemoryRepository) UpdateSubmissionResult(ctx context.Context, id string, status model.Status, verdict model.Verdict, timeMs, memKB int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.Verdict = &verdict
	s.ExecutionTimeMs = timeMs
	s.ExecutionMemoryKB = memKB
	r.submissions[id] = s
	return nil
}

func (r *InMemoryRepository) InsertTestCaseResult(ctx context.Context, result model.TestCaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result.SubmissionID == "" || result.TestCaseID == "" {
		return ErrNotFound
	}
	r.results[result.SubmissionID+"|"+result.TestCaseID] = result
	return nil
}

// WithTx runs fn against the same repository: the in-memory double has no
// transaction isolation to model, so it is a straight passthrough.
func (r *InMemoryRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return fn(r)
}
