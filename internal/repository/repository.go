// Package repository defines opaque persistence for submissions, problems,
// test cases, languages and per-test results. Every mutation is idempotent
// on the submission id (or submission id, test case id pair) so at-least
// once queue redelivery never corrupts a result.
package repository

import (
	"context"
	"errors"

	"judgecore/internal/model"
	"judgecore/internal/platform/db"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidTransition is returned when a status update would violate
	// the legal transition graph in internal/model/status.go.
	ErrInvalidTransition = errors.New("invalid submission status transition")
)

// Repository is the Coordinator's only persistence dependency.
type Repository interface {
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	GetProblem(ctx context.Context, id string) (*model.Problem, error)
	GetLanguage(ctx context.Context, id string) (*model.Language, error)
	GetQuestionType(ctx context.Context, id string) (*model.QuestionType, error)
	// GetTestCases returns a problem's test cases ordered by OrderIndex
	// ascending.
	GetTestCases(ctx context.Context, problemID string) ([]model.TestCase, error)

	UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error
	UpdateSubmissionResult(ctx context.Context, id string, status model.Status, verdict model.Verdict, timeMs, memKB int64) error
	InsertTestCaseResult(ctx context.Context, result model.TestCaseResult) error

	// WithTx runs fn against a repository bound to one transaction, for the
	// Coordinator's final multi-row persistence step (submission result
	// plus per-test rows) committing atomically.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// querier is satisfied by both db.Database and db.Transaction, letting
// MySQLRepository methods run unmodified inside or outside a transaction.
type querier = db.Querier
