package repository

import (
	"context"
	"encoding/json"
	"time"

	"judgecore/internal/model"
	"judgecore/internal/platform/cache"
	"judgecore/internal/platform/db"
)

const (
	submissionCacheTTL      = 30 * time.Minute
	submissionCacheEmptyTTL = 5 * time.Minute
	problemCacheTTL         = 10 * time.Minute
	problemCacheEmptyTTL    = 1 * time.Minute
	languageCacheTTL        = 1 * time.Hour
	languageCacheEmptyTTL   = 5 * time.Minute
	questionTypeCacheTTL    = 1 * time.Hour
	questionTypeEmptyTTL    = 5 * time.Minute

	submissionKeyPrefix   = "submission:"
	problemKeyPrefix      = "problem:"
	languageKeyPrefix     = "language:"
	questionTypeKeyPrefix = "question_type:"
)

const submissionColumns = "id, user_id, problem_id, language_id, source_text, submitted_at, status, verdict, execution_time_ms, execution_memory_kb, error_message"

// MySQLRepository implements Repository over internal/platform/db, with
// internal/platform/cache fronting the read-mostly reference data
// (problem/language/question type/submission) the Coordinator re-reads on
// every redelivery.
type MySQLRepository struct {
	database db.Database
	tx       db.Transaction
	cache    cache.Cache
}

// NewMySQLRepository creates a repository bound to database, optionally
// fronted by a Redis cache. Pass a nil cache to disable caching (tests).
func NewMySQLRepository(database db.Database, c cache.Cache) *MySQLRepository {
	return &MySQLRepository{database: database, cache: c}
}

func (r *MySQLRepository) q() db.Querier {
	return db.GetQuerier(r.database, r.tx)
}

// WithTx runs fn against a repository bound to one transaction.
func (r *MySQLRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.database.Transaction(ctx, func(tx db.Transaction) error {
		scoped := &MySQLRepository{database: r.database, tx: tx, cache: r.cache}
		return fn(scoped)
	})
}

func (r *MySQLRepository) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if r.cache == nil || r.tx != nil {
		return r.getSubmissionFromDB(ctx, id)
	}
	sub, err := cache.GetWithCached[*model.Submission](
		ctx, r.cache, submissionKeyPrefix+id,
		cache.JitterTTL(submissionCacheTTL), cache.JitterTTL(submissionCacheEmptyTTL),
		func(s *model.Submission) bool { return s == nil },
		marshalJSON[*model.Submission], unmarshalJSON[*model.Submission],
		func(ctx context.Context) (*model.Submission, error) {
			sub, err := r.getSubmissionFromDB(ctx, id)
			if err == ErrNotFound {
				return nil, nil
			}
			return sub, err
		},
	)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (r *MySQLRepository) getSubmissionFromDB(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.q().QueryRow(ctx, query, id)
	sub := &model.Submission{}
	var verdict *string
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.LanguageID, &sub.SourceText,
		&sub.SubmittedAt, &sub.Status, &verdict,
		&sub.ExecutionTimeMs, &sub.ExecutionMemoryKB, &sub.ErrorMessage,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if verdict != nil {
		v := model.Verdict(*verdict)
		sub.Verdict = &v
	}
	return sub, nil
}

func (r *MySQLRepository) GetProblem(ctx context.Context, id string) (*model.Problem, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if r.cache == nil || r.tx != nil {
		return r.getProblemFromDB(ctx, id)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx, r.cache, problemKeyPrefix+id,
		cache.JitterTTL(problemCacheTTL), cache.JitterTTL(problemCacheEmptyTTL),
		func(p *model.Problem) bool { return p == nil },
		marshalJSON[*model.Problem], unmarshalJSON[*model.Problem],
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getProblemFromDB(ctx, id)
			if err == ErrNotFound {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrNotFound
	}
	return problem, nil
}

func (r *MySQLRepository) getProblemFromDB(ctx context.Context, id string) (*model.Problem, error) {
	query := "SELECT id, title, statement, time_limit_ms, memory_limit_kb, question_type_id, metadata FROM problems WHERE id = ? LIMIT 1"
	row := r.q().QueryRow(ctx, query, id)
	p := &model.Problem{}
	var metadataJSON []byte
	if err := row.Scan(&p.ID, &p.Title, &p.Statement, &p.TimeLimitMs, &p.MemoryLimitKB, &p.QuestionTypeID, &metadataJSON); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(metadataJSON) > 0 {
		_ = json.Unmarshal(metadataJSON, &p.Metadata)
	}
	return p, nil
}

func (r *MySQLRepository) GetLanguage(ctx context.Context, id string) (*model.Language, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if r.cache == nil || r.tx != nil {
		return r.getLanguageFromDB(ctx, id)
	}
	lang, err := cache.GetWithCached[*model.Language](
		ctx, r.cache, languageKeyPrefix+id,
		cache.JitterTTL(languageCacheTTL), cache.JitterTTL(languageCacheEmptyTTL),
		func(l *model.Language) bool { return l == nil },
		marshalJSON[*model.Language], unmarshalJSON[*model.Language],
		func(ctx context.Context) (*model.Language, error) {
			l, err := r.getLanguageFromDB(ctx, id)
			if err == ErrNotFound {
				return nil, nil
			}
			return l, err
		},
	)
	if err != nil {
		return nil, err
	}
	if lang == nil {
		return nil, ErrNotFound
	}
	return lang, nil
}

func (r *MySQLRepository) getLanguageFromDB(ctx context.Context, id string) (*model.Language, error) {
	query := "SELECT id, display_name, version, compile_command, run_command, file_extension FROM languages WHERE id = ? LIMIT 1"
	row := r.q().QueryRow(ctx, query, id)
	l := &model.Language{}
	if err := row.Scan(&l.ID, &l.DisplayName, &l.Version, &l.CompileCommand, &l.RunCommand, &l.FileExtension); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func (r *MySQLRepository) GetQuestionType(ctx context.Context, id string) (*model.QuestionType, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if r.cache == nil || r.tx != nil {
		return r.getQuestionTypeFromDB(ctx, id)
	}
	qt, err := cache.GetWithCached[*model.QuestionType](
		ctx, r.cache, questionTypeKeyPrefix+id,
		cache.JitterTTL(questionTypeCacheTTL), cache.JitterTTL(questionTypeEmptyTTL),
		func(q *model.QuestionType) bool { return q == nil },
		marshalJSON[*model.QuestionType], unmarshalJSON[*model.QuestionType],
		func(ctx context.Context) (*model.QuestionType, error) {
			q, err := r.getQuestionTypeFromDB(ctx, id)
			if err == ErrNotFound {
				return nil, nil
			}
			return q, err
		},
	)
	if err != nil {
		return nil, err
	}
	if qt == nil {
		return nil, ErrNotFound
	}
	return qt, nil
}

func (r *MySQLRepository) getQuestionTypeFromDB(ctx context.Context, id string) (*model.QuestionType, error) {
	query := "SELECT id, name FROM question_types WHERE id = ? LIMIT 1"
	row := r.q().QueryRow(ctx, query, id)
	qt := &model.QuestionType{}
	var name string
	if err := row.Scan(&qt.ID, &name); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	qt.Name = model.QuestionTypeName(name)
	return qt, nil
}

// GetTestCases returns a problem's test cases ordered by OrderIndex
// ascending. Not cached: test case sets are large and read once per job.
func (r *MySQLRepository) GetTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	if problemID == "" {
		return nil, ErrNotFound
	}
	query := "SELECT id, problem_id, input, expected_output, input_data_key, output_data_key, order_index, is_sample FROM test_cases WHERE problem_id = ? ORDER BY order_index ASC"
	rows, err := r.q().Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput, &tc.InputDataKey, &tc.OutputDataKey, &tc.OrderIndex, &tc.IsSample); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// UpdateSubmissionStatus is an idempotent status write, validated against
// the legal transition table in internal/model/status.go.
func (r *MySQLRepository) UpdateSubmissionStatus(ctx context.Context, id string, status model.Status) error {
	if id == "" {
		return ErrNotFound
	}
	current, err := r.getSubmissionFromDB(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(current.Status, status) {
		return ErrInvalidTransition
	}
	_, err = r.q().Exec(ctx, "UPDATE submissions SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	r.invalidateSubmission(ctx, id)
	return nil
}

// UpdateSubmissionResult is the Coordinator's final persistence write: it
// sets status, verdict, and aggregated time/memory in one upsert-style
// update, safe to apply repeatedly on redelivery.
func (r *MySQLRepository) UpdateSubmissionResult(ctx context.Context, id string, status model.Status, verdict model.Verdict, timeMs, memKB int64) error {
	if id == "" {
		return ErrNotFound
	}
	query := "UPDATE submissions SET status = ?, verdict = ?, execution_time_ms = ?, execution_memory_kb = ? WHERE id = ?"
	_, err := r.q().Exec(ctx, query, string(status), string(verdict), timeMs, memKB, id)
	if err != nil {
		return err
	}
	r.invalidateSubmission(ctx, id)
	return nil
}

// InsertTestCaseResult is an upsert keyed on (submission id, test case id),
// satisfying idempotent redelivery.
func (r *MySQLRepository) InsertTestCaseResult(ctx context.Context, result model.TestCaseResult) error {
	if result.SubmissionID == "" || result.TestCaseID == "" {
		return ErrNotFound
	}
	query := `
		INSERT INTO test_case_results
		(id, submission_id, test_case_id, verdict, execution_time_ms, execution_memory_kb, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict),
			execution_time_ms = VALUES(execution_time_ms),
			execution_memory_kb = VALUES(execution_memory_kb),
			stdout = VALUES(stdout),
			stderr = VALUES(stderr)
	`
	_, err := r.q().Exec(ctx, query,
		result.ID, result.SubmissionID, result.TestCaseID, string(result.Verdict),
		result.ExecutionTimeMs, result.ExecutionMemoryKB, result.Stdout, result.Stderr,
	)
	return err
}

func (r *MySQLRepository) invalidateSubmission(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, submissionKeyPrefix+id)
}

func marshalJSON[T any](v T) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if data == "" || data == cache.NullCacheValue {
		return v, nil
	}
	err := json.Unmarshal([]byte(data), &v)
	return v, err
}
