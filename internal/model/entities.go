package model

import "time"

// Submission is one attempt to solve a problem. It is created externally in
// StatusQueued and mutated only by the Coordinator worker that claims it
// until it reaches a terminal status, after which it is immutable.
type Submission struct {
	ID                string
	UserID            string
	ProblemID         string
	LanguageID        string
	SourceText        string
	SubmittedAt       time.Time
	Status            Status
	Verdict           *Verdict
	ExecutionTimeMs   int64
	ExecutionMemoryKB int64
	ErrorMessage      string
}

// Problem is a judging target: limits, metadata and a judging-mode reference.
type Problem struct {
	ID             string
	Title          string
	Statement      string
	TimeLimitMs    int64
	MemoryLimitKB  int64
	QuestionTypeID string
	Metadata       map[string]string
}

// Language is a compile/run template bound to one source dialect.
// CompileCommand is empty for interpreted languages, in which case the
// Executor skips compilation entirely.
type Language struct {
	ID             string
	DisplayName    string
	Version        string
	CompileCommand string
	RunCommand     string
	FileExtension  string
}

// Interpreted reports whether this language has no compile step.
func (l Language) Interpreted() bool {
	return l.CompileCommand == ""
}

// TestCase is one ordered input/expected-output pair owned by a Problem.
// Input/ExpectedOutput hold the text inline for small cases. Large cases
// instead carry InputDataKey/OutputDataKey, object-storage keys the
// datapack cache resolves to local files on demand; exactly one of (text,
// key) is populated per field.
type TestCase struct {
	ID             string
	ProblemID      string
	Input          string
	ExpectedOutput string
	InputDataKey   string
	OutputDataKey  string
	OrderIndex     int
	IsSample       bool
}

// HasExternalData reports whether either side of this test case's data is
// stored out of line in object storage rather than inline in the row.
func (t TestCase) HasExternalData() bool {
	return t.InputDataKey != "" || t.OutputDataKey != ""
}

// TestCaseResult is the write-once outcome of judging one TestCase for one
// Submission. Exactly one row exists per (SubmissionID, TestCaseID) pair.
type TestCaseResult struct {
	ID                string
	SubmissionID      string
	TestCaseID        string
	Verdict           Verdict
	ExecutionTimeMs   int64
	ExecutionMemoryKB int64
	Stdout            string
	Stderr            string
}
