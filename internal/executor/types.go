// Package executor implements the two sandboxed operations a judging job
// needs: compiling a submission's source and running a compiled artifact
// against one test case's stdin. Fileio/checker/interactor branching lives
// one layer up, in internal/coordinator/mode, which calls Executor once per
// test case with plain stdin/stdout paths.
package executor

import (
	"judgecore/internal/model"
	"judgecore/internal/sandbox/profile"
	"judgecore/internal/sandbox/spec"
)

const (
	containerWorkDir = "/work"
	compileLogName   = "compile.log"
	runtimeLogName   = "runtime.log"

	defaultCompileCPUTimeMs  = 5000
	defaultCompileWallTimeMs = 5000
	defaultCompileMemoryMB   = 256
)

// CompileRequest compiles one submission's source into an artifact.
type CompileRequest struct {
	SubmissionID string
	WorkDir      string
	SourcePath   string
	Language     model.Language
	Profile      profile.TaskProfile
	// ExtraFlags is substituted into the language's compile template at
	// {extraFlags} when present; callers must have already filtered it.
	ExtraFlags []string
	// Limits overrides Profile.DefaultLimits where non-zero. Zero fields
	// fall back to Profile.DefaultLimits, and fields still zero there fall
	// back to the compile defaults in this package.
	Limits spec.ResourceLimit
}

// RunRequest runs a compiled artifact against one test case's stdin.
type RunRequest struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	ArtifactPath string
	Language     model.Language
	Profile      profile.TaskProfile
	StdinPath    string
	// Limits overrides Profile.DefaultLimits where non-zero.
	Limits spec.ResourceLimit
}

func sourceFileName(lang model.Language) string {
	if lang.FileExtension == "" {
		return "main"
	}
	return "main." + lang.FileExtension
}

const binaryFileName = "main"
