package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"judgecore/internal/sandbox/engine"
	"judgecore/internal/sandbox/observer"
	"judgecore/internal/sandbox/profile"
	"judgecore/internal/sandbox/result"
	"judgecore/internal/sandbox/spec"
	appErr "judgecore/pkg/errors"
)

// Executor implements the judging job's two sandboxed operations: compile
// a submission's source and run a compiled artifact against one test
// case's stdin.
type Executor struct {
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// noopMetrics satisfies observer.MetricsRecorder when no recorder is wired.
type noopMetrics struct{}

func (noopMetrics) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
}
func (noopMetrics) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
}

// New creates an Executor backed by the given sandbox engine.
func New(eng engine.Engine) *Executor {
	return NewWithObserver(eng, noopMetrics{})
}

// NewWithObserver creates an Executor with metrics hooks.
func NewWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *Executor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{eng: eng, metrics: metrics}
}

// Compile builds a submission's source into a runnable artifact. For
// interpreted languages (Language.CompileCommand == "") it is a no-op that
// reports success with the source file itself as the artifact.
func (e *Executor) Compile(ctx context.Context, req CompileRequest) (result.CompileReport, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileReport{}, err
	}
	if req.Language.Interpreted() {
		return result.CompileReport{Success: true, ArtifactPath: req.SourcePath}, nil
	}

	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CompileReport{}, err
	}
	srcName := sourceFileName(req.Language)
	if err := copySourceFile(req.WorkDir, req.SourcePath, srcName); err != nil {
		return result.CompileReport{}, err
	}

	limits := compileLimits(req.Limits, req.Profile.DefaultLimits)
	cmd, err := buildCommand(req.Language.CompileCommand, srcName, binaryFileName, req.ExtraFlags)
	if err != nil {
		return result.CompileReport{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          nil,
		StderrPath:   filepath.Join(containerWorkDir, compileLogName),
		Profile:      profileName(req.Language.ID, req.Profile.TaskType),
		Limits:       limits,
		BindMounts: []spec.MountSpec{{
			Source: req.WorkDir,
			Target: containerWorkDir,
		}},
	}

	runReport, err := e.eng.Run(ctx, runSpec)
	report := result.CompileReport{
		Success:      err == nil && runReport.ExitCode == 0,
		ExitCode:     runReport.ExitCode,
		TimeUsedMs:   runReport.TimeUsedMs,
		MemoryUsedKB: runReport.MemoryUsedKB,
		ArtifactPath: filepath.Join(req.WorkDir, binaryFileName),
	}
	if !report.Success {
		report.Diagnostic = runReport.Stderr
	}
	e.metrics.ObserveCompile(ctx, req.Language.ID, report.Success, report.TimeUsedMs, report.MemoryUsedKB)
	if err != nil {
		return report, err
	}
	return report, nil
}

// Run executes a compiled artifact against one test case's stdin, returning
// the sandbox's raw execution report. Verdict classification against the
// expected output is the mode executor's job, not this package's.
func (e *Executor) Run(ctx context.Context, req RunRequest) (result.RunReport, error) {
	if err := validateRunRequest(req); err != nil {
		return result.RunReport{}, err
	}

	limits := runLimits(req.Limits, req.Profile.DefaultLimits)
	cmd, err := buildRunCommand(req)
	if err != nil {
		return result.RunReport{}, err
	}

	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.RunReport{}, err
	}
	targetName, executable := binaryFileName, true
	if req.Language.Interpreted() {
		targetName, executable = sourceFileName(req.Language), false
	}
	if err := stageArtifact(req.WorkDir, req.ArtifactPath, targetName, executable); err != nil {
		return result.RunReport{}, err
	}

	mounts := []spec.MountSpec{{
		Source: req.WorkDir,
		Target: containerWorkDir,
	}}
	stdinTarget := ""
	if req.StdinPath != "" {
		stdinTarget = filepath.Join(containerWorkDir, "stdin.txt")
		mounts = append(mounts, spec.MountSpec{
			Source:   req.StdinPath,
			Target:   stdinTarget,
			ReadOnly: true,
		})
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		StdinPath:    stdinTarget,
		StdoutPath:   filepath.Join(containerWorkDir, "stdout.txt"),
		StderrPath:   filepath.Join(containerWorkDir, runtimeLogName),
		Profile:      profileName(req.Language.ID, req.Profile.TaskType),
		Limits:       limits,
		BindMounts:   mounts,
	}

	runReport, err := e.eng.Run(ctx, runSpec)
	e.metrics.ObserveRun(ctx, req.Language.ID, string(runReport.Classify()), runReport.TimeUsedMs, runReport.MemoryUsedKB, runReport.OutputKB)
	return runReport, err
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.SourcePath == "" {
		return appErr.ValidationError("source_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.ArtifactPath == "" {
		return appErr.ValidationError("artifact_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

func buildRunCommand(req RunRequest) ([]string, error) {
	tpl := req.Language.RunCommand
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("run command template is required")
	}
	return buildCommand(tpl, sourceFileName(req.Language), binaryFileName, nil)
}

// buildCommand expands {src}/{bin}/{extraFlags} in a command template and
// tokenizes the result with shell-word semantics.
func buildCommand(tpl, srcName, binName string, extraFlags []string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", filepath.Join(containerWorkDir, srcName))
	expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(containerWorkDir, binName))
	if strings.Contains(expanded, "{extraFlags}") {
		expanded = strings.ReplaceAll(expanded, "{extraFlags}", strings.Join(extraFlags, " "))
	}
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func compileLimits(override, profileDefaults spec.ResourceLimit) spec.ResourceLimit {
	limits := mergeLimits(spec.ResourceLimit{
		CPUTimeMs:  defaultCompileCPUTimeMs,
		WallTimeMs: defaultCompileWallTimeMs,
		MemoryMB:   defaultCompileMemoryMB,
	}, profileDefaults)
	return mergeLimits(limits, override)
}

func runLimits(override, profileDefaults spec.ResourceLimit) spec.ResourceLimit {
	return mergeLimits(profileDefaults, override)
}

// mergeLimits overlays override's non-zero fields onto base.
func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

func profileName(languageID string, taskType profile.TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return fmt.Sprintf("%s-%s", languageID, taskType)
}

func prepareWorkDir(workDir string) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create work dir failed")
	}
	return nil
}

func copySourceFile(workDir, sourcePath, targetName string) error {
	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "read source failed")
	}
	targetPath := filepath.Join(workDir, targetName)
	if err := os.WriteFile(targetPath, content, 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write source failed")
	}
	return nil
}

// stageArtifact copies the compile step's output (or, for interpreted
// languages, the submitted source itself) into the run's own bind-mounted
// work directory under the name the run command template expects at
// {bin}/{src}. Compile and run each get a fresh work directory, so the
// artifact never lives where the run's bind mount exposes it until this
// runs.
func stageArtifact(workDir, artifactPath, targetName string, executable bool) error {
	content, err := os.ReadFile(artifactPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "read artifact failed")
	}
	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	targetPath := filepath.Join(workDir, targetName)
	if err := os.WriteFile(targetPath, content, mode); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "stage artifact failed")
	}
	return nil
}
