package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"judgecore/internal/model"
	"judgecore/internal/sandbox/profile"
	"judgecore/internal/sandbox/result"
	"judgecore/internal/sandbox/spec"
)

// fakeEngine is a minimal engine.Engine test double that records the last
// RunSpec it was asked to execute and returns a canned report.
type fakeEngine struct {
	lastSpec spec.RunSpec
	report   result.RunReport
	err      error
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunReport, error) {
	f.lastSpec = runSpec
	return f.report, f.err
}

func (f *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}

func cppLanguage() model.Language {
	return model.Language{
		ID:             "cpp17",
		DisplayName:    "C++17",
		CompileCommand: "g++ -O2 -o {bin} {src}",
		RunCommand:     "{bin}",
		FileExtension:  "cpp",
	}
}

func pythonLanguage() model.Language {
	return model.Language{
		ID:            "python3",
		DisplayName:   "Python 3",
		RunCommand:    "python3 {src}",
		FileExtension: "py",
	}
}

func TestExecutor_Compile_Interpreted(t *testing.T) {
	eng := &fakeEngine{}
	ex := New(eng)

	report, err := ex.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-1",
		WorkDir:      t.TempDir(),
		SourcePath:   "/tmp/does-not-matter.py",
		Language:     pythonLanguage(),
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !report.Success {
		t.Error("expected interpreted language compile to succeed trivially")
	}
	if report.ArtifactPath != "/tmp/does-not-matter.py" {
		t.Errorf("ArtifactPath = %q, want source path unchanged", report.ArtifactPath)
	}
}

func TestExecutor_Compile_Compiled(t *testing.T) {
	workDir := t.TempDir()
	srcPath := filepath.Join(workDir, "source.cpp")
	if err := os.WriteFile(srcPath, []byte("int main(){}"), 0644); err != nil {
		t.Fatal(err)
	}

	eng := &fakeEngine{report: result.RunReport{ExitCode: 0, TimeUsedMs: 120, MemoryUsedKB: 4096}}
	ex := New(eng)

	report, err := ex.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-2",
		WorkDir:      workDir,
		SourcePath:   srcPath,
		Language:     cppLanguage(),
		Profile:      profile.TaskProfile{TaskType: profile.TaskTypeCompile},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !report.Success {
		t.Errorf("expected success, diagnostic = %q", report.Diagnostic)
	}
	if len(eng.lastSpec.Cmd) == 0 || eng.lastSpec.Cmd[0] != "g++" {
		t.Errorf("Cmd = %v, want g++ invocation", eng.lastSpec.Cmd)
	}
	for _, arg := range eng.lastSpec.Cmd {
		if arg == "{bin}" || arg == "{src}" {
			t.Errorf("command template not expanded: %v", eng.lastSpec.Cmd)
		}
	}
}

func TestExecutor_Compile_Failure(t *testing.T) {
	workDir := t.TempDir()
	srcPath := filepath.Join(workDir, "source.cpp")
	if err := os.WriteFile(srcPath, []byte("broken"), 0644); err != nil {
		t.Fatal(err)
	}

	eng := &fakeEngine{report: result.RunReport{ExitCode: 1, Stderr: "syntax error"}}
	ex := New(eng)

	report, err := ex.Compile(context.Background(), CompileRequest{
		SubmissionID: "sub-3",
		WorkDir:      workDir,
		SourcePath:   srcPath,
		Language:     cppLanguage(),
	})
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil (failure is reported via report, not error)", err)
	}
	if report.Success {
		t.Error("expected Success = false on nonzero exit code")
	}
	if report.Diagnostic != "syntax error" {
		t.Errorf("Diagnostic = %q, want stderr passthrough", report.Diagnostic)
	}
}

func TestExecutor_Run_MountsStdin(t *testing.T) {
	eng := &fakeEngine{report: result.RunReport{ExitCode: 0, Stdout: "4\n"}}
	ex := New(eng)

	compiledDir := t.TempDir()
	artifactPath := filepath.Join(compiledDir, "main")
	if err := os.WriteFile(artifactPath, []byte("#!fake-binary"), 0755); err != nil {
		t.Fatal(err)
	}

	runWorkDir := t.TempDir()
	_, err := ex.Run(context.Background(), RunRequest{
		SubmissionID: "sub-4",
		TestID:       "test-1",
		WorkDir:      runWorkDir,
		ArtifactPath: artifactPath,
		Language:     cppLanguage(),
		StdinPath:    "/data/test-1/input.txt",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	foundStdin := false
	for _, m := range eng.lastSpec.BindMounts {
		if m.Source == "/data/test-1/input.txt" {
			foundStdin = true
			if !m.ReadOnly {
				t.Error("stdin mount should be read-only")
			}
		}
	}
	if !foundStdin {
		t.Error("expected stdin path to be bind-mounted into the sandbox")
	}
	if eng.lastSpec.StdinPath == "" {
		t.Error("expected RunSpec.StdinPath to be set")
	}

	stagedPath := filepath.Join(runWorkDir, "main")
	if _, err := os.Stat(stagedPath); err != nil {
		t.Errorf("expected artifact staged into run workdir at %q: %v", stagedPath, err)
	}
}

func TestExecutor_Run_StagesInterpretedSource(t *testing.T) {
	eng := &fakeEngine{report: result.RunReport{ExitCode: 0, Stdout: "4\n"}}
	ex := New(eng)

	sourceDir := t.TempDir()
	artifactPath := filepath.Join(sourceDir, "main.py")
	if err := os.WriteFile(artifactPath, []byte("print(4)"), 0644); err != nil {
		t.Fatal(err)
	}

	runWorkDir := t.TempDir()
	_, err := ex.Run(context.Background(), RunRequest{
		SubmissionID: "sub-5",
		TestID:       "test-1",
		WorkDir:      runWorkDir,
		ArtifactPath: artifactPath,
		Language:     pythonLanguage(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stagedPath := filepath.Join(runWorkDir, "main.py")
	content, err := os.ReadFile(stagedPath)
	if err != nil {
		t.Fatalf("expected source staged into run workdir at %q: %v", stagedPath, err)
	}
	if string(content) != "print(4)" {
		t.Errorf("staged source content = %q, want %q", content, "print(4)")
	}
}

func TestExecutor_Run_ValidatesRequiredFields(t *testing.T) {
	ex := New(&fakeEngine{})
	_, err := ex.Run(context.Background(), RunRequest{})
	if err == nil {
		t.Fatal("expected validation error for empty RunRequest")
	}
}

func TestMergeLimits(t *testing.T) {
	base := spec.ResourceLimit{CPUTimeMs: 1000, MemoryMB: 256}
	override := spec.ResourceLimit{MemoryMB: 512}

	got := mergeLimits(base, override)
	if got.CPUTimeMs != 1000 {
		t.Errorf("CPUTimeMs = %d, want base value preserved", got.CPUTimeMs)
	}
	if got.MemoryMB != 512 {
		t.Errorf("MemoryMB = %d, want override applied", got.MemoryMB)
	}
}
