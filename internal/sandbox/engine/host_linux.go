//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"judgecore/internal/sandbox/spec"
)

// durationFromMs converts a millisecond limit to a time.Duration, treating
// zero or negative as "no limit".
func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// cpuTimeMs reports the sandboxed process's total CPU time (user+sys) from
// rusage. The engine reports it as TimeUsedMs when cgroups are enabled and
// wall time without them; it is not compared against cgroup accounting.
func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	userMs := usage.Utime.Sec*1000 + usage.Utime.Usec/1000
	sysMs := usage.Stime.Sec*1000 + usage.Stime.Usec/1000
	return userMs + sysMs
}

// resolveHostPath returns the host-visible path for a stdout/stderr
// redirect target. RunSpec paths are container-side (e.g. "/work/stdout.txt",
// under the container work dir the sandboxed process sees); the engine itself
// runs on the host, so an absolute path must be translated back through
// whichever bind mount covers it rather than read as-is, or it resolves to a
// path that only exists inside the private mount namespace the helper set up.
func resolveHostPath(path string, runSpec spec.RunSpec) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		return filepath.Join(runSpec.WorkDir, path)
	}
	for _, mnt := range runSpec.BindMounts {
		if mnt.Target == "" {
			continue
		}
		rel, err := filepath.Rel(mnt.Target, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.Join(mnt.Source, rel)
	}
	return path
}

// stdoutSizeKB reports the size in KB of the file at path, or 0 if it
// cannot be stat'd.
func stdoutSizeKB(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size() / 1024
}

// readLimitedFile reads up to maxBytes from the file at path, returning an
// empty string if the file is missing or empty.
func readLimitedFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	if maxBytes <= 0 {
		maxBytes = defaultStdoutStderrMaxBytes
	}
	buf := make([]byte, maxBytes)
	n, _ := f.Read(buf)
	return string(buf[:n])
}
