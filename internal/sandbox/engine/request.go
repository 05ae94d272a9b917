package engine

import (
	"judgecore/internal/sandbox/security"
	"judgecore/internal/sandbox/spec"
)

type initRequest struct {
	RunSpec       spec.RunSpec
	Isolation     security.IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
}
