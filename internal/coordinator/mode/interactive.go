package mode

import (
	"context"

	appErr "judgecore/pkg/errors"
)

// InteractiveExecutor is the reserved bidirectional mode: an interactor
// program and the user program connected by pipes, each in its own
// sandbox. Not implemented; per spec §4.5 this mode returns SystemError
// rather than silently misjudging.
type InteractiveExecutor struct{}

func (e *InteractiveExecutor) Execute(ctx context.Context, job Job) (Outcome, error) {
	return Outcome{}, appErr.New(appErr.JudgeSystemError).WithMessage("interactive judging mode is not implemented")
}
