package stagechain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingRequiredInput  = errors.New("missing required input")
	ErrStageExecutionFailed  = errors.New("stage execution failed")
	ErrCountdownInterrupted  = errors.New("countdown interrupted")
	ErrInvalidTicks          = errors.New("total ticks must not be negative")
	ErrEmptyPlan             = errors.New("chain plan is empty")
	ErrStageNotEnqueued      = errors.New("stage is not enqueued")
	ErrRegistryClosed        = errors.New("completion registry is closed")
	ErrPredecessorNotSucceed = errors.New("predecessor did not succeed")
	ErrStageCancelled        = errors.New("stage cancelled")
)

// StageError wraps the reason a stage reached a failed or cancelled state.
type StageError struct {
	StageID string
	Kind    StageKind
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Kind, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

