package stagechain

import (
	"context"
)

const (
	// CountdownKind tags stages started by a Countdown.
	CountdownKind = StageKind("countdown")
)

// ChainExecutor runs chain plans. Chain is the implementation.
type ChainExecutor interface {
	SetOnChanges(cb OnChangedCb)
	Run(ctx context.Context, plan ChainPlan) ([]*Stage, error)
	Wait()
	Errs() []error
}

// StageFn is the unit of work a stage runs. It must return promptly once ctx is done.
type StageFn func(ctx context.Context, req StageRequest) error

// OnChangedCb receives every stage transition, in order per stage.
type OnChangedCb func(t Transition)

// Notifier is the status side channel of a countdown.
type Notifier interface {
	UpdateStatus(channelID, text string)
	ShowPersistent(channelID, title, text string)
	Clear(channelID string)
}
