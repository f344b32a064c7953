// Package orchestrator is the host side of the pipeline: it submits the chain, turns
// stage and completion events into toasts, and starts a countdown when a configured
// stage succeeds.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goforbroke1006/stagechain"
	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Toaster shows short-lived user messages.
type Toaster interface {
	Toast(msg string)
}

// Trigger starts a countdown once the stage of kind After succeeds.
type Trigger struct {
	After      stagechain.StageKind
	TerminalID string
	Ticks      int
	// Label names the channel in the completion toast, e.g. "Second".
	Label string
}

// Pipeline is what the orchestrator needs from stagechain.Pipeline.
type Pipeline interface {
	SubmitChain(ctx context.Context, inputID string) (stagechain.Handles, error)
	Observe(st *stagechain.Stage, fn func(stagechain.Transition)) (stop func())
	StartCountdown(ctx context.Context, terminalID string, totalTicks int) (*stagechain.Stage, error)
	SubscribeCompletion(key string, fn func(string)) (*stagechain.Subscription, error)
}

var (
	ErrChainFailed      = errors.New("chain did not complete")
	ErrDuplicateTrigger = errors.New("triggers share a terminal id")
)

var stageLabels = map[stagechain.StageKind]string{
	stagechain.First:  "First",
	stagechain.Second: "Second",
	stagechain.Third:  "Third",
}

type Orchestrator struct {
	pipeline Pipeline
	toaster  Toaster
	triggers []Trigger
	logger   *logging.Logger

	mu         sync.Mutex
	countdowns []*stagechain.Stage
	subs       []*stagechain.Subscription
	// stopped is set once Run gave up; countdowns launched afterwards are cancelled.
	stopped bool
}

// New rejects triggers that share a terminal id with ErrDuplicateTrigger; one completion
// stream cannot tell their countdowns apart.
func New(pipeline Pipeline, toaster Toaster, logger *logging.Logger, triggers ...Trigger) (*Orchestrator, error) {
	seen := make(map[string]struct{}, len(triggers))
	for _, trig := range triggers {
		if _, ok := seen[trig.TerminalID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTrigger, trig.TerminalID)
		}
		seen[trig.TerminalID] = struct{}{}
	}

	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		pipeline: pipeline,
		toaster:  toaster,
		triggers: triggers,
		logger:   logger.WithComponent("orchestrator"),
	}, nil
}

// Run submits the chain and blocks until every triggered countdown published its terminal
// value, a stage fails, or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, inputID string) error {
	handles, err := o.pipeline.SubmitChain(ctx, inputID)
	if err != nil {
		return err
	}
	defer o.unsubscribeAll()

	pending := make(map[string]chan struct{}, len(o.triggers))
	for _, trig := range o.triggers {
		pending[trig.TerminalID] = make(chan struct{})
	}
	failed := make(chan error, len(handles.All()))

	for _, st := range handles.All() {
		o.pipeline.Observe(st, func(tr stagechain.Transition) {
			o.onTransition(ctx, tr, pending, failed)
		})
	}

	for _, trig := range o.triggers {
		done := pending[trig.TerminalID]
		select {
		case <-done:
		case err := <-failed:
			o.cancelCountdowns()
			return err
		case <-ctx.Done():
			o.cancelCountdowns()
			return ctx.Err()
		}
	}

	if len(o.triggers) == 0 {
		select {
		case <-handles.Third.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if handles.Third.State() != stagechain.Succeeded {
			return fmt.Errorf("%w: %v", ErrChainFailed, handles.Third.Err())
		}
	}
	return nil
}

func (o *Orchestrator) onTransition(ctx context.Context, tr stagechain.Transition, pending map[string]chan struct{}, failed chan<- error) {
	if !tr.State.IsFinished() {
		return
	}
	o.toaster.Toast(fmt.Sprintf("%s process is done", stageLabels[tr.Kind]))

	if tr.State != stagechain.Succeeded {
		o.logger.Warn("stage did not succeed", "stage", string(tr.Kind), "state", string(tr.State))
		report(failed, fmt.Errorf("%w: %v", ErrChainFailed, tr.Err))
		return
	}

	for _, trig := range o.triggers {
		if trig.After != tr.Kind {
			continue
		}
		if err := o.launch(ctx, trig, pending[trig.TerminalID], failed); err != nil {
			report(failed, err)
		}
	}
}

// launch subscribes to the completion stream first, then starts the countdown; replay
// makes the order irrelevant but subscribing first keeps the toast close to the publish.
func (o *Orchestrator) launch(ctx context.Context, trig Trigger, done chan struct{}, failed chan<- error) error {
	var once sync.Once
	sub, err := o.pipeline.SubscribeCompletion(trig.TerminalID, func(id string) {
		once.Do(func() {
			o.toaster.Toast(completionMessage(trig.Label, id))
			close(done)
		})
	})
	if err != nil {
		return err
	}

	st, err := o.pipeline.StartCountdown(ctx, trig.TerminalID, trig.Ticks)
	if err != nil {
		sub.Unsubscribe()
		return err
	}
	o.logger.Info("countdown started", "terminal_id", trig.TerminalID, "ticks", trig.Ticks)
	o.pipeline.Observe(st, func(tr stagechain.Transition) {
		if tr.State == stagechain.Failed {
			report(failed, fmt.Errorf("countdown %s: %w", trig.TerminalID, tr.Err))
		}
	})

	o.mu.Lock()
	o.subs = append(o.subs, sub)
	o.countdowns = append(o.countdowns, st)
	stopped := o.stopped
	o.mu.Unlock()

	if stopped {
		st.Cancel()
	}
	return nil
}

// report never blocks an observer; the first error is enough to end Run.
func report(failed chan<- error, err error) {
	select {
	case failed <- err:
	default:
	}
}

func completionMessage(label, id string) string {
	if label == "" {
		return fmt.Sprintf("Process for Notification Channel ID %s is done!", id)
	}
	return fmt.Sprintf("Process for %s Notification Channel ID %s is done!", label, id)
}

func (o *Orchestrator) cancelCountdowns() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	for _, st := range o.countdowns {
		st.Cancel()
	}
}

func (o *Orchestrator) unsubscribeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subs {
		sub.Unsubscribe()
	}
	o.subs = nil
}
