package stagechain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

// New creates a chain coordinator.
func New(opts ...Option) *Chain {
	o := buildOptions(opts)
	return &Chain{
		logger:       o.logger.WithComponent("chain"),
		pollInterval: o.pollInterval,
		work:         o.work,
		onChangesCb:  o.onChanges,
	}
}

// Chain runs plans strictly in declaration order: a stage starts only once its gate
// holds and its predecessor succeeded, and never while another stage of the plan runs.
type Chain struct {
	logger       *logging.Logger
	pollInterval time.Duration
	work         StageFn

	mu          sync.Mutex
	onChangesCb OnChangedCb
	registered  []*Stage

	wg sync.WaitGroup
}

var _ ChainExecutor = (*Chain)(nil)

// SetOnChanges sets the hook for plans run after the call.
func (c *Chain) SetOnChanges(cb OnChangedCb) {
	c.mu.Lock()
	c.onChangesCb = cb
	c.mu.Unlock()
}

// Run schedules plan and returns its stages at once, all enqueued, so callers can
// observe them before any of them finishes.
func (c *Chain) Run(ctx context.Context, plan ChainPlan) ([]*Stage, error) {
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}
	for i, req := range plan {
		if req.InputID() == "" {
			return nil, fmt.Errorf("%w: plan item %d (%s)", ErrMissingRequiredInput, i, req.Kind())
		}
	}

	stages := make([]*Stage, 0, len(plan))
	for _, req := range plan {
		stages = append(stages, newStage(req, c.work, c.logger))
	}

	c.mu.Lock()
	cb := c.onChangesCb
	c.registered = append(c.registered, stages...)
	c.mu.Unlock()

	if cb != nil {
		for _, st := range stages {
			st.Stream().Observe(cb)
		}
	}

	c.wg.Add(1)
	go c.coordinate(ctx, stages)

	return stages, nil
}

func (c *Chain) coordinate(ctx context.Context, stages []*Stage) {
	defer c.wg.Done()

	for i, st := range stages {
		if !c.startWhenOpen(ctx, st) {
			c.cancelRest(stages[i+1:])
			return
		}

		<-st.Done()

		if st.State() != Succeeded {
			c.logger.Warn("chain short-circuited", "stage", string(st.Kind()), "state", string(st.State()))
			c.cancelRest(stages[i+1:])
			return
		}
	}
	c.logger.Debug("chain finished", "stages", len(stages))
}

// startWhenOpen waits for the stage's gate and starts the stage. It returns false if the
// stage ended without running.
func (c *Chain) startWhenOpen(ctx context.Context, st *Stage) bool {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	gate := st.Request().Gate()
	waiting := false

	for {
		changed := changedOf(gate)

		if gate.Holds() {
			return st.start(ctx) == nil
		}
		if !waiting {
			waiting = true
			c.logger.Info("gate closed, stage waits", "stage", string(st.Kind()), "stage_id", st.ID())
		}

		select {
		case <-ctx.Done():
			st.abort(ctx.Err())
			return false
		case <-st.Done():
			return false
		case <-ticker.C:
		case <-changed:
		}
	}
}

func (c *Chain) cancelRest(stages []*Stage) {
	for _, st := range stages {
		st.abort(ErrPredecessorNotSucceed)
	}
}

// Wait blocks until every plan run so far has either finished or short-circuited.
func (c *Chain) Wait() {
	c.wg.Wait()
}

// Errs returns the errors of every failed or cancelled stage run by this chain.
func (c *Chain) Errs() []error {
	c.mu.Lock()
	stages := make([]*Stage, len(c.registered))
	copy(stages, c.registered)
	c.mu.Unlock()

	errs := make([]error, 0)
	for _, st := range stages {
		if err := st.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
