package stagechain

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Stage is the handle of one scheduled unit of work. Its state only moves forward:
// enqueued -> running -> succeeded|failed, or enqueued -> cancelled.
type Stage struct {
	id     string
	req    StageRequest
	fn     StageFn
	stream *LifecycleStream
	logger *logging.Logger

	// after runs on the work goroutine once the terminal state was emitted.
	after func()

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc
}

func newStage(req StageRequest, fn StageFn, logger *logging.Logger) *Stage {
	id := uuid.NewString()
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithStage(string(req.Kind()), id)

	s := &Stage{
		id:     id,
		req:    req,
		fn:     fn,
		logger: logger,
		state:  Enqueued,
	}
	s.stream = newLifecycleStream(func(r any) {
		logger.Error("stage observer panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	})
	s.stream.emit(Transition{StageID: id, Kind: req.Kind(), State: Enqueued})
	return s
}

func (s *Stage) ID() string { return s.id }
func (s *Stage) Kind() StageKind { return s.req.Kind() }
func (s *Stage) Request() StageRequest { return s.req }
func (s *Stage) Stream() *LifecycleStream { return s.stream }
func (s *Stage) Done() <-chan struct{} { return s.stream.Done() }

func (s *Stage) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the reason of a failed or cancelled stage, nil otherwise.
func (s *Stage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel moves an enqueued stage to cancelled. A running stage has its work context
// cancelled; how it ends is up to the work.
func (s *Stage) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Enqueued:
		s.moveLocked(Cancelled, &StageError{StageID: s.id, Kind: s.req.Kind(), Err: ErrStageCancelled})
	case Running:
		s.cancel()
	}
}

// abort cancels the stage only if it never started.
func (s *Stage) abort(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Enqueued {
		return false
	}
	s.moveLocked(Cancelled, &StageError{StageID: s.id, Kind: s.req.Kind(), Err: cause})
	return true
}

// start moves the stage to running and runs its work on a new goroutine.
func (s *Stage) start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Enqueued {
		s.mu.Unlock()
		return ErrStageNotEnqueued
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.moveLocked(Running, nil)
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

func (s *Stage) run(ctx context.Context) {
	defer s.cancel()

	if err := s.call(ctx); err != nil {
		s.finish(Failed, &StageError{
			StageID: s.id,
			Kind:    s.req.Kind(),
			Err:     fmt.Errorf("%w: %w", ErrStageExecutionFailed, err),
		})
	} else {
		s.finish(Succeeded, nil)
	}

	if s.after != nil {
		s.after()
	}
}

func (s *Stage) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stage work panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.fn(ctx, s.req)
}

func (s *Stage) finish(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moveLocked(state, err)
}

func (s *Stage) moveLocked(to State, err error) {
	if !canMove(s.state, to) {
		return
	}
	s.state = to
	s.err = err

	if err != nil {
		s.logger.Warn("stage transition", "state", string(to), "error", err.Error())
	} else {
		s.logger.Info("stage transition", "state", string(to), "input_id", s.req.InputID())
	}
	s.stream.emit(Transition{StageID: s.id, Kind: s.req.Kind(), State: to, Err: err})
}
