package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goforbroke1006/stagechain"
)

type toastSpy struct {
	mu     sync.Mutex
	toasts []string
}

func (s *toastSpy) Toast(msg string) {
	s.mu.Lock()
	s.toasts = append(s.toasts, msg)
	s.mu.Unlock()
}

func (s *toastSpy) Toasts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.toasts...)
}

type nopNotifier struct{}

func (nopNotifier) UpdateStatus(string, string) {}
func (nopNotifier) ShowPersistent(string, string, string) {}
func (nopNotifier) Clear(string) {}

func newPipeline(gate stagechain.Gate, work stagechain.StageFn) (*stagechain.Pipeline, *stagechain.Registry[string]) {
	reg := stagechain.NewRegistry[string](nil)
	return stagechain.NewPipeline(
		stagechain.New(stagechain.WithPollInterval(5*time.Millisecond), stagechain.WithWork(work)),
		stagechain.NewCountdown(reg, nopNotifier{}, stagechain.WithTickInterval(time.Millisecond)),
		reg,
		gate,
	), reg
}

func runWithTimeout(t *testing.T, o *Orchestrator, inputID string) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.Run(ctx, inputID)
}

func mustNew(t *testing.T, pipeline Pipeline, toaster Toaster, triggers ...Trigger) *Orchestrator {
	t.Helper()

	o, err := New(pipeline, toaster, nil, triggers...)
	require.NoError(t, err)
	return o
}

func TestNew(t *testing.T) {
	t.Run("negative", func(t *testing.T) {
		pipeline, reg := newPipeline(nil, nil)
		defer reg.Close()

		o, err := New(pipeline, &toastSpy{}, nil,
			Trigger{After: stagechain.Second, TerminalID: "001", Ticks: 3},
			Trigger{After: stagechain.Third, TerminalID: "001", Ticks: 30},
		)
		assert.ErrorIs(t, err, ErrDuplicateTrigger)
		assert.Nil(t, o)
	})

	t.Run("positive", func(t *testing.T) {
		pipeline, reg := newPipeline(nil, nil)
		defer reg.Close()

		o, err := New(pipeline, &toastSpy{}, nil,
			Trigger{After: stagechain.Second, TerminalID: "001", Ticks: 3},
			Trigger{After: stagechain.Third, TerminalID: "002", Ticks: 5},
		)
		require.NoError(t, err)
		assert.Len(t, o.triggers, 2)
	})
}

func TestOrchestrator_Run(t *testing.T) {
	t.Run("gated chain ends with both countdowns published", func(t *testing.T) {
		connectivity := stagechain.NewSwitch(false)
		pipeline, reg := newPipeline(stagechain.ConnectivityGate{Source: connectivity}, nil)
		defer reg.Close()

		toasts := &toastSpy{}
		o := mustNew(t, pipeline, toasts,
			Trigger{After: stagechain.Second, TerminalID: "001", Ticks: 3},
			Trigger{After: stagechain.Third, TerminalID: "002", Ticks: 5, Label: "Second"},
		)

		time.AfterFunc(20*time.Millisecond, func() { connectivity.Set(true) })
		require.NoError(t, runWithTimeout(t, o, "001"))
		require.Eventually(t, func() bool { return len(toasts.Toasts()) == 5 }, time.Second, 5*time.Millisecond)

		got := toasts.Toasts()
		assert.Contains(t, got, "First process is done")
		assert.Contains(t, got, "Second process is done")
		assert.Contains(t, got, "Third process is done")
		assert.Contains(t, got, "Process for Notification Channel ID 001 is done!")
		assert.Contains(t, got, "Process for Second Notification Channel ID 002 is done!")

		v, ok := reg.Latest("002")
		assert.True(t, ok)
		assert.Equal(t, "002", v)
	})

	t.Run("failed stage ends the run without countdown", func(t *testing.T) {
		boom := errors.New("boom")
		pipeline, reg := newPipeline(nil, func(ctx context.Context, req stagechain.StageRequest) error {
			if req.Kind() == stagechain.Second {
				return boom
			}
			return nil
		})
		defer reg.Close()

		toasts := &toastSpy{}
		o := mustNew(t, pipeline, toasts, Trigger{After: stagechain.Third, TerminalID: "002", Ticks: 1})

		err := runWithTimeout(t, o, "001")
		assert.ErrorIs(t, err, ErrChainFailed)

		_, ok := reg.Latest("002")
		assert.False(t, ok)
	})

	t.Run("failed stage stops running countdowns", func(t *testing.T) {
		boom := errors.New("boom")
		pipeline, reg := newPipeline(nil, func(ctx context.Context, req stagechain.StageRequest) error {
			if req.Kind() == stagechain.Third {
				return boom
			}
			return nil
		})
		defer reg.Close()

		o := mustNew(t, pipeline, &toastSpy{}, Trigger{After: stagechain.Second, TerminalID: "001", Ticks: 100000})

		err := runWithTimeout(t, o, "001")
		assert.ErrorIs(t, err, ErrChainFailed)

		var countdowns []*stagechain.Stage
		require.Eventually(t, func() bool {
			o.mu.Lock()
			defer o.mu.Unlock()
			countdowns = append([]*stagechain.Stage(nil), o.countdowns...)
			return len(countdowns) == 1
		}, time.Second, 5*time.Millisecond)

		select {
		case <-countdowns[0].Done():
		case <-time.After(time.Second):
			t.Fatal("countdown kept running after the chain failed")
		}
		assert.Equal(t, stagechain.Failed, countdowns[0].State())
		assert.ErrorIs(t, countdowns[0].Err(), stagechain.ErrCountdownInterrupted)

		_, ok := reg.Latest("001")
		assert.False(t, ok)
	})

	t.Run("missing input is rejected", func(t *testing.T) {
		pipeline, reg := newPipeline(nil, nil)
		defer reg.Close()

		err := mustNew(t, pipeline, &toastSpy{}).Run(context.Background(), "")
		assert.ErrorIs(t, err, stagechain.ErrMissingRequiredInput)
	})

	t.Run("no triggers waits for the chain", func(t *testing.T) {
		pipeline, reg := newPipeline(nil, nil)
		defer reg.Close()

		toasts := &toastSpy{}
		require.NoError(t, runWithTimeout(t, mustNew(t, pipeline, toasts), "001"))
		require.Eventually(t, func() bool { return len(toasts.Toasts()) == 3 }, time.Second, 5*time.Millisecond)
	})

	t.Run("context cancellation while gated", func(t *testing.T) {
		pipeline, reg := newPipeline(stagechain.GateFunc(func() bool { return false }), nil)
		defer reg.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := mustNew(t, pipeline, &toastSpy{}, Trigger{After: stagechain.Third, TerminalID: "002"}).Run(ctx, "001")
		assert.Error(t, err)
	})
}

func TestCompletionMessage(t *testing.T) {
	assert.Equal(t, "Process for Notification Channel ID 001 is done!", completionMessage("", "001"))
	assert.Equal(t, "Process for Second Notification Channel ID 002 is done!", completionMessage("Second", "002"))
}
