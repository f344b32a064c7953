package stagechain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStagePlan(t *testing.T, gate Gate) ChainPlan {
	return ChainPlan{
		mustRequest(t, First, "001", gate),
		mustRequest(t, Second, "001", gate),
		mustRequest(t, Third, "001", gate),
	}
}

func Test_chain_Run(t *testing.T) {
	t.Run("negative", func(t *testing.T) {
		t.Run("empty plan", func(t *testing.T) {
			_, err := New().Run(context.TODO(), nil)
			assert.ErrorIs(t, err, ErrEmptyPlan)
		})

		t.Run("request without input", func(t *testing.T) {
			_, err := NewStageRequest(First, "", nil)
			assert.ErrorIs(t, err, ErrMissingRequiredInput)

			stages, err := New().Run(context.TODO(), ChainPlan{{}})
			assert.ErrorIs(t, err, ErrMissingRequiredInput)
			assert.Nil(t, stages)
		})
	})

	t.Run("positive", func(t *testing.T) {
		t.Run("stages run in declaration order", func(t *testing.T) {
			spy := &stageVisitSpy{}
			var running, maxRunning atomic.Int32

			chain := New(WithWork(func(ctx context.Context, req StageRequest) error {
				n := running.Add(1)
				defer running.Add(-1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				spy.Append(req.Kind())
				assert.Equal(t, "001", req.InputID())
				return nil
			}))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)
			require.Len(t, stages, 3)

			chain.Wait()

			assert.Equal(t, 3, spy.Len())
			assert.Equal(t, First, spy.At(0))
			assert.Equal(t, Second, spy.At(1))
			assert.Equal(t, Third, spy.At(2))
			assert.Equal(t, int32(1), maxRunning.Load())
			assert.Len(t, chain.Errs(), 0)

			for _, st := range stages {
				assert.Equal(t, Succeeded, st.State())
				assert.Equal(t, []State{Enqueued, Running, Succeeded}, states(st.Stream().Transitions()))
			}
		})

		t.Run("handles are returned before anything finishes", func(t *testing.T) {
			release := make(chan struct{})
			chain := New(WithWork(func(ctx context.Context, req StageRequest) error {
				<-release
				return nil
			}))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)

			for _, st := range stages {
				assert.False(t, st.State().IsFinished())
			}
			assert.NotEqual(t, stages[0].ID(), stages[1].ID())

			close(release)
			chain.Wait()
			for _, st := range stages {
				assert.Equal(t, Succeeded, st.State())
			}
		})

		t.Run("on changes hook sees every transition", func(t *testing.T) {
			var mu sync.Mutex
			seen := map[StageKind][]State{}
			var wg sync.WaitGroup
			wg.Add(3)

			chain := New()
			chain.SetOnChanges(func(tr Transition) {
				mu.Lock()
				seen[tr.Kind] = append(seen[tr.Kind], tr.State)
				mu.Unlock()
				if tr.State.IsFinished() {
					wg.Done()
				}
			})

			_, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			for _, kind := range Kinds {
				assert.Equal(t, []State{Enqueued, Running, Succeeded}, seen[kind])
			}
		})
	})

	t.Run("short circuit", func(t *testing.T) {
		t.Run("failed stage cancels the rest", func(t *testing.T) {
			boom := errors.New("boom")
			spy := &stageVisitSpy{}

			chain := New(WithWork(func(ctx context.Context, req StageRequest) error {
				spy.Append(req.Kind())
				if req.Kind() == Second {
					return boom
				}
				return nil
			}))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)
			chain.Wait()

			assert.Equal(t, 2, spy.Len())
			assert.Equal(t, Succeeded, stages[0].State())
			assert.Equal(t, Failed, stages[1].State())
			assert.ErrorIs(t, stages[1].Err(), boom)
			assert.ErrorIs(t, stages[1].Err(), ErrStageExecutionFailed)

			assert.Equal(t, Cancelled, stages[2].State())
			assert.ErrorIs(t, stages[2].Err(), ErrPredecessorNotSucceed)
			assert.Equal(t, []State{Enqueued, Cancelled}, states(stages[2].Stream().Transitions()))
			assert.Len(t, chain.Errs(), 2)
		})

		t.Run("panicking work fails the stage", func(t *testing.T) {
			chain := New(WithWork(func(ctx context.Context, req StageRequest) error {
				panic("unexpected")
			}))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)
			chain.Wait()

			assert.Equal(t, Failed, stages[0].State())
			assert.Equal(t, Cancelled, stages[1].State())
			assert.Equal(t, Cancelled, stages[2].State())
		})

		t.Run("cancelling an enqueued stage halts the chain", func(t *testing.T) {
			release := make(chan struct{})
			spy := &stageVisitSpy{}
			chain := New(WithWork(func(ctx context.Context, req StageRequest) error {
				spy.Append(req.Kind())
				if req.Kind() == First {
					<-release
				}
				return nil
			}))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, nil))
			require.NoError(t, err)

			stages[1].Cancel()
			assert.Equal(t, Cancelled, stages[1].State())
			assert.ErrorIs(t, stages[1].Err(), ErrStageCancelled)

			close(release)
			chain.Wait()

			assert.Equal(t, 1, spy.Len())
			assert.Equal(t, Succeeded, stages[0].State())
			assert.Equal(t, Cancelled, stages[2].State())
		})

		t.Run("context cancellation while gated", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			chain := New(WithPollInterval(5 * time.Millisecond))

			stages, err := chain.Run(ctx, threeStagePlan(t, GateFunc(func() bool { return false })))
			require.NoError(t, err)

			cancel()
			chain.Wait()

			assert.ErrorIs(t, stages[0].Err(), context.Canceled)
			for _, st := range stages {
				assert.Equal(t, Cancelled, st.State())
			}
		})
	})

	t.Run("gate", func(t *testing.T) {
		t.Run("closed gate keeps every stage enqueued until it opens", func(t *testing.T) {
			gate := NewSwitch(false)
			chain := New(WithPollInterval(time.Hour))

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, ConnectivityGate{Source: gate}))
			require.NoError(t, err)

			time.Sleep(30 * time.Millisecond)
			for _, st := range stages {
				assert.Equal(t, Enqueued, st.State())
			}

			gate.Set(true)
			waitDone(t, stages[2])
			for _, st := range stages {
				assert.Equal(t, Succeeded, st.State())
			}
		})

		t.Run("gate is evaluated again for every stage", func(t *testing.T) {
			gate := NewSwitch(true)
			chain := New(
				WithPollInterval(5*time.Millisecond),
				WithWork(func(ctx context.Context, req StageRequest) error {
					if req.Kind() == First {
						gate.Set(false)
					}
					return nil
				}),
			)

			stages, err := chain.Run(context.TODO(), threeStagePlan(t, gate))
			require.NoError(t, err)

			waitDone(t, stages[0])
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, Succeeded, stages[0].State())
			assert.Equal(t, Enqueued, stages[1].State())
			assert.Equal(t, Enqueued, stages[2].State())

			gate.Set(true)
			chain.Wait()
			assert.Equal(t, Succeeded, stages[2].State())
		})
	})
}
