package stagechain

import (
	"context"
	"fmt"
)

// Kinds is the declaration order of a submitted chain.
var Kinds = []StageKind{First, Second, Third}

// Handles are the stages of one submitted chain.
type Handles struct {
	First  *Stage
	Second *Stage
	Third  *Stage
}

func (h Handles) All() []*Stage {
	return []*Stage{h.First, h.Second, h.Third}
}

// Pipeline is the API the orchestrator talks to: it submits the three-stage chain,
// starts countdowns and exposes the completion registry.
type Pipeline struct {
	chain     ChainExecutor
	countdown *Countdown
	registry  *Registry[string]
	gate      Gate
}

// NewPipeline wires the pipeline. gate guards every chain stage; nil means ungated.
func NewPipeline(chain ChainExecutor, countdown *Countdown, registry *Registry[string], gate Gate) *Pipeline {
	if gate == nil {
		gate = Always
	}
	return &Pipeline{
		chain:     chain,
		countdown: countdown,
		registry:  registry,
		gate:      gate,
	}
}

// SubmitChain enqueues first -> second -> third, all carrying inputID.
func (p *Pipeline) SubmitChain(ctx context.Context, inputID string) (Handles, error) {
	plan := make(ChainPlan, 0, len(Kinds))
	for _, kind := range Kinds {
		req, err := NewStageRequest(kind, inputID, p.gate)
		if err != nil {
			return Handles{}, err
		}
		plan = append(plan, req)
	}

	stages, err := p.chain.Run(ctx, plan)
	if err != nil {
		return Handles{}, fmt.Errorf("submit chain: %w", err)
	}
	return Handles{First: stages[0], Second: stages[1], Third: stages[2]}, nil
}

// Observe attaches fn to the stage's lifecycle stream.
func (p *Pipeline) Observe(st *Stage, fn func(Transition)) (stop func()) {
	return st.Stream().Observe(fn)
}

func (p *Pipeline) StartCountdown(ctx context.Context, terminalID string, totalTicks int) (*Stage, error) {
	return p.countdown.Start(ctx, terminalID, totalTicks)
}

// SubscribeCompletion delivers the terminal id published on key, replaying the latest one.
func (p *Pipeline) SubscribeCompletion(key string, fn func(string)) (*Subscription, error) {
	return p.registry.Subscribe(key, fn)
}

// Wait blocks until every submitted chain is done.
func (p *Pipeline) Wait() {
	p.chain.Wait()
}
