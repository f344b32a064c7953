package stagechain

import "fmt"

type StageKind string

type State string

// StageRequest identifies one unit of gated work. It is immutable once built.
type StageRequest struct {
	kind    StageKind
	inputID string
	gate    Gate
}

// NewStageRequest builds a request. An empty inputID is a contract violation and is
// rejected with ErrMissingRequiredInput. A nil gate means the stage is never gated.
func NewStageRequest(kind StageKind, inputID string, gate Gate) (StageRequest, error) {
	if inputID == "" {
		return StageRequest{}, fmt.Errorf("%w: stage %s", ErrMissingRequiredInput, kind)
	}
	if gate == nil {
		gate = Always
	}
	return StageRequest{kind: kind, inputID: inputID, gate: gate}, nil
}

func (r StageRequest) Kind() StageKind { return r.kind }
func (r StageRequest) InputID() string { return r.inputID }
func (r StageRequest) Gate() Gate { return r.gate }

// ChainPlan is an ordered sequence of stage requests.
type ChainPlan []StageRequest

// Transition is one lifecycle change of a stage.
type Transition struct {
	StageID string
	Kind    StageKind
	State   State
	Err     error
}

// CountdownState is the progress of a running countdown.
type CountdownState struct {
	Remaining  int
	TerminalID string
}
