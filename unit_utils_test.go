package stagechain

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

type stageVisitSpy struct {
	narrative   []StageKind
	narrativeMx sync.RWMutex
}

func (spy *stageVisitSpy) Append(kind StageKind) {
	spy.narrativeMx.Lock()
	spy.narrative = append(spy.narrative, kind)
	spy.narrativeMx.Unlock()
}

func (spy *stageVisitSpy) Len() int {
	spy.narrativeMx.RLock()
	length := len(spy.narrative)
	spy.narrativeMx.RUnlock()

	return length
}

func (spy *stageVisitSpy) At(index int) StageKind {
	spy.narrativeMx.RLock()
	kind := spy.narrative[index]
	spy.narrativeMx.RUnlock()

	return kind
}

// notifierSpy records every notifier call as a line.
type notifierSpy struct {
	mu     sync.Mutex
	events []string

	onUpdate func(channelID, text string)
}

func (n *notifierSpy) UpdateStatus(channelID, text string) {
	n.record(fmt.Sprintf("update %s %s", channelID, text))
	if n.onUpdate != nil {
		n.onUpdate(channelID, text)
	}
}

func (n *notifierSpy) ShowPersistent(channelID, title, text string) {
	n.record(fmt.Sprintf("show %s %s / %s", channelID, title, text))
}

func (n *notifierSpy) Clear(channelID string) {
	n.record("clear " + channelID)
}

func (n *notifierSpy) record(line string) {
	n.mu.Lock()
	n.events = append(n.events, line)
	n.mu.Unlock()
}

func (n *notifierSpy) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

func waitDone(t *testing.T, st *Stage) {
	t.Helper()

	select {
	case <-st.Done():
	case <-time.After(testTimeout):
		t.Fatalf("stage %s did not finish, state %s", st.Kind(), st.State())
	}
}

func mustRequest(t *testing.T, kind StageKind, inputID string, gate Gate) StageRequest {
	t.Helper()

	req, err := NewStageRequest(kind, inputID, gate)
	if err != nil {
		t.Fatalf("NewStageRequest: %v", err)
	}
	return req
}

func states(ts []Transition) []State {
	out := make([]State, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.State)
	}
	return out
}
