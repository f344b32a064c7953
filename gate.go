package stagechain

import (
	"sync"
	"sync/atomic"
)

// Gate is a precondition a stage must satisfy before it starts.
// Holds must be side-effect free; it is evaluated again before every stage.
type Gate interface {
	Holds() bool
}

// SignalGate is a Gate that can wake waiters as soon as its condition may have changed.
// The returned channel is closed on the next change.
type SignalGate interface {
	Gate
	Changed() <-chan struct{}
}

type GateFunc func() bool

func (f GateFunc) Holds() bool { return f() }

// Always is the gate of ungated stages.
var Always Gate = GateFunc(func() bool { return true })

// ConnectivitySource reports whether the network resource the pipeline needs is reachable.
type ConnectivitySource interface {
	ConnectivityAvailable() bool
}

// ConnectivityGate holds while its source reports connectivity.
type ConnectivityGate struct {
	Source ConnectivitySource
}

func (g ConnectivityGate) Holds() bool {
	return g.Source != nil && g.Source.ConnectivityAvailable()
}

// Switch is a gate flipped by the host, for platforms that push availability changes.
type Switch struct {
	on atomic.Bool

	mu      sync.Mutex
	changed chan struct{}
}

func NewSwitch(on bool) *Switch {
	s := &Switch{changed: make(chan struct{})}
	s.on.Store(on)
	return s
}

func (s *Switch) Holds() bool { return s.on.Load() }

// ConnectivityAvailable lets a Switch back a ConnectivityGate.
func (s *Switch) ConnectivityAvailable() bool { return s.on.Load() }

func (s *Switch) Set(on bool) {
	s.on.Store(on)

	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

func (s *Switch) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// changedOf returns the wake-up channel of g, or nil when g cannot signal.
func changedOf(g Gate) <-chan struct{} {
	switch sg := g.(type) {
	case SignalGate:
		return sg.Changed()
	case ConnectivityGate:
		if inner, ok := sg.Source.(SignalGate); ok {
			return inner.Changed()
		}
	}
	return nil
}
