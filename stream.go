package stagechain

import (
	"sync"
)

// LifecycleStream is the sequence of transitions of one stage. Every observer sees every
// transition exactly once and in order, including the ones that happened before it
// joined. The stream ends at the terminal transition.
type LifecycleStream struct {
	onPanic func(any)

	mu        sync.Mutex
	history   []Transition
	observers map[uint64]*mailbox[Transition]
	nextID    uint64
	done      chan struct{}
}

func newLifecycleStream(onPanic func(any)) *LifecycleStream {
	return &LifecycleStream{
		onPanic:   onPanic,
		observers: map[uint64]*mailbox[Transition]{},
		done:      make(chan struct{}),
	}
}

// Observe registers fn and returns a function that detaches it.
// fn runs on a goroutine owned by the observer, never on the emitter's.
func (s *LifecycleStream) Observe(fn func(Transition)) (stop func()) {
	mb := newMailbox(fn, s.onPanic)

	s.mu.Lock()
	for _, t := range s.history {
		mb.push(t)
	}
	if s.finishedLocked() {
		s.mu.Unlock()
		mb.close()
		return mb.stop
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = mb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
		mb.stop()
	}
}

// Transitions returns a snapshot of everything emitted so far.
func (s *LifecycleStream) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// Done is closed once the terminal transition has been emitted.
func (s *LifecycleStream) Done() <-chan struct{} {
	return s.done
}

func (s *LifecycleStream) emit(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedLocked() {
		return
	}
	s.history = append(s.history, t)
	for _, mb := range s.observers {
		mb.push(t)
	}

	if t.State.IsFinished() {
		for id, mb := range s.observers {
			mb.close()
			delete(s.observers, id)
		}
		close(s.done)
	}
}

func (s *LifecycleStream) finishedLocked() bool {
	n := len(s.history)
	return n > 0 && s.history[n-1].State.IsFinished()
}
