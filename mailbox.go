package stagechain

import (
	"sync"
)

// mailbox delivers values to one callback, in push order, on its own goroutine.
// Pushes never block, so they are safe under the publisher's lock.
type mailbox[T any] struct {
	fn      func(T)
	onPanic func(any)

	mu      sync.Mutex
	queue   []T
	closed  bool
	stopped bool

	wake    chan struct{}
	drained chan struct{}
}

func newMailbox[T any](fn func(T), onPanic func(any)) *mailbox[T] {
	m := &mailbox[T]{
		fn:      fn,
		onPanic: onPanic,
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	if m.closed || m.stopped {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()
	m.signal()
}

// close lets the queue drain and then ends the goroutine.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// stop drops anything still queued.
func (m *mailbox[T]) stop() {
	m.mu.Lock()
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) loop() {
	defer close(m.drained)

	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.wake
			continue
		}
		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(v)
	}
}

func (m *mailbox[T]) deliver(v T) {
	defer func() {
		if r := recover(); r != nil && m.onPanic != nil {
			m.onPanic(r)
		}
	}()
	m.fn(v)
}
