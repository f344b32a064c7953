package stagechain

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/goforbroke1006/stagechain/internal/logging"
)

// Registry is the process-wide set of completion streams, one per key. Streams are
// created on first use and live until Close.
type Registry[T any] struct {
	logger *logging.Logger

	mu      sync.Mutex
	streams map[string]*NotificationStream[T]
	closed  bool
}

func NewRegistry[T any](logger *logging.Logger) *Registry[T] {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry[T]{
		logger:  logger.WithComponent("registry"),
		streams: map[string]*NotificationStream[T]{},
	}
}

// Stream returns the stream for key, creating it if needed.
func (r *Registry[T]) Stream(key string) (*NotificationStream[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	s, ok := r.streams[key]
	if !ok {
		s = newNotificationStream[T](key, r.logger.With("stream_key", key))
		r.streams[key] = s
	}
	return s, nil
}

func (r *Registry[T]) Publish(key string, v T) error {
	s, err := r.Stream(key)
	if err != nil {
		return err
	}
	return s.Publish(v)
}

// Subscribe registers fn on key. If a value was already published, fn receives it first.
func (r *Registry[T]) Subscribe(key string, fn func(T)) (*Subscription, error) {
	s, err := r.Stream(key)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(fn)
}

// Latest returns the last value published on key.
func (r *Registry[T]) Latest(key string) (T, bool) {
	r.mu.Lock()
	s, ok := r.streams[key]
	r.mu.Unlock()

	if !ok {
		var zero T
		return zero, false
	}
	return s.Latest()
}

// Close drops every subscriber and rejects further use. Queued deliveries still run.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.streams {
		s.close()
	}
}

// NotificationStream is a single-slot broadcast value with replay-last subscriptions.
// Publish and Subscribe are serialized, so a subscriber joining while a value is being
// published sees that value exactly once.
type NotificationStream[T any] struct {
	key    string
	logger *logging.Logger

	mu      sync.Mutex
	latest  T
	has     bool
	subs    map[uint64]*mailbox[T]
	nextID  uint64
	closed  bool
	version uint64
}

func newNotificationStream[T any](key string, logger *logging.Logger) *NotificationStream[T] {
	return &NotificationStream[T]{
		key:    key,
		logger: logger,
		subs:   map[uint64]*mailbox[T]{},
	}
}

func (s *NotificationStream[T]) Key() string { return s.key }

func (s *NotificationStream[T]) Publish(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrRegistryClosed
	}
	s.latest = v
	s.has = true
	s.version++
	for _, mb := range s.subs {
		mb.push(v)
	}
	s.logger.Debug("value published", "subscribers", len(s.subs), "version", s.version)
	return nil
}

func (s *NotificationStream[T]) Subscribe(fn func(T)) (*Subscription, error) {
	mb := newMailbox(fn, func(r any) {
		s.logger.Error("subscriber panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		mb.stop()
		return nil, ErrRegistryClosed
	}
	if s.has {
		mb.push(s.latest)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = mb
	s.mu.Unlock()

	return &Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		mb.stop()
	}}, nil
}

func (s *NotificationStream[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Subscribers returns the number of attached subscribers.
func (s *NotificationStream[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *NotificationStream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, mb := range s.subs {
		mb.close()
		delete(s.subs, id)
	}
}

// Subscription detaches a subscriber. Unsubscribe is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
