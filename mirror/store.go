// Package mirror keeps an in-memory snapshot of a remote data set and
// rebuilds it whenever the gateway reports a change.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"playforge/gateway"
	"playforge/utils"
)

var ErrClosed = errors.New("mirror store closed")

// Loader fetches the full data set: the root list plus its children.
type Loader[T any] func(ctx context.Context) (T, error)

// State describes the snapshot currently held by a Store.
type State struct {
	Loaded      bool
	Generation  uint64
	RefreshedAt time.Time
	// Err is the most recent refresh failure; cleared by the next success.
	Err error
}

// Stale reports whether the snapshot is older than the last attempt.
func (s State) Stale() bool {
	return s.Err != nil
}

type RefreshError struct {
	Store string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Store, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout bounds the refreshes triggered by change notifications.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Store is safe for concurrent use. Snapshots handed out are shared and must
// not be modified.
type Store[T any] struct {
	name    string
	load    Loader[T]
	timeout time.Duration
	log     *logrus.Entry

	tickets  atomic.Uint64
	notifyMu sync.Mutex

	mu           sync.RWMutex
	snapshot     T
	state        State
	listeners    map[int]func(T)
	nextListener int
	subs         []gateway.Subscription
	closed       bool
	done         chan struct{}
}

func New[T any](name string, load Loader[T], opts ...Option) *Store[T] {
	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		name:      name,
		load:      load,
		timeout:   o.timeout,
		log:       utils.Component("mirror").WithField("store", name),
		listeners: make(map[int]func(T)),
		done:      make(chan struct{}),
	}
}

// Refresh reloads the whole data set. Results that finish after a newer
// refresh has already been applied are dropped. On failure the previous
// snapshot is kept.
func (s *Store[T]) Refresh(ctx context.Context) error {
	ticket := s.tickets.Add(1)
	data, err := s.load(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	if err != nil {
		if ticket > s.state.Generation {
			s.state.Err = err
		}
		s.mu.Unlock()
		s.log.WithError(err).Warn("Refresh failed, keeping previous snapshot")
		return &RefreshError{Store: s.name, Err: err}
	}

	if ticket <= s.state.Generation {
		s.mu.Unlock()
		s.log.WithField("ticket", ticket).Debug("Discarding stale refresh result")
		return nil
	}

	s.snapshot = data
	s.state = State{Loaded: true, Generation: ticket, RefreshedAt: time.Now().UTC()}
	s.mu.Unlock()

	s.notify(ticket, data)
	return nil
}

// notify runs listeners for ticket unless a newer snapshot overtook it, so
// listeners never see generations go backwards.
func (s *Store[T]) notify(ticket uint64, data T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	if s.state.Generation != ticket {
		s.mu.RUnlock()
		return
	}
	listeners := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(data)
	}
}

func (s *Store[T]) Snapshot() (T, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.state
}

// Get returns the snapshot, loading it first if nothing has been loaded yet.
// A store that has loaded once keeps answering from its snapshot even while
// refreshes fail; State.Err tells the caller it may be stale.
func (s *Store[T]) Get(ctx context.Context) (T, State, error) {
	data, state := s.Snapshot()
	if state.Loaded {
		return data, state, nil
	}
	if err := s.Refresh(ctx); err != nil {
		data, state = s.Snapshot()
		if !state.Loaded {
			return data, state, err
		}
	}
	data, state = s.Snapshot()
	return data, state, nil
}

// Watch refreshes the store on every change to table.
func (s *Store[T]) Watch(ctx context.Context, sub gateway.Subscriber, table string, filter *gateway.Eq) error {
	subscription, err := sub.Subscribe(ctx, table, filter, func(ev gateway.ChangeEvent) {
		rctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.log.WithFields(logrus.Fields{"table": ev.Table, "type": ev.Type}).Debug("Change received")
		_ = s.Refresh(rctx)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", table, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		subscription.Unsubscribe()
		return ErrClosed
	}
	s.subs = append(s.subs, subscription)
	return nil
}

// OnChange registers fn to receive every applied snapshot.
func (s *Store[T]) OnChange(fn func(T)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Done is closed once the store is closed and no more snapshots will be
// delivered to listeners.
func (s *Store[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops every subscription. A closed store keeps its last snapshot.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.listeners = make(map[int]func(T))
	close(s.done)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
