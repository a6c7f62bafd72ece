package gateway

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultQueueSize = 8

// Hub fans change events out to in-process subscribers. Each subscription
// gets its own worker goroutine so a slow handler only delays itself.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[uint64]*hubSubscription
	nextID    uint64
	queueSize int
	closed    bool
}

func NewHub() *Hub {
	return &Hub{
		subs:      make(map[string]map[uint64]*hubSubscription),
		queueSize: defaultQueueSize,
	}
}

type hubSubscription struct {
	hub      *Hub
	id       uint64
	table    string
	filter   *Eq
	onChange func(ChangeEvent)
	queue    chan ChangeEvent
	done     chan struct{}
	once     sync.Once
}

// Subscribe registers onChange for table. The subscription ends when ctx is
// cancelled or Unsubscribe is called.
func (h *Hub) Subscribe(ctx context.Context, table string, filter *Eq, onChange func(ChangeEvent)) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &RemoteError{Op: "subscribe", Table: table, Message: "hub closed"}
	}

	h.nextID++
	sub := &hubSubscription{
		hub:      h,
		id:       h.nextID,
		table:    table,
		filter:   filter,
		onChange: onChange,
		queue:    make(chan ChangeEvent, h.queueSize),
		done:     make(chan struct{}),
	}
	if h.subs[table] == nil {
		h.subs[table] = make(map[uint64]*hubSubscription)
	}
	h.subs[table][sub.id] = sub

	go sub.run()
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Tables lists the tables that currently have subscribers.
func (h *Hub) Tables() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tables := make([]string, 0, len(h.subs))
	for table, subs := range h.subs {
		if len(subs) > 0 {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	return tables
}

// Publish delivers ev to every matching subscriber without blocking. When a
// subscriber's queue is full the event is dropped: handlers refetch the whole
// table, so one pending event covers any that arrive behind it.
func (h *Hub) Publish(ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[ev.Table] {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*hubSubscription
	for _, byID := range h.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if byID := h.subs[sub.table]; byID != nil {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(h.subs, sub.table)
		}
	}
}

// Unknown records match every filter: over-notifying is harmless, missing a
// change is not.
func (s *hubSubscription) matches(ev ChangeEvent) bool {
	if s.filter == nil || ev.Record == nil {
		return true
	}
	v, ok := ev.Record[s.filter.Field]
	if !ok {
		return true
	}
	return valuesEqual(v, s.filter.Value)
}

func (s *hubSubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.onChange(ev)
		}
	}
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}
