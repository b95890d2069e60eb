// Package eventbus fans scoring notifications out to in-process observers.
//
// Every subscriber owns a mailbox drained by its own goroutine, so a slow
// subscriber never delays Publish or other subscribers. Delivery is in
// publish order per subscriber and lossless while the subscriber keeps up.
// Mailboxes are bounded: once one holds the mailbox limit, the oldest
// pending notification is dropped and counted in Subscription.Dropped, so a
// lagging consumer can resync from ReplayAfter or a state snapshot. The bus
// keeps a bounded replay ring for consumers that resume after a gap.
package eventbus

import (
	"strconv"
	"sync"
	"time"
)

type Kind string

const (
	KindEventAdded     Kind = "event_added"
	KindRoundComputed  Kind = "round_computed"
	KindFightFinalized Kind = "fight_finalized"
	KindJobFinished    Kind = "job_finished"
)

type Notification struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	BoutID      string    `json:"bout_id"`
	RoundNumber int       `json:"round_number,omitempty"`
	At          time.Time `json:"at"`
	Data        any       `json:"data"`
}

func (n Notification) EventID() string { return strconv.FormatInt(n.ID, 10) }

// Predicate selects the notifications a subscriber receives. A nil
// predicate receives everything.
type Predicate func(Notification) bool

func KindIn(kinds ...Kind) Predicate {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(n Notification) bool {
		_, ok := set[n.Kind]
		return ok
	}
}

func ForBout(boutID string, inner Predicate) Predicate {
	return func(n Notification) bool {
		if n.BoutID != boutID {
			return false
		}
		return inner == nil || inner(n)
	}
}

type Bus struct {
	mu         sync.Mutex
	nextID     int64
	replayMax  int
	mailboxMax int
	ring       []Notification
	subs       map[*Subscription]struct{}
	closed     bool
	now        func() time.Time
}

type Option func(*Bus)

// WithMailboxLimit caps pending notifications per subscriber; when a mailbox
// is full the oldest pending notification is dropped.
func WithMailboxLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.mailboxMax = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func New(replayMax int, opts ...Option) *Bus {
	if replayMax <= 0 {
		replayMax = 500
	}
	b := &Bus{
		replayMax:  replayMax,
		mailboxMax: 4096,
		subs:       map[*Subscription]struct{}{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish assigns the next sequence id and enqueues the notification for
// every matching subscriber. It never blocks on subscribers.
func (b *Bus) Publish(kind Kind, boutID string, round int, data any) Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Notification{}
	}
	b.nextID++
	n := Notification{
		ID:          b.nextID,
		Kind:        kind,
		BoutID:      boutID,
		RoundNumber: round,
		At:          b.now().UTC(),
		Data:        data,
	}
	b.ring = append(b.ring, n)
	if len(b.ring) > b.replayMax {
		b.ring = b.ring[len(b.ring)-b.replayMax:]
	}
	published.WithLabelValues(string(kind)).Inc()
	for sub := range b.subs {
		if sub.pred == nil || sub.pred(n) {
			sub.push(n, b.mailboxMax)
		}
	}
	return n
}

// ReplayAfter returns buffered notifications with an id above lastID that
// match pred, oldest first.
func (b *Bus) ReplayAfter(lastID int64, pred Predicate) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, 0, len(b.ring))
	for _, n := range b.ring {
		if n.ID > lastID && (pred == nil || pred(n)) {
			out = append(out, n)
		}
	}
	return out
}

func (b *Bus) Subscribe(pred Predicate) *Subscription {
	sub := &Subscription{
		bus:    b,
		pred:   pred,
		out:    make(chan Notification),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.done)
		close(sub.out)
		close(sub.closed)
		return sub
	}
	b.subs[sub] = struct{}{}
	subscribers.Inc()
	b.mu.Unlock()
	go sub.pump()
	return sub
}

func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		subscribers.Dec()
	}
}

// Subscription is one observer's mailbox. C is closed after Close.
type Subscription struct {
	bus  *Bus
	pred Predicate

	mu      sync.Mutex
	pending []Notification
	dropped int64

	out       chan Notification
	wake      chan struct{}
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) C() <-chan Notification { return s.out }

// Dropped reports how many notifications this subscriber lost to a full
// mailbox.
func (s *Subscription) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) push(n Notification, limit int) {
	s.mu.Lock()
	if len(s.pending) >= limit {
		s.pending = s.pending[1:]
		s.dropped++
		dropped.Inc()
	}
	s.pending = append(s.pending, n)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.closed)
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		select {
		case s.out <- n:
		case <-s.done:
			return
		}
	}
}

// Close unsubscribes; pending notifications are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	})
	<-s.closed
}
